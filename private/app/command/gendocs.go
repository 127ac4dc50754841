// Copyright 2023 Anapaya Systems
// Copyright 2026 The pktpipe Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// NewGendocs creates a hidden command that writes one markdown page per
// command into a directory.
func NewGendocs(pather Pather) *cobra.Command {
	return &cobra.Command{
		Use:     "gendocs <directory>",
		Short:   "Generate documentation",
		Example: fmt.Sprintf("  %s doc/cmd", pather.CommandPath()),
		Args:    cobra.ExactArgs(1),
		Hidden:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Root().DisableAutoGenTag = true
			if err := os.MkdirAll(args[0], 0755); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
			if err := writePages(cmd.Root(), args[0]); err != nil {
				return fmt.Errorf("generating documentation: %w", err)
			}
			return nil
		},
	}
}

func pageName(cmd *cobra.Command) string {
	return strings.ReplaceAll(cmd.CommandPath(), " ", "_") + ".md"
}

// writePages renders cmd and its available children. Hidden commands, like
// gendocs itself, are skipped.
func writePages(cmd *cobra.Command, dir string) error {
	for _, c := range cmd.Commands() {
		if !c.IsAvailableCommand() || c.IsAdditionalHelpTopicCommand() {
			continue
		}
		if err := writePages(c, dir); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if err := doc.GenMarkdownCustom(cmd, &buf, func(name string) string {
		return strings.TrimSuffix(name, ".md") + ".html"
	}); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, pageName(cmd)), buf.Bytes(), 0666)
}
