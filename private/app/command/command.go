// Copyright 2020 Anapaya Systems
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

// Package command contains the subcommands shared by all binaries.
package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pktpipe/pktpipe/private/config"
	"github.com/pktpipe/pktpipe/private/env"
)

// Pather returns the path of a command. It is used to render examples that
// work no matter where the command is mounted.
type Pather interface {
	CommandPath() string
}

// NewSample creates the sample command. The subcommands each print one
// sample.
func NewSample(pather Pather, samplers ...func(Pather) *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Display sample files",
		Args:  cobra.NoArgs,
	}
	for _, f := range samplers {
		cmd.AddCommand(f(cmd))
	}
	return cmd
}

// NewSampleConfig creates a sampler for the configuration file of the
// application.
func NewSampleConfig(sampler config.Sampler) func(Pather) *cobra.Command {
	return func(pather Pather) *cobra.Command {
		return &cobra.Command{
			Use:     "config",
			Short:   "Display sample configuration file",
			Example: fmt.Sprintf("  %s config > pktpipe.toml", pather.CommandPath()),
			Args:    cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				sampler.Sample(cmd.OutOrStdout(), nil, nil)
			},
		}
	}
}

// NewVersion creates the version command.
func NewVersion(_ Pather) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), env.VersionInfo())
		},
	}
}

// NewCompletion creates the shell completion command.
func NewCompletion(pather Pather) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate the autocompletion script for the specified shell",
		Example: fmt.Sprintf("  %s bash > /etc/bash_completion.d/pktpipe",
			pather.CommandPath()),
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			root, out := cmd.Root(), cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			default:
				return root.GenFishCompletion(out, true)
			}
		},
	}
}
