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

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pipeline/modules"
	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/metadata"
	"github.com/pktpipe/pktpipe/private/app/command"
)

func newOffsets(pather command.Pather) *cobra.Command {
	var components bool
	cmd := &cobra.Command{
		Use:   "offsets",
		Short: "Print the metadata offsets of the configured pipeline",
		Example: fmt.Sprintf("  %[1]s offsets --config pktpipe.toml\n"+
			"  %[1]s offsets --config pktpipe.toml --components", pather.CommandPath()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := application.LoadConfig(); err != nil {
				return err
			}
			// Keep the output clean, problems are reported through the error.
			if err := log.Setup(log.Config{Console: log.ConsoleConfig{Level: "error"}}); err != nil {
				return err
			}
			p, err := build()
			if err != nil {
				return err
			}
			defer p.Close()
			plan, _ := p.Plan()
			if components {
				printComponents(cmd.OutOrStdout(), p.Describe(), plan)
				return nil
			}
			printOffsets(cmd.OutOrStdout(), p.Describe())
			return nil
		},
	}
	cmd.Flags().BoolVar(&components, "components", false, "Print the scope components")
	return cmd
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

// printOffsets prints one row per attribute declaration.
func printOffsets(w io.Writer, infos []pipeline.ModuleInfo) {
	table := newTable(w, "MODULE", "CLASS", "ATTR", "SIZE", "MODE", "OFFSET")
	for _, m := range infos {
		for _, a := range m.Attrs {
			table.Append([]string{
				m.Name, m.Class, a.Name, strconv.Itoa(a.Size), a.Mode.String(), a.Offset.String(),
			})
		}
	}
	table.Render()
}

// printComponents prints one row per scope component.
func printComponents(w io.Writer, infos []pipeline.ModuleInfo, plan *metadata.Plan) {
	names := func(idx []int) string {
		s := make([]string, 0, len(idx))
		for _, i := range idx {
			s = append(s, infos[i].Name)
		}
		return strings.Join(s, ",")
	}
	accessors := func(acc []metadata.Access) string {
		idx := make([]int, 0, len(acc))
		for _, a := range acc {
			idx = append(idx, a.Module)
		}
		return names(idx)
	}
	table := newTable(w, "ATTR", "SIZE", "OFFSET", "WRITERS", "READERS", "MEMBERS")
	for _, c := range plan.Components {
		offset := c.Offset.String()
		if c.Invalid {
			offset = "invalid"
		}
		table.Append([]string{
			c.Attr, strconv.Itoa(c.Size), offset,
			accessors(c.Writers), accessors(c.Readers), names(c.Members),
		})
	}
	table.Render()
	fmt.Fprintf(w, "\nscratch bytes: %d/%d\n", plan.ScratchBytes, plan.TotalSize)
}

func newClasses(pather command.Pather) *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List the module classes",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			table := newTable(cmd.OutOrStdout(), "CLASS", "DESCRIPTION")
			for _, c := range modules.Classes() {
				table.Append([]string{c.Name, c.Help})
			}
			table.Render()
		},
	}
}
