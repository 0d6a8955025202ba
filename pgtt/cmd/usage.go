// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/google/subcommands"
	"golang.org/x/term"
	"gvisor.dev/pgtt/pgtt/config"
	"gvisor.dev/pgtt/pkg/pagetables"
)

// Usage implements subcommands.Command for the "usage" command.
type Usage struct {
	output string
}

type outputFunc func(io.Writer, pagetables.Report) error

// A map of output type names to output functions.
var outputMap = map[string]outputFunc{
	"table": outputTable,
	"json":  writeUsageJSON,
	"csv":   outputCSV,
}

// Name implements subcommands.Command.Name.
func (*Usage) Name() string {
	return "usage"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Usage) Synopsis() string {
	return "print the number of translation tables a memory map requires"
}

// Usage implements subcommands.Command.Usage.
func (*Usage) Usage() string {
	return `usage [flags] <memory map> - print translation table usage.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (u *Usage) SetFlags(f *flag.FlagSet) {
	f.StringVar(&u.output, "format", "auto", "output format (auto, table, csv, json). auto prints a table to terminals and JSON otherwise.")
}

// Execute implements subcommands.Command.Execute.
func (u *Usage) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := u.run(conf, f.Arg(0), stdout, isTerminal(os.Stdout)); err != nil {
		Fatalf("usage failed: %v", err)
	}
	return subcommands.ExitSuccess
}

func (u *Usage) run(conf *config.Config, path string, w io.Writer, terminal bool) error {
	format := u.output
	if format == "auto" {
		format = "json"
		if terminal {
			format = "table"
		}
	}
	out, ok := outputMap[format]
	if !ok {
		return fmt.Errorf("unsupported output format %q", u.output)
	}
	in, err := load(conf, path)
	if err != nil {
		return err
	}
	return out(w, pagetables.Usage(in.tree))
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// outputTable outputs the usage report in tabular format.
func outputTable(w io.Writer, r pagetables.Report) error {
	if _, err := io.WriteString(w, r.Summary()+"\n"); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	// Write the header
	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
		"TABLE",
		"LEVEL",
		"OFFSET",
		"VA",
		"CHUNK",
		"USED",
	); err != nil {
		return err
	}
	for _, t := range r.Tables {
		if _, err := fmt.Fprintf(tw, "%d\t%d\t%#x\t%#x\t%#x\t%d/%d\n",
			t.ID,
			t.Level,
			t.Offset,
			t.VABase,
			t.Chunk,
			t.Used,
			t.Available,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// outputCSV outputs the usage report in CSV format, one row per table.
func outputCSV(w io.Writer, r pagetables.Report) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write([]string{"table", "level", "offset", "va", "chunk", "used", "available", "runs"}); err != nil {
		return err
	}
	for _, t := range r.Tables {
		if err := csvWriter.Write([]string{
			strconv.Itoa(int(t.ID)),
			strconv.Itoa(t.Level),
			strconv.FormatUint(t.Offset, 10),
			strconv.FormatUint(t.VABase, 10),
			strconv.FormatUint(t.Chunk, 10),
			strconv.Itoa(t.Used),
			strconv.Itoa(t.Available),
			strconv.Itoa(t.Runs),
		}); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
