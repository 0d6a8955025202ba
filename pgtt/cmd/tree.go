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
	"flag"
	"io"

	"github.com/google/subcommands"
	"gvisor.dev/pgtt/pgtt/config"
)

// Tree implements subcommands.Command for the "tree" command.
type Tree struct {
	output string
}

// Name implements subcommands.Command.Name.
func (*Tree) Name() string {
	return "tree"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Tree) Synopsis() string {
	return "print the translation tables built for a memory map"
}

// Usage implements subcommands.Command.Usage.
func (*Tree) Usage() string {
	return `tree [flags] <memory map> - print the translation table tree.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *Tree) SetFlags(f *flag.FlagSet) {
	f.StringVar(&t.output, "o", "-", "output file, - for stdout.")
}

// Execute implements subcommands.Command.Execute.
func (t *Tree) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := t.run(conf, f.Arg(0)); err != nil {
		Fatalf("tree failed: %v", err)
	}
	return subcommands.ExitSuccess
}

func (t *Tree) run(conf *config.Config, path string) error {
	in, err := load(conf, path)
	if err != nil {
		return err
	}
	return writeOutput(t.output, func(w io.Writer) error {
		_, err := io.WriteString(w, in.tree.String())
		return err
	})
}
