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
	"fmt"
	"io"

	"github.com/google/subcommands"
	"gvisor.dev/pgtt/pgtt/config"
	"gvisor.dev/pgtt/pkg/mmu"
)

// Regs implements subcommands.Command for the "regs" command.
type Regs struct{}

// Name implements subcommands.Command.Name.
func (*Regs) Name() string {
	return "regs"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Regs) Synopsis() string {
	return "print the system register values and descriptor templates"
}

// Usage implements subcommands.Command.Usage.
func (*Regs) Usage() string {
	return `regs [flags] - print MAIR, TCR and SCTLR values and the leaf descriptor
templates of every memory type, field by field.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Regs) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (r *Regs) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := r.run(conf, stdout); err != nil {
		return Errorf("regs failed: %v", err)
	}
	return subcommands.ExitSuccess
}

func (*Regs) run(conf *config.Config, w io.Writer) error {
	enc, err := mmu.NewEncoder(conf.TranslationConfig())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %v\n", enc.Config())
	for _, reg := range enc.Registers() {
		if _, err := fmt.Fprintf(w, "\n%v", reg); err != nil {
			return err
		}
	}
	return nil
}
