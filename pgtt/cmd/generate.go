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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/pgtt/pgtt/config"
	"gvisor.dev/pgtt/pkg/asmgen"
	"gvisor.dev/pgtt/pkg/log"
	"gvisor.dev/pgtt/pkg/pagetables"
)

// Generate implements subcommands.Command for the "generate" command.
type Generate struct {
	output    string
	usageFile string
	treeFile  string
	overrides overrideFlags
}

// overrideFlags collects repeated -set name=value arguments.
type overrideFlags []string

// String implements flag.Value.String.
func (o *overrideFlags) String() string {
	return strings.Join(*o, ",")
}

// Set implements flag.Value.Set.
func (o *overrideFlags) Set(v string) error {
	*o = append(*o, v)
	return nil
}

// Name implements subcommands.Command.Name.
func (*Generate) Name() string {
	return "generate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Generate) Synopsis() string {
	return "generate the assembly routine that populates the translation tables"
}

// Usage implements subcommands.Command.Usage.
func (*Generate) Usage() string {
	return `generate [flags] <memory map> - generate translation table assembly.

The memory map is a text, YAML, TOML or JSON file listing the regions to map.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (g *Generate) SetFlags(f *flag.FlagSet) {
	f.StringVar(&g.output, "o", "-", "assembly output file, - for stdout.")
	f.StringVar(&g.usageFile, "usage", "", "also write the JSON usage report to this file.")
	f.StringVar(&g.treeFile, "tree", "", "also write the table tree dump to this file.")
	f.Var(&g.overrides, "set", "override a global flag for this run only, as name=value. May be repeated.")
}

// Execute implements subcommands.Command.Execute.
func (g *Generate) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := g.run(ctx, conf, f.Arg(0)); err != nil {
		Fatalf("generate failed: %v", err)
	}
	return subcommands.ExitSuccess
}

// configure returns the configuration for this run. The shared config is
// copied before any -set override is applied to it.
func (g *Generate) configure(conf *config.Config) (*config.Config, error) {
	if len(g.overrides) == 0 {
		return conf, nil
	}
	conf = conf.Copy()
	flagSet := flag.NewFlagSet("set", flag.ContinueOnError)
	config.RegisterFlags(flagSet)
	for _, o := range g.overrides {
		name, value, ok := strings.Cut(o, "=")
		if !ok {
			return nil, fmt.Errorf("invalid -set %q, want name=value", o)
		}
		if name == "config" {
			return nil, fmt.Errorf("-set cannot change %q", name)
		}
		if err := conf.Override(flagSet, name, value); err != nil {
			return nil, err
		}
	}
	return conf, nil
}

// commandLine renders the effective invocation for the output header.
func commandLine(conf *config.Config, path string) string {
	args := append([]string{"pgtt"}, conf.ToFlags()...)
	return strings.Join(append(args, "generate", filepath.Base(path)), " ")
}

func (g *Generate) run(ctx context.Context, conf *config.Config, path string) error {
	conf, err := g.configure(conf)
	if err != nil {
		return err
	}
	if log.IsLogging(log.Debug) && len(g.overrides) > 0 {
		conf.Log()
	}
	in, err := load(conf, path)
	if err != nil {
		return err
	}
	opts := asmgen.Options{
		FunctionName:  conf.FunctionName,
		EnableRoutine: conf.Enable,
		Command:       commandLine(conf, path),
	}

	type output struct {
		path  string
		write func(io.Writer) error
	}
	outputs := []output{{g.output, func(w io.Writer) error {
		return asmgen.Generate(w, in.tree, in.enc, opts)
	}}}
	if g.usageFile != "" {
		outputs = append(outputs, output{g.usageFile, func(w io.Writer) error {
			return writeUsageJSON(w, pagetables.Usage(in.tree))
		}})
	}
	if g.treeFile != "" {
		outputs = append(outputs, output{g.treeFile, func(w io.Writer) error {
			_, err := io.WriteString(w, in.tree.String())
			return err
		}})
	}
	toStdout := 0
	for _, o := range outputs {
		if o.path == "" || o.path == "-" {
			toStdout++
		}
	}
	if toStdout > 1 {
		return fmt.Errorf("at most one output may be written to stdout")
	}

	// All outputs are rendered from the same read-only tree.
	eg, ctx := errgroup.WithContext(ctx)
	for _, o := range outputs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeOutput(o.path, o.write)
		})
	}
	return eg.Wait()
}

func writeUsageJSON(w io.Writer, r pagetables.Report) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(r)
}
