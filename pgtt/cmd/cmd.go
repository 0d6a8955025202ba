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

// Package cmd holds implementations of the pgtt commands.
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
	"github.com/google/subcommands"
	"gvisor.dev/pgtt/pgtt/config"
	"gvisor.dev/pgtt/pkg/log"
	"gvisor.dev/pgtt/pkg/memmap"
	"gvisor.dev/pgtt/pkg/mmu"
	"gvisor.dev/pgtt/pkg/pagetables"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the caller of pgtt.
var ErrorLogger io.Writer

// stdout is where command output goes when no output file is given.
var stdout io.Writer = os.Stdout

// Fatalf logs the same message to the ErrorLogger and to the debug log and
// exits with status 128.
func Fatalf(format string, args ...any) {
	log.Warningf("FATAL ERROR: "+format, args...)
	writeError(format, args...)
	os.Exit(128)
}

// Errorf logs error to the ErrorLogger and returns ExitFailure.
func Errorf(format string, args ...any) subcommands.ExitStatus {
	log.Warningf(format, args...)
	writeError(format, args...)
	return subcommands.ExitFailure
}

func writeError(format string, args ...any) {
	msg := fmt.Sprintf(format+"\n", args...)
	fmt.Fprint(os.Stderr, msg)
	if ErrorLogger != nil {
		fmt.Fprint(ErrorLogger, msg)
	}
}

// input is a parsed memory map and the tree built from it.
type input struct {
	mmap *memmap.Map
	tree *pagetables.Tree
	enc  *mmu.Encoder
}

// load parses the memory map at path and builds its translation tables.
func load(conf *config.Config, path string) (*input, error) {
	mmap, err := memmap.ParseFile(path)
	if err != nil {
		return nil, err
	}
	tc := conf.TranslationConfig()
	enc, err := mmu.NewEncoder(tc)
	if err != nil {
		return nil, err
	}
	tree, err := pagetables.Build(tc, mmap.Regions())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("Built %d translation tables for %d regions from %q", len(tree.Tables), mmap.Len(), path)
	return &input{mmap: mmap, tree: tree, enc: enc}, nil
}

// writeOutput calls fn with a writer for path, or for stdout if path is
// empty or "-". Files are written under an exclusive lock held on the output
// itself so concurrent invocations never interleave.
func writeOutput(path string, fn func(io.Writer) error) error {
	if path == "" || path == "-" {
		return fn(stdout)
	}

	// Open before locking so the file is created with the usual mode, and
	// truncate only once the lock is held.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l := flock.New(path)
	if err := l.Lock(); err != nil {
		f.Close()
		return fmt.Errorf("error acquiring lock on %q: %w", l.Path(), err)
	}
	defer l.Unlock()
	if err := f.Truncate(0); err != nil {
		f.Close()
		return err
	}

	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return fmt.Errorf("writing %q: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Debugf("Wrote %q", path)
	return nil
}
