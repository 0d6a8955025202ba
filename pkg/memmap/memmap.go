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

// Package memmap parses memory map files into the ordered region list the
// table builder consumes.
//
// Four formats are understood. The text format has one region per line:
//
//	# address,   length, type,    label
//	0x0900_0000, 4K,     DEVICE,  uart0
//	0x4000_0000, 1G,     RW_DATA, dram
//
// The YAML, TOML and JSON formats share one document shape:
//
//	version: v1
//	regions:
//	  - {base: 0x09000000, length: 4K, type: DEVICE, label: uart0}
package memmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/btree"
	"gvisor.dev/pgtt/pkg/log"
	"gvisor.dev/pgtt/pkg/pagetables"
)

// Format is a memory map file format.
type Format int

// Supported formats.
const (
	Text Format = iota
	YAML
	TOML
	JSON
)

// String implements fmt.Stringer.String.
func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case YAML:
		return "yaml"
	case TOML:
		return "toml"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFromPath picks a format from a file extension. Unknown extensions
// are read as text.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	case ".toml":
		return TOML
	case ".json":
		return JSON
	default:
		return Text
	}
}

// Entry is a parsed region and where it came from.
type Entry struct {
	pagetables.Region

	// Source locates the entry in its input, e.g. "board.map:12".
	Source string
}

// Error is a parse error located in the input.
type Error struct {
	Source string
	Err    error
}

// Error implements error.Error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Map is a set of non-overlapping regions ordered by base address.
type Map struct {
	// Version is the document version, if the input declared one.
	Version string

	entries *btree.BTreeG[*Entry]
}

func lessEntry(a, b *Entry) bool {
	return a.Base < b.Base
}

// New returns an empty Map.
func New() *Map {
	return &Map{entries: btree.NewG(8, lessEntry)}
}

// Add inserts e, rejecting empty regions and regions that overlap an
// existing entry.
func (m *Map) Add(e Entry) error {
	if e.Length == 0 {
		return &Error{Source: e.Source, Err: &pagetables.RangeError{Label: e.Label, Base: e.Base, Length: e.Length, Reason: "zero length"}}
	}
	if e.Last() < e.Base {
		return &Error{Source: e.Source, Err: &pagetables.RangeError{Label: e.Label, Base: e.Base, Length: e.Length, Reason: "wraps around the address space"}}
	}

	var collision *Entry
	m.entries.DescendLessOrEqual(&e, func(prev *Entry) bool {
		if prev.Last() >= e.Base {
			collision = prev
		}
		return false
	})
	if collision == nil {
		m.entries.AscendGreaterOrEqual(&e, func(next *Entry) bool {
			if next.Base <= e.Last() {
				collision = next
			}
			return false
		})
	}
	if collision != nil {
		return &Error{
			Source: e.Source,
			Err: &pagetables.OverlapError{
				Label: e.Label,
				Other: fmt.Sprintf("%s (%s)", collision.Label, collision.Source),
				Addr:  e.Base,
			},
		}
	}

	m.entries.ReplaceOrInsert(&e)
	return nil
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return m.entries.Len()
}

// Entries returns the entries in ascending base order.
func (m *Map) Entries() []Entry {
	es := make([]Entry, 0, m.entries.Len())
	m.entries.Ascend(func(e *Entry) bool {
		es = append(es, *e)
		return true
	})
	return es
}

// Regions returns the regions in ascending base order, ready for
// pagetables.Build.
func (m *Map) Regions() []pagetables.Region {
	rs := make([]pagetables.Region, 0, m.entries.Len())
	m.entries.Ascend(func(e *Entry) bool {
		rs = append(rs, e.Region)
		return true
	})
	return rs
}

// Parse reads a memory map in the given format. name is used to locate
// errors.
func Parse(r io.Reader, name string, f Format) (*Map, error) {
	var (
		m   *Map
		err error
	)
	switch f {
	case Text:
		m, err = parseText(r, name)
	case YAML, TOML, JSON:
		m, err = parseStructured(r, name, f)
	default:
		return nil, fmt.Errorf("unsupported memory map format %v", f)
	}
	if err != nil {
		return nil, err
	}
	if m.Len() == 0 {
		return nil, &Error{Source: name, Err: errors.New("no regions")}
	}
	log.Debugf("Parsed %d regions from %s (%v)", m.Len(), name, f)
	return m, nil
}

// ParseFile reads the memory map at path, choosing the format from its
// extension.
func ParseFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening memory map: %w", err)
	}
	defer f.Close()
	return Parse(f, path, FormatFromPath(path))
}
