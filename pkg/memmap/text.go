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

package memmap

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gvisor.dev/pgtt/pkg/pagetables"
	"gvisor.dev/pgtt/pkg/vmsa"
)

// sizeSuffixes are the accepted unit suffixes, longest first. None of them
// starts with a hex digit, so they never eat into a 0x-prefixed number.
var sizeSuffixes = []struct {
	suffix string
	shift  uint
}{
	{"KIB", 10}, {"MIB", 20}, {"GIB", 30}, {"TIB", 40},
	{"KB", 10}, {"MB", 20}, {"GB", 30}, {"TB", 40},
	{"K", 10}, {"M", 20}, {"G", 30}, {"T", 40},
}

// parseSize parses an address or length: decimal or 0x-prefixed hex, with
// optional '_' separators and an optional K, M, G or T suffix.
func parseSize(s string) (uint64, error) {
	num := strings.TrimSpace(s)
	u := strings.ToUpper(num)
	var shift uint
	for _, sfx := range sizeSuffixes {
		if len(u) > len(sfx.suffix) && strings.HasSuffix(u, sfx.suffix) {
			num, shift = num[:len(num)-len(sfx.suffix)], sfx.shift
			break
		}
	}
	v, err := strconv.ParseUint(strings.TrimSpace(num), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if v > (^uint64(0))>>shift {
		return 0, fmt.Errorf("%q overflows 64 bits", s)
	}
	return v << shift, nil
}

// stripComment removes '#' and '//' comments.
func stripComment(line string) string {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// parseText reads the line-oriented format.
func parseText(r io.Reader, name string) (*Map, error) {
	m := New()
	s := bufio.NewScanner(r)
	for lineno := 1; s.Scan(); lineno++ {
		line := stripComment(s.Text())
		if line == "" {
			continue
		}
		source := fmt.Sprintf("%s:%d", name, lineno)
		e, err := parseLine(line, source)
		if err != nil {
			return nil, &Error{Source: source, Err: err}
		}
		if err := m.Add(e); err != nil {
			return nil, err
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return m, nil
}

// parseLine parses "address, length, type[, label]".
func parseLine(line, source string) (Entry, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 3 || len(fields) > 4 {
		return Entry{}, fmt.Errorf("want \"address, length, type[, label]\", got %d fields", len(fields))
	}
	return newEntry(fields[0], fields[1], fields[2], strings.Join(fields[3:], ""), source)
}

// newEntry builds an entry from its textual fields.
func newEntry(base, length, typ, label, source string) (Entry, error) {
	b, err := parseSize(base)
	if err != nil {
		return Entry{}, fmt.Errorf("address: %w", err)
	}
	l, err := parseSize(length)
	if err != nil {
		return Entry{}, fmt.Errorf("length: %w", err)
	}
	return makeEntry(b, l, typ, label, source)
}

// makeEntry builds an entry, naming unlabeled regions after their type and
// address.
func makeEntry(base, length uint64, typ, label, source string) (Entry, error) {
	mt, err := vmsa.ParseMemoryType(typ)
	if err != nil {
		return Entry{}, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = fmt.Sprintf("%s@%#x", strings.ToLower(mt.ShortString()), base)
	}
	return Entry{
		Region: pagetables.Region{Base: base, Length: length, Type: mt, Label: label},
		Source: source,
	}, nil
}
