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

package vmsa

import (
	"fmt"
	"strings"
)

// MemoryType is the memory attribute class of a mapped region.
type MemoryType uint8

const (
	// Device is Device-nGnRnE memory: read/write, never executable, not
	// shareable.
	Device MemoryType = iota

	// NormalCacheable is inner and outer write-back read/write-allocate
	// normal memory: read/write, never executable, inner shareable.
	NormalCacheable

	// NormalNonCacheable is inner and outer non-cacheable normal memory:
	// read/write, never executable, inner shareable.
	NormalNonCacheable

	// Code is write-back cacheable normal memory that is read-only and
	// executable at the privileged level only.
	Code

	// NumMemoryTypes is the number of memory types.
	NumMemoryTypes
)

// AllMemoryTypes is the default memory type set, in attribute index order.
var AllMemoryTypes = []MemoryType{Device, NormalCacheable, NormalNonCacheable, Code}

// String implements fmt.Stringer.String.
func (mt MemoryType) String() string {
	switch mt {
	case Device:
		return "Device"
	case NormalCacheable:
		return "NormalCacheable"
	case NormalNonCacheable:
		return "NormalNonCacheable"
	case Code:
		return "Code"
	default:
		return fmt.Sprintf("%d", mt)
	}
}

// ShortString returns a compact, fixed set of names used in generated
// output: DEVICE, RW_DATA, NO_CACHE and CODE.
func (mt MemoryType) ShortString() string {
	switch mt {
	case Device:
		return "DEVICE"
	case NormalCacheable:
		return "RW_DATA"
	case NormalNonCacheable:
		return "NO_CACHE"
	case Code:
		return "CODE"
	default:
		return fmt.Sprintf("%02d", mt)
	}
}

// Valid returns true if mt is a defined memory type.
func (mt MemoryType) Valid() bool {
	return mt < NumMemoryTypes
}

// Executable returns true if instructions may be fetched from mt at the
// privileged level.
func (mt MemoryType) Executable() bool {
	return mt == Code
}

// Writable returns true if mt is mapped read/write.
func (mt MemoryType) Writable() bool {
	return mt != Code
}

// ParseMemoryType parses a memory type name. Both the String and
// ShortString forms are accepted, case-insensitively, as well as a few
// common aliases.
func ParseMemoryType(s string) (MemoryType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEVICE", "DEV", "MMIO":
		return Device, nil
	case "NORMALCACHEABLE", "RW_DATA", "RW", "NORMAL", "DATA":
		return NormalCacheable, nil
	case "NORMALNONCACHEABLE", "NO_CACHE", "NC", "UNCACHED":
		return NormalNonCacheable, nil
	case "CODE", "TEXT", "RX":
		return Code, nil
	}
	return 0, fmt.Errorf("unknown memory type %q", s)
}

// Set implements flag.Value.Set.
func (mt *MemoryType) Set(v string) error {
	t, err := ParseMemoryType(v)
	if err != nil {
		return err
	}
	*mt = t
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (mt MemoryType) MarshalText() ([]byte, error) {
	if !mt.Valid() {
		return nil, fmt.Errorf("invalid memory type %d", mt)
	}
	return []byte(mt.ShortString()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (mt *MemoryType) UnmarshalText(b []byte) error {
	return mt.Set(string(b))
}

// MemoryTypes is an ordered memory type set. It implements flag.Value as a
// comma separated list.
type MemoryTypes []MemoryType

// Set implements flag.Value.Set.
func (m *MemoryTypes) Set(v string) error {
	var ts MemoryTypes
	for _, s := range strings.Split(v, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		t, err := ParseMemoryType(s)
		if err != nil {
			return err
		}
		ts = append(ts, t)
	}
	if len(ts) == 0 {
		return fmt.Errorf("empty memory type list %q", v)
	}
	*m = ts
	return nil
}

// Get implements flag.Value.Get.
func (m *MemoryTypes) Get() any {
	return *m
}

// String implements fmt.Stringer.String.
func (m MemoryTypes) String() string {
	names := make([]string, 0, len(m))
	for _, t := range m {
		names = append(names, t.ShortString())
	}
	return strings.Join(names, ",")
}
