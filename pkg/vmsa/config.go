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
	"strconv"
	"strings"
)

// Supported input address widths.
const (
	MinAddressBits = 25
	MaxAddressBits = 48
)

// ExceptionLevel is the exception level whose translation regime is
// configured.
type ExceptionLevel uint8

// Supported exception levels.
const (
	EL1 ExceptionLevel = 1
	EL2 ExceptionLevel = 2
	EL3 ExceptionLevel = 3
)

// String implements fmt.Stringer.String.
func (el ExceptionLevel) String() string {
	return fmt.Sprintf("EL%d", uint8(el))
}

// Set implements flag.Value.Set. It accepts "1", "EL1" and "el1".
func (el *ExceptionLevel) Set(v string) error {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(v)), "EL")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n < uint64(EL1) || n > uint64(EL3) {
		return &ConfigError{Field: "el", Value: v, Reason: "must be 1, 2 or 3"}
	}
	*el = ExceptionLevel(n)
	return nil
}

// Get implements flag.Value.Get.
func (el *ExceptionLevel) Get() any {
	return *el
}

// Config is a translation regime configuration.
//
// The zero value is not valid; use Validate before handing a Config to the
// table builder or the encoder.
type Config struct {
	// Granule is the translation granule.
	Granule Granule

	// AddressBits is the input address width. The configured TTBR covers
	// 2^AddressBits bytes.
	AddressBits uint

	// EL is the exception level of the translation regime.
	EL ExceptionLevel

	// TTBR selects the translation table base register, 0 or 1. TTBR1 is
	// only available at EL1 and covers the top of the address space.
	TTBR int

	// TableBase is the symbol of the buffer the tables are placed in.
	TableBase string

	// MemoryTypes is the ordered memory type set. A type's position in the
	// set is its MAIR attribute index. Nil selects AllMemoryTypes.
	MemoryTypes MemoryTypes
}

// Validate checks that the configuration is supported.
func (c *Config) Validate() error {
	if !c.Granule.Valid() {
		return &ConfigError{Field: "granule", Value: c.Granule, Reason: "must be one of 4K, 16K or 64K"}
	}
	if c.AddressBits < MinAddressBits || c.AddressBits > MaxAddressBits {
		return &ConfigError{Field: "address-bits", Value: c.AddressBits, Reason: fmt.Sprintf("must be in [%d, %d]", MinAddressBits, MaxAddressBits)}
	}
	switch c.EL {
	case EL1, EL2, EL3:
	default:
		return &ConfigError{Field: "el", Value: uint8(c.EL), Reason: "must be 1, 2 or 3"}
	}
	switch c.TTBR {
	case 0:
	case 1:
		if c.EL != EL1 {
			return &ConfigError{Field: "ttbr", Value: c.TTBR, Reason: fmt.Sprintf("TTBR1 is not available at %v", c.EL)}
		}
	default:
		return &ConfigError{Field: "ttbr", Value: c.TTBR, Reason: "must be 0 or 1"}
	}
	if c.TableBase == "" {
		return &ConfigError{Field: "table-base", Value: c.TableBase, Reason: "symbol must not be empty"}
	}
	types := c.Types()
	if len(types) > 8 {
		return &ConfigError{Field: "memory-types", Value: types, Reason: "MAIR has 8 attribute slots"}
	}
	var seen [NumMemoryTypes]bool
	for _, t := range types {
		if !t.Valid() {
			return &ConfigError{Field: "memory-types", Value: types, Reason: fmt.Sprintf("invalid memory type %d", t)}
		}
		if seen[t] {
			return &ConfigError{Field: "memory-types", Value: types, Reason: fmt.Sprintf("%v listed twice", t)}
		}
		seen[t] = true
	}
	return nil
}

// Types returns the memory type set in attribute index order.
func (c *Config) Types() MemoryTypes {
	if c.MemoryTypes == nil {
		return AllMemoryTypes
	}
	return c.MemoryTypes
}

// AttrIndex returns the MAIR attribute index of mt, or false if mt is not in
// the configured set.
func (c *Config) AttrIndex(mt MemoryType) (int, bool) {
	for i, t := range c.Types() {
		if t == mt {
			return i, true
		}
	}
	return 0, false
}

// StartLevel returns the initial lookup level.
func (c *Config) StartLevel() int {
	g := c.Granule
	span := c.AddressBits - g.Shift()
	levels := (span + g.LevelBits() - 1) / g.LevelBits()
	return PageLevel + 1 - int(levels)
}

// RootEntries returns the number of descriptors in the root table. It may
// be less than a full table.
func (c *Config) RootEntries() int {
	return 1 << (c.AddressBits - c.Granule.LevelShift(c.StartLevel()))
}

// Entries returns the number of descriptors in a table at the given level.
func (c *Config) Entries(level int) int {
	if level == c.StartLevel() {
		return c.RootEntries()
	}
	return c.Granule.Entries()
}

// Size returns the size of the input address range, 2^AddressBits.
func (c *Config) Size() uint64 {
	return 1 << c.AddressBits
}

// VABase returns the lowest input address covered by the configured TTBR.
func (c *Config) VABase() uint64 {
	if c.TTBR == 1 {
		return -c.Size()
	}
	return 0
}

// VALast returns the highest input address covered by the configured TTBR.
func (c *Config) VALast() uint64 {
	return c.VABase() + (c.Size() - 1)
}

// OutputAddress returns the output address an input address is mapped to.
//
// TTBR0 mappings are the identity. TTBR1 maps the top 2^AddressBits of the
// address space onto output addresses starting at zero.
func (c *Config) OutputAddress(va uint64) uint64 {
	return va - c.VABase()
}

// String implements fmt.Stringer.String.
func (c *Config) String() string {
	return fmt.Sprintf("%v granule, %d-bit VA, %v, TTBR%d, base %q, types %v",
		c.Granule, c.AddressBits, c.EL, c.TTBR, c.TableBase, c.Types())
}
