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

// Package vmsa describes the ARMv8-A virtual memory system architecture
// parameters that shape a stage 1 translation table tree: the translation
// granule, the input address width, the exception level and the memory
// types in use.
package vmsa

import (
	"fmt"
	"strconv"
	"strings"

	"gvisor.dev/pgtt/pkg/bits"
)

// Granule is a translation granule size in bytes.
type Granule uint64

// Supported granules.
const (
	Granule4K  Granule = 4 << 10
	Granule16K Granule = 16 << 10
	Granule64K Granule = 64 << 10
)

// DescriptorSize is the size of a translation table descriptor.
const DescriptorSize = 8

// PageLevel is the last lookup level. Leaves at this level are pages.
const PageLevel = 3

// Granules lists the supported granules in ascending order.
var Granules = []Granule{Granule4K, Granule16K, Granule64K}

// ParseGranule parses a granule given as "4K", "16k", "64K" or a byte count.
func ParseGranule(s string) (Granule, error) {
	var g Granule
	if err := g.Set(s); err != nil {
		return 0, err
	}
	return g, nil
}

// Set implements flag.Value.Set.
func (g *Granule) Set(v string) error {
	s := strings.ToUpper(strings.TrimSpace(v))
	s = strings.TrimSuffix(s, "B")
	mult := uint64(1)
	if strings.HasSuffix(s, "K") {
		s, mult = strings.TrimSuffix(s, "K"), 1<<10
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid granule %q: %w", v, err)
	}
	ng := Granule(n * mult)
	if !ng.Valid() {
		return &ConfigError{Field: "granule", Value: v, Reason: "must be one of 4K, 16K or 64K"}
	}
	*g = ng
	return nil
}

// Get implements flag.Value.Get.
func (g *Granule) Get() any {
	return *g
}

// String implements fmt.Stringer.String.
func (g Granule) String() string {
	if g != 0 && bits.IsAligned(uint64(g), 1<<10) {
		return fmt.Sprintf("%dK", uint64(g)>>10)
	}
	return strconv.FormatUint(uint64(g), 10)
}

// Valid returns true if g is an architecturally defined granule.
func (g Granule) Valid() bool {
	switch g {
	case Granule4K, Granule16K, Granule64K:
		return true
	}
	return false
}

// Shift returns log2 of the granule size.
func (g Granule) Shift() uint {
	return uint(bits.TrailingZeros64(uint64(g)))
}

// LevelBits returns the number of input address bits resolved by one lookup
// level below the root.
func (g Granule) LevelBits() uint {
	return g.Shift() - 3
}

// Entries returns the number of descriptors in a full table.
func (g Granule) Entries() int {
	return int(g) / DescriptorSize
}

// LevelShift returns log2 of the address span of one entry at the given
// level.
func (g Granule) LevelShift(level int) uint {
	return g.Shift() + uint(PageLevel-level)*g.LevelBits()
}

// LevelSize returns the address span of one entry at the given level.
func (g Granule) LevelSize(level int) uint64 {
	return 1 << g.LevelShift(level)
}

// BlockAllowed returns true if a block descriptor may be used at the given
// level. Page descriptors at level 3 are not blocks.
//
// Level 0 blocks (4K) and level 1 blocks (64K) require FEAT_LPA2 and
// FEAT_LPA respectively and are not used.
func (g Granule) BlockAllowed(level int) bool {
	switch g {
	case Granule4K:
		return level == 1 || level == 2
	case Granule16K, Granule64K:
		return level == 2
	}
	return false
}

// ContiguousEntries returns the number of adjacent leaf entries that form one
// contiguous-hint group at the given level, or 1 if the level has no leaves.
func (g Granule) ContiguousEntries(level int) int {
	switch g {
	case Granule4K:
		if level >= 1 && level <= PageLevel {
			return 16
		}
	case Granule16K:
		switch level {
		case 2:
			return 32
		case PageLevel:
			return 128
		}
	case Granule64K:
		if level == 2 || level == PageLevel {
			return 32
		}
	}
	return 1
}
