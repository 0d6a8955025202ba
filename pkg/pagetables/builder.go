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

package pagetables

import (
	"fmt"
	"strconv"

	"gvisor.dev/pgtt/pkg/bits"
	"gvisor.dev/pgtt/pkg/log"
	"gvisor.dev/pgtt/pkg/vmsa"
)

// builder maps regions into a fresh table arena.
type builder struct {
	tree *Tree
}

// Build validates cfg and regions and builds the translation table tree that
// maps every region.
//
// Regions must be sorted by base address. All validation happens before the
// first table is allocated, and no tree is returned on error.
//
// The builder installs the largest descriptor each step allows: a block when
// the step covers one whole aligned entry at a level that permits blocks, a
// page at the page level, and otherwise a pointer to a (possibly shared)
// next-level table.
func Build(cfg vmsa.Config, regions []Region) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validate(&cfg, regions); err != nil {
		return nil, err
	}

	b := builder{
		tree: &Tree{
			Config:  cfg,
			Regions: append([]Region(nil), regions...),
		},
	}
	root := b.alloc(cfg.StartLevel(), cfg.VABase())
	for i := range b.tree.Regions {
		r := &b.tree.Regions[i]
		log.DebugFields(log.Fields{
			"region": r.Label,
			"base":   fmt.Sprintf("%#x", r.Base),
			"length": fmt.Sprintf("%#x", r.Length),
			"type":   r.Type.String(),
		}, "Mapping region")
		if err := b.mapRange(root, r.Base, r.Last(), i); err != nil {
			return nil, err
		}
	}
	if err := b.tree.verify(); err != nil {
		return nil, err
	}
	log.Debugf("Built %d tables for %d regions", len(b.tree.Tables), len(regions))
	return b.tree, nil
}

// validate sweeps regions once, in order, and returns the first problem.
func validate(cfg *vmsa.Config, regions []Region) error {
	g := uint64(cfg.Granule)
	for i := range regions {
		r := &regions[i]
		switch {
		case r.Length == 0:
			return &RangeError{Label: r.Label, Base: r.Base, Length: r.Length, Reason: "zero length"}
		case r.Last() < r.Base:
			return &RangeError{Label: r.Label, Base: r.Base, Length: r.Length, Reason: "wraps around the address space"}
		case r.Base < cfg.VABase() || r.Last() > cfg.VALast():
			return &RangeError{Label: r.Label, Base: r.Base, Length: r.Length, Reason: fmt.Sprintf("outside the input address range of TTBR%d", cfg.TTBR)}
		}
		if i > 0 {
			prev := &regions[i-1]
			if r.Base <= prev.Last() {
				return &OverlapError{Label: r.Label, Other: prev.Label, Addr: r.Base, Unsorted: r.Base < prev.Base}
			}
		}
		if !bits.IsAligned(r.Base, g) {
			return &AlignmentError{Label: r.Label, Addr: r.Base, Level: vmsa.PageLevel, Chunk: g}
		}
		if !bits.IsAligned(r.Length, g) {
			return &AlignmentError{Label: r.Label, Addr: r.Base + r.Length, Level: vmsa.PageLevel, Chunk: g}
		}
		if _, ok := cfg.AttrIndex(r.Type); !ok {
			return &vmsa.ConfigError{Field: "memory-types", Value: cfg.Types(), Reason: fmt.Sprintf("region %q uses %v", r.Label, r.Type)}
		}
	}
	return nil
}

// alloc appends a new, empty table to the arena.
func (b *builder) alloc(level int, vaBase uint64) *Table {
	cfg := &b.tree.Config
	id := TableID(len(b.tree.Tables))
	t := &Table{
		ID:         id,
		Level:      level,
		Base:       uint64(id) * uint64(cfg.Granule),
		VABase:     vaBase,
		Chunk:      cfg.Granule.LevelSize(level),
		NumEntries: cfg.Entries(level),
		entries:    make(map[int]Entry),
	}
	b.tree.Tables = append(b.tree.Tables, t)
	log.DebugFields(log.Fields{
		"table":  int(id),
		"level":  level,
		"va":     fmt.Sprintf("%#x", vaBase),
		"offset": fmt.Sprintf("%#x", t.Base),
	}, "Allocated table")
	return t
}

// entryLast returns the last address of the size-aligned entry containing
// start.
func entryLast(start, size uint64) uint64 {
	return bits.AlignDown(start, size) + (size - 1)
}

// mapRange maps [start, last] of region into t and its children.
//
// Precondition: start is granule aligned and last+1 is granule aligned (or
// zero).
func (b *builder) mapRange(t *Table, start, last uint64, region int) error {
	g := b.tree.Config.Granule
	for {
		idx := t.Index(start)
		stepLast := min(last, entryLast(start, t.Chunk))
		whole := bits.IsAligned(start, t.Chunk) && stepLast-start == t.Chunk-1

		switch {
		case whole && t.Level == vmsa.PageLevel:
			if err := b.setLeaf(t, idx, Page, start, region); err != nil {
				return err
			}
		case whole && g.BlockAllowed(t.Level):
			if err := b.setLeaf(t, idx, Block, start, region); err != nil {
				return err
			}
		case t.Level == vmsa.PageLevel:
			r := &b.tree.Regions[region]
			return &AlignmentError{Label: r.Label, Addr: start, Level: t.Level, Chunk: t.Chunk}
		default:
			child, err := b.child(t, idx, region)
			if err != nil {
				return err
			}
			if err := b.mapRange(child, start, stepLast, region); err != nil {
				return err
			}
		}

		if stepLast == last {
			return nil
		}
		start = stepLast + 1
	}
}

// child returns the next-level table at idx, allocating it if needed.
func (b *builder) child(t *Table, idx, region int) (*Table, error) {
	if e, ok := t.entries[idx]; ok {
		if e.Kind == NextTable {
			return b.tree.Table(e.Table), nil
		}
		return nil, b.collision(t, idx, region, e)
	}
	c := b.alloc(t.Level+1, t.EntryAddr(idx))
	t.entries[idx] = Entry{Kind: NextTable, Table: c.ID}
	return c, nil
}

// setLeaf installs a leaf entry at idx and assigns it to a contiguous run.
func (b *builder) setLeaf(t *Table, idx int, kind EntryKind, start uint64, region int) error {
	if e, ok := t.entries[idx]; ok {
		return b.collision(t, idx, region, e)
	}
	cfg := &b.tree.Config
	r := &b.tree.Regions[region]
	run := t.group(idx, r.Type, cfg.OutputAddress(start), region, cfg.Granule.ContiguousEntries(t.Level))
	t.entries[idx] = Entry{Kind: kind, Region: region, Run: run}
	return nil
}

// collision reports an index that would be assigned twice. Validation
// rejects every input that could cause one.
func (b *builder) collision(t *Table, idx, region int, e Entry) error {
	r := &b.tree.Regions[region]
	other := "table " + strconv.Itoa(int(e.Table))
	if e.IsLeaf() {
		other = b.tree.Regions[e.Region].Label
	}
	return &OverlapError{Label: r.Label, Other: other, Addr: t.EntryAddr(idx)}
}
