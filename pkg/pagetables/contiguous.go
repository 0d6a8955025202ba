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
	"strconv"

	"gvisor.dev/pgtt/pkg/vmsa"
)

// ContiguousAssignment is a run of adjacent leaf entries in one table that
// share a memory type and map a continuous output range.
//
// A run is attached to its first index. Entries [StartIndex, StartIndex +
// Length) all belong to it.
type ContiguousAssignment struct {
	// StartIndex is the first entry index.
	StartIndex int

	// Length is the number of entries. It never exceeds Max.
	Length int

	// Type is the memory type of every entry.
	Type vmsa.MemoryType

	// Addr is the output address of the first entry.
	Addr uint64

	// Max is the number of entries in a contiguous-hint group at the
	// table's level.
	Max int

	// Regions are the indices in Tree.Regions of the regions the run
	// covers, in order.
	Regions []int
}

// End returns one past the last index of the run.
func (c *ContiguousAssignment) End() int {
	return c.StartIndex + c.Length
}

// Hinted returns true if the run is exactly one naturally aligned
// contiguous-hint group, so its descriptors may set the Contiguous bit.
func (c *ContiguousAssignment) Hinted() bool {
	return c.Max > 1 && c.Length == c.Max && c.StartIndex%c.Max == 0
}

// group assigns leaf idx to a run and returns the run's index in t.Runs.
//
// The open run is extended when idx directly follows it, the type matches,
// the output address continues the run and the run is below limit. Otherwise
// a new run is opened.
func (t *Table) group(idx int, mt vmsa.MemoryType, addr uint64, region, limit int) int {
	if n := len(t.Runs); n > 0 {
		r := &t.Runs[n-1]
		if r.End() == idx && r.Type == mt && r.Addr+uint64(r.Length)*t.Chunk == addr && r.Length < limit {
			r.Length++
			if r.Regions[len(r.Regions)-1] != region {
				r.Regions = append(r.Regions, region)
			}
			return n - 1
		}
	}
	t.Runs = append(t.Runs, ContiguousAssignment{
		StartIndex: idx,
		Length:     1,
		Type:       mt,
		Addr:       addr,
		Max:        limit,
		Regions:    []int{region},
	})
	return len(t.Runs) - 1
}

// verify checks every run against the architectural limits and the entries
// it claims.
func (t *Tree) verify() error {
	g := t.Config.Granule
	for _, tbl := range t.Tables {
		limit := g.ContiguousEntries(tbl.Level)
		for i := range tbl.Runs {
			r := &tbl.Runs[i]
			fail := func(reason string) error {
				return &ContiguityError{
					Table:      tbl.ID,
					Level:      tbl.Level,
					StartIndex: r.StartIndex,
					Length:     r.Length,
					Max:        limit,
					Reason:     reason,
				}
			}
			if r.Length < 1 || r.Length > limit {
				return fail("length out of bounds")
			}
			if r.StartIndex < 0 || r.End() > tbl.NumEntries {
				return fail("run leaves the table")
			}
			if i > 0 && tbl.Runs[i-1].End() > r.StartIndex {
				return fail("runs overlap")
			}
			for idx := r.StartIndex; idx < r.End(); idx++ {
				e, ok := tbl.entries[idx]
				if !ok || !e.IsLeaf() || e.Run != i {
					return fail("entry " + strconv.Itoa(idx) + " is not part of the run")
				}
				if t.Regions[e.Region].Type != r.Type {
					return fail("entry " + strconv.Itoa(idx) + " changes memory type")
				}
			}
		}
	}
	return nil
}
