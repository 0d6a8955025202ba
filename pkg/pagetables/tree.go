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
	"sort"

	"gvisor.dev/pgtt/pkg/vmsa"
)

// TableID identifies a table within a Tree. It is the table's position in
// Tree.Tables, i.e. allocation order.
type TableID int

// EntryKind is the kind of a table entry.
type EntryKind uint8

const (
	// Invalid entries translate nothing.
	Invalid EntryKind = iota

	// Block entries map one whole chunk at a level above the page level.
	Block

	// Page entries map one granule at the page level.
	Page

	// NextTable entries point to a table at the next level.
	NextTable
)

// String implements fmt.Stringer.String.
func (k EntryKind) String() string {
	switch k {
	case Block:
		return "block"
	case Page:
		return "page"
	case NextTable:
		return "table"
	default:
		return "invalid"
	}
}

// Entry is a tagged table entry. Leaf entries (Block, Page) carry Region and
// Run; NextTable entries carry Table.
type Entry struct {
	Kind EntryKind

	// Region is the index of the mapped region in Tree.Regions.
	Region int

	// Run is the index of the entry's contiguous run in Table.Runs.
	Run int

	// Table is the child table.
	Table TableID
}

// IsLeaf returns true for Block and Page entries.
func (e Entry) IsLeaf() bool {
	return e.Kind == Block || e.Kind == Page
}

// Table is one translation table.
type Table struct {
	// ID is the position of the table in Tree.Tables.
	ID TableID

	// Level is the lookup level of the table.
	Level int

	// Base is the offset of the table from the table base symbol.
	Base uint64

	// VABase is the first input address translated by the table.
	VABase uint64

	// Chunk is the input address span of one entry.
	Chunk uint64

	// NumEntries is the number of entries the table translates. Only a
	// root table may have fewer than a full granule's worth.
	NumEntries int

	// Runs are the table's contiguous runs, in index order.
	Runs []ContiguousAssignment

	entries map[int]Entry
}

// Entry returns the entry at idx.
func (t *Table) Entry(idx int) (Entry, bool) {
	e, ok := t.entries[idx]
	return e, ok
}

// Len returns the number of valid entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Indices returns the indices of valid entries in ascending order.
func (t *Table) Indices() []int {
	idx := make([]int, 0, len(t.entries))
	for i := range t.entries {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Index returns the index of the entry translating addr.
//
// Precondition: addr is within the table's range.
func (t *Table) Index(addr uint64) int {
	return int((addr - t.VABase) / t.Chunk)
}

// EntryAddr returns the first input address translated by entry idx.
func (t *Table) EntryAddr(idx int) uint64 {
	return t.VABase + uint64(idx)*t.Chunk
}

// Item is one unit of work for a consumer that programs the table: either a
// whole contiguous run of leaves or a single next-level pointer.
type Item struct {
	// Index is the first entry index covered by the item.
	Index int

	// Kind is Block, Page or NextTable.
	Kind EntryKind

	// Run is set for leaf items.
	Run *ContiguousAssignment

	// Table is set for NextTable items.
	Table TableID
}

// Items returns the table's runs and next-level pointers in index order.
func (t *Table) Items() []Item {
	var items []Item
	for _, idx := range t.Indices() {
		e := t.entries[idx]
		switch e.Kind {
		case NextTable:
			items = append(items, Item{Index: idx, Kind: NextTable, Table: e.Table})
		case Block, Page:
			if run := &t.Runs[e.Run]; run.StartIndex == idx {
				items = append(items, Item{Index: idx, Kind: e.Kind, Run: run})
			}
		}
	}
	return items
}

// Tree is a built translation table tree.
type Tree struct {
	// Config is the configuration the tree was built for.
	Config vmsa.Config

	// Regions is the mapped region list.
	Regions []Region

	// Tables is the table arena in allocation order. Tables[0] is the root.
	Tables []*Table
}

// Root returns the root table.
func (t *Tree) Root() *Table {
	return t.Tables[0]
}

// Table returns the table with the given id.
func (t *Tree) Table(id TableID) *Table {
	return t.Tables[id]
}

// ReservedBytes returns the size of the buffer that must be reserved at the
// table base symbol. Every table occupies a full granule.
func (t *Tree) ReservedBytes() uint64 {
	return uint64(len(t.Tables)) * uint64(t.Config.Granule)
}

// Leaf describes one leaf entry reached by Walk.
type Leaf struct {
	Table  *Table
	Index  int
	Kind   EntryKind
	Start  uint64
	Size   uint64
	Output uint64
	Region *Region
	Run    *ContiguousAssignment
}

// Walk calls fn for every leaf entry in ascending input address order. It
// stops early if fn returns false.
func (t *Tree) Walk(fn func(Leaf) bool) {
	t.walk(t.Root(), fn)
}

func (t *Tree) walk(tbl *Table, fn func(Leaf) bool) bool {
	for _, idx := range tbl.Indices() {
		e := tbl.entries[idx]
		switch e.Kind {
		case NextTable:
			if !t.walk(t.Table(e.Table), fn) {
				return false
			}
		case Block, Page:
			start := tbl.EntryAddr(idx)
			l := Leaf{
				Table:  tbl,
				Index:  idx,
				Kind:   e.Kind,
				Start:  start,
				Size:   tbl.Chunk,
				Output: t.Config.OutputAddress(start),
				Region: &t.Regions[e.Region],
				Run:    &tbl.Runs[e.Run],
			}
			if !fn(l) {
				return false
			}
		}
	}
	return true
}

// Leaves returns all leaves in input address order.
func (t *Tree) Leaves() []Leaf {
	var leaves []Leaf
	t.Walk(func(l Leaf) bool {
		leaves = append(leaves, l)
		return true
	})
	return leaves
}

// Lookup translates addr the way the MMU would walk the tree.
func (t *Tree) Lookup(addr uint64) (Leaf, bool) {
	if addr < t.Config.VABase() || addr > t.Config.VALast() {
		return Leaf{}, false
	}
	tbl := t.Root()
	for {
		idx := tbl.Index(addr)
		e, ok := tbl.entries[idx]
		if !ok {
			return Leaf{}, false
		}
		if e.Kind == NextTable {
			tbl = t.Table(e.Table)
			continue
		}
		start := tbl.EntryAddr(idx)
		return Leaf{
			Table:  tbl,
			Index:  idx,
			Kind:   e.Kind,
			Start:  start,
			Size:   tbl.Chunk,
			Output: t.Config.OutputAddress(start),
			Region: &t.Regions[e.Region],
			Run:    &tbl.Runs[e.Run],
		}, true
	}
}
