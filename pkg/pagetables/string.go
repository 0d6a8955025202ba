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
	"strings"
)

// String implements fmt.Stringer.String. It renders the tree with one line
// per table, per run and per next-level pointer.
func (t *Tree) String() string {
	var b strings.Builder
	t.dump(&b, t.Root(), 0)
	return b.String()
}

func (t *Tree) dump(b *strings.Builder, tbl *Table, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s[table %d] level %d, VA %#x-%#x, offset %#x, %d/%d entries\n",
		indent, tbl.ID, tbl.Level, tbl.VABase, tbl.EntryAddr(tbl.NumEntries)-1, tbl.Base, tbl.Len(), tbl.NumEntries)
	for _, it := range tbl.Items() {
		switch it.Kind {
		case NextTable:
			fmt.Fprintf(b, "%s  [%d] -> table %d\n", indent, it.Index, it.Table)
			t.dump(b, t.Table(it.Table), depth+2)
		default:
			r := it.Run
			span := fmt.Sprintf("[%d]", r.StartIndex)
			if r.Length > 1 {
				span = fmt.Sprintf("[%d-%d]", r.StartIndex, r.End()-1)
			}
			labels := make([]string, 0, len(r.Regions))
			for _, i := range r.Regions {
				labels = append(labels, t.Regions[i].Label)
			}
			hint := ""
			if r.Hinted() {
				hint = " (contiguous)"
			}
			start := tbl.EntryAddr(r.StartIndex)
			fmt.Fprintf(b, "%s  %s %v x%d, VA %#x-%#x -> PA %#x, %s, %s%s\n",
				indent, span, it.Kind, r.Length, start, start+uint64(r.Length)*tbl.Chunk-1, r.Addr,
				r.Type.ShortString(), strings.Join(labels, ","), hint)
		}
	}
}
