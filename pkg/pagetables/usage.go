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

	"gvisor.dev/pgtt/pkg/vmsa"
)

// TableUsage describes the occupancy of one table.
type TableUsage struct {
	ID        TableID `json:"id"`
	Level     int     `json:"level"`
	Offset    uint64  `json:"offset"`
	VABase    uint64  `json:"va_base"`
	Chunk     uint64  `json:"chunk"`
	Used      int     `json:"used"`
	Available int     `json:"available"`
	Runs      int     `json:"runs"`
}

// Report summarizes the memory a tree needs.
type Report struct {
	TableBase  string       `json:"table_base"`
	Granule    vmsa.Granule `json:"granule"`
	TableSize  uint64       `json:"table_size"`
	TotalBytes uint64       `json:"total_bytes"`
	Tables     []TableUsage `json:"tables"`
}

// Usage returns the usage report of tree.
func Usage(tree *Tree) Report {
	r := Report{
		TableBase:  tree.Config.TableBase,
		Granule:    tree.Config.Granule,
		TableSize:  uint64(tree.Config.Granule),
		TotalBytes: tree.ReservedBytes(),
	}
	for _, t := range tree.Tables {
		r.Tables = append(r.Tables, TableUsage{
			ID:        t.ID,
			Level:     t.Level,
			Offset:    t.Base,
			VABase:    t.VABase,
			Chunk:     t.Chunk,
			Used:      t.Len(),
			Available: t.NumEntries,
			Runs:      len(t.Runs),
		})
	}
	return r
}

// Count returns the number of tables.
func (r *Report) Count() int {
	return len(r.Tables)
}

// Summary returns the buffer size statement placed in generated headers.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "This memory map requires a total of %d translation tables.\n", r.Count())
	fmt.Fprintf(&b, "Each table occupies %v of memory (%#x bytes).\n", r.Granule, r.TableSize)
	fmt.Fprintf(&b, "The buffer pointed to by '%s' must therefore be %dx %v = %#x bytes long.\n",
		r.TableBase, r.Count(), r.Granule, r.TotalBytes)
	return b.String()
}

// String implements fmt.Stringer.String.
func (r *Report) String() string {
	var b strings.Builder
	b.WriteString(r.Summary())
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-6s %-6s %-12s %-20s %s\n", "table", "level", "offset", "va", "used")
	for _, t := range r.Tables {
		fmt.Fprintf(&b, "%-6d %-6d %-12s %-20s %d/%d\n",
			t.ID, t.Level, fmt.Sprintf("%#x", t.Offset), fmt.Sprintf("%#x", t.VABase), t.Used, t.Available)
	}
	return b.String()
}
