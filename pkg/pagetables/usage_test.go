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
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/pgtt/pkg/vmsa"
)

func sampleTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := Build(config4K(), []Region{
		{Base: 0x09000000, Length: pageSize, Type: vmsa.Device, Label: "uart"},
		{Base: 0x80000000, Length: blockSize, Type: vmsa.Code, Label: "text"},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return tree
}

func TestUsage(t *testing.T) {
	r := Usage(sampleTree(t))
	want := Report{
		TableBase:  "mmu_table",
		Granule:    vmsa.Granule4K,
		TableSize:  pageSize,
		TotalBytes: 4 * pageSize,
		Tables: []TableUsage{
			{ID: 0, Level: 1, Offset: 0x0, VABase: 0x0, Chunk: 0x40000000, Used: 2, Available: 512, Runs: 0},
			{ID: 1, Level: 2, Offset: 0x1000, VABase: 0x0, Chunk: blockSize, Used: 1, Available: 512, Runs: 0},
			{ID: 2, Level: 3, Offset: 0x2000, VABase: 0x09000000, Chunk: pageSize, Used: 1, Available: 512, Runs: 1},
			{ID: 3, Level: 2, Offset: 0x3000, VABase: 0x80000000, Chunk: blockSize, Used: 1, Available: 512, Runs: 1},
		},
	}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("Usage mismatch (-want +got):\n%s", diff)
	}
	if got, want := r.Count(), 4; got != want {
		t.Errorf("Count() = %d, want %d", got, want)
	}

	s := r.String()
	for _, line := range []string{
		"This memory map requires a total of 4 translation tables.",
		"Each table occupies 4K of memory (0x1000 bytes).",
		"The buffer pointed to by 'mmu_table' must therefore be 4x 4K = 0x4000 bytes long.",
	} {
		if !strings.Contains(s, line) {
			t.Errorf("report %q is missing %q", s, line)
		}
	}
}

func TestRootUsageOfSmallAddressSpace(t *testing.T) {
	cfg := config4K()
	cfg.AddressBits = 32
	tree, err := Build(cfg, []Region{{Base: 0x40000000, Length: 0x40000000, Type: vmsa.NormalCacheable, Label: "ram"}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	r := Usage(tree)
	if got, want := r.Tables[0].Available, 4; got != want {
		t.Errorf("root Available = %d, want %d", got, want)
	}
	if got, want := r.TotalBytes, uint64(pageSize); got != want {
		t.Errorf("TotalBytes = %#x, want %#x", got, want)
	}
}

func TestTreeString(t *testing.T) {
	s := sampleTree(t).String()
	for _, want := range []string{
		"[table 0] level 1, VA 0x0-0x7fffffffff, offset 0x0, 2/512 entries",
		"  [0] -> table 1",
		"    [72] -> table 2",
		"[0] page x1, VA 0x9000000-0x9000fff -> PA 0x9000000, DEVICE, uart",
		"[0] block x1, VA 0x80000000-0x801fffff -> PA 0x80000000, CODE, text",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("tree dump is missing %q:\n%s", want, s)
		}
	}
}

func TestHinted(t *testing.T) {
	for _, tc := range []struct {
		run  ContiguousAssignment
		want bool
	}{
		{ContiguousAssignment{StartIndex: 0, Length: 16, Max: 16}, true},
		{ContiguousAssignment{StartIndex: 32, Length: 16, Max: 16}, true},
		{ContiguousAssignment{StartIndex: 8, Length: 16, Max: 16}, false},
		{ContiguousAssignment{StartIndex: 0, Length: 15, Max: 16}, false},
		{ContiguousAssignment{StartIndex: 128, Length: 128, Max: 128}, true},
		{ContiguousAssignment{StartIndex: 0, Length: 1, Max: 1}, false},
	} {
		if got := tc.run.Hinted(); got != tc.want {
			t.Errorf("%+v.Hinted() = %v, want %v", tc.run, got, tc.want)
		}
	}
}

func TestVerifyRejectsOversizedRun(t *testing.T) {
	tree := sampleTree(t)
	pages := tree.Tables[2]
	pages.Runs[0].Length = 17
	err := tree.verify()
	var cerr *ContiguityError
	if !errors.As(err, &cerr) {
		t.Fatalf("verify() = %v, want *ContiguityError", err)
	}
	if cerr.Table != 2 || cerr.Max != 16 {
		t.Errorf("ContiguityError = %+v", cerr)
	}
}
