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

package mmu

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/pgtt/pkg/pagetables"
	"gvisor.dev/pgtt/pkg/vmsa"
)

func config(g vmsa.Granule, width uint, el vmsa.ExceptionLevel, ttbr int) *vmsa.Config {
	return &vmsa.Config{
		Granule:     g,
		AddressBits: width,
		EL:          el,
		TTBR:        ttbr,
		TableBase:   "mmu_table",
	}
}

func TestTemplates(t *testing.T) {
	el1 := config(vmsa.Granule4K, 39, vmsa.EL1, 0)
	el2 := config(vmsa.Granule4K, 39, vmsa.EL2, 0)
	for _, tc := range []struct {
		name string
		got  uint64
		want uint64
	}{
		{"EL1 device block", BlockTemplate(el1, vmsa.Device), 0x0060000000000401},
		{"EL1 device page", PageTemplate(el1, vmsa.Device), 0x0060000000000403},
		{"EL1 rw block", BlockTemplate(el1, vmsa.NormalCacheable), 0x0060000000000705},
		{"EL1 no-cache page", PageTemplate(el1, vmsa.NormalNonCacheable), 0x006000000000070b},
		{"EL1 code block", BlockTemplate(el1, vmsa.Code), 0x004000000000078d},
		{"EL2 code page", PageTemplate(el2, vmsa.Code), 0x00000000000007cf},
		{"EL2 device block", BlockTemplate(el2, vmsa.Device), 0x0040000000000441},
		{"EL2 rw page", Template(el2, vmsa.NormalCacheable, vmsa.PageLevel), 0x0040000000000747},
	} {
		if tc.got != tc.want {
			t.Errorf("%s = %#016x, want %#016x", tc.name, tc.got, tc.want)
		}
	}
}

func TestTemplateAttrIndexFollowsTypeOrder(t *testing.T) {
	cfg := config(vmsa.Granule4K, 39, vmsa.EL1, 0)
	cfg.MemoryTypes = vmsa.MemoryTypes{vmsa.Code, vmsa.Device}
	if got, want := (BlockTemplate(cfg, vmsa.Device)>>2)&7, uint64(1); got != want {
		t.Errorf("Device AttrIndx = %d, want %d", got, want)
	}
	if got, want := (BlockTemplate(cfg, vmsa.Code)>>2)&7, uint64(0); got != want {
		t.Errorf("Code AttrIndx = %d, want %d", got, want)
	}
	if got, want := MAIR(cfg), uint64(0x00ff); got != want {
		t.Errorf("MAIR = %#x, want %#x", got, want)
	}
}

func TestTemplatesArePure(t *testing.T) {
	cfg := config(vmsa.Granule16K, 36, vmsa.EL1, 0)
	var wg sync.WaitGroup
	results := make([]uint64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = BlockTemplate(cfg, vmsa.NormalCacheable)
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		if r != results[0] {
			t.Errorf("result %d = %#x, want %#x", i, r, results[0])
		}
	}
}

func TestEncodeUnaffectedByBuild(t *testing.T) {
	for _, cfg := range []*vmsa.Config{
		config(vmsa.Granule4K, 39, vmsa.EL1, 0),
		config(vmsa.Granule16K, 36, vmsa.EL2, 0),
		config(vmsa.Granule64K, 48, vmsa.EL1, 1),
	} {
		before := Encode(cfg)
		regions := []pagetables.Region{
			{Base: cfg.VABase(), Length: uint64(cfg.Granule), Type: vmsa.Device, Label: "uart"},
			{Base: cfg.VABase() + cfg.Granule.LevelSize(vmsa.PageLevel-1), Length: 16 * uint64(cfg.Granule), Type: vmsa.NormalCacheable, Label: "ram"},
		}
		if _, err := pagetables.Build(*cfg, regions); err != nil {
			t.Fatalf("%v: Build failed: %v", cfg.Granule, err)
		}
		if diff := cmp.Diff(before, Encode(cfg)); diff != "" {
			t.Errorf("%v: Encode changed across Build (-before +after):\n%s", cfg.Granule, diff)
		}
	}
}

func TestMAIR(t *testing.T) {
	if got, want := MAIR(config(vmsa.Granule4K, 39, vmsa.EL1, 0)), uint64(0xff44ff00); got != want {
		t.Errorf("MAIR = %#x, want %#x", got, want)
	}
}

func TestTCR(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  *vmsa.Config
		want uint64
	}{
		{"EL1 TTBR0 4K 39-bit", config(vmsa.Granule4K, 39, vmsa.EL1, 0), 0x280993519},
		{"EL1 TTBR1 64K 48-bit", config(vmsa.Granule64K, 48, vmsa.EL1, 1), 0x5f5104090},
		{"EL2 4K 48-bit", config(vmsa.Granule4K, 48, vmsa.EL2, 0), 0x80853510},
		{"EL3 16K 32-bit", config(vmsa.Granule16K, 32, vmsa.EL3, 0), 0x80808000 | 0x3520},
	} {
		if got := TCR(tc.cfg); got != tc.want {
			t.Errorf("%s: TCR = %#x, want %#x\n%v", tc.name, got, tc.want, TCRRegister(tc.cfg))
		}
	}
}

func TestPhysicalSize(t *testing.T) {
	for width, want := range map[uint]uint64{25: 0, 32: 0, 33: 1, 36: 1, 39: 2, 40: 2, 42: 3, 44: 4, 45: 5, 48: 5} {
		if got := physicalSize(width); got != want {
			t.Errorf("physicalSize(%d) = %d, want %d", width, got, want)
		}
	}
}

func TestSCTLR(t *testing.T) {
	if got, want := SCTLR(config(vmsa.Granule4K, 39, vmsa.EL1, 0)), uint64(0x30d0180d); got != want {
		t.Errorf("SCTLR_EL1 = %#x, want %#x", got, want)
	}
	for _, el := range []vmsa.ExceptionLevel{vmsa.EL2, vmsa.EL3} {
		if got, want := SCTLR(config(vmsa.Granule4K, 39, el, 0)), uint64(0x30c5183d); got != want {
			t.Errorf("SCTLR_%v = %#x, want %#x", el, got, want)
		}
	}
}

func TestDescriptor(t *testing.T) {
	cfg := config(vmsa.Granule4K, 39, vmsa.EL1, 0)
	if got, want := Descriptor(cfg, vmsa.NormalCacheable, 2, 0x40000000, true), uint64(0x0070000040000705); got != want {
		t.Errorf("Descriptor = %#x, want %#x", got, want)
	}
	if got, want := Descriptor(cfg, vmsa.Device, 3, 0x09000000, false), uint64(0x0060000009000403); got != want {
		t.Errorf("Descriptor = %#x, want %#x", got, want)
	}
	// Bits below the block size are not part of the output address.
	if got, want := Descriptor(cfg, vmsa.Device, 2, 0x09001000, false), uint64(0x0060000009000401); got != want {
		t.Errorf("Descriptor = %#x, want %#x", got, want)
	}
	if got, want := TableDescriptor(cfg, 0x80002000), uint64(0x80002003); got != want {
		t.Errorf("TableDescriptor = %#x, want %#x", got, want)
	}
}

func TestEncoder(t *testing.T) {
	cfg := *config(vmsa.Granule4K, 39, vmsa.EL1, 0)
	e, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	enc := e.Encoding()
	if enc != e.Encoding() {
		t.Errorf("Encoding() is not cached")
	}
	want := RegisterEncoding{
		MAIR:  0xff44ff00,
		TCR:   0x280993519,
		SCTLR: 0x30d0180d,
		Block: map[vmsa.MemoryType]uint64{
			vmsa.Device:             0x0060000000000401,
			vmsa.NormalCacheable:    0x0060000000000705,
			vmsa.NormalNonCacheable: 0x0060000000000709,
			vmsa.Code:               0x004000000000078d,
		},
		Page: map[vmsa.MemoryType]uint64{
			vmsa.Device:             0x0060000000000403,
			vmsa.NormalCacheable:    0x0060000000000707,
			vmsa.NormalNonCacheable: 0x006000000000070b,
			vmsa.Code:               0x004000000000078f,
		},
	}
	if diff := cmp.Diff(want, *enc); diff != "" {
		t.Errorf("Encoding mismatch (-want +got):\n%s", diff)
	}
	if got, err := e.Descriptor(vmsa.Code, 3, 0x80000000, false); err != nil || got != 0x004000008000078f {
		t.Errorf("Descriptor = %#x, %v, want %#x", got, err, uint64(0x004000008000078f))
	}
	if got := len(e.Registers()); got != 3+2*4 {
		t.Errorf("Registers() returned %d registers", got)
	}

	bad := cfg
	bad.EL, bad.TTBR = vmsa.EL3, 1
	if _, err := NewEncoder(bad); err == nil {
		t.Errorf("NewEncoder accepted TTBR1 at EL3")
	}
}

func TestRegisterString(t *testing.T) {
	s := SCTLRRegister(config(vmsa.Granule4K, 39, vmsa.EL1, 0)).String()
	if !strings.HasPrefix(s, "sctlr_el1 = 0x30d0180d\n") {
		t.Errorf("unexpected description:\n%s", s)
	}
	if !strings.Contains(s, "[12]") {
		t.Errorf("description is missing the I bit:\n%s", s)
	}
}

func TestEncoderUnconfiguredType(t *testing.T) {
	cfg := *config(vmsa.Granule4K, 39, vmsa.EL1, 0)
	cfg.MemoryTypes = vmsa.MemoryTypes{vmsa.Device, vmsa.Code}
	e, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	for _, level := range []int{2, 3} {
		d, err := e.Descriptor(vmsa.NormalCacheable, level, 0x40000000, false)
		var cerr *vmsa.ConfigError
		if !errors.As(err, &cerr) || cerr.Field != "memory-types" {
			t.Errorf("Descriptor(NORMAL, level %d) = %#x, %v, want memory-types ConfigError", level, d, err)
		}
	}
	if _, err := e.Descriptor(vmsa.Device, 3, 0x09000000, false); err != nil {
		t.Errorf("Descriptor(DEVICE) failed: %v", err)
	}
}
