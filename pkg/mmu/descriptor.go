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
	"fmt"

	"gvisor.dev/pgtt/pkg/bits"
	"gvisor.dev/pgtt/pkg/vmsa"
)

// Descriptor bits.
const (
	typeBlock = 0x1
	typePage  = 0x3
	typeTable = 0x3

	attrIndxShift = 2
	attrIndxMSB   = 4
	apShift       = 6
	shShift       = 8
	afBit         = 10

	// Contiguous is the contiguous hint bit. It is set on every descriptor
	// of a naturally aligned contiguous group.
	Contiguous = 1 << 52

	pxnBit = 53
	xnBit  = 54
)

// AP[2:1] encodings. AP[1] is RES1 in the EL2 and EL3 regimes.
const (
	apRW    = 0b00
	apRO    = 0b10
	apRWELx = 0b01
	apROELx = 0b11
)

// SH[1:0] encodings.
const (
	shNone  = 0b00
	shInner = 0b11
)

// maxOAbits is the output address size without FEAT_LPA.
const maxOAbits = 48

// attrs is the fixed profile of a memory type.
type attrs struct {
	mair       uint8
	shared     bool
	readOnly   bool
	executable bool
}

var profiles = [vmsa.NumMemoryTypes]attrs{
	vmsa.Device:             {mair: _MT_DEVICE_nGnRnE},
	vmsa.NormalCacheable:    {mair: _MT_NORMAL, shared: true},
	vmsa.NormalNonCacheable: {mair: _MT_NORMAL_NC, shared: true},
	vmsa.Code:               {mair: _MT_NORMAL, shared: true, readOnly: true, executable: true},
}

// templateRegister describes the lower and upper attributes of a leaf
// descriptor of type mt. The output address is left zero.
func templateRegister(cfg *vmsa.Config, mt vmsa.MemoryType, page bool) *Register {
	p := profiles[mt]
	idx, _ := cfg.AttrIndex(mt)

	name := "block"
	if page {
		name = "page"
	}
	r := &Register{Name: fmt.Sprintf("%v %s", mt.ShortString(), name)}
	if page {
		r.field(1, 0, "type (page)", typePage)
	} else {
		r.field(1, 0, "type (block)", typeBlock)
	}
	r.field(attrIndxMSB, attrIndxShift, "AttrIndx", uint64(idx))

	var ap uint64
	switch {
	case cfg.EL == vmsa.EL1 && p.readOnly:
		ap = apRO
	case cfg.EL == vmsa.EL1:
		ap = apRW
	case p.readOnly:
		ap = apROELx
	default:
		ap = apRWELx
	}
	r.field(apShift+1, apShift, "AP", ap)

	sh := uint64(shNone)
	if p.shared {
		sh = shInner
	}
	r.field(shShift+1, shShift, "SH", sh)
	r.bit(afBit, "AF", true)

	if cfg.EL == vmsa.EL1 {
		r.bit(pxnBit, "PXN", !p.executable)
		r.bit(xnBit, "UXN", true)
	} else {
		r.bit(xnBit, "XN", !p.executable)
	}
	return r
}

// BlockTemplate returns the block descriptor template of mt: every bit
// except the output address.
func BlockTemplate(cfg *vmsa.Config, mt vmsa.MemoryType) uint64 {
	return templateRegister(cfg, mt, false).Value()
}

// PageTemplate returns the page descriptor template of mt.
func PageTemplate(cfg *vmsa.Config, mt vmsa.MemoryType) uint64 {
	return templateRegister(cfg, mt, true).Value()
}

// Template returns the leaf template for mt at the given level.
func Template(cfg *vmsa.Config, mt vmsa.MemoryType, level int) uint64 {
	if level == vmsa.PageLevel {
		return PageTemplate(cfg, mt)
	}
	return BlockTemplate(cfg, mt)
}

// outputMask returns the output address bits of a descriptor whose entries
// span 2^shift bytes.
func outputMask(shift uint) uint64 {
	return bits.Ones[uint64](maxOAbits) &^ bits.Ones[uint64](shift)
}

// Descriptor returns the leaf descriptor mapping addr with type mt at the
// given level, with the contiguous hint if requested.
func Descriptor(cfg *vmsa.Config, mt vmsa.MemoryType, level int, addr uint64, contiguous bool) uint64 {
	d := Template(cfg, mt, level) | addr&outputMask(cfg.Granule.LevelShift(level))
	if contiguous {
		d |= Contiguous
	}
	return d
}

// TableDescriptor returns a next-level table descriptor for the table at
// addr.
func TableDescriptor(cfg *vmsa.Config, addr uint64) uint64 {
	return addr&outputMask(cfg.Granule.Shift()) | typeTable
}
