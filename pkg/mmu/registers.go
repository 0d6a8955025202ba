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

	"gvisor.dev/pgtt/pkg/vmsa"
)

// MAIR attribute encodings.
const (
	_MT_DEVICE_nGnRnE = 0x00
	_MT_NORMAL        = 0xff // Inner/outer write-back, read/write-allocate.
	_MT_NORMAL_NC     = 0x44 // Inner/outer non-cacheable.
)

// TCR_EL1 fields.
const (
	_TCR_T0SZ_SHIFT  = 0
	_TCR_EPD0        = 7
	_TCR_IRGN0_SHIFT = 8
	_TCR_ORGN0_SHIFT = 10
	_TCR_SH0_SHIFT   = 12
	_TCR_TG0_SHIFT   = 14
	_TCR_T1SZ_SHIFT  = 16
	_TCR_EPD1        = 23
	_TCR_IRGN1_SHIFT = 24
	_TCR_ORGN1_SHIFT = 26
	_TCR_SH1_SHIFT   = 28
	_TCR_TG1_SHIFT   = 30
	_TCR_IPS_SHIFT   = 32

	// TCR_EL2 (without E2H) and TCR_EL3.
	_TCR_PS_SHIFT = 16
	_TCR_ELx_RES1 = 1<<31 | 1<<23

	_TCR_RGN_WBWA = 0b01
	_TCR_SH_INNER = 0b11
)

// SCTLR fields.
const (
	_SCTLR_M  = 0
	_SCTLR_C  = 2
	_SCTLR_SA = 3
	_SCTLR_I  = 12

	_SCTLR_EL1_RES1 = 0x30d00800
	_SCTLR_ELx_RES1 = 0x30c50830
)

// tg0 returns the TCR.TG0 encoding of g.
func tg0(g vmsa.Granule) uint64 {
	switch g {
	case vmsa.Granule64K:
		return 0b01
	case vmsa.Granule16K:
		return 0b10
	default:
		return 0b00
	}
}

// tg1 returns the TCR_EL1.TG1 encoding of g.
func tg1(g vmsa.Granule) uint64 {
	switch g {
	case vmsa.Granule16K:
		return 0b01
	case vmsa.Granule64K:
		return 0b11
	default:
		return 0b10
	}
}

// physicalSize returns the IPS/PS encoding of the smallest physical address
// size that holds addresses of the given width.
func physicalSize(width uint) uint64 {
	for i, bits := range []uint{32, 36, 40, 42, 44, 48} {
		if width <= bits {
			return uint64(i)
		}
	}
	return 0b101
}

// el returns the register suffix of cfg's exception level.
func el(cfg *vmsa.Config) string {
	return fmt.Sprintf("_el%d", uint8(cfg.EL))
}

// MAIRRegister describes MAIR_ELx: one attribute byte per configured memory
// type, in attribute index order.
func MAIRRegister(cfg *vmsa.Config) *Register {
	r := &Register{Name: "mair" + el(cfg)}
	for i, mt := range cfg.Types() {
		lsb := uint(8 * i)
		r.field(lsb+7, lsb, fmt.Sprintf("Attr%d (%s)", i, mt.ShortString()), uint64(profiles[mt].mair))
	}
	return r
}

// MAIR returns the MAIR_ELx value.
func MAIR(cfg *vmsa.Config) uint64 {
	return MAIRRegister(cfg).Value()
}

// TCRRegister describes TCR_ELx.
//
// At EL1 the unused TTBR has its walks disabled (EPDn) but still carries a
// valid granule encoding and size.
func TCRRegister(cfg *vmsa.Config) *Register {
	r := &Register{Name: "tcr" + el(cfg)}
	tsz := uint64(64 - cfg.AddressBits)
	ps := physicalSize(cfg.AddressBits)

	if cfg.EL != vmsa.EL1 {
		r.field(_TCR_T0SZ_SHIFT+5, _TCR_T0SZ_SHIFT, "T0SZ", tsz)
		r.field(_TCR_IRGN0_SHIFT+1, _TCR_IRGN0_SHIFT, "IRGN0", _TCR_RGN_WBWA)
		r.field(_TCR_ORGN0_SHIFT+1, _TCR_ORGN0_SHIFT, "ORGN0", _TCR_RGN_WBWA)
		r.field(_TCR_SH0_SHIFT+1, _TCR_SH0_SHIFT, "SH0", _TCR_SH_INNER)
		r.field(_TCR_TG0_SHIFT+1, _TCR_TG0_SHIFT, "TG0", tg0(cfg.Granule))
		r.field(_TCR_PS_SHIFT+2, _TCR_PS_SHIFT, "PS", ps)
		r.res1(_TCR_ELx_RES1)
		return r
	}

	ttbr0 := cfg.TTBR == 0
	r.field(_TCR_T0SZ_SHIFT+5, _TCR_T0SZ_SHIFT, "T0SZ", tsz)
	r.bit(_TCR_EPD0, "EPD0", !ttbr0)
	if ttbr0 {
		r.field(_TCR_IRGN0_SHIFT+1, _TCR_IRGN0_SHIFT, "IRGN0", _TCR_RGN_WBWA)
		r.field(_TCR_ORGN0_SHIFT+1, _TCR_ORGN0_SHIFT, "ORGN0", _TCR_RGN_WBWA)
		r.field(_TCR_SH0_SHIFT+1, _TCR_SH0_SHIFT, "SH0", _TCR_SH_INNER)
	}
	r.field(_TCR_TG0_SHIFT+1, _TCR_TG0_SHIFT, "TG0", tg0(cfg.Granule))
	r.field(_TCR_T1SZ_SHIFT+5, _TCR_T1SZ_SHIFT, "T1SZ", tsz)
	r.bit(_TCR_EPD1, "EPD1", ttbr0)
	if !ttbr0 {
		r.field(_TCR_IRGN1_SHIFT+1, _TCR_IRGN1_SHIFT, "IRGN1", _TCR_RGN_WBWA)
		r.field(_TCR_ORGN1_SHIFT+1, _TCR_ORGN1_SHIFT, "ORGN1", _TCR_RGN_WBWA)
		r.field(_TCR_SH1_SHIFT+1, _TCR_SH1_SHIFT, "SH1", _TCR_SH_INNER)
	}
	r.field(_TCR_TG1_SHIFT+1, _TCR_TG1_SHIFT, "TG1", tg1(cfg.Granule))
	r.field(_TCR_IPS_SHIFT+2, _TCR_IPS_SHIFT, "IPS", ps)
	return r
}

// TCR returns the TCR_ELx value.
func TCR(cfg *vmsa.Config) uint64 {
	return TCRRegister(cfg).Value()
}

// SCTLRRegister describes SCTLR_ELx with the MMU, data and instruction
// caches and stack alignment checking enabled.
func SCTLRRegister(cfg *vmsa.Config) *Register {
	r := &Register{Name: "sctlr" + el(cfg)}
	if cfg.EL == vmsa.EL1 {
		r.res1(_SCTLR_EL1_RES1)
	} else {
		r.res1(_SCTLR_ELx_RES1)
	}
	r.bit(_SCTLR_M, "M", true)
	r.bit(_SCTLR_C, "C", true)
	r.bit(_SCTLR_SA, "SA", true)
	r.bit(_SCTLR_I, "I", true)
	return r
}

// SCTLR returns the SCTLR_ELx value.
func SCTLR(cfg *vmsa.Config) uint64 {
	return SCTLRRegister(cfg).Value()
}
