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

// Package mmu encodes ARMv8-A stage 1 translation descriptors and the system
// registers that enable translation: MAIR_ELx, TCR_ELx and SCTLR_ELx.
//
// Every function in this package is a pure function of a validated
// vmsa.Config.
package mmu

import (
	"fmt"
	"strings"

	"gvisor.dev/pgtt/pkg/bits"
)

// Field is one named bit field of a register or descriptor.
type Field struct {
	Name  string
	MSB   uint
	LSB   uint
	Value uint64
}

// Width returns the number of bits in the field.
func (f Field) Width() uint {
	return f.MSB - f.LSB + 1
}

// Register is a value described as a list of bit fields.
type Register struct {
	Name   string
	Fields []Field
}

// field appends a field. Zero-valued fields are kept so that the
// description lists every field that was deliberately programmed.
func (r *Register) field(msb, lsb uint, name string, value uint64) {
	r.Fields = append(r.Fields, Field{Name: name, MSB: msb, LSB: lsb, Value: value})
}

// bit appends a single bit field.
func (r *Register) bit(b uint, name string, set bool) {
	v := uint64(0)
	if set {
		v = 1
	}
	r.field(b, b, name, v)
}

// res1 appends one RES1 field per bit set in mask.
func (r *Register) res1(mask uint64) {
	for b := uint(0); b < 64; b++ {
		if bits.IsOn(mask, bits.MaskOf[uint64](int(b))) {
			r.field(b, b, "RES1", 1)
		}
	}
}

// Value packs the fields.
func (r *Register) Value() uint64 {
	var v uint64
	for _, f := range r.Fields {
		v |= bits.Field(f.Value, f.LSB, f.Width())
	}
	return v
}

// String implements fmt.Stringer.String.
func (r *Register) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = %#x\n", r.Name, r.Value())
	for _, f := range r.Fields {
		span := fmt.Sprintf("[%d]", f.LSB)
		if f.MSB != f.LSB {
			span = fmt.Sprintf("[%d:%d]", f.MSB, f.LSB)
		}
		fmt.Fprintf(&b, "  %-8s %-24s %#x\n", span, f.Name, f.Value)
	}
	return b.String()
}
