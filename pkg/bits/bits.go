// Copyright 2018 The gVisor Authors.
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

// Package bits includes all bit related types and operations.
package bits

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// IsOn returns true if *all* bits set in 'bits' are set in 'mask'.
func IsOn[T constraints.Unsigned](mask, bits T) bool {
	return mask&bits == bits
}

// IsAnyOn returns true if *any* bit set in 'bits' is set in 'mask'.
func IsAnyOn[T constraints.Unsigned](mask, bits T) bool {
	return mask&bits != 0
}

// Mask returns a T with all of the given bits set.
func Mask[T constraints.Unsigned](is ...int) T {
	ret := T(0)
	for _, i := range is {
		ret |= MaskOf[T](i)
	}
	return ret
}

// MaskOf is like Mask, but sets only a single bit (more efficiently).
func MaskOf[T constraints.Unsigned](i int) T {
	return T(1) << T(i)
}

// Ones returns a T with the low n bits set.
func Ones[T constraints.Unsigned](n uint) T {
	return ^(^T(0) << n)
}

// IsPowerOfTwo returns true if v is power of 2.
func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	if v == 0 {
		return false
	}
	return v&(v-1) == 0
}

// IsAligned returns true if v is a multiple of align. align must be a power
// of two.
func IsAligned[T constraints.Unsigned](v, align T) bool {
	return v&(align-1) == 0
}

// AlignDown rounds v down to the nearest multiple of align. align must be a
// power of two.
func AlignDown[T constraints.Unsigned](v, align T) T {
	return v &^ (align - 1)
}

// AlignUp rounds v up to the nearest multiple of align. align must be a power
// of two. ok is false if the result would overflow T.
func AlignUp[T constraints.Unsigned](v, align T) (T, bool) {
	r := AlignDown(v+align-1, align)
	return r, r >= v
}

// Field returns value placed in bits [lsb, lsb+width). It panics if value
// does not fit in width bits.
func Field(value uint64, lsb, width uint) uint64 {
	if width < 64 && value>>width != 0 {
		panic("bits: field value out of range")
	}
	return value << lsb
}

// Extract returns the width bits of v starting at lsb.
func Extract(v uint64, lsb, width uint) uint64 {
	return (v >> lsb) & Ones[uint64](width)
}

// TrailingZeros64 returns the number of bits before the least significant 1
// bit in x; in other words, it returns the index of the least significant 1
// bit in x. If x is 0, TrailingZeros64 returns 64.
func TrailingZeros64(x uint64) int {
	return bits.TrailingZeros64(x)
}
