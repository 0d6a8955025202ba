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

// Package pagetables builds the translation table tree that maps a set of
// memory regions for an ARM64 stage 1 translation regime.
//
// The tree is a pure data model: tables live in an arena owned by the Tree
// and reference their children by TableID. Nothing in this package renders
// assembly or touches hardware.
package pagetables

import (
	"fmt"

	"gvisor.dev/pgtt/pkg/vmsa"
)

// Region is a contiguous range of input addresses with a single memory type.
type Region struct {
	// Base is the first input address of the region.
	Base uint64

	// Length is the size of the region in bytes.
	Length uint64

	// Type is the memory type the region is mapped with.
	Type vmsa.MemoryType

	// Label is a human readable name, used in errors and generated output.
	Label string
}

// Last returns the last input address of the region. It is only meaningful
// for a non-empty region that does not wrap.
func (r *Region) Last() uint64 {
	return r.Base + (r.Length - 1)
}

// String implements fmt.Stringer.String.
func (r *Region) String() string {
	return fmt.Sprintf("%s [%#x-%#x] %v", r.Label, r.Base, r.Last(), r.Type)
}
