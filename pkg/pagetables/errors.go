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
	"fmt"
)

// Sentinel errors. Each structured error below unwraps to one of them.
var (
	ErrAlignment  = errors.New("misaligned region")
	ErrOverlap    = errors.New("overlapping regions")
	ErrRange      = errors.New("region out of range")
	ErrContiguity = errors.New("contiguous run limit exceeded")
)

// AlignmentError is returned for a region whose base or length is not a
// multiple of the chunk of the level it must be mapped at.
type AlignmentError struct {
	Label string
	Addr  uint64
	Level int
	Chunk uint64
}

// Error implements error.Error.
func (e *AlignmentError) Error() string {
	return fmt.Sprintf("region %q: %#x is not aligned to the level %d chunk of %#x bytes", e.Label, e.Addr, e.Level, e.Chunk)
}

// Unwrap returns ErrAlignment.
func (e *AlignmentError) Unwrap() error {
	return ErrAlignment
}

// OverlapError is returned when a region starts before the end of the
// region preceding it in the input.
type OverlapError struct {
	// Label is the region being mapped.
	Label string

	// Other is the region it collides with.
	Other string

	// Addr is the first input address of Label.
	Addr uint64

	// Unsorted is set if Label starts below Other, i.e. the input was not
	// ordered by base address.
	Unsorted bool
}

// Error implements error.Error.
func (e *OverlapError) Error() string {
	if e.Unsorted {
		return fmt.Sprintf("region %q at %#x is listed after region %q at a higher address", e.Label, e.Addr, e.Other)
	}
	return fmt.Sprintf("region %q at %#x overlaps region %q", e.Label, e.Addr, e.Other)
}

// Unwrap returns ErrOverlap.
func (e *OverlapError) Unwrap() error {
	return ErrOverlap
}

// RangeError is returned for a region that is empty, wraps around the
// address space or lies outside the configured input address range.
type RangeError struct {
	Label  string
	Base   uint64
	Length uint64
	Reason string
}

// Error implements error.Error.
func (e *RangeError) Error() string {
	return fmt.Sprintf("region %q [base %#x, length %#x]: %s", e.Label, e.Base, e.Length, e.Reason)
}

// Unwrap returns ErrRange.
func (e *RangeError) Unwrap() error {
	return ErrRange
}

// ContiguityError reports a contiguous run that breaks the architectural
// rules. It indicates a defect in the builder, not bad input.
type ContiguityError struct {
	Table      TableID
	Level      int
	StartIndex int
	Length     int
	Max        int
	Reason     string
}

// Error implements error.Error.
func (e *ContiguityError) Error() string {
	return fmt.Sprintf("table %d (level %d): run [%d, +%d) with max %d: %s", e.Table, e.Level, e.StartIndex, e.Length, e.Max, e.Reason)
}

// Unwrap returns ErrContiguity.
func (e *ContiguityError) Unwrap() error {
	return ErrContiguity
}
