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
	"sync"

	"gvisor.dev/pgtt/pkg/vmsa"
)

// RegisterEncoding is everything needed to enable translation for a
// configuration.
type RegisterEncoding struct {
	MAIR  uint64
	TCR   uint64
	SCTLR uint64

	// Block and Page are the leaf templates of every configured memory
	// type.
	Block map[vmsa.MemoryType]uint64
	Page  map[vmsa.MemoryType]uint64
}

// Encode computes the RegisterEncoding of cfg.
//
// Precondition: cfg.Validate() returns nil.
func Encode(cfg *vmsa.Config) RegisterEncoding {
	e := RegisterEncoding{
		MAIR:  MAIR(cfg),
		TCR:   TCR(cfg),
		SCTLR: SCTLR(cfg),
		Block: make(map[vmsa.MemoryType]uint64),
		Page:  make(map[vmsa.MemoryType]uint64),
	}
	for _, mt := range cfg.Types() {
		e.Block[mt] = BlockTemplate(cfg, mt)
		e.Page[mt] = PageTemplate(cfg, mt)
	}
	return e
}

// Encoder computes the RegisterEncoding of one configuration on first use
// and caches it. It is safe for concurrent use.
type Encoder struct {
	cfg vmsa.Config

	once sync.Once
	enc  RegisterEncoding
}

// NewEncoder returns an Encoder for cfg.
func NewEncoder(cfg vmsa.Config) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.MemoryTypes = append(vmsa.MemoryTypes(nil), cfg.Types()...)
	return &Encoder{cfg: cfg}, nil
}

// Config returns the encoder's configuration.
func (e *Encoder) Config() *vmsa.Config {
	return &e.cfg
}

// Encoding returns the cached RegisterEncoding. The returned value must not
// be modified.
func (e *Encoder) Encoding() *RegisterEncoding {
	e.once.Do(func() {
		e.enc = Encode(&e.cfg)
	})
	return &e.enc
}

// Descriptor returns the leaf descriptor for addr using the cached
// templates. mt must be one of the configured memory types.
func (e *Encoder) Descriptor(mt vmsa.MemoryType, level int, addr uint64, contiguous bool) (uint64, error) {
	enc := e.Encoding()
	templates := enc.Block
	if level == vmsa.PageLevel {
		templates = enc.Page
	}
	t, ok := templates[mt]
	if !ok {
		return 0, &vmsa.ConfigError{Field: "memory-types", Value: e.cfg.Types(), Reason: fmt.Sprintf("%v is not configured", mt)}
	}
	d := t | addr&outputMask(e.cfg.Granule.LevelShift(level))
	if contiguous {
		d |= Contiguous
	}
	return d, nil
}

// Registers returns descriptions of the system registers and of every leaf
// template, in a stable order.
func (e *Encoder) Registers() []*Register {
	regs := []*Register{
		MAIRRegister(&e.cfg),
		TCRRegister(&e.cfg),
		SCTLRRegister(&e.cfg),
	}
	for _, mt := range e.cfg.Types() {
		regs = append(regs, templateRegister(&e.cfg, mt, false), templateRegister(&e.cfg, mt, true))
	}
	return regs
}
