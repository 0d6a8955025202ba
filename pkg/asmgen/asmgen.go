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

// Package asmgen renders a translation table tree as a GNU assembler routine
// that populates the tables at boot and, optionally, enables the MMU.
//
// The routine is safe to call from every CPU: the first CPU to take the lock
// zeroes and populates the tables, and every CPU then programs its own
// system registers.
package asmgen

import (
	"fmt"
	"io"
	"strings"

	"gvisor.dev/pgtt/pkg/log"
	"gvisor.dev/pgtt/pkg/mmu"
	"gvisor.dev/pgtt/pkg/pagetables"
	"gvisor.dev/pgtt/pkg/vmsa"
)

// DefaultFunctionName is the default name of the generated routine.
const DefaultFunctionName = "mmu_on"

// Symbols private to the generated file.
const (
	lockSymbol = "mmu_lock"
	initSymbol = "mmu_init"
)

// Options controls code generation.
type Options struct {
	// FunctionName is the global symbol of the routine.
	FunctionName string

	// EnableRoutine appends the register programming that turns the MMU
	// on. When false, the register values are exported as absolute symbols
	// instead and the routine returns once the tables are populated.
	EnableRoutine bool

	// Command is the command line recorded in the header comment.
	Command string
}

// templateRegs are the register pairs (block, page) holding the descriptor
// templates of the configured memory types, in attribute index order. All
// are caller-saved.
var templateRegs = [][2]string{
	{"x2", "x3"},
	{"x4", "x5"},
	{"x7", "x13"},
	{"x14", "x15"},
}

// generator holds the state of one Generate call.
type generator struct {
	sourceBuffer

	tree *pagetables.Tree
	enc  *mmu.Encoder
	cfg  *vmsa.Config
	opts Options
}

// Generate writes the assembly for tree to w.
//
// enc must have been created for the configuration tree was built with.
func Generate(w io.Writer, tree *pagetables.Tree, enc *mmu.Encoder, opts Options) error {
	if err := compatible(&tree.Config, enc.Config()); err != nil {
		return err
	}
	if len(enc.Config().Types()) > len(templateRegs) {
		return fmt.Errorf("%d memory types configured, at most %d are supported", len(enc.Config().Types()), len(templateRegs))
	}
	if opts.FunctionName == "" {
		opts.FunctionName = DefaultFunctionName
	}

	g := generator{
		tree: tree,
		enc:  enc,
		cfg:  enc.Config(),
		opts: opts,
	}
	g.header()
	g.macros()
	g.data()
	g.routine()
	log.Debugf("Generated %d bytes of assembly for %d tables", g.b.Len(), len(tree.Tables))
	return g.write(w)
}

// compatible checks that a tree and an encoder agree on the configuration.
func compatible(a, b *vmsa.Config) error {
	if a.Granule != b.Granule || a.AddressBits != b.AddressBits || a.EL != b.EL ||
		a.TTBR != b.TTBR || a.TableBase != b.TableBase || a.Types().String() != b.Types().String() {
		return fmt.Errorf("tree configuration (%v) does not match encoder configuration (%v)", a, b)
	}
	return nil
}

// el returns the register suffix of the exception level.
func (g *generator) el() string {
	return fmt.Sprintf("el%d", uint8(g.cfg.EL))
}

// mov64 emits the MOV64 macro.
func (g *generator) mov64(reg string, v uint64, comment string) {
	g.insn("MOV64", fmt.Sprintf("%s, %#x", reg, v), comment)
}

func (g *generator) header() {
	report := pagetables.Usage(g.tree)
	lines := []string{
		"This file was automatically generated by pgtt.",
		"",
		fmt.Sprintf("Configuration: %v.", g.cfg),
	}
	if g.opts.Command != "" {
		lines = append(lines, "", "Command line:", "", "    "+g.opts.Command)
	}
	lines = append(lines, "", "This code programs the following translation table structure:", "")
	lines = append(lines, strings.Split(strings.TrimRight(g.tree.String(), "\n"), "\n")...)
	lines = append(lines, "")
	lines = append(lines, strings.Split(strings.TrimRight(report.Summary(), "\n"), "\n")...)
	lines = append(lines,
		fmt.Sprintf("The buffer must also be aligned to %v.", g.cfg.Granule),
		"It is the programmer's responsibility to guarantee this.",
		"",
		"The programmer must also ensure that the virtual memory region containing the",
		"translation tables is itself marked as RW_DATA in the memory map, and that",
		"SIMD and floating point instructions are not trapped when "+g.opts.FunctionName+" runs.",
	)
	g.blockComment(lines)
}

func (g *generator) macros() {
	for _, l := range []string{
		".macro  MOV64 reg,value",
		"movz    \\reg,#\\value & 0xffff",
		".if \\value > 0xffff && ((\\value>>16) & 0xffff) != 0",
		"movk    \\reg,#(\\value>>16) & 0xffff,lsl #16",
		".endif",
		".if \\value > 0xffffffff && ((\\value>>32) & 0xffff) != 0",
		"movk    \\reg,#(\\value>>32) & 0xffff,lsl #32",
		".endif",
		".if \\value > 0xffffffffffff && ((\\value>>48) & 0xffff) != 0",
		"movk    \\reg,#(\\value>>48) & 0xffff,lsl #48",
		".endif",
		".endm",
	} {
		g.inIndent(func() { g.emit(l + "\n") })
	}
	g.blank()
}

func (g *generator) data() {
	g.inIndent(func() {
		g.insn(".section", ".data.mmu, \"aw\"", "")
		g.insn(".balign", "4", "")
	})
	g.blank()
	g.inIndent(func() {
		g.insn(lockSymbol+":", ".4byte 0", "lock to ensure only 1 CPU runs init")
		g.insn(initSymbol+":", ".4byte 0", "whether init has been run")
	})
	g.blank()
	if !g.opts.EnableRoutine {
		enc := g.enc.Encoding()
		g.inIndent(func() {
			for _, sym := range []struct {
				name string
				v    uint64
			}{
				{"mmu_mair_value", enc.MAIR},
				{"mmu_tcr_value", enc.TCR},
				{"mmu_sctlr_value", enc.SCTLR},
			} {
				g.insn(".global", sym.name, "")
				g.insn(".equ", fmt.Sprintf("%s, %#x", sym.name, sym.v), fmt.Sprintf("for %s_%s", strings.TrimSuffix(strings.TrimPrefix(sym.name, "mmu_"), "_value"), g.el()))
			}
		})
		g.blank()
	}
}

func (g *generator) routine() {
	fn := g.opts.FunctionName
	g.inIndent(func() {
		g.insn(".section", ".text."+fn+", \"ax\"", "")
		g.insn(".balign", "4", "")
		g.insn(".global", fn, "")
		g.insn(".type", fn+", %function", "")
	})
	g.blank()
	g.label(fn)
	g.acquire()
	g.checkInitialised()
	g.zeroTables()
	g.loadTemplates()
	for _, t := range g.tree.Tables {
		g.table(t)
	}
	g.initDone()
	if g.opts.EnableRoutine {
		g.enable()
	} else {
		g.label("end")
		g.inIndent(func() {
			g.insn("STLR", "wzr, [x0]", "release "+lockSymbol)
			g.insn("RET", "", "")
		})
	}
	g.inIndent(func() {
		g.insn(".size", fn+", . - "+fn, "")
		g.insn(".balign", "4", "")
		g.insn(".ltorg", "", "")
	})
}

func (g *generator) acquire() {
	g.inIndent(func() {
		g.insn("ADRP", "x0, "+lockSymbol, "get 4KB page containing "+lockSymbol)
		g.insn("ADD", "x0, x0, :lo12:"+lockSymbol, "restore low 12 bits lost by ADRP")
		g.insn("MOV", "w1, #1", "locked")
		g.insn("SEVL", "", "first pass won't sleep")
	})
	g.label("1")
	g.inIndent(func() {
		g.insn("WFE", "", "sleep on retry")
		g.insn("LDAXR", "w2, [x0]", "read "+lockSymbol)
		g.insn("CBNZ", "w2, 1b", "not available, go back to sleep")
		g.insn("STXR", "w3, w1, [x0]", "try to acquire "+lockSymbol)
		g.insn("CBNZ", "w3, 1b", "failed, go back to sleep")
	})
	g.blank()
	g.inIndent(func() {
		g.insn("ADRP", "x6, "+g.cfg.TableBase, "address of first table")
		g.insn("ADD", "x6, x6, :lo12:"+g.cfg.TableBase, "")
	})
	g.blank()
}

func (g *generator) checkInitialised() {
	g.label("check_already_initialised")
	g.inIndent(func() {
		g.insn("ADRP", "x1, "+initSymbol, "get 4KB page containing "+initSymbol)
		g.insn("LDR", "w2, [x1, #:lo12:"+initSymbol+"]", "read "+initSymbol)
		g.insn("CBNZ", "w2, end", "init already done, skip to the end")
	})
	g.blank()
}

func (g *generator) zeroTables() {
	g.label("zero_out_tables")
	g.inIndent(func() {
		g.insn("MOV", "x2, x6", "")
		g.mov64("x3", g.tree.ReservedBytes(), "combined length of all tables")
		g.insn("LSR", "x3, x3, #5", "number of required STP instructions")
		g.insn("FMOV", "d0, xzr", "clear q0")
	})
	g.label("1")
	g.inIndent(func() {
		g.insn("STP", "q0, q0, [x2], #32", "zero out 4 table entries at a time")
		g.insn("SUBS", "x3, x3, #1", "")
		g.insn("B.NE", "1b", "")
	})
	g.blank()
}

func (g *generator) loadTemplates() {
	enc := g.enc.Encoding()
	g.label("load_descriptor_templates")
	g.inIndent(func() {
		for i, mt := range g.cfg.Types() {
			regs := templateRegs[i]
			g.mov64(regs[0], enc.Block[mt], mt.ShortString()+" block")
			g.mov64(regs[1], enc.Page[mt], mt.ShortString()+" page")
		}
	})
}

// templateReg returns the register holding the template of mt at level.
func (g *generator) templateReg(mt vmsa.MemoryType, level int) string {
	idx, _ := g.cfg.AttrIndex(mt)
	if level == vmsa.PageLevel {
		return templateRegs[idx][1]
	}
	return templateRegs[idx][0]
}

func (g *generator) table(t *pagetables.Table) {
	g.blank()
	g.label(fmt.Sprintf("program_table_%d", t.ID))
	g.inIndent(func() {
		g.mov64("x8", t.Base, "base address of this table")
		g.insn("ADD", "x8, x8, x6", "add global base")
		g.mov64("x9", t.Chunk, "chunk size")
	})
	for _, it := range t.Items() {
		if it.Kind == pagetables.NextTable {
			g.nextLevel(t, it.Index, g.tree.Table(it.Table))
			continue
		}
		g.run(t, it.Run)
	}
}

func (g *generator) run(t *pagetables.Table, r *pagetables.ContiguousAssignment) {
	name := fmt.Sprintf("program_table_%d_entry_%d", t.ID, r.StartIndex)
	if r.Length > 1 {
		name += fmt.Sprintf("_to_%d", r.End()-1)
	}
	labels := make([]string, 0, len(r.Regions))
	for _, i := range r.Regions {
		labels = append(labels, g.tree.Regions[i].Label)
	}

	g.blank()
	g.label(name)
	g.inIndent(func() {
		g.emit("// %s %s: %s\n", r.Type.ShortString(), g.kind(t), strings.Join(labels, ", "))
		g.mov64("x10", uint64(r.StartIndex), "idx")
		g.mov64("x11", uint64(r.Length), "number of contiguous entries")
		g.mov64("x12", r.Addr, "output address of entry[idx]")
	})
	g.label("1")
	g.inIndent(func() {
		g.insn("ORR", "x12, x12, "+g.templateReg(r.Type, t.Level), "merge output address with template")
		if r.Hinted() {
			g.insn("ORR", fmt.Sprintf("x12, x12, #%#x", uint64(mmu.Contiguous)), "contiguous hint")
		}
		g.insn("STR", "x12, [x8, x10, lsl #3]", "write entry into table")
		g.insn("ADD", "x10, x10, #1", "prepare for next entry idx+1")
		g.insn("ADD", "x12, x12, x9", "add chunk to address")
		g.insn("SUBS", "x11, x11, #1", "loop as required")
		g.insn("B.NE", "1b", "")
	})
}

func (g *generator) kind(t *pagetables.Table) string {
	if t.Level == vmsa.PageLevel {
		return "pages"
	}
	return "blocks"
}

func (g *generator) nextLevel(t *pagetables.Table, idx int, next *pagetables.Table) {
	g.blank()
	g.label(fmt.Sprintf("program_table_%d_entry_%d", t.ID, idx))
	g.inIndent(func() {
		g.mov64("x10", uint64(idx), "idx")
		g.mov64("x11", next.Base, "next-level table address")
		g.insn("ADD", "x11, x11, x6", "add base address")
		g.insn("ORR", "x11, x11, #0x3", "next-level table descriptor")
		g.insn("STR", "x11, [x8, x10, lsl #3]", "write entry into table")
	})
}

func (g *generator) initDone() {
	g.blank()
	g.label("init_done")
	g.inIndent(func() {
		g.insn("DSB", "ISH", "tables visible before the flag")
		g.insn("MOV", "w2, #1", "initialised")
		g.insn("STR", "w2, [x1, #:lo12:"+initSymbol+"]", "set "+initSymbol)
	})
	g.blank()
}

// tlbi returns the TLB invalidation of the whole translation regime.
func (g *generator) tlbi() string {
	if g.cfg.EL == vmsa.EL1 {
		return "VMALLE1"
	}
	return "ALLE" + fmt.Sprint(uint8(g.cfg.EL))
}

func (g *generator) enable() {
	enc := g.enc.Encoding()
	el := g.el()
	ttbr, other := "ttbr0", "ttbr1"
	if g.cfg.TTBR == 1 {
		ttbr, other = other, ttbr
	}

	g.label("end")
	g.inIndent(func() {
		g.insn("MSR", fmt.Sprintf("%s_%s, x6", ttbr, el), "")
		if g.cfg.EL == vmsa.EL1 {
			g.insn("MSR", fmt.Sprintf("%s_el1, xzr", other), "")
		}
		g.mov64("x1", enc.MAIR, "program mair on this CPU")
		g.insn("MSR", "mair_"+el+", x1", "")
		g.mov64("x1", enc.TCR, "program tcr on this CPU")
		g.insn("MSR", "tcr_"+el+", x1", "")
		g.insn("ISB", "", "")
		g.insn("MRS", "x2, tcr_"+el, "verify CPU supports desired config")
		g.insn("CMP", "x2, x1", "")
		g.insn("B.NE", "tcr_mismatch", "")
		g.insn("TLBI", g.tlbi(), "discard stale translations")
		g.insn("DSB", "ISH", "")
		g.insn("ISB", "", "")
		g.mov64("x1", enc.SCTLR, "program sctlr on this CPU")
		g.insn("MSR", "sctlr_"+el+", x1", "")
		g.insn("ISB", "", "synchronize context on this CPU")
		g.insn("STLR", "wzr, [x0]", "release "+lockSymbol)
		g.insn("RET", "", "done!")
	})
	g.blank()
	g.label("tcr_mismatch")
	g.inIndent(func() {
		g.insn("STLR", "wzr, [x0]", "release "+lockSymbol)
		g.insn("B", ".", "configuration not supported by this CPU")
	})
}
