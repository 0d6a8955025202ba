// Copyright 2019 The gVisor Authors.
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

package asmgen

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

const (
	// spacesPerIndentLevel is the indentation of instructions.
	spacesPerIndentLevel = 4

	// mnemonicWidth pads mnemonics so operands line up.
	mnemonicWidth = 8

	// commentColumn is where trailing comments start.
	commentColumn = 41
)

// emit generates a line of code in the output file.
//
// emit is a wrapper around writing a formatted string to the output
// buffer. emit can be invoked in one of two ways:
//
// (1) emit("some string")
//
//	When emit is called with a single string argument, it is simply copied to
//	the output buffer without any further formatting.
//
// (2) emit(fmtString, args...)
//
//	emit can also be invoked in a similar fashion to *Printf() functions,
//	where the first argument is a format string.
//
// Calling emit with a single argument that is not a string will result in a
// panic, as the caller's intent is ambiguous.
func emit(out io.Writer, indent int, a ...any) {
	if len(a) < 1 {
		panic("emit() called with no arguments")
	}

	if indent > 0 {
		if _, err := fmt.Fprint(out, strings.Repeat(" ", indent*spacesPerIndentLevel)); err != nil {
			// Writing to the emit output should not fail. Typically the output
			// is a byte.Buffer; writes to these never fail.
			panic(err)
		}
	}

	first, ok := a[0].(string)
	if !ok {
		panic(fmt.Sprintf("First argument to emit() is not a string: %+v", a[0]))
	}

	if len(a) == 1 {
		if _, err := fmt.Fprint(out, first); err != nil {
			panic(err)
		}
		return
	}

	if _, err := fmt.Fprintf(out, first, a[1:]...); err != nil {
		panic(err)
	}
}

// sourceBuffer represents fragments of generated assembly.
//
// May be safely zero-value initialized. Not thread-safe.
type sourceBuffer struct {
	// Current indentation level.
	indent int

	// Memory buffer containing contents while they're being generated.
	b bytes.Buffer
}

func (b *sourceBuffer) incIndent() {
	b.indent++
}

func (b *sourceBuffer) decIndent() {
	if b.indent <= 0 {
		panic("decIndent() without matching incIndent()")
	}
	b.indent--
}

func (b *sourceBuffer) inIndent(body func()) {
	b.incIndent()
	body()
	b.decIndent()
}

func (b *sourceBuffer) emit(a ...any) {
	emit(&b.b, b.indent, a...)
}

func (b *sourceBuffer) emitNoIndent(a ...any) {
	emit(&b.b, 0 /* indent */, a...)
}

// label emits "name:" at column zero.
func (b *sourceBuffer) label(name string) {
	b.emitNoIndent("%s:\n", name)
}

// blank emits an empty line.
func (b *sourceBuffer) blank() {
	b.emitNoIndent("\n")
}

// insn emits one instruction or directive with an optional trailing
// comment aligned to commentColumn.
func (b *sourceBuffer) insn(op, operands, comment string) {
	code := strings.Repeat(" ", b.indent*spacesPerIndentLevel) + op
	if operands != "" {
		code += strings.Repeat(" ", max(1, mnemonicWidth-len(op))) + operands
	}
	if comment != "" {
		code += strings.Repeat(" ", max(1, commentColumn-len(code))) + "// " + comment
	}
	b.emitNoIndent(code + "\n")
}

// blockComment emits a C-style comment, one " * " line per input line.
func (b *sourceBuffer) blockComment(lines []string) {
	b.emitNoIndent("/*\n")
	for _, l := range lines {
		if l == "" {
			b.emitNoIndent(" *\n")
			continue
		}
		b.emitNoIndent(" * %s\n", l)
	}
	b.emitNoIndent(" */\n")
}

func (b *sourceBuffer) write(out io.Writer) error {
	_, err := out.Write(b.b.Bytes())
	return err
}

// Write implements io.Writer.Write.
func (b *sourceBuffer) Write(buf []byte) (int, error) {
	return b.b.Write(buf)
}
