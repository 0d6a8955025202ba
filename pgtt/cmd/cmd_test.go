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

package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/pgtt/pgtt/config"
	"gvisor.dev/pgtt/pkg/pagetables"
)

const virtMap = `# address,     length, type,     label
0x0000_0000,   128M,   CODE,     flash
0x0800_0000,   16M,    DEVICE,   gic
0x0900_0000,   4K,     DEVICE,   uart0
0x4000_0000,   1G,     RW_DATA,  dram
0x8000_0000,   2M,     NO_CACHE, dma
`

func testConfig(t *testing.T, flags ...string) *config.Config {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(testFlags)
	if err := testFlags.Parse(flags); err != nil {
		t.Fatalf("Parse(%v): %v", flags, err)
	}
	conf, err := config.NewFromFlags(testFlags)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	return conf
}

func writeMap(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "board.map")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	path := writeMap(t, dir, virtMap)
	g := &Generate{
		output:    filepath.Join(dir, "mmu.S"),
		usageFile: filepath.Join(dir, "usage.json"),
		treeFile:  filepath.Join(dir, "tree.txt"),
	}
	conf := testConfig(t, "--enable", "--function-name=enable_mmu")
	if err := g.run(context.Background(), conf, path); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	asm := readFile(t, g.output)
	for _, want := range []string{"--function-name=enable_mmu --enable=true generate board.map", "enable_mmu:", "msr", "uart0"} {
		if !strings.Contains(strings.ToLower(asm), strings.ToLower(want)) {
			t.Errorf("assembly does not contain %q", want)
		}
	}

	var report pagetables.Report
	if err := json.Unmarshal([]byte(readFile(t, g.usageFile)), &report); err != nil {
		t.Fatalf("usage report: %v", err)
	}
	if report.Count() == 0 || report.TotalBytes != uint64(report.Count())*report.TableSize {
		t.Errorf("inconsistent usage report: %+v", report)
	}
	if want := "mmu_table"; report.TableBase != want {
		t.Errorf("TableBase = %q, want %q", report.TableBase, want)
	}

	if tree := readFile(t, g.treeFile); !strings.HasPrefix(tree, "[table 0] level 1") {
		t.Errorf("unexpected tree dump:\n%s", tree)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range ents {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{"board.map", "mmu.S", "tree.txt", "usage.json"}, names); diff != "" {
		t.Errorf("files left in output directory (-want +got):\n%s", diff)
	}
}

func TestWriteOutputReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.s")
	if err := os.WriteFile(path, []byte(strings.Repeat("stale\n", 100)), 0644); err != nil {
		t.Fatal(err)
	}
	err := writeOutput(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "fresh\n")
		return err
	})
	if err != nil {
		t.Fatalf("writeOutput failed: %v", err)
	}
	if got := readFile(t, path); got != "fresh\n" {
		t.Errorf("output = %q, want %q", got, "fresh\n")
	}
	fi, err := os.Stat(path + ".lock")
	if err == nil {
		t.Errorf("writeOutput left %q behind", fi.Name())
	}
}

func TestGenerateOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeMap(t, dir, virtMap)
	conf := testConfig(t)

	g := &Generate{
		output:    filepath.Join(dir, "mmu.S"),
		overrides: overrideFlags{"function-name=boot_mmu", "enable=true"},
	}
	if err := g.run(context.Background(), conf, path); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	asm := readFile(t, g.output)
	for _, want := range []string{"boot_mmu:", "--function-name=boot_mmu", "--enable=true", "generate board.map"} {
		if !strings.Contains(asm, want) {
			t.Errorf("assembly does not contain %q", want)
		}
	}
	if conf.FunctionName == "boot_mmu" || conf.Enable {
		t.Errorf("-set changed the shared config: %+v", conf)
	}

	for _, o := range []string{"granule", "config=other.toml", "no-such-flag=1", "granule=3K"} {
		g := &Generate{output: filepath.Join(dir, "bad.S"), overrides: overrideFlags{o}}
		if err := g.run(context.Background(), conf, path); err == nil {
			t.Errorf("run with -set %q succeeded", o)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.S")); err == nil {
		t.Errorf("output written despite invalid -set")
	}
}

func TestGenerateErrors(t *testing.T) {
	dir := t.TempDir()
	conf := testConfig(t)

	misaligned := writeMap(t, dir, "0x1000_0800, 4K, DEVICE, uart\n")
	g := &Generate{output: filepath.Join(dir, "mmu.S")}
	if err := g.run(context.Background(), conf, misaligned); !errors.Is(err, pagetables.ErrAlignment) {
		t.Errorf("run() = %v, want ErrAlignment", err)
	}
	if _, err := os.Stat(g.output); err == nil {
		t.Errorf("output written despite build error")
	}

	path := writeMap(t, dir, virtMap)
	g = &Generate{output: "-", usageFile: "-"}
	if err := g.run(context.Background(), conf, path); err == nil || !strings.Contains(err.Error(), "stdout") {
		t.Errorf("run() = %v, want stdout conflict", err)
	}

	if err := g.run(context.Background(), conf, filepath.Join(dir, "missing.map")); err == nil {
		t.Errorf("run() with missing map succeeded")
	}
}

func TestUsageFormats(t *testing.T) {
	path := writeMap(t, t.TempDir(), virtMap)
	conf := testConfig(t)

	for _, tc := range []struct {
		format   string
		terminal bool
		check    func(t *testing.T, out string)
	}{
		{
			format: "table",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "translation tables.") || !strings.Contains(out, "TABLE  LEVEL") {
					t.Errorf("unexpected table output:\n%s", out)
				}
			},
		},
		{
			format:   "auto",
			terminal: true,
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "TABLE  LEVEL") {
					t.Errorf("auto on a terminal did not print a table:\n%s", out)
				}
			},
		},
		{
			format: "auto",
			check: func(t *testing.T, out string) {
				if !json.Valid([]byte(out)) {
					t.Errorf("auto without a terminal did not print JSON:\n%s", out)
				}
			},
		},
		{
			format: "csv",
			check: func(t *testing.T, out string) {
				records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
				if err != nil {
					t.Fatalf("invalid CSV: %v", err)
				}
				want := []string{"table", "level", "offset", "va", "chunk", "used", "available", "runs"}
				if diff := cmp.Diff(want, records[0]); diff != "" {
					t.Errorf("CSV header mismatch (-want +got):\n%s", diff)
				}
				if len(records) < 2 || records[1][0] != "0" || records[1][1] != "1" {
					t.Errorf("unexpected root row: %v", records)
				}
			},
		},
	} {
		t.Run(tc.format, func(t *testing.T) {
			var b bytes.Buffer
			u := &Usage{output: tc.format}
			if err := u.run(conf, path, &b, tc.terminal); err != nil {
				t.Fatalf("run failed: %v", err)
			}
			tc.check(t, b.String())
		})
	}

	u := &Usage{output: "xml"}
	if err := u.run(conf, path, &bytes.Buffer{}, false); err == nil || !strings.Contains(err.Error(), "unsupported output format") {
		t.Errorf("run() = %v, want unsupported output format", err)
	}
}

func TestRegs(t *testing.T) {
	var b bytes.Buffer
	if err := new(Regs).run(testConfig(t), &b); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	out := b.String()
	for _, want := range []string{
		"mair_el1 = 0xff44ff00",
		"tcr_el1 = ",
		"sctlr_el1 = 0x30d0180d",
		"DEVICE block = 0x60000000000401",
		"CODE page = ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestTree(t *testing.T) {
	dir := t.TempDir()
	path := writeMap(t, dir, virtMap)
	tr := &Tree{output: filepath.Join(dir, "tree.txt")}
	if err := tr.run(testConfig(t, "--el=2", "--address-bits=36"), path); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	out := readFile(t, tr.output)
	for _, want := range []string{"[table 0]", "dram", "NO_CACHE"} {
		if !strings.Contains(out, want) {
			t.Errorf("tree does not contain %q:\n%s", want, out)
		}
	}
}
