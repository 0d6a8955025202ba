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

package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/pgtt/pkg/vmsa"
)

func newFlagSet() *flag.FlagSet {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	return testFlags
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlagSet())
	if err != nil {
		t.Fatal(err)
	}

	// All defaults doesn't require setting flags.
	flags := c.ToFlags()
	if len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}

	want := vmsa.Config{
		Granule:     vmsa.Granule4K,
		AddressBits: 32,
		EL:          vmsa.EL1,
		TableBase:   "mmu_table",
		MemoryTypes: vmsa.AllMemoryTypes,
	}
	if diff := cmp.Diff(want, c.TranslationConfig()); diff != "" {
		t.Errorf("TranslationConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := newFlagSet()
	for name, value := range map[string]string{
		"debug":        "true",
		"granule":      "64K",
		"address-bits": "48",
		"el":           "EL2",
		"memory-types": "code,device",
		"enable":       "true",
	} {
		if err := testFlags.Lookup(name).Value.Set(value); err != nil {
			t.Errorf("Flag set: %v", err)
		}
	}

	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if want := true; c.Debug != want {
		t.Errorf("Debug=%v, want: %v", c.Debug, want)
	}
	if want := vmsa.Granule64K; c.Granule != want {
		t.Errorf("Granule=%v, want: %v", c.Granule, want)
	}
	if want := uint(48); c.AddressBits != want {
		t.Errorf("AddressBits=%v, want: %v", c.AddressBits, want)
	}
	if want := vmsa.EL2; c.EL != want {
		t.Errorf("EL=%v, want: %v", c.EL, want)
	}
	if want := (vmsa.MemoryTypes{vmsa.Code, vmsa.Device}); !cmp.Equal(c.MemoryTypes, want) {
		t.Errorf("MemoryTypes=%v, want: %v", c.MemoryTypes, want)
	}
	if want := true; c.Enable != want {
		t.Errorf("Enable=%v, want: %v", c.Enable, want)
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	testFlags := newFlagSet()
	testFlags.Set("debug", "true")
	testFlags.Set("ttbr", "0") // Matches default value.
	testFlags.Set("granule", "16k")
	testFlags.Set("memory-types", "RW_DATA,DEVICE")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}

	flags := c.ToFlags()
	t.Logf("Flags: %s", flags)
	want := []string{
		"--debug=true",
		"--granule=16K",
		"--memory-types=RW_DATA,DEVICE",
	}
	if diff := cmp.Diff(want, flags); diff != "" {
		t.Errorf("ToFlags mismatch (-want +got):\n%s", diff)
	}
}

// TestInvalidFlags checks that typed flags fail when value is not valid.
func TestInvalidFlags(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value string
		error string
	}{
		{
			name:  "granule",
			value: "8K",
			error: "must be one of 4K, 16K or 64K",
		},
		{
			name:  "el",
			value: "EL0",
			error: "must be 1, 2 or 3",
		},
		{
			name:  "memory-types",
			value: "DEVICE,SECURE",
			error: "SECURE",
		},
		{
			name:  "address-bits",
			value: "many",
			error: "parse error",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlagSet()
			if err := testFlags.Lookup(tc.name).Value.Set(tc.value); err == nil || !strings.Contains(err.Error(), tc.error) {
				t.Errorf("flag.Set(invalid) wrong error reported: %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name  string
		flags map[string]string
		error string
	}{
		{
			name:  "ttbr1 at el2",
			flags: map[string]string{"el": "2", "ttbr": "1"},
			error: "TTBR1 is not available at EL2",
		},
		{
			name:  "address bits",
			flags: map[string]string{"address-bits": "52"},
			error: "must be in [25, 48]",
		},
		{
			name:  "log format",
			flags: map[string]string{"log-format": "xml"},
			error: "invalid log format",
		},
		{
			name:  "duplicate type",
			flags: map[string]string{"memory-types": "CODE,CODE"},
			error: "listed twice",
		},
		{
			name:  "table base",
			flags: map[string]string{"table-base": ""},
			error: "symbol must not be empty",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlagSet()
			for name, value := range tc.flags {
				if err := testFlags.Set(name, value); err != nil {
					t.Fatalf("Flag set: %v", err)
				}
			}
			if _, err := NewFromFlags(testFlags); err == nil || !strings.Contains(err.Error(), tc.error) {
				t.Errorf("NewFromFlags() wrong error reported: %v, want: %q", err, tc.error)
			}
		})
	}
}

func TestOverride(t *testing.T) {
	testFlags := newFlagSet()
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Override(testFlags, "granule", "64K"); err != nil {
		t.Fatalf("Override(granule, 64K): %v", err)
	}
	if want := vmsa.Granule64K; c.Granule != want {
		t.Errorf("Granule=%v, want: %v", c.Granule, want)
	}
	if err := c.Override(testFlags, "debug", "true"); err != nil {
		t.Fatalf("Override(debug, true): %v", err)
	}
	if !c.Debug {
		t.Errorf("Debug not set")
	}

	if err := c.Override(testFlags, "no-such-flag", "1"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Override(no-such-flag) wrong error reported: %v", err)
	}
	if err := c.Override(testFlags, "ttbr", "1"); err != nil {
		t.Fatalf("Override(ttbr, 1): %v", err)
	}
	var cerr *vmsa.ConfigError
	if err := c.Override(testFlags, "el", "3"); !errors.As(err, &cerr) || cerr.Field != "ttbr" {
		t.Errorf("Override(el, 3) with TTBR1 = %v, want ttbr ConfigError", err)
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgtt.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigFile(t *testing.T) {
	path := writeFile(t, `
[flags]
granule = "16K"
address-bits = "40"
table-base = "page_tables"
enable = "true"
`)
	testFlags := newFlagSet()
	testFlags.Set("config", path)
	// Command line wins over the file.
	testFlags.Set("address-bits", "36")

	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if want := vmsa.Granule16K; c.Granule != want {
		t.Errorf("Granule=%v, want: %v", c.Granule, want)
	}
	if want := uint(36); c.AddressBits != want {
		t.Errorf("AddressBits=%v, want: %v", c.AddressBits, want)
	}
	if want := "page_tables"; c.TableBase != want {
		t.Errorf("TableBase=%v, want: %v", c.TableBase, want)
	}
	if !c.Enable {
		t.Errorf("Enable not set")
	}
}

func TestConfigFileErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		error   string
	}{
		{
			name:    "unknown flag",
			content: "[flags]\ncolour = \"blue\"\n",
			error:   `flag "colour" not found`,
		},
		{
			name:    "invalid value",
			content: "[flags]\ngranule = \"3K\"\n",
			error:   "must be one of 4K, 16K or 64K",
		},
		{
			name:    "nested config",
			content: "[flags]\nconfig = \"other.toml\"\n",
			error:   "cannot be set from a config file",
		},
		{
			name:    "unknown table",
			content: "[settings]\ndebug = \"true\"\n",
			error:   "unknown keys",
		},
		{
			name:    "syntax",
			content: "[flags\n",
			error:   "reading config file",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlagSet()
			testFlags.Set("config", writeFile(t, tc.content))
			if _, err := NewFromFlags(testFlags); err == nil || !strings.Contains(err.Error(), tc.error) {
				t.Errorf("NewFromFlags() wrong error reported: %v, want: %q", err, tc.error)
			}
		})
	}
}

func TestCopy(t *testing.T) {
	c, err := NewFromFlags(newFlagSet())
	if err != nil {
		t.Fatal(err)
	}
	cp := c.Copy()
	if diff := cmp.Diff(c, cp); diff != "" {
		t.Errorf("Copy mismatch (-want +got):\n%s", diff)
	}
	cp.MemoryTypes[0] = vmsa.Code
	cp.TableBase = "other"
	if c.MemoryTypes[0] != vmsa.Device || c.TableBase != "mmu_table" {
		t.Errorf("modifying the copy changed the original: %+v", c)
	}
}
