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

// Package config provides basic infrastructure to set configuration settings
// for pgtt. Each setting is a command line flag and can also be set from the
// [flags] table of a TOML configuration file.
package config

import (
	"fmt"
	"reflect"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"gvisor.dev/pgtt/pkg/log"
	"gvisor.dev/pgtt/pkg/vmsa"
)

// Config holds configuration that is not part of the memory map.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name.
//  3. Register a new flag in flags.go, with the same name and add a description.
//  4. Add any necessary validation into validate().
type Config struct {
	// ConfigFile is the path of a TOML file whose [flags] table sets flags
	// that were not given on the command line.
	ConfigFile string `flag:"config"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogFormat is the log format, "text" or "json".
	LogFormat string `flag:"log-format"`

	// Granule is the translation granule.
	Granule vmsa.Granule `flag:"granule"`

	// AddressBits is the input address width.
	AddressBits uint `flag:"address-bits"`

	// EL is the exception level whose translation regime is configured.
	EL vmsa.ExceptionLevel `flag:"el"`

	// TTBR selects TTBR0 or TTBR1.
	TTBR int `flag:"ttbr"`

	// TableBase is the linker symbol of the table buffer.
	TableBase string `flag:"table-base"`

	// MemoryTypes is the ordered memory type set.
	MemoryTypes vmsa.MemoryTypes `flag:"memory-types"`

	// FunctionName is the name of the generated routine.
	FunctionName string `flag:"function-name"`

	// Enable makes the generated routine program the system registers and
	// turn the MMU on.
	Enable bool `flag:"enable"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.FunctionName == "" {
		return fmt.Errorf("function name must not be empty")
	}
	tc := c.TranslationConfig()
	return tc.Validate()
}

// TranslationConfig returns the translation regime described by c.
func (c *Config) TranslationConfig() vmsa.Config {
	return vmsa.Config{
		Granule:     c.Granule,
		AddressBits: c.AddressBits,
		EL:          c.EL,
		TTBR:        c.TTBR,
		TableBase:   c.TableBase,
		MemoryTypes: append(vmsa.MemoryTypes(nil), c.MemoryTypes...),
	}
}

// Copy returns a deep copy of c.
func (c *Config) Copy() *Config {
	return deepcopy.Copy(c).(*Config)
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			continue
		}
		log.Infof("  %s: %s", name, getVal(obj.Field(i)))
	}
}

// fileConfig is the layout of a configuration file.
type fileConfig struct {
	// Flags maps flag names to values, using the same syntax as the command
	// line.
	Flags map[string]string `toml:"flags"`
}

// loadFile reads the flag table of a configuration file.
func loadFile(path string) (map[string]string, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %q: unknown keys %v", path, undecoded)
	}
	return fc.Flags, nil
}
