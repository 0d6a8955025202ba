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

package memmap

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schema []byte

// majorVersion is the only document major version understood.
const majorVersion = "v1"

// document is the shape shared by the structured formats.
type document struct {
	Version string        `yaml:"version" toml:"version" json:"version"`
	Regions []regionEntry `yaml:"regions" toml:"regions" json:"regions"`
}

type regionEntry struct {
	Base   number `yaml:"base" toml:"base" json:"base"`
	Length number `yaml:"length" toml:"length" json:"length"`
	Type   string `yaml:"type" toml:"type" json:"type"`
	Label  string `yaml:"label" toml:"label" json:"label"`
}

// number is an address or length given either as an integer or as a
// string understood by parseSize.
type number uint64

func (n *number) set(v any) error {
	switch v := v.(type) {
	case string:
		x, err := parseSize(v)
		if err != nil {
			return err
		}
		*n = number(x)
	case int:
		if v < 0 {
			return fmt.Errorf("negative number %d", v)
		}
		*n = number(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("negative number %d", v)
		}
		*n = number(v)
	case uint64:
		*n = number(v)
	case float64:
		if v < 0 || v != math.Trunc(v) || v > math.MaxUint64 {
			return fmt.Errorf("invalid number %v", v)
		}
		*n = number(v)
	case json.Number:
		return n.set(v.String())
	default:
		return fmt.Errorf("invalid number %v (%T)", v, v)
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *number) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return n.set(v)
}

// UnmarshalTOML implements toml.Unmarshaler.
func (n *number) UnmarshalTOML(v any) error {
	return n.set(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *number) UnmarshalJSON(b []byte) error {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return err
	}
	return n.set(v)
}

// checkVersion accepts an empty version or any v1 semantic version.
func checkVersion(v string) error {
	if v == "" {
		return nil
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("version %q is not a semantic version", v)
	}
	if major := semver.Major(v); major != majorVersion {
		return fmt.Errorf("version %q is not supported, want %s", v, majorVersion)
	}
	return nil
}

// validateJSON checks data against the embedded schema.
func validateJSON(data []byte) error {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validating against schema: %w", err)
	}
	if res.Valid() {
		return nil
	}
	var msgs []string
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// decode unmarshals data in format f into doc, rejecting unknown keys.
func decode(data []byte, f Format, doc *document) error {
	switch f {
	case YAML:
		d := yaml.NewDecoder(bytes.NewReader(data))
		d.KnownFields(true)
		if err := d.Decode(doc); err != nil && err != io.EOF {
			return err
		}
	case TOML:
		md, err := toml.Decode(string(data), doc)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys %v", undecoded)
		}
	case JSON:
		if err := validateJSON(data); err != nil {
			return err
		}
		d := json.NewDecoder(bytes.NewReader(data))
		d.DisallowUnknownFields()
		if err := d.Decode(doc); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported memory map format %v", f)
	}
	return nil
}

// parseStructured reads the YAML, TOML and JSON formats.
func parseStructured(r io.Reader, name string, f Format) (*Map, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	var doc document
	if err := decode(data, f, &doc); err != nil {
		return nil, &Error{Source: name, Err: err}
	}
	if err := checkVersion(doc.Version); err != nil {
		return nil, &Error{Source: name, Err: err}
	}

	m := New()
	m.Version = doc.Version
	for i, re := range doc.Regions {
		source := fmt.Sprintf("%s: regions[%d]", name, i)
		e, err := makeEntry(uint64(re.Base), uint64(re.Length), re.Type, re.Label, source)
		if err != nil {
			return nil, &Error{Source: source, Err: err}
		}
		if err := m.Add(e); err != nil {
			return nil, err
		}
	}
	return m, nil
}
