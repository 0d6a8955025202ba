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

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLevelJSON(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{`"warning"`, Warning},
		{`"info"`, Info},
		{`"debug"`, Debug},
		{"0", Warning},
		{"1", Info},
		{"2", Debug},
	} {
		var got Level
		if err := json.Unmarshal([]byte(tc.in), &got); err != nil {
			t.Errorf("json.Unmarshal(%s) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("json.Unmarshal(%s) = %v, want %v", tc.in, got, tc.want)
		}
	}

	b, err := json.Marshal([]Level{Warning, Info, Debug})
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	if want := `["warning","info","debug"]`; string(b) != want {
		t.Errorf("json.Marshal = %s, want %s", b, want)
	}
}

func TestLevelJSONInvalid(t *testing.T) {
	for _, s := range []string{"3", "-1", `"trace"`, `""`, "{}"} {
		var lv Level
		if err := lv.UnmarshalJSON([]byte(s)); err == nil {
			t.Errorf("UnmarshalJSON(%s) succeeded, want error", s)
		}
	}
	if _, err := Level(7).MarshalJSON(); err == nil {
		t.Errorf("MarshalJSON(7) succeeded, want error")
	}
}

func TestJSONEmitterFields(t *testing.T) {
	var buf bytes.Buffer
	l := &BasicLogger{Level: Debug, Emitter: JSONEmitter{&Writer{Next: &buf}}}
	l.DebugFields(Fields{"table": 3, "level": 2, "va": "0x40000000"}, "Allocated table %d", 3)

	var got jsonLog
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal(%q) failed: %v", buf.String(), err)
	}
	want := Fields{"table": 3.0, "level": 2.0, "va": "0x40000000"}
	if diff := cmp.Diff(want, got.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if got.Msg != "Allocated table 3" {
		t.Errorf("msg = %q, want %q", got.Msg, "Allocated table 3")
	}
	if !strings.HasPrefix(got.Source, "json_test.go:") {
		t.Errorf("source = %q, want json_test.go:<line>", got.Source)
	}
}

func TestJSONEmitterUnencodableField(t *testing.T) {
	var buf bytes.Buffer
	e := JSONEmitter{&Writer{Next: &buf}}
	e.EmitFields(0, Info, time.Now(), Fields{"ch": make(chan int)}, "hello")

	var got jsonLog
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal(%q) failed: %v", buf.String(), err)
	}
	if !strings.HasPrefix(got.Msg, "hello ch=") || got.Fields != nil {
		t.Errorf("got msg %q fields %v, want fields folded into msg", got.Msg, got.Fields)
	}
}

func TestTextFields(t *testing.T) {
	var buf bytes.Buffer
	l := &BasicLogger{Level: Debug, Emitter: &Writer{Next: &buf}}
	l.DebugFields(Fields{"region": "uart", "level": 3}, "Mapping region")
	if want := "Mapping region level=3 region=uart"; buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	l.SetLevel(Info)
	l.DebugFields(Fields{"region": "uart"}, "hidden")
	if buf.Len() != 0 {
		t.Errorf("debug fields emitted at info level: %q", buf.String())
	}
}

func TestMultiEmitterFields(t *testing.T) {
	var text, js bytes.Buffer
	m := MultiEmitter{&Writer{Next: &text}, JSONEmitter{&Writer{Next: &js}}}
	l := &BasicLogger{Level: Debug, Emitter: &m}
	l.DebugFields(Fields{"table": 1}, "x")

	if want := "x table=1"; text.String() != want {
		t.Errorf("text = %q, want %q", text.String(), want)
	}
	var got jsonLog
	if err := json.Unmarshal(js.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal(%q) failed: %v", js.String(), err)
	}
	if diff := cmp.Diff(Fields{"table": 1.0}, got.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}
