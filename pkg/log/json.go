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
	"encoding/json"
	"fmt"
	"time"
)

// jsonLog is one line of JSONEmitter output.
type jsonLog struct {
	Time   time.Time `json:"time"`
	Level  Level     `json:"level"`
	Source string    `json:"source,omitempty"`
	Msg    string    `json:"msg"`
	Fields Fields    `json:"fields,omitempty"`
}

// levelNames are the JSON names of each Level, indexed by level.
var levelNames = [...]string{
	Warning: "warning",
	Info:    "info",
	Debug:   "debug",
}

// MarshalJSON implements json.Marshaler.MarshalJSON.
func (l Level) MarshalJSON() ([]byte, error) {
	if int(l) >= len(levelNames) {
		return nil, fmt.Errorf("unknown level %v", l)
	}
	return json.Marshal(levelNames[l])
}

// UnmarshalJSON implements json.Unmarshaler.UnmarshalJSON. It accepts both
// level names and their integer values.
func (l *Level) UnmarshalJSON(b []byte) error {
	var n uint32
	if err := json.Unmarshal(b, &n); err == nil {
		if int(n) >= len(levelNames) {
			return fmt.Errorf("unknown level %d", n)
		}
		*l = Level(n)
		return nil
	}
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return fmt.Errorf("unknown level %s: %w", b, err)
	}
	for i, s := range levelNames {
		if s == name {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("unknown level %q", name)
}

// JSONEmitter logs one JSON object per line. The caller's file and line go
// in "source" and any Fields are kept as a nested "fields" object.
type JSONEmitter struct {
	*Writer
}

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	e.EmitFields(1+depth, level, timestamp, nil, format, v...)
}

// EmitFields implements FieldEmitter.EmitFields.
func (e JSONEmitter) EmitFields(depth int, level Level, timestamp time.Time, fields Fields, format string, v ...any) {
	file, line := caller(depth + 1)
	b, err := json.Marshal(jsonLog{
		Time:   timestamp,
		Level:  level,
		Source: fmt.Sprintf("%s:%d", file, line),
		Msg:    fmt.Sprintf(format, v...),
		Fields: fields,
	})
	if err != nil {
		// Fields may hold values encoding/json rejects; keep the message.
		b, _ = json.Marshal(jsonLog{
			Time:  timestamp,
			Level: level,
			Msg:   fmt.Sprintf(format, v...) + fields.String(),
		})
	}
	e.Writer.Write(append(b, '\n'))
}
