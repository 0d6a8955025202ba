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

package vmsa

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned (wrapped in a *ConfigError) for any
// configuration the architecture or this package does not support.
var ErrUnsupported = errors.New("unsupported configuration")

// ConfigError describes an unsupported configuration value.
type ConfigError struct {
	// Field is the name of the offending configuration field.
	Field string

	// Value is the offending value.
	Value any

	// Reason is a short human readable explanation.
	Reason string
}

// Error implements error.Error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("unsupported configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap allows errors.Is(err, ErrUnsupported).
func (e *ConfigError) Unwrap() error {
	return ErrUnsupported
}
