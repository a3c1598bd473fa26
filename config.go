// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package tapwedge

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the tunables of the per-tag pipeline and the session
// controller. The zero value is not useful; start from DefaultConfig.
type Config struct {
	// StartDelay is waited between decoding and the first keystroke, giving
	// the user time to focus the target field.
	StartDelay time.Duration
	// Debounce refuses new detections for this long after a tag finishes.
	Debounce time.Duration
	// ReadCap is the most tag memory read per presentation, in bytes.
	ReadCap int
	// BlockStart is the first Type 2 page read.
	BlockStart int
	// BatchSize is the number of runes typed between cooperative yields.
	BatchSize int
	// AutoEnter taps Enter after the text.
	AutoEnter bool
}

// Defaults.
const (
	DefaultReadCap    = 256
	DefaultBlockStart = 4
	DefaultBatchSize  = 16
	maxReadCap        = 4096
)

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() Config {
	return Config{
		AutoEnter:  true,
		ReadCap:    DefaultReadCap,
		BlockStart: DefaultBlockStart,
		BatchSize:  DefaultBatchSize,
	}
}

var errInvalidConfig = errors.New("invalid configuration")

// Validate checks every field is in range.
func (c Config) Validate() error {
	switch {
	case c.StartDelay < 0:
		return fmt.Errorf("%w: start delay %s is negative", errInvalidConfig, c.StartDelay)
	case c.Debounce < 0:
		return fmt.Errorf("%w: debounce %s is negative", errInvalidConfig, c.Debounce)
	case c.ReadCap < 3 || c.ReadCap > maxReadCap:
		return fmt.Errorf("%w: read cap %d outside 3..%d", errInvalidConfig, c.ReadCap, maxReadCap)
	case c.BlockStart < 0 || c.BlockStart > 0xFF:
		return fmt.Errorf("%w: block start %d outside 0..255", errInvalidConfig, c.BlockStart)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size %d must be positive", errInvalidConfig, c.BatchSize)
	}
	return nil
}
