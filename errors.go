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
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/tapwedge/pkg/ndef"
	"github.com/ZaparooProject/tapwedge/reader"
)

// Error taxonomy. Each stage of the pipeline wraps one of these, so callers
// can test with errors.Is regardless of where the failure started.
var (
	// Decode errors - the tag was read but holds nothing to type
	ErrNoNDEFFound         = errors.New("no NDEF data found")
	ErrMalformedNDEF       = ndef.ErrMalformed
	ErrUnsupportedRecord   = ndef.ErrUnsupportedRecord
	ErrNoTextRecord        = errors.New("no NDEF text record")
	ErrMalformedTextRecord = ndef.ErrMalformedTextRecord

	// Hardware errors
	ErrRead   = reader.ErrRead
	ErrReader = reader.ErrReader

	// Output errors
	ErrReplay = errors.New("keystroke replay failed")
)

// Stage names used in TagError.Op.
const (
	OpRead   = "read"
	OpDecode = "decode"
	OpDelay  = "delay"
	OpReplay = "replay"
)

// TagError wraps a pipeline failure with the stage and card it happened on.
type TagError struct {
	Err error  // Underlying error
	Op  string // Pipeline stage that failed
	UID string // Card identifier
}

func (e *TagError) Error() string {
	if e.UID != "" {
		return fmt.Sprintf("%s tag %s: %v", e.Op, e.UID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TagError) Unwrap() error {
	return e.Err
}

// Classify returns the taxonomy name of err for log fields, or "" for nil.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	case errors.Is(err, ErrNoNDEFFound):
		return "NoNdefFound"
	case errors.Is(err, ErrUnsupportedRecord):
		return "UnsupportedRecord"
	case errors.Is(err, ErrMalformedTextRecord):
		return "MalformedTextRecord"
	case errors.Is(err, ErrMalformedNDEF):
		return "MalformedNdef"
	case errors.Is(err, ErrNoTextRecord):
		return "NoTextRecord"
	case errors.Is(err, ErrRead):
		return "ReadError"
	case errors.Is(err, ErrReader):
		return "ReaderError"
	case errors.Is(err, ErrReplay):
		return "ReplayError"
	default:
		return "Unknown"
	}
}

// IsTagContent reports whether err comes from what is stored on the tag
// rather than from the hardware or the keyboard. Such errors repeat on every
// read of the same tag.
func IsTagContent(err error) bool {
	switch {
	case errors.Is(err, ErrNoNDEFFound),
		errors.Is(err, ErrMalformedNDEF),
		errors.Is(err, ErrUnsupportedRecord),
		errors.Is(err, ErrNoTextRecord),
		errors.Is(err, ErrMalformedTextRecord):
		return true
	default:
		return false
	}
}
