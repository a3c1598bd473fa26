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

// Package reader defines the contract between NFC reader drivers and the
// card session controller. Drivers deliver reader and card lifecycle events
// over a channel; a card-detected event carries a Tag the pipeline reads
// raw memory from.
package reader

import (
	"context"
	"errors"
	"fmt"
)

// ErrRead is wrapped by every Tag.Read failure.
var ErrRead = errors.New("tag read failed")

// ErrReader is wrapped by driver-level failures reported in ReaderError
// events.
var ErrReader = errors.New("reader failure")

// ErrNoData is the cause of a ReadError when the tag answered a READ with
// no bytes before any memory was collected.
var ErrNoData = errors.New("tag returned no data")

// EventType identifies a driver event.
type EventType int

const (
	ReaderConnected EventType = iota + 1
	CardDetected
	CardRemoved
	ReaderError
)

func (t EventType) String() string {
	switch t {
	case ReaderConnected:
		return "reader-connected"
	case CardDetected:
		return "card-detected"
	case CardRemoved:
		return "card-removed"
	case ReaderError:
		return "reader-error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Tag is a card currently in the field of a reader.
type Tag interface {
	// UID returns the card identifier as lowercase hex.
	UID() string
	// Read returns up to maxBytes of tag memory starting at the Type 2 page
	// blockStart. It may return fewer bytes when the tag memory ends.
	Read(ctx context.Context, blockStart, maxBytes int) ([]byte, error)
}

// Event is a single driver notification. Tag is set for CardDetected, Err
// for ReaderError.
type Event struct {
	Tag    Tag
	Err    error
	Reader string
	UID    string
	Type   EventType
}

// Driver is an NFC reader backend.
type Driver interface {
	// Events returns the channel events are delivered on. It is closed when
	// Run returns.
	Events() <-chan Event
	// Run polls the hardware until ctx is cancelled.
	Run(ctx context.Context) error
	// Close releases the hardware.
	Close() error
}

// ReadError wraps a failure reading tag memory.
type ReadError struct {
	Err  error
	UID  string
	Page int
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: uid %s page %d: %v", ErrRead, e.UID, e.Page, e.Err)
}

// Unwrap exposes both ErrRead and the underlying cause.
func (e *ReadError) Unwrap() []error {
	return []error{ErrRead, e.Err}
}

// Emit sends ev on events unless ctx is done first.
func Emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
