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

// Package replay turns decoded tag text into keystrokes.
package replay

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Key is a non-character key.
type Key int

const (
	KeyTab Key = iota + 1
	KeyEnter
)

func (k Key) String() string {
	switch k {
	case KeyTab:
		return "Tab"
	case KeyEnter:
		return "Enter"
	default:
		return fmt.Sprintf("Key(%d)", int(k))
	}
}

// DefaultBatchSize is the number of runes sent between cooperative yields.
const DefaultBatchSize = 16

// FieldSeparator is replaced by a Tab keystroke.
const FieldSeparator = '/'

// Keyboard is the input-injection capability replay drives.
type Keyboard interface {
	Tap(ctx context.Context, key Key) error
	TypeRune(ctx context.Context, r rune) error
}

// StringTyper is implemented by keyboards that type a run of characters in
// one call.
type StringTyper interface {
	TypeString(ctx context.Context, s string) error
}

// Flusher is implemented by keyboards that buffer output until the replay
// completes.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Options controls a replay.
type Options struct {
	// BatchSize is the number of runes processed before yielding. Zero or
	// negative means DefaultBatchSize.
	BatchSize int
	// AutoEnter taps Enter after the last character.
	AutoEnter bool
}

// Replay types text on kb. Every '/' becomes a Tab; every other rune is
// typed as is. There is no delay between keystrokes. Between batches the
// context is checked and the goroutine yields, so a long text does not
// starve the rest of the process.
func Replay(ctx context.Context, kb Keyboard, text string, opts Options) error {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	runes := []rune(text)
	for start := 0; start < len(runes); start += batch {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("replay interrupted at rune %d: %w", start, err)
		}
		end := min(start+batch, len(runes))
		if err := emitBatch(ctx, kb, runes[start:end]); err != nil {
			return err
		}
		runtime.Gosched()
	}

	if opts.AutoEnter {
		if err := kb.Tap(ctx, KeyEnter); err != nil {
			return fmt.Errorf("tap %s: %w", KeyEnter, err)
		}
	}

	if f, ok := kb.(Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return fmt.Errorf("flush keyboard: %w", err)
		}
	}
	return nil
}

// emitBatch sends one batch, grouping literal runs for StringTyper.
func emitBatch(ctx context.Context, kb Keyboard, runes []rune) error {
	typer, batched := kb.(StringTyper)

	var run strings.Builder
	flush := func() error {
		if run.Len() == 0 {
			return nil
		}
		s := run.String()
		run.Reset()
		if err := typer.TypeString(ctx, s); err != nil {
			return fmt.Errorf("type %q: %w", s, err)
		}
		return nil
	}

	for _, r := range runes {
		if r == FieldSeparator {
			if err := flush(); err != nil {
				return err
			}
			if err := kb.Tap(ctx, KeyTab); err != nil {
				return fmt.Errorf("tap %s: %w", KeyTab, err)
			}
			continue
		}
		if batched {
			run.WriteRune(r)
			continue
		}
		if err := kb.TypeRune(ctx, r); err != nil {
			return fmt.Errorf("type %q: %w", r, err)
		}
	}
	return flush()
}
