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

package keyboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/tapwedge/replay"
	"github.com/atotto/clipboard"
)

// Clipboard collects the replayed text and places it on the system
// clipboard when the replay completes. Tab is written as '\t' and Enter as
// '\n'. Nothing is typed; the user pastes.
type Clipboard struct {
	write func(string) error
	buf   strings.Builder
}

// NewClipboard checks that a clipboard is reachable on this system.
func NewClipboard() (*Clipboard, error) {
	if clipboard.Unsupported {
		return nil, fmt.Errorf("%w: no clipboard utility found", ErrUnsupportedPlatform)
	}
	return &Clipboard{write: clipboard.WriteAll}, nil
}

func (c *Clipboard) Tap(_ context.Context, key replay.Key) error {
	switch key {
	case replay.KeyTab:
		c.buf.WriteByte('\t')
	case replay.KeyEnter:
		c.buf.WriteByte('\n')
	default:
		return fmt.Errorf("clipboard: no mapping for %s", key)
	}
	return nil
}

func (c *Clipboard) TypeRune(_ context.Context, r rune) error {
	c.buf.WriteRune(r)
	return nil
}

func (c *Clipboard) TypeString(_ context.Context, s string) error {
	c.buf.WriteString(s)
	return nil
}

// Flush copies the collected text to the clipboard and starts a new buffer.
func (c *Clipboard) Flush(context.Context) error {
	text := c.buf.String()
	c.buf.Reset()
	if err := c.write(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

func (*Clipboard) Close() error {
	return nil
}

var (
	_ replay.StringTyper = (*Clipboard)(nil)
	_ replay.Flusher     = (*Clipboard)(nil)
)
