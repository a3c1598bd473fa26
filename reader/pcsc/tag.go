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

package pcsc

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ZaparooProject/tapwedge/internal/syncutil"
	"github.com/ZaparooProject/tapwedge/reader"
	"github.com/ebfe/scard"
)

// Card is the part of *scard.Card a tag needs.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// readMethod is one way of reading 16 bytes from a Type 2 tag.
type readMethod int

const (
	methodReadBinary16 readMethod = iota
	methodReadBinary4
	methodDirect
	methodCount
)

func (m readMethod) String() string {
	switch m {
	case methodReadBinary16:
		return "read binary 16"
	case methodReadBinary4:
		return "read binary 4"
	case methodDirect:
		return "direct transmit"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// Tag is a card connected through a PC/SC reader.
type Tag struct {
	card   Card
	uid    string
	mu     syncutil.Mutex
	method readMethod
}

func newTag(card Card) (*Tag, error) {
	resp, err := card.Transmit(apduGetUID)
	if err != nil {
		return nil, fmt.Errorf("GET UID failed: %w", err)
	}
	uid, err := checkStatus(resp)
	if err != nil {
		return nil, fmt.Errorf("GET UID failed: %w", err)
	}
	return &Tag{card: card, uid: hex.EncodeToString(uid)}, nil
}

// UID returns the card UID as lowercase hex.
func (t *Tag) UID() string {
	return t.uid
}

// Read reads tag memory from page blockStart.
func (t *Tag) Read(ctx context.Context, blockStart, maxBytes int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return reader.ReadPages(ctx, t.uid, blockStart, maxBytes, t.readChunk)
}

// readChunk reads 16 bytes at page. Readers differ in which commands they
// accept, so the methods are tried in order and the first one that works is
// remembered for the rest of the session.
func (t *Tag) readChunk(_ context.Context, page int) ([]byte, error) {
	var firstErr error
	for m := t.method; m < methodCount; m++ {
		data, err := t.readWith(m, byte(page)) //nolint:gosec // pages are < 256 on Type 2 tags
		if err == nil {
			t.method = m
			return data, nil
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", m, err)
		}
	}
	return nil, firstErr
}

func (t *Tag) readWith(m readMethod, page byte) ([]byte, error) {
	switch m {
	case methodReadBinary16:
		return t.transmitData(readBinary(page, reader.ReadChunk), reader.ReadChunk)
	case methodReadBinary4:
		out := make([]byte, 0, reader.ReadChunk)
		for p := range byte(reader.ReadChunk / reader.PageSize) {
			data, err := t.transmitData(readBinary(page+p, reader.PageSize), reader.PageSize)
			if err != nil {
				return nil, err
			}
			out = append(out, data...)
		}
		return out, nil
	case methodDirect:
		resp, err := t.card.Transmit(directRead(page))
		if err != nil {
			return nil, err
		}
		body, err := checkStatus(resp)
		if err != nil {
			return nil, err
		}
		data, err := stripDirect(body)
		if err != nil {
			return nil, err
		}
		if len(data) < reader.ReadChunk {
			return nil, fmt.Errorf("%w: direct read returned %d bytes", ErrShortResponse, len(data))
		}
		return data[:reader.ReadChunk], nil
	default:
		return nil, fmt.Errorf("unknown read method %d", m)
	}
}

func (t *Tag) transmitData(cmd []byte, want int) ([]byte, error) {
	resp, err := t.card.Transmit(cmd)
	if err != nil {
		return nil, err
	}
	data, err := checkStatus(resp)
	if err != nil {
		return nil, err
	}
	if len(data) < want {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrShortResponse, len(data), want)
	}
	return data[:want], nil
}
