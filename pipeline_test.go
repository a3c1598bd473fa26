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
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/tapwedge/pkg/ndef"
	"github.com/ZaparooProject/tapwedge/reader"
	"github.com/ZaparooProject/tapwedge/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hiTag is a tag whose TLV length byte covers only the record header; the
// full record follows.
var hiTag = []byte{0x03, 0x03, 0xD1, 0x01, 0x05, 'T', 0x02, 'e', 'n', 'h', 'i', 0xFE}

type fakeTag struct {
	err        error
	uid        string
	data       []byte
	blockStart int
	maxBytes   int
}

func (f *fakeTag) UID() string { return f.uid }

func (f *fakeTag) Read(_ context.Context, blockStart, maxBytes int) ([]byte, error) {
	f.blockStart, f.maxBytes = blockStart, maxBytes
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type keyLog struct {
	failAfter int
	keys      []string
}

func (k *keyLog) Tap(_ context.Context, key replay.Key) error {
	return k.add(key.String())
}

func (k *keyLog) TypeRune(_ context.Context, r rune) error {
	return k.add(string(r))
}

func (k *keyLog) add(s string) error {
	if k.failAfter > 0 && len(k.keys) >= k.failAfter {
		return errors.New("keyboard gone")
	}
	k.keys = append(k.keys, s)
	return nil
}

func TestDecodeText(t *testing.T) {
	t.Parallel()

	valid := ndef.EncodeTLV([]byte{0xD1, 0x01, 0x05, 'T', 0x02, 'e', 'n', 'o', 'k'})

	longText := strings.Repeat("x", 300)
	longMsg, err := (&ndef.Message{Records: []ndef.Record{ndef.NewTextRecord(longText, "en")}}).Marshal()
	require.NoError(t, err)

	tests := []struct {
		wantErr error
		name    string
		want    string
		raw     []byte
	}{
		{name: "well formed tlv", raw: valid, want: "ok"},
		{name: "tlv length disagrees with record", raw: hiTag, want: "hi"},
		{name: "three byte tlv length read through record header", raw: ndef.EncodeTLV(longMsg), want: longText},
		{name: "no ndef", raw: []byte{0x00, 0x00, 0x00, 0x00}, wantErr: ErrNoNDEFFound},
		{name: "too short", raw: []byte{0x03}, wantErr: ErrNoNDEFFound},
		{
			name:    "language length exceeds payload",
			raw:     ndef.EncodeTLV([]byte{0xD1, 0x01, 0x05, 'T', 0x0A, 'e', 'n', 'h', 'i'}),
			wantErr: ErrMalformedTextRecord,
		},
		{
			name:    "uri record only",
			raw:     ndef.EncodeTLV([]byte{0xD1, 0x01, 0x02, 'U', 0x04, 'x'}),
			wantErr: ErrNoTextRecord,
		},
		{
			name:    "chunked record",
			raw:     ndef.EncodeTLV([]byte{0xB1, 0x01, 0x01, 'T', 0x00}),
			wantErr: ErrUnsupportedRecord,
		},
		{
			name:    "record overruns tag",
			raw:     []byte{0x03, 0x04, 0xD1, 0x01, 0x40, 'T'},
			wantErr: ErrMalformedNDEF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeText(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Text)
		})
	}
}

func TestPipelineTypesText(t *testing.T) {
	t.Parallel()

	tag := &fakeTag{uid: "04a1b2c3", data: hiTag}
	kb := &keyLog{}
	p := &Pipeline{Keyboard: kb, Config: DefaultConfig()}

	require.NoError(t, p.Process(context.Background(), tag))
	assert.Equal(t, []string{"h", "i", "Enter"}, kb.keys)
	assert.Equal(t, 4, tag.blockStart)
	assert.Equal(t, 256, tag.maxBytes)
}

func TestPipelineFieldsAndNoEnter(t *testing.T) {
	t.Parallel()

	msg, err := (&ndef.Message{Records: []ndef.Record{ndef.NewTextRecord("me/pw", "en")}}).Marshal()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.AutoEnter = false
	kb := &keyLog{}
	p := &Pipeline{Keyboard: kb, Config: cfg}

	require.NoError(t, p.Process(context.Background(), &fakeTag{uid: "01", data: ndef.EncodeTLV(msg)}))
	assert.Equal(t, []string{"m", "e", "Tab", "p", "w"}, kb.keys)
}

func TestPipelineMalformedTextTypesNothing(t *testing.T) {
	t.Parallel()

	raw := ndef.EncodeTLV([]byte{0xD1, 0x01, 0x05, 'T', 0x0A, 'e', 'n', 'h', 'i'})
	kb := &keyLog{}
	p := &Pipeline{Keyboard: kb, Config: DefaultConfig()}

	err := p.Process(context.Background(), &fakeTag{uid: "01", data: raw})
	require.ErrorIs(t, err, ErrMalformedTextRecord)
	assert.Equal(t, "MalformedTextRecord", Classify(err))

	var te *TagError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpDecode, te.Op)
	assert.Equal(t, "01", te.UID)
	assert.Empty(t, kb.keys)
}

func TestPipelineReadError(t *testing.T) {
	t.Parallel()

	kb := &keyLog{}
	p := &Pipeline{Keyboard: kb, Config: DefaultConfig()}

	err := p.Process(context.Background(), &fakeTag{uid: "01", err: errors.New("rf timeout")})
	require.ErrorIs(t, err, ErrRead)
	assert.Equal(t, "ReadError", Classify(err))

	wrapped := &reader.ReadError{UID: "01", Page: 8, Err: errors.New("nack")}
	err = p.Process(context.Background(), &fakeTag{uid: "01", err: wrapped})
	require.ErrorIs(t, err, ErrRead)
	assert.Empty(t, kb.keys)
}

func TestPipelineReplayError(t *testing.T) {
	t.Parallel()

	kb := &keyLog{failAfter: 1}
	p := &Pipeline{Keyboard: kb, Config: DefaultConfig()}

	err := p.Process(context.Background(), &fakeTag{uid: "01", data: hiTag})
	require.ErrorIs(t, err, ErrReplay)
	assert.Equal(t, []string{"h"}, kb.keys)
}

func TestPipelineStartDelayCancelled(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.StartDelay = time.Hour
	kb := &keyLog{}
	p := &Pipeline{Keyboard: kb, Config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Process(ctx, &fakeTag{uid: "01", data: hiTag})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var te *TagError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpDelay, te.Op)
	assert.Empty(t, kb.keys)
}

func TestPipelineStartDelayWaits(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.StartDelay = 30 * time.Millisecond
	p := &Pipeline{Keyboard: &keyLog{}, Config: cfg}

	start := time.Now()
	require.NoError(t, p.Process(context.Background(), &fakeTag{uid: "01", data: hiTag}))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
