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

package ndef

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

//nolint:gocognit,revive // table-driven test
func TestFindMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		buf    []byte
		want   []byte
		wantOK bool
	}{
		{
			name:   "tlv at start",
			buf:    []byte{0x03, 0x02, 0xAA, 0xBB, 0xFE},
			want:   []byte{0xAA, 0xBB},
			wantOK: true,
		},
		{
			name:   "lock control value skipped before tlv",
			buf:    []byte{0x01, 0x03, 0xA0, 0x0C, 0x34, 0x00, 0x03, 0x01, 0xCC, 0xFE},
			want:   []byte{0xCC},
			wantOK: true,
		},
		{
			name:   "leftmost valid match wins",
			buf:    []byte{0x00, 0x03, 0x01, 0x03, 0x01, 0x09},
			want:   []byte{0x03},
			wantOK: true,
		},
		{
			name:   "overrunning length skipped",
			buf:    []byte{0x03, 0x20, 0x03, 0x01, 0x77},
			want:   []byte{0x77},
			wantOK: true,
		},
		{
			name:   "0xFF is a one byte length",
			buf:    []byte{0x03, 0xFF, 0x00, 0x01, 0x03, 0x01, 0x41},
			want:   []byte{0x41},
			wantOK: true,
		},
		{
			name:   "zero length tlv",
			buf:    []byte{0x03, 0x00, 0xFE},
			want:   []byte{},
			wantOK: true,
		},
		{
			name:   "tlv exactly fills buffer",
			buf:    []byte{0x03, 0x01, 0x42},
			want:   []byte{0x42},
			wantOK: true,
		},
		{
			name:   "header fallback",
			buf:    []byte{0x00, 0x00, 0xD1, 0x01, 0x05, 'T'},
			want:   []byte{0xD1, 0x01, 0x05, 'T'},
			wantOK: true,
		},
		{
			name:   "fallback ignores MB with TNF 0",
			buf:    []byte{0x80, 0x00, 0x91, 0x00},
			want:   []byte{0x91, 0x00},
			wantOK: true,
		},
		{
			name:   "fallback ignores MB with TNF 7",
			buf:    []byte{0x87, 0x00, 0x00},
			wantOK: false,
		},
		{
			name:   "fallback after overrunning tlv",
			buf:    []byte{0x03, 0x40, 0xD1, 0x01, 0x00},
			want:   []byte{0xD1, 0x01, 0x00},
			wantOK: true,
		},
		{
			name:   "nothing found",
			buf:    []byte{0x00, 0x00, 0x00, 0x00, 0x11, 0x22},
			wantOK: false,
		},
		{
			name:   "too short",
			buf:    []byte{0x03, 0x00},
			wantOK: false,
		},
		{
			name:   "too short with header byte",
			buf:    []byte{0xD1, 0x01},
			wantOK: false,
		},
		{
			name:   "empty",
			buf:    nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := FindMessage(tt.buf)
			if ok != tt.wantOK {
				t.Fatalf("FindMessage() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				if got != nil {
					t.Errorf("FindMessage() span = %X, want nil", got)
				}
				return
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("FindMessage() = %X, want %X", got, tt.want)
			}
		})
	}
}

// Every valid TLV placed anywhere in a buffer of non-TLV filler is found.
func TestFindMessageProperty(t *testing.T) {
	t.Parallel()

	payload := []byte{0x10, 0x20, 0x30, 0x40}
	for prefix := range 16 {
		for suffix := range 4 {
			buf := bytes.Repeat([]byte{0x00}, prefix)
			buf = append(buf, 0x03, byte(len(payload)))
			buf = append(buf, payload...)
			buf = append(buf, bytes.Repeat([]byte{0x00}, suffix)...)

			got, ok := FindMessage(buf)
			if !ok || !bytes.Equal(got, payload) {
				t.Fatalf("prefix=%d suffix=%d: FindMessage() = %X, %v", prefix, suffix, got, ok)
			}
		}
	}
}

func TestScanTLV(t *testing.T) {
	t.Parallel()

	data := []byte{
		0x00,                               // NULL
		0x01, 0x03, 0xA0, 0x0C, 0x34, // Lock Control
		0x03, 0xFF, 0x00, 0x02, 0xAA, 0xBB, // NDEF, long form
		0xFE,             // Terminator
		0x03, 0x01, 0x99, // after terminator, ignored
	}

	blocks, err := ScanTLV(data)
	if err != nil {
		t.Fatalf("ScanTLV() error: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3: %+v", len(blocks), blocks)
	}
	if blocks[0].Type != TLVTypeLockControl || blocks[0].Offset != 1 || len(blocks[0].Value) != 3 {
		t.Errorf("lock block = %+v", blocks[0])
	}
	if blocks[1].Type != TLVTypeNDEF || blocks[1].Offset != 6 || !bytes.Equal(blocks[1].Value, []byte{0xAA, 0xBB}) {
		t.Errorf("ndef block = %+v", blocks[1])
	}
	if blocks[2].Type != TLVTypeTerminator || blocks[2].Offset != 12 {
		t.Errorf("terminator block = %+v", blocks[2])
	}
}

func TestScanTLVTruncated(t *testing.T) {
	t.Parallel()

	tests := [][]byte{
		{0x03},
		{0x03, 0x05, 0x01},
		{0x03, 0xFF, 0x00},
	}
	for _, data := range tests {
		if _, err := ScanTLV(data); !errors.Is(err, ErrTLVTruncated) {
			t.Errorf("ScanTLV(%X) error = %v, want ErrTLVTruncated", data, err)
		}
	}
}

func TestEncodeTLV(t *testing.T) {
	t.Parallel()

	short := EncodeTLV([]byte{0xAA})
	if !bytes.Equal(short, []byte{0x03, 0x01, 0xAA, 0xFE}) {
		t.Errorf("short EncodeTLV() = %X", short)
	}

	msg := bytes.Repeat([]byte{0x55}, 300)
	long := EncodeTLV(msg)
	if !bytes.Equal(long[:4], []byte{0x03, 0xFF, 0x01, 0x2C}) {
		t.Errorf("long EncodeTLV() header = %X", long[:4])
	}
	if long[len(long)-1] != TLVTypeTerminator {
		t.Errorf("long EncodeTLV() missing terminator")
	}

	blocks, err := ScanTLV(long)
	if err != nil {
		t.Fatalf("ScanTLV() error: %v", err)
	}
	if !bytes.Equal(blocks[0].Value, msg) {
		t.Error("ScanTLV() did not recover long message")
	}
}

func TestDescribeTLV(t *testing.T) {
	t.Parallel()

	got := DescribeTLV([]byte{0x01, 0x03, 0xA0, 0x0C, 0x34, 0x03, 0x02, 0xAA, 0xBB, 0xFE})
	want := "[0]LOCK(3) [5]NDEF(2) [9]END"
	if got != want {
		t.Errorf("DescribeTLV() = %q, want %q", got, want)
	}

	got = DescribeTLV([]byte{0x03, 0x09, 0x00})
	if !strings.Contains(got, "ERR:") {
		t.Errorf("DescribeTLV() = %q, want error marker", got)
	}
}
