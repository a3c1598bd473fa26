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
	"errors"
	"strings"
	"testing"

	gondef "github.com/hsanjuan/go-ndef"
)

//nolint:gocognit,revive // table-driven test
func TestParseText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr   error
		name      string
		wantText  string
		wantLang  string
		payload   []byte
		wantUTF16 bool
	}{
		{
			name:     "utf8 english",
			payload:  []byte{0x02, 'e', 'n', 'h', 'i'},
			wantText: "hi",
			wantLang: "en",
		},
		{
			name:     "locale language",
			payload:  append([]byte{0x05, 'f', 'r', '-', 'F', 'R'}, []byte("Bonjour")...),
			wantText: "Bonjour",
			wantLang: "fr-FR",
		},
		{
			name:     "multibyte utf8",
			payload:  append([]byte{0x02, 'z', 'h'}, []byte("你好")...),
			wantText: "你好",
			wantLang: "zh",
		},
		{
			name:     "empty text",
			payload:  []byte{0x02, 'e', 'n'},
			wantText: "",
			wantLang: "en",
		},
		{
			name:     "no language",
			payload:  []byte{0x00, 'a', '/', 'b'},
			wantText: "a/b",
			wantLang: "",
		},
		{
			name:     "reserved bit 6 ignored",
			payload:  []byte{0x42, 'e', 'n', 'o', 'k'},
			wantText: "ok",
			wantLang: "en",
		},
		{
			name:      "utf16 big endian",
			payload:   []byte{0x82, 'e', 'n', 0x00, 'h', 0x00, 'i'},
			wantText:  "hi",
			wantLang:  "en",
			wantUTF16: true,
		},
		{
			name:      "utf16 little endian with BOM",
			payload:   []byte{0x82, 'e', 'n', 0xFF, 0xFE, 'o', 0x00, 'k', 0x00},
			wantText:  "ok",
			wantLang:  "en",
			wantUTF16: true,
		},
		{
			name:    "language longer than payload",
			payload: []byte{0x0A, 'e', 'n', 'h', 'i'},
			wantErr: ErrMalformedTextRecord,
		},
		{
			name:    "empty payload",
			payload: nil,
			wantErr: ErrMalformedTextRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseText(tt.payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseText() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseText() unexpected error: %v", err)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.Language != tt.wantLang {
				t.Errorf("Language = %q, want %q", got.Language, tt.wantLang)
			}
			if got.UTF16 != tt.wantUTF16 {
				t.Errorf("UTF16 = %v, want %v", got.UTF16, tt.wantUTF16)
			}
		})
	}
}

//nolint:gocognit,revive // table-driven test
func TestExtractText(t *testing.T) {
	t.Parallel()

	uri := Record{TNF: TNFWellKnown, Type: []byte("U"), Payload: []byte{0x04, 'x'}}
	mimeT := Record{TNF: TNFMedia, Type: []byte("T"), Payload: []byte{0x00, 'm'}}
	first := NewTextRecord("first", "en")
	second := NewTextRecord("second", "en")
	broken := Record{TNF: TNFWellKnown, Type: []byte("T"), Payload: []byte{0x09, 'e'}}

	tests := []struct {
		wantErr  error
		name     string
		wantText string
		records  []Record
		wantOK   bool
	}{
		{name: "first text record wins", records: []Record{first, second}, wantText: "first", wantOK: true},
		{name: "skips other types", records: []Record{uri, mimeT, second}, wantText: "second", wantOK: true},
		{name: "no text record", records: []Record{uri, mimeT}, wantOK: false},
		{name: "no records", records: nil, wantOK: false},
		{name: "malformed first text record", records: []Record{broken, second}, wantOK: true,
			wantErr: ErrMalformedTextRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok, err := ExtractText(tt.records)
			if ok != tt.wantOK {
				t.Fatalf("ExtractText() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ExtractText() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractText() unexpected error: %v", err)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
		})
	}
}

//nolint:gocognit,revive // table-driven test
func TestTextRoundTrip(t *testing.T) {
	t.Parallel()

	texts := []string{"hi", "user/pass", "", strings.Repeat("x", 200), "café"}
	for _, text := range texts {
		msg := &Message{Records: []Record{NewTextRecord(text, "en")}}
		data, err := msg.Marshal()
		if err != nil {
			t.Fatalf("Marshal(%q) error: %v", text, err)
		}

		span, ok := FindMessage(EncodeTLV(data))
		if !ok {
			t.Fatalf("FindMessage() found nothing for %q", text)
		}
		decoded, err := DecodeMessage(span)
		if err != nil {
			t.Fatalf("DecodeMessage(%q) error: %v", text, err)
		}
		got, ok, err := ExtractText(decoded.Records)
		if err != nil || !ok {
			t.Fatalf("ExtractText(%q) = %v, %v", text, ok, err)
		}
		if got.Text != text || got.Language != "en" {
			t.Errorf("round trip = %+v, want text %q lang en", got, text)
		}
	}
}

// Messages produced by an independent encoder decode to the same text.
func TestDecodeThirdPartyTextMessage(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"hello", "a/b/c", "über"} {
		data, err := gondef.NewTextMessage(text, "en").Marshal()
		if err != nil {
			t.Fatalf("go-ndef Marshal(%q) error: %v", text, err)
		}

		decoded, err := DecodeMessage(data)
		if err != nil {
			t.Fatalf("DecodeMessage(%q) error: %v", text, err)
		}
		got, ok, err := ExtractText(decoded.Records)
		if err != nil || !ok {
			t.Fatalf("ExtractText(%q) = %v, %v", text, ok, err)
		}
		if got.Text != text {
			t.Errorf("Text = %q, want %q", got.Text, text)
		}
	}
}
