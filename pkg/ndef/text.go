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
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// Text record constants.
const (
	TextRecordType    = "T"
	textUTF16Flag     = 0x80
	textLangCodeMask  = 0x3F
	maxLanguageLength = 63 // 6 bits max
)

// ErrMalformedTextRecord is returned when a text payload is too short for
// its declared language code.
var ErrMalformedTextRecord = errors.New("ndef: malformed text record")

// Text is the decoded content of a well-known Text record.
type Text struct {
	Text     string
	Language string
	UTF16    bool
}

// ExtractText decodes the first well-known "T" record in records. ok is
// false when there is no such record; later text records are never looked at.
func ExtractText(records []Record) (text Text, ok bool, err error) {
	for i := range records {
		if !records[i].IsWellKnown(TextRecordType) {
			continue
		}
		text, err = ParseText(records[i].Payload)
		if err != nil {
			return Text{}, true, err
		}
		return text, true, nil
	}
	return Text{}, false, nil
}

// ParseText decodes a Text record payload: a status byte whose low six bits
// give the language code length and whose top bit selects UTF-16, then the
// language code, then the text.
func ParseText(payload []byte) (Text, error) {
	if len(payload) == 0 {
		return Text{}, fmt.Errorf("%w: empty payload", ErrMalformedTextRecord)
	}

	status := payload[0]
	langLen := int(status & textLangCodeMask)
	utf16 := status&textUTF16Flag != 0

	if 1+langLen > len(payload) {
		return Text{}, fmt.Errorf("%w: language code length %d exceeds payload of %d bytes",
			ErrMalformedTextRecord, langLen, len(payload))
	}

	body := payload[1+langLen:]
	text := string(body)
	if utf16 {
		// Big-endian unless a BOM says otherwise.
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(body)
		if err != nil {
			return Text{}, fmt.Errorf("%w: %w", ErrMalformedTextRecord, err)
		}
		text = string(decoded)
	}

	return Text{
		Text:     text,
		Language: string(payload[1 : 1+langLen]),
		UTF16:    utf16,
	}, nil
}

// NewTextRecord builds a UTF-8 well-known Text record. An empty language
// defaults to "en"; longer than 63 bytes is truncated.
func NewTextRecord(text, language string) Record {
	if language == "" {
		language = "en"
	}
	if len(language) > maxLanguageLength {
		language = language[:maxLanguageLength]
	}

	payload := make([]byte, 1+len(language)+len(text))
	payload[0] = byte(len(language))
	copy(payload[1:], language)
	copy(payload[1+len(language):], text)

	return Record{
		TNF:     TNFWellKnown,
		Type:    []byte(TextRecordType),
		Payload: payload,
	}
}
