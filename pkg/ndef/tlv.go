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
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// TLV type constants per NFC Forum Type 2 Tag specification
const (
	TLVTypeNull          = 0x00 // NULL TLV - padding byte, no length field
	TLVTypeLockControl   = 0x01 // Lock Control TLV
	TLVTypeMemoryControl = 0x02 // Memory Control TLV
	TLVTypeNDEF          = 0x03 // NDEF Message TLV
	TLVTypeTerminator    = 0xFE // Terminator TLV - no length field

	tlvLongLength = 0xFF
)

// ErrTLVTruncated is returned by ScanTLV when a block header or value runs
// past the end of the data.
var ErrTLVTruncated = errors.New("ndef: truncated TLV block")

// FindMessage locates the NDEF message bytes inside a raw tag memory dump.
//
// The leftmost 0x03 byte whose one-byte length fits inside buf wins. A
// length that would overrun buf is skipped and the scan continues at the next
// byte. The three-byte 0xFF hi lo form is only understood by ScanTLV.
// Without such a TLV, the first byte that looks like a message-begin record
// header (MB set, TNF 1 through 6) starts a span running to the end of buf;
// DecodeMessage tolerates the trailing bytes. ok is false when neither
// pattern is present.
func FindMessage(buf []byte) (span []byte, ok bool) {
	if len(buf) < 3 {
		return nil, false
	}

	for i := range len(buf) - 1 {
		if buf[i] != TLVTypeNDEF {
			continue
		}
		length := int(buf[i+1])
		if start := i + 2; start+length <= len(buf) {
			return buf[start : start+length], true
		}
	}

	return FindRecordHeader(buf)
}

// FindRecordHeader returns the suffix of buf starting at the first byte with
// MB set and a TNF between 1 and 6.
func FindRecordHeader(buf []byte) (span []byte, ok bool) {
	if len(buf) < 3 {
		return nil, false
	}
	for i, b := range buf {
		if b&FlagMB == 0 {
			continue
		}
		if tnf := b & tnfMask; tnf >= TNFWellKnown && tnf <= TNFUnchanged {
			return buf[i:], true
		}
	}
	return nil, false
}

// TLVBlock is one block of a Type 2 tag data area.
type TLVBlock struct {
	Value  []byte
	Offset int
	Type   byte
}

// ScanTLV walks the TLV blocks of a tag data area in order, stopping at the
// Terminator TLV or the end of data. NULL TLVs are skipped. Both the one-byte
// and the three-byte (0xFF hi lo) length forms are accepted.
func ScanTLV(data []byte) ([]TLVBlock, error) {
	var blocks []TLVBlock

	offset := 0
	for offset < len(data) {
		typ := data[offset]
		switch typ {
		case TLVTypeNull:
			offset++
			continue
		case TLVTypeTerminator:
			blocks = append(blocks, TLVBlock{Type: typ, Offset: offset})
			return blocks, nil
		}

		length, header, err := tlvLength(data, offset)
		if err != nil {
			return blocks, err
		}
		end := offset + header + length
		if end > len(data) {
			return blocks, fmt.Errorf("%w: block 0x%02X at %d needs %d bytes, have %d",
				ErrTLVTruncated, typ, offset, header+length, len(data)-offset)
		}

		blocks = append(blocks, TLVBlock{
			Type:   typ,
			Offset: offset,
			Value:  data[offset+header : end],
		})
		offset = end
	}

	return blocks, nil
}

// tlvLength returns the value length of the block at offset and the size of
// its type and length header.
func tlvLength(data []byte, offset int) (length, header int, err error) {
	if offset+1 >= len(data) {
		return 0, 0, fmt.Errorf("%w: missing length at %d", ErrTLVTruncated, offset)
	}
	if data[offset+1] != tlvLongLength {
		return int(data[offset+1]), 2, nil
	}
	if offset+3 >= len(data) {
		return 0, 0, fmt.Errorf("%w: incomplete long length at %d", ErrTLVTruncated, offset)
	}
	return int(binary.BigEndian.Uint16(data[offset+2 : offset+4])), 4, nil
}

// EncodeTLV wraps an NDEF message in an NDEF TLV followed by a Terminator
// TLV, the layout found on a formatted Type 2 tag.
func EncodeTLV(msg []byte) []byte {
	out := make([]byte, 0, len(msg)+5)
	out = append(out, TLVTypeNDEF)
	if len(msg) < tlvLongLength {
		out = append(out, byte(len(msg)))
	} else {
		//nolint:gosec // Type 2 tags never exceed 64 KiB
		out = append(out, tlvLongLength, byte(len(msg)>>8), byte(len(msg)))
	}
	out = append(out, msg...)
	return append(out, TLVTypeTerminator)
}

// DescribeTLV renders the block layout of a tag data area for debug logs.
func DescribeTLV(data []byte) string {
	blocks, err := ScanTLV(data)

	var sb strings.Builder
	for _, b := range blocks {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		switch b.Type {
		case TLVTypeNDEF:
			_, _ = fmt.Fprintf(&sb, "[%d]NDEF(%d)", b.Offset, len(b.Value))
		case TLVTypeLockControl:
			_, _ = fmt.Fprintf(&sb, "[%d]LOCK(%d)", b.Offset, len(b.Value))
		case TLVTypeMemoryControl:
			_, _ = fmt.Fprintf(&sb, "[%d]MEM(%d)", b.Offset, len(b.Value))
		case TLVTypeTerminator:
			_, _ = fmt.Fprintf(&sb, "[%d]END", b.Offset)
		default:
			_, _ = fmt.Fprintf(&sb, "[%d]0x%02X(%d)", b.Offset, b.Type, len(b.Value))
		}
	}
	if err != nil {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("ERR: " + err.Error())
	}
	return sb.String()
}
