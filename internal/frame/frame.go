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

// Package frame encodes and decodes PN532 host-link frames:
//
//	00 00 FF LEN LCS TFI PD0..PDn DCS 00
//
// LEN counts TFI plus the packet data, LCS makes LEN+LCS zero modulo 256 and
// DCS does the same for TFI plus the data.
package frame

import (
	"bytes"
	"errors"
	"fmt"
)

// Frame identifiers.
const (
	HostToPn532 = 0xD4 // Commands from host to PN532
	Pn532ToHost = 0xD5 // Responses from PN532 to host
	ErrorTFI    = 0x7F // Application-level error frame
)

const (
	// MaxDataLength is the largest TFI plus data a normal frame can carry.
	MaxDataLength = 255
	// MinFrameLength covers start code, LEN, LCS and DCS.
	MinFrameLength = 5
)

var (
	AckFrame  = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	NackFrame = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}

	startCode = []byte{0x00, 0xFF}
)

// Frame errors.
var (
	ErrIncomplete     = errors.New("frame: incomplete")
	ErrCorrupted      = errors.New("frame: checksum mismatch")
	ErrUnexpectedTFI  = errors.New("frame: unexpected frame identifier")
	ErrDataTooLarge   = errors.New("frame: data too large")
	ErrExtendedFrames = errors.New("frame: extended frames not supported")
)

// Kind classifies a decoded frame.
type Kind int

const (
	KindData Kind = iota
	KindAck
	KindNack
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindAck:
		return "ack"
	case KindNack:
		return "nack"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is a decoded frame. For KindData, Data starts at the response code
// (command + 1). For KindError it holds the error code.
type Frame struct {
	Data []byte
	Kind Kind
}

// Checksum returns the 8-bit sum of data.
func Checksum(data []byte) byte {
	chk := byte(0)
	for _, b := range data {
		chk += b
	}
	return chk
}

// Build encodes a host command frame.
func Build(cmd byte, args []byte) ([]byte, error) {
	dataLen := 2 + len(args) // TFI + cmd + args
	if dataLen > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, dataLen)
	}

	out := make([]byte, 0, dataLen+7)
	out = append(out, 0x00, 0x00, 0xFF, byte(dataLen), ^byte(dataLen)+1)
	out = append(out, HostToPn532, cmd)
	out = append(out, args...)
	dcs := ^(Checksum(args) + HostToPn532 + cmd) + 1
	return append(out, dcs, 0x00), nil
}

// Parse finds the first frame in buf. consumed is the number of bytes of buf
// the caller can drop, including any noise before the frame.
//
// ErrIncomplete means more bytes are needed; consumed is then the count of
// leading bytes that can never start a frame. ErrCorrupted reports a bad
// checksum; consumed skips past the start code so the caller can resync.
func Parse(buf []byte) (f Frame, consumed int, err error) {
	start := bytes.Index(buf, startCode)
	if start < 0 {
		// Keep a trailing 0x00 that may be half of a start code.
		if n := len(buf); n > 0 && buf[n-1] == 0x00 {
			return Frame{}, n - 1, ErrIncomplete
		}
		return Frame{}, len(buf), ErrIncomplete
	}

	off := start + len(startCode)
	if off+2 > len(buf) {
		return Frame{}, start, ErrIncomplete
	}
	length, lcs := buf[off], buf[off+1]

	switch {
	case length == 0x00 && lcs == 0xFF:
		return Frame{Kind: KindAck}, trailing(buf, off+2), nil
	case length == 0xFF && lcs == 0x00:
		return Frame{Kind: KindNack}, trailing(buf, off+2), nil
	case length == 0xFF && lcs == 0xFF:
		return Frame{}, off, ErrExtendedFrames
	case length+lcs != 0:
		return Frame{}, off, fmt.Errorf("%w: length checksum", ErrCorrupted)
	case length == 0:
		return Frame{}, off, fmt.Errorf("%w: empty data", ErrCorrupted)
	}

	dataStart := off + 2
	dataEnd := dataStart + int(length)
	if dataEnd+1 > len(buf) {
		return Frame{}, start, ErrIncomplete
	}

	data := buf[dataStart:dataEnd]
	if Checksum(data)+buf[dataEnd] != 0 {
		return Frame{}, off, fmt.Errorf("%w: data checksum", ErrCorrupted)
	}
	consumed = trailing(buf, dataEnd+1)

	switch data[0] {
	case Pn532ToHost:
		return Frame{Kind: KindData, Data: clone(data[1:])}, consumed, nil
	case ErrorTFI:
		return Frame{Kind: KindError, Data: clone(data[1:])}, consumed, nil
	default:
		return Frame{}, consumed, fmt.Errorf("%w: 0x%02X", ErrUnexpectedTFI, data[0])
	}
}

// trailing extends end over the optional postamble byte.
func trailing(buf []byte, end int) int {
	if end < len(buf) && buf[end] == 0x00 {
		return end + 1
	}
	return end
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
