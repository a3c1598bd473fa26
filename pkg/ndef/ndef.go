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

// Package ndef locates, decodes and interprets NDEF messages read from
// NFC Forum Type 2 tags.
package ndef

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TNF (Type Name Format) values as defined by NFC Forum.
const (
	TNFEmpty       byte = 0x00 // Empty record
	TNFWellKnown   byte = 0x01 // NFC Forum well-known type
	TNFMedia       byte = 0x02 // Media-type (RFC 2046)
	TNFAbsoluteURI byte = 0x03 // Absolute URI (RFC 3986)
	TNFExternal    byte = 0x04 // NFC Forum external type
	TNFUnknown     byte = 0x05 // Unknown
	TNFUnchanged   byte = 0x06 // Unchanged (for chunked records)
	TNFReserved    byte = 0x07 // Reserved
)

// Record header flag bits.
const (
	FlagMB byte = 0x80 // Message Begin
	FlagME byte = 0x40 // Message End
	FlagCF byte = 0x20 // Chunk Flag
	FlagSR byte = 0x10 // Short Record
	FlagIL byte = 0x08 // ID Length present

	tnfMask           byte = 0x07
	shortRecordMaxLen      = 255
)

// Decoding errors.
var (
	ErrMalformed         = errors.New("ndef: malformed message")
	ErrUnsupportedRecord = errors.New("ndef: unsupported record")
)

// Record is a single decoded NDEF record. Records are not modified after
// decoding.
type Record struct {
	Type    []byte
	ID      []byte
	Payload []byte
	TNF     byte
}

// IsWellKnown reports whether the record is an NFC Forum well-known type
// with the given type name.
func (r *Record) IsWellKnown(name string) bool {
	return r.TNF == TNFWellKnown && string(r.Type) == name
}

// Message is an ordered sequence of records as laid out on the tag.
type Message struct {
	Records []Record
	// Terminated is false when the input ended before any record carried
	// the Message End flag. The records decoded up to that point are kept.
	Terminated bool
}

// DecodeMessage parses an NDEF message. Decoding stops after the record
// carrying ME, so trailing TLV terminators and padding are ignored.
//
// A header whose lengths overrun the input fails with ErrMalformed, as does
// an input that yields no records. Chunked records fail with
// ErrUnsupportedRecord. If the input runs out before ME is seen, either on
// a record boundary or at a padding or terminator byte, the records parsed
// so far are returned with Terminated unset.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}

	msg := &Message{}
	offset := 0

	for offset < len(data) {
		// Zero padding or a TLV terminator after an unterminated record.
		if len(msg.Records) > 0 && (data[offset] == TLVTypeNull || data[offset] == TLVTypeTerminator) {
			break
		}

		// A second MB starts a new message.
		if len(msg.Records) > 0 && data[offset]&FlagMB != 0 {
			msg.Terminated = true
			break
		}

		rec, hdr, n, err := decodeRecord(data[offset:])
		if err != nil {
			return nil, fmt.Errorf("record at offset %d: %w", offset, err)
		}

		msg.Records = append(msg.Records, rec)
		offset += n

		if hdr&FlagME != 0 {
			msg.Terminated = true
			break
		}
	}

	if len(msg.Records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrMalformed)
	}
	return msg, nil
}

// decodeRecord parses one record and returns it with its header byte and
// the number of bytes consumed.
func decodeRecord(data []byte) (rec Record, header byte, n int, err error) {
	if len(data) < 3 {
		return Record{}, 0, 0, fmt.Errorf("%w: truncated header", ErrMalformed)
	}

	header = data[0]
	rec.TNF = header & tnfMask

	if header&FlagCF != 0 {
		return Record{}, header, 0, fmt.Errorf("%w: chunked record", ErrUnsupportedRecord)
	}
	if rec.TNF == TNFReserved {
		return Record{}, header, 0, fmt.Errorf("%w: reserved TNF", ErrMalformed)
	}

	typeLen := int(data[1])
	offset := 2

	var payloadLen int
	if header&FlagSR != 0 {
		payloadLen = int(data[offset])
		offset++
	} else {
		if offset+4 > len(data) {
			return Record{}, header, 0, fmt.Errorf("%w: truncated payload length", ErrMalformed)
		}
		length := binary.BigEndian.Uint32(data[offset : offset+4])
		if uint64(length) > uint64(len(data)) {
			return Record{}, header, 0, fmt.Errorf("%w: payload length %d overruns %d bytes",
				ErrMalformed, length, len(data))
		}
		payloadLen = int(length)
		offset += 4
	}

	var idLen int
	if header&FlagIL != 0 {
		if offset >= len(data) {
			return Record{}, header, 0, fmt.Errorf("%w: truncated id length", ErrMalformed)
		}
		idLen = int(data[offset])
		offset++
	}

	total := offset + typeLen + idLen + payloadLen
	if total > len(data) {
		return Record{}, header, 0, fmt.Errorf("%w: record needs %d bytes, have %d",
			ErrMalformed, total, len(data))
	}

	rec.Type = clone(data[offset : offset+typeLen])
	offset += typeLen
	if idLen > 0 {
		rec.ID = clone(data[offset : offset+idLen])
		offset += idLen
	}
	rec.Payload = clone(data[offset : offset+payloadLen])
	offset += payloadLen

	return rec, header, offset, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Marshal encodes the message, setting MB on the first record and ME on
// the last.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.Records) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}

	var out []byte
	for i := range m.Records {
		var flags byte
		if i == 0 {
			flags |= FlagMB
		}
		if i == len(m.Records)-1 {
			flags |= FlagME
		}
		data, err := m.Records[i].marshal(flags)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, data...)
	}
	return out, nil
}

func (r *Record) marshal(flags byte) ([]byte, error) {
	if r.TNF >= TNFReserved {
		return nil, fmt.Errorf("%w: reserved TNF", ErrMalformed)
	}
	if len(r.Type) > 255 || len(r.ID) > 255 {
		return nil, fmt.Errorf("%w: type or id longer than 255 bytes", ErrMalformed)
	}

	flags |= r.TNF
	payloadLen := len(r.Payload)
	if payloadLen <= shortRecordMaxLen {
		flags |= FlagSR
	}
	if len(r.ID) > 0 {
		flags |= FlagIL
	}

	out := make([]byte, 0, 6+len(r.Type)+len(r.ID)+payloadLen+1)
	out = append(out, flags, byte(len(r.Type)))
	if payloadLen <= shortRecordMaxLen {
		out = append(out, byte(payloadLen))
	} else {
		//nolint:gosec // payloadLen comes from len() and is > 255
		out = binary.BigEndian.AppendUint32(out, uint32(payloadLen))
	}
	if len(r.ID) > 0 {
		out = append(out, byte(len(r.ID)))
	}
	out = append(out, r.Type...)
	out = append(out, r.ID...)
	out = append(out, r.Payload...)
	return out, nil
}
