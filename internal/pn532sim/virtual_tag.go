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

package pn532sim

import (
	"encoding/hex"

	"github.com/ZaparooProject/tapwedge/pkg/ndef"
)

const (
	pageSize     = 4
	readSize     = 16
	ntag213Pages = 45
	userPage     = 4
)

// TestNTAG213UID is the default seven byte UID of a virtual NTAG213.
var TestNTAG213UID = []byte{0x04, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0xF6}

// VirtualTag is a simulated NFC Forum Type 2 tag. Memory is addressed in
// four byte pages.
type VirtualTag struct {
	UID     []byte
	Memory  []byte
	Present bool
}

// NewVirtualNTAG213 creates an NTAG213 with a blank, formatted user area.
// A nil uid uses TestNTAG213UID.
func NewVirtualNTAG213(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestNTAG213UID
	}
	tag := &VirtualTag{
		UID:     uid,
		Memory:  make([]byte, ntag213Pages*pageSize),
		Present: true,
	}

	// Pages 0-2: UID bytes, then the lock bytes.
	copy(tag.Memory, uid)
	// Page 3: capability container, NDEF 1.0, 144 byte data area.
	copy(tag.Memory[3*pageSize:], []byte{0xE1, 0x10, 0x12, 0x00})
	// Empty NDEF TLV followed by a terminator.
	copy(tag.Memory[userPage*pageSize:], []byte{0x03, 0x00, 0xFE})
	return tag
}

// UIDString returns the UID as lowercase hex.
func (v *VirtualTag) UIDString() string {
	return hex.EncodeToString(v.UID)
}

// SetNDEFText stores a single English text record wrapped in an NDEF TLV.
func (v *VirtualTag) SetNDEFText(text string) error {
	msg := &ndef.Message{Records: []ndef.Record{ndef.NewTextRecord(text, "en")}}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	v.SetUserData(ndef.EncodeTLV(data))
	return nil
}

// SetUserData overwrites the user area from page 4 with data, zero filling
// the rest.
func (v *VirtualTag) SetUserData(data []byte) {
	user := v.Memory[userPage*pageSize:]
	clear(user)
	copy(user, data)
}

// ReadBlock answers a READ command: sixteen bytes from page, rolling over
// to page 0 past the end of memory as NTAG does.
func (v *VirtualTag) ReadBlock(page int) ([]byte, error) {
	pages := len(v.Memory) / pageSize
	if page < 0 || page >= pages {
		return nil, errInvalidPage
	}
	out := make([]byte, readSize)
	for i := range readSize / pageSize {
		p := (page + i) % pages
		copy(out[i*pageSize:], v.Memory[p*pageSize:(p+1)*pageSize])
	}
	return out, nil
}

// Remove takes the tag out of the field.
func (v *VirtualTag) Remove() {
	v.Present = false
}

// Insert puts the tag back into the field.
func (v *VirtualTag) Insert() {
	v.Present = true
}
