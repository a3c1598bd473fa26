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
	"errors"
	"fmt"
)

// Pseudo-APDUs understood by PC/SC contactless readers.
var (
	// apduGetUID returns the UID of the card in the field.
	apduGetUID = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}
)

// Status words.
const (
	sw1OK = 0x90
	sw2OK = 0x00
)

var (
	// ErrShortResponse is returned for responses without a status word.
	ErrShortResponse = errors.New("short APDU response")
	// ErrStatus is wrapped by non-9000 status word failures.
	ErrStatus = errors.New("APDU failed")
)

// readBinary reads length bytes starting at page.
func readBinary(page, length byte) []byte {
	return []byte{0xFF, 0xB0, 0x00, page, length}
}

// directRead sends the Type 2 READ command (0x30) through the ACR122U
// direct-transmit escape to the PN532 InCommunicateThru command.
func directRead(page byte) []byte {
	return []byte{0xFF, 0x00, 0x00, 0x00, 0x04, 0xD4, 0x42, 0x30, page}
}

// checkStatus strips and verifies the trailing status word.
func checkStatus(resp []byte) ([]byte, error) {
	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(resp))
	}
	sw1, sw2 := resp[len(resp)-2], resp[len(resp)-1]
	if sw1 != sw1OK || sw2 != sw2OK {
		return nil, fmt.Errorf("%w: SW=%02X%02X", ErrStatus, sw1, sw2)
	}
	return resp[:len(resp)-2], nil
}

// stripDirect removes the PN532 response header (D5 43 status) from a
// direct-transmit response body.
func stripDirect(body []byte) ([]byte, error) {
	if len(body) < 3 || body[0] != 0xD5 || body[1] != 0x43 {
		return nil, fmt.Errorf("%w: unexpected direct transmit response % X", ErrStatus, body)
	}
	if body[2] != 0x00 {
		return nil, fmt.Errorf("%w: PN532 status 0x%02X", ErrStatus, body[2])
	}
	return body[3:], nil
}
