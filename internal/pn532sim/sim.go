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

// Package pn532sim simulates a PN532 at the frame protocol level for
// transport and driver tests.
//
// VirtualPN532 implements io.ReadWriter: the host writes command frames and
// reads back an ACK followed by the response frame, as described in the
// PN532 user manual, section 6.2.
package pn532sim

import (
	"bytes"
	"errors"
	"io"

	"github.com/ZaparooProject/tapwedge/internal/frame"
	"github.com/ZaparooProject/tapwedge/internal/syncutil"
)

// PN532 command codes handled by the simulator.
const (
	CmdGetFirmwareVersion  = 0x02
	CmdSAMConfiguration    = 0x14
	CmdRFConfiguration     = 0x32
	CmdInDataExchange      = 0x40
	CmdInListPassiveTarget = 0x4A
	CmdInRelease           = 0x52
)

// Status codes from the user manual, section 7.1.
const (
	errTimeout         = 0x01
	errMifare          = 0x05
	errTarget          = 0x29
	errCardDisappeared = 0x2B
)

var errInvalidPage = errors.New("invalid page")

// errorFrame is the fixed syntax error frame.
var errorFrame = []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, frame.ErrorTFI, 0x81, 0x00}

// VirtualPN532 simulates a PN532 with at most one tag in its field.
type VirtualPN532 struct {
	tag                 *VirtualTag
	commands            map[byte]int
	lastResponse        []byte
	rxBuffer            bytes.Buffer
	txBuffer            bytes.Buffer
	mu                  syncutil.Mutex
	selected            byte
	firmware            [4]byte
	injectChecksumError bool
	dropNextACK         bool
	unplugged           bool
}

// NewVirtualPN532 returns a PN532 v1.6 with an empty field.
func NewVirtualPN532() *VirtualPN532 {
	return &VirtualPN532{
		commands: make(map[byte]int),
		firmware: [4]byte{0x32, 0x01, 0x06, 0x07},
	}
}

// Write receives bytes from the host and queues the answers to every
// complete command frame.
func (v *VirtualPN532) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.unplugged {
		return 0, io.ErrClosedPipe
	}
	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read returns queued answer bytes. It returns 0, nil when nothing is
// queued, like a serial read that timed out.
func (v *VirtualPN532) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.unplugged {
		return 0, io.EOF
	}
	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	return v.txBuffer.Read(buf)
}

// HasPendingResponse reports queued answer bytes, the I2C ready status.
func (v *VirtualPN532) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

func (v *VirtualPN532) discardPending() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.txBuffer.Reset()
}

// SetTag places tag in the field, replacing any other.
func (v *VirtualPN532) SetTag(tag *VirtualTag) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tag = tag
	v.selected = 0
}

// RemoveTag takes the current tag out of the field.
func (v *VirtualPN532) RemoveTag() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tag != nil {
		v.tag.Remove()
	}
	v.selected = 0
}

// InsertTag puts the current tag back into the field.
func (v *VirtualPN532) InsertTag() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tag != nil {
		v.tag.Insert()
	}
}

// SetFirmwareVersion configures the GetFirmwareVersion answer.
func (v *VirtualPN532) SetFirmwareVersion(ic, ver, rev, support byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmware = [4]byte{ic, ver, rev, support}
}

// InjectChecksumError corrupts the data checksum of the next response.
func (v *VirtualPN532) InjectChecksumError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.injectChecksumError = true
}

// DropNextACK leaves the next command unacknowledged and unanswered.
func (v *VirtualPN532) DropNextACK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNextACK = true
}

// Unplug makes every later read and write fail as if the USB bridge had
// been pulled.
func (v *VirtualPN532) Unplug() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unplugged = true
}

// CommandCount returns how many frames carrying cmd were processed.
func (v *VirtualPN532) CommandCount(cmd byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.commands[cmd]
}

// processReceivedData consumes complete frames from the receive buffer.
// Wake-up bytes and host ACKs are skipped; a NACK repeats the last response.
func (v *VirtualPN532) processReceivedData() {
	for {
		data := v.rxBuffer.Bytes()

		switch {
		case bytes.HasPrefix(data, frame.AckFrame):
			v.rxBuffer.Next(len(frame.AckFrame))
			continue
		case bytes.HasPrefix(data, frame.NackFrame):
			v.rxBuffer.Next(len(frame.NackFrame))
			if v.lastResponse != nil {
				v.txBuffer.Write(v.lastResponse)
			}
			continue
		}

		start := bytes.Index(data, []byte{0x00, 0xFF})
		if start < 0 {
			// Keep a trailing 0x00 that may start the next frame.
			if n := len(data); n > 0 && data[n-1] == 0x00 {
				v.rxBuffer.Next(n - 1)
			} else {
				v.rxBuffer.Reset()
			}
			return
		}
		// Drop preamble, wake-up and noise bytes in front of the start code.
		v.rxBuffer.Next(start)
		data = v.rxBuffer.Bytes()

		if len(data) < 4 {
			return
		}
		length, lcs := int(data[2]), data[3]
		if byte(length)+lcs != 0 || length < 2 {
			v.rxBuffer.Next(2)
			continue
		}
		if len(data) < 4+length+1 {
			return
		}
		body := data[4 : 4+length]
		valid := frame.Checksum(body)+data[4+length] == 0 && body[0] == frame.HostToPn532
		cmd, params := body[1], append([]byte(nil), body[2:]...)
		v.rxBuffer.Next(4 + length + 1)

		if valid {
			v.processCommand(cmd, params)
		}
	}
}

func (v *VirtualPN532) processCommand(cmd byte, params []byte) {
	v.commands[cmd]++

	if v.dropNextACK {
		v.dropNextACK = false
		return
	}
	v.txBuffer.Write(frame.AckFrame)

	var response []byte
	ok := true
	switch cmd {
	case CmdGetFirmwareVersion:
		response = v.firmware[:]
	case CmdSAMConfiguration:
		ok = len(params) >= 1 && params[0] >= 0x01 && params[0] <= 0x04
	case CmdRFConfiguration:
		ok = len(params) >= 1
	case CmdInListPassiveTarget:
		response, ok = v.handleInListPassiveTarget(params)
	case CmdInDataExchange:
		response, ok = v.handleInDataExchange(params)
	case CmdInRelease:
		response, ok = v.handleInRelease(params)
	default:
		ok = false
	}

	if !ok {
		v.lastResponse = errorFrame
		v.txBuffer.Write(errorFrame)
		return
	}
	v.sendResponse(cmd, response)
}

// sendResponse queues a response frame carrying cmd+1.
func (v *VirtualPN532) sendResponse(cmd byte, data []byte) {
	body := append([]byte{frame.Pn532ToHost, cmd + 1}, data...)
	out := make([]byte, 0, len(body)+7)
	out = append(out, 0x00, 0x00, 0xFF, byte(len(body)), -byte(len(body)))
	out = append(out, body...)
	out = append(out, -frame.Checksum(body), 0x00)

	if v.injectChecksumError {
		v.injectChecksumError = false
		out[len(out)-2] ^= 0xFF
	}
	v.lastResponse = out
	v.txBuffer.Write(out)
}

// handleInListPassiveTarget answers for 106 kbps type A only.
func (v *VirtualPN532) handleInListPassiveTarget(params []byte) ([]byte, bool) {
	if len(params) < 2 || params[0] == 0 || params[0] > 2 || params[1] > 0x04 {
		return nil, false
	}
	if params[1] != 0x00 || v.tag == nil || !v.tag.Present {
		v.selected = 0
		return []byte{0x00}, true
	}

	v.selected = 1
	// Tg, SENS_RES, SEL_RES (NFC Forum Type 2), NFCIDLength, NFCID1.
	res := []byte{0x01, 0x01, 0x00, 0x44, 0x00, byte(len(v.tag.UID))}
	return append(res, v.tag.UID...), true
}

func (v *VirtualPN532) handleInDataExchange(params []byte) ([]byte, bool) {
	if len(params) < 2 {
		return nil, false
	}
	if v.selected == 0 || params[0] != v.selected {
		return []byte{errTarget}, true
	}
	if v.tag == nil || !v.tag.Present {
		return []byte{errTimeout}, true
	}

	data := params[1:]
	if data[0] != 0x30 || len(data) < 2 {
		return []byte{errMifare}, true
	}
	block, err := v.tag.ReadBlock(int(data[1]))
	if err != nil {
		return []byte{errMifare}, true
	}
	return append([]byte{0x00}, block...), true
}

func (v *VirtualPN532) handleInRelease(params []byte) ([]byte, bool) {
	if len(params) < 1 {
		return nil, false
	}
	if params[0] != 0 && params[0] != v.selected {
		return []byte{errCardDisappeared}, true
	}
	v.selected = 0
	return []byte{0x00}, true
}
