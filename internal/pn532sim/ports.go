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
	"io"
	"time"
)

// SerialPort exposes the simulator as a serial port. Chunk, when set, caps
// the bytes one Read returns so frames arrive split across reads.
type SerialPort struct {
	Sim    *VirtualPN532
	Chunk  int
	closed bool
}

func (p *SerialPort) Read(buf []byte) (int, error) {
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if p.Chunk > 0 && len(buf) > p.Chunk {
		buf = buf[:p.Chunk]
	}
	n, err := p.Sim.Read(buf)
	if n == 0 && err == nil {
		// Stand in for the serial read timeout.
		time.Sleep(time.Millisecond)
	}
	return n, err
}

func (p *SerialPort) Write(buf []byte) (int, error) {
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.Sim.Write(buf)
}

func (*SerialPort) Drain() error {
	return nil
}

// ResetInputBuffer discards answer bytes the host has not read.
func (p *SerialPort) ResetInputBuffer() error {
	p.Sim.discardPending()
	return nil
}

func (p *SerialPort) Close() error {
	p.closed = true
	return nil
}

// I2CDevice exposes the simulator as an I2C target. Every read transaction
// starts with the status byte, 0x01 while answer bytes are queued.
type I2CDevice struct {
	Sim *VirtualPN532
}

// Tx writes w, then reads into r.
func (d *I2CDevice) Tx(w, r []byte) error {
	if len(w) > 0 {
		if _, err := d.Sim.Write(w); err != nil {
			return err
		}
	}
	if len(r) == 0 {
		return nil
	}

	clear(r)
	if !d.Sim.HasPendingResponse() {
		return nil
	}
	r[0] = 0x01
	if len(r) == 1 {
		return nil
	}
	_, err := d.Sim.Read(r[1:])
	return err
}
