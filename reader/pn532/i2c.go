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

package pn532

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/tapwedge/internal/frame"
	"github.com/ZaparooProject/tapwedge/internal/syncutil"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultI2CBus is used when no bus is given.
	DefaultI2CBus = "/dev/i2c-1"

	i2cAddr            = 0x24
	i2cClock           = 400 * physic.KiloHertz
	i2cReady           = 0x01
	i2cAckTimeout      = 100 * time.Millisecond
	i2cResponseTimeout = time.Second
	i2cMaxBackoff      = 16 * time.Millisecond

	// Largest normal frame: preamble, start code, LEN, LCS, data, DCS and
	// postamble.
	i2cMaxFrame = frame.MaxDataLength + 7
)

// i2cConn is satisfied by *i2c.Dev.
type i2cConn interface {
	Tx(w, r []byte) error
}

// I2C is the I2C transport. Every read transaction starts with a status
// byte that is 0x01 once the chip has data ready.
type I2C struct {
	dev             i2cConn
	closer          func() error
	bus             string
	ackTimeout      time.Duration
	responseTimeout time.Duration
	mu              syncutil.Mutex
	closed          bool
}

// parseI2CPath accepts "/dev/i2c-1:0x24" or a bare "/dev/i2c-1".
func parseI2CPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// OpenI2C opens the bus and addresses the PN532 at 0x24.
func OpenI2C(path string) (*I2C, error) {
	if path == "" {
		path = DefaultI2CBus
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	busName := parseI2CPath(path)
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	_ = bus.SetSpeed(i2cClock) // not every bus driver supports this

	t := newI2C(&i2c.Dev{Addr: i2cAddr, Bus: bus}, busName)
	t.closer = bus.Close
	return t, nil
}

func newI2C(dev i2cConn, bus string) *I2C {
	return &I2C{
		dev:             dev,
		bus:             bus,
		ackTimeout:      i2cAckTimeout,
		responseTimeout: i2cResponseTimeout,
	}
}

func (t *I2C) String() string {
	return "i2c:" + t.bus
}

// SendCommand writes one command frame, waits for the ACK and the response,
// and acknowledges the response.
func (t *I2C) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, NewTransportError("SendCommand", t.bus, ErrTransportClosed, ErrorTypePermanent)
	}

	out, err := frame.Build(cmd, args)
	if err != nil {
		return nil, fmt.Errorf("build command 0x%02X: %w", cmd, err)
	}
	if err := t.tx("sendFrame", out, nil); err != nil {
		return nil, err
	}

	if err := t.waitReady(ctx, "waitAck", t.ackTimeout); err != nil {
		if errors.Is(err, ErrTransportNotReady) {
			return nil, NewNoACKError("waitAck", t.bus)
		}
		return nil, err
	}
	ack, err := t.readFrame("waitAck", len(frame.AckFrame))
	if err != nil {
		return nil, err
	}
	switch ack.Kind {
	case frame.KindAck:
	case frame.KindNack:
		return nil, NewNACKReceivedError("waitAck", t.bus)
	default:
		return nil, NewInvalidResponseError("waitAck", t.bus)
	}

	if err := t.waitReady(ctx, "receiveFrame", t.responseTimeout); err != nil {
		return nil, err
	}
	resp, err := t.readFrame("receiveFrame", i2cMaxFrame)
	if err != nil {
		return nil, err
	}
	if err := t.tx("sendAck", frame.AckFrame, nil); err != nil {
		return nil, err
	}

	return responseData("receiveFrame", t.bus, cmd, resp)
}

// Close releases the bus.
func (t *I2C) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		return t.closer()
	}
	return nil
}

// waitReady polls the status byte with exponential backoff until the chip
// reports ready or timeout passes.
func (t *I2C) waitReady(ctx context.Context, op string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond
	status := make([]byte, 1)

	for {
		if err := t.tx(op, nil, status); err != nil {
			return err
		}
		if status[0] == i2cReady {
			return nil
		}
		if time.Now().After(deadline) {
			return NewTransportNotReadyError(op, t.bus)
		}
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
		backoff = min(backoff*2, i2cMaxBackoff)
	}
}

// readFrame reads n bytes in a single transaction. A new transaction
// restarts at the status byte, so a frame cannot be read in pieces.
func (t *I2C) readFrame(op string, n int) (frame.Frame, error) {
	buf := make([]byte, 1+n)
	if err := t.tx(op, nil, buf); err != nil {
		return frame.Frame{}, err
	}
	if buf[0] != i2cReady {
		return frame.Frame{}, NewTransportNotReadyError(op, t.bus)
	}

	f, _, err := frame.Parse(buf[1:])
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, frame.ErrIncomplete), errors.Is(err, frame.ErrCorrupted):
		return frame.Frame{}, NewFrameCorruptedError(op, t.bus)
	default:
		return frame.Frame{}, NewInvalidResponseError(op, t.bus)
	}
}

func (t *I2C) tx(op string, w, r []byte) error {
	if err := t.dev.Tx(w, r); err != nil {
		sentinel := ErrTransportRead
		if w != nil {
			sentinel = ErrTransportWrite
		}
		return NewTransportError(op, t.bus, fmt.Errorf("%w: %w", sentinel, err), linkErrorType(err))
	}
	return nil
}
