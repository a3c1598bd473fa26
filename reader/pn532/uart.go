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
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/tapwedge/internal/frame"
	"github.com/ZaparooProject/tapwedge/internal/syncutil"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	uartBaudRate        = 115200
	uartAckTimeout      = 100 * time.Millisecond
	uartResponseTimeout = time.Second
)

// A 0x55 followed by enough zeros to cover the chip's wake-up time.
var wakeUpPreamble = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// serialPort is the part of serial.Port the UART transport uses.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	ResetInputBuffer() error
	Close() error
}

// UART is the high speed UART (HSU) transport.
type UART struct {
	port            serialPort
	name            string
	pending         []byte
	ackTimeout      time.Duration
	responseTimeout time.Duration
	mu              syncutil.Mutex
	awake           bool
}

// readTimeout is the per-read serial timeout. 50ms is enough on Linux and
// macOS, Windows drivers need 100ms.
func readTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// OpenUART opens name at 115200 8N1.
func OpenUART(name string) (*UART, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: uartBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", name, err)
	}

	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return newUART(port, name), nil
}

func newUART(port serialPort, name string) *UART {
	return &UART{
		port:            port,
		name:            name,
		ackTimeout:      uartAckTimeout,
		responseTimeout: uartResponseTimeout,
	}
}

func (t *UART) String() string {
	return "uart:" + t.name
}

// SendCommand writes one command frame, waits for the ACK and the response,
// and acknowledges the response.
func (t *UART) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, NewTransportError("SendCommand", t.name, ErrTransportClosed, ErrorTypePermanent)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := frame.Build(cmd, args)
	if err != nil {
		return nil, fmt.Errorf("build command 0x%02X: %w", cmd, err)
	}

	if !t.awake {
		if err := t.write("wakeUp", wakeUpPreamble); err != nil {
			return nil, err
		}
		t.awake = true
	}

	t.pending = t.pending[:0]
	if err := t.port.ResetInputBuffer(); err != nil {
		log.Debug().Err(err).Str("port", t.name).Msg("reset UART input buffer")
	}
	if err := t.write("sendFrame", out); err != nil {
		return nil, err
	}

	ack, err := t.readFrame(ctx, "waitAck", t.ackTimeout)
	if err != nil {
		// A chip that missed the frame may have gone back to sleep.
		t.awake = false
		if errors.Is(err, ErrTransportTimeout) {
			return nil, NewNoACKError("waitAck", t.name)
		}
		return nil, err
	}
	switch ack.Kind {
	case frame.KindAck:
	case frame.KindNack:
		return nil, NewNACKReceivedError("waitAck", t.name)
	default:
		return nil, NewInvalidResponseError("waitAck", t.name)
	}

	resp, err := t.readFrame(ctx, "receiveFrame", t.responseTimeout)
	if err != nil {
		return nil, err
	}
	if err := t.write("sendAck", frame.AckFrame); err != nil {
		return nil, err
	}

	return responseData("receiveFrame", t.name, cmd, resp)
}

// Close closes the serial port. Later commands fail with ErrTransportClosed.
func (t *UART) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// readFrame reads until a whole frame is buffered. Bytes left after the
// frame stay pending for the next call, since the ACK and the response can
// arrive in one read.
func (t *UART) readFrame(ctx context.Context, op string, timeout time.Duration) (frame.Frame, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 64)

	for {
		f, consumed, err := frame.Parse(t.pending)
		switch {
		case err == nil:
			t.pending = t.pending[consumed:]
			return f, nil
		case errors.Is(err, frame.ErrIncomplete):
			t.pending = t.pending[consumed:]
		case errors.Is(err, frame.ErrExtendedFrames):
			t.pending = t.pending[:0]
			return frame.Frame{}, NewInvalidResponseError(op, t.name)
		default:
			log.Debug().Err(err).Str("port", t.name).Hex("pending", t.pending).Msg("discarding bad frame")
			t.pending = t.pending[consumed:]
			continue
		}

		if err := ctx.Err(); err != nil {
			return frame.Frame{}, err
		}
		if time.Now().After(deadline) {
			return frame.Frame{}, NewTimeoutError(op, t.name)
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if isInterruptedSystemCall(err) {
				continue
			}
			return frame.Frame{}, NewTransportError(op, t.name,
				fmt.Errorf("%w: %w", ErrTransportRead, err), linkErrorType(err))
		}
		t.pending = append(t.pending, buf[:n]...)
	}
}

func (t *UART) write(op string, data []byte) error {
	n, err := t.port.Write(data)
	if err != nil {
		return NewTransportError(op, t.name, fmt.Errorf("%w: %w", ErrTransportWrite, err), linkErrorType(err))
	}
	if n != len(data) {
		return NewTransportError(op, t.name, ErrTransportWrite, ErrorTypeTransient)
	}
	return t.drainWithRetry(op)
}

// drainWithRetry waits for the output buffer to empty, retrying calls
// interrupted by a signal.
func (t *UART) drainWithRetry(op string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	var err error
	for attempt := range maxRetries {
		err = t.port.Drain()
		if err == nil || !isInterruptedSystemCall(err) {
			break
		}
		time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms, 8ms
	}
	if err != nil {
		return NewTransportError(op, t.name, fmt.Errorf("UART drain failed: %w", err), linkErrorType(err))
	}
	return nil
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// linkErrorType marks errors that mean the port itself is gone.
func linkErrorType(err error) ErrorType {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return ErrorTypePermanent
	}
	if isDeviceGoneError(err) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return ErrorTypePermanent
	}
	return ErrorTypeTransient
}
