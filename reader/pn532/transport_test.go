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
	"io"
	"testing"
	"time"

	"github.com/ZaparooProject/tapwedge/internal/pn532sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimUART(sim *pn532sim.VirtualPN532, chunk int) (*UART, *pn532sim.SerialPort) {
	port := &pn532sim.SerialPort{Sim: sim, Chunk: chunk}
	t := newUART(port, "sim")
	t.ackTimeout = 30 * time.Millisecond
	t.responseTimeout = 100 * time.Millisecond
	return t, port
}

// writeRecorder counts writes that start with the wake-up byte.
type writeRecorder struct {
	*pn532sim.SerialPort
	wakeUps int
}

func (w *writeRecorder) Write(p []byte) (int, error) {
	if len(p) > 0 && p[0] == 0x55 {
		w.wakeUps++
	}
	return w.SerialPort.Write(p)
}

func TestUART_SendCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		chunk int
	}{
		{name: "whole reads", chunk: 0},
		{name: "fragmented reads", chunk: 3},
		{name: "single byte reads", chunk: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sim := pn532sim.NewVirtualPN532()
			tr, _ := newSimUART(sim, tt.chunk)

			res, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
			require.NoError(t, err)
			assert.Equal(t, []byte{0x32, 0x01, 0x06, 0x07}, res)
		})
	}
}

func TestUART_WakeUpOnce(t *testing.T) {
	t.Parallel()

	sim := pn532sim.NewVirtualPN532()
	rec := &writeRecorder{SerialPort: &pn532sim.SerialPort{Sim: sim}}
	tr := newUART(rec, "sim")

	for range 3 {
		_, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, rec.wakeUps)
}

func TestUART_NoACK(t *testing.T) {
	t.Parallel()

	sim := pn532sim.NewVirtualPN532()
	tr, _ := newSimUART(sim, 0)
	sim.DropNextACK()

	_, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, ErrNoACK)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
	assert.False(t, tr.awake, "a missed ACK should wake the chip again")

	res, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Len(t, res, 4)
}

func TestUART_CorruptResponse(t *testing.T) {
	t.Parallel()

	sim := pn532sim.NewVirtualPN532()
	tr, _ := newSimUART(sim, 0)
	sim.InjectChecksumError()

	_, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.True(t, IsRetryable(err))

	// The corrupt bytes are gone and the next command is clean.
	_, err = tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.NoError(t, err)
}

func TestUART_ErrorFrame(t *testing.T) {
	t.Parallel()

	sim := pn532sim.NewVirtualPN532()
	tr, _ := newSimUART(sim, 0)

	_, err := tr.SendCommand(context.Background(), 0x60, nil)
	require.ErrorIs(t, err, ErrInvalidResponse)
	assert.False(t, IsFatal(err))
}

func TestUART_Unplugged(t *testing.T) {
	t.Parallel()

	sim := pn532sim.NewVirtualPN532()
	tr, _ := newSimUART(sim, 0)
	_, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.NoError(t, err)

	sim.Unplug()
	_, err = tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestUART_Closed(t *testing.T) {
	t.Parallel()

	tr, _ := newSimUART(pn532sim.NewVirtualPN532(), 0)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, ErrTransportClosed)
	assert.True(t, IsFatal(err))
}

func TestUART_ContextCancelled(t *testing.T) {
	t.Parallel()

	tr, _ := newSimUART(pn532sim.NewVirtualPN532(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.SendCommand(ctx, cmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLinkErrorType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorTypePermanent, linkErrorType(io.EOF))
	assert.Equal(t, ErrorTypePermanent, linkErrorType(io.ErrClosedPipe))
	assert.Equal(t, ErrorTypeTransient, linkErrorType(errors.New("glitch")))
}

func TestI2C_SendCommand(t *testing.T) {
	t.Parallel()

	sim := pn532sim.NewVirtualPN532()
	tr := newI2C(&pn532sim.I2CDevice{Sim: sim}, "/dev/i2c-sim")

	res, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x32, 0x01, 0x06, 0x07}, res)
	assert.Equal(t, "i2c:/dev/i2c-sim", tr.String())
}

func TestI2C_NotReady(t *testing.T) {
	t.Parallel()

	sim := pn532sim.NewVirtualPN532()
	tr := newI2C(&pn532sim.I2CDevice{Sim: sim}, "sim")
	tr.ackTimeout = 10 * time.Millisecond
	sim.DropNextACK()

	_, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, ErrNoACK)
	assert.True(t, IsRetryable(err))
}

func TestI2C_Closed(t *testing.T) {
	t.Parallel()

	closes := 0
	tr := newI2C(&pn532sim.I2CDevice{Sim: pn532sim.NewVirtualPN532()}, "sim")
	tr.closer = func() error {
		closes++
		return nil
	}
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, closes)

	_, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, ErrTransportClosed)
}

func TestParseI2CPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/dev/i2c-1", parseI2CPath("/dev/i2c-1:0x24"))
	assert.Equal(t, "/dev/i2c-1", parseI2CPath("/dev/i2c-1"))
}
