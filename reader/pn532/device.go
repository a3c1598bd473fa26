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
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// PN532 command codes.
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSamConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

const (
	// Type 2 tag READ returns four pages.
	ntagCmdRead  = 0x30
	ntagReadSize = 16

	// Bounded passive activation retries, so InListPassiveTarget returns
	// when the field is empty instead of waiting forever.
	passiveActivationRetries = 0x02

	samModeNormal = 0x01
	samTimeout    = 0x14 // 0x14 * 50ms = 1s
	samUseIRQ     = 0x01

	brTypeA106 = 0x00
)

// FirmwareVersion is the GetFirmwareVersion answer.
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", v.IC, v.Version, v.Revision)
}

// Target is a passive type A target found by InListPassiveTarget.
type Target struct {
	UID    []byte
	ATQA   uint16
	Number byte
	SAK    byte
}

// Device issues PN532 commands over a Transport. Transient transport errors
// are retried per RetryConfig.
type Device struct {
	transport Transport
	retry     *RetryConfig
}

// NewDevice wraps t.
func NewDevice(t Transport) *Device {
	return &Device{transport: t, retry: DefaultRetryConfig()}
}

// SetRetryConfig replaces the command retry policy. nil disables retries.
func (d *Device) SetRetryConfig(cfg *RetryConfig) {
	if cfg == nil {
		cfg = &RetryConfig{}
	}
	d.retry = cfg
}

// Transport returns the underlying transport.
func (d *Device) Transport() Transport {
	return d.transport
}

// Init checks the chip answers, puts the SAM in normal mode and bounds the
// passive activation retries.
func (d *Device) Init(ctx context.Context) (FirmwareVersion, error) {
	fw, err := d.GetFirmwareVersion(ctx)
	if err != nil {
		return FirmwareVersion{}, err
	}
	if err := d.SAMConfiguration(ctx); err != nil {
		return FirmwareVersion{}, err
	}
	if err := d.SetPassiveActivationRetries(ctx, passiveActivationRetries); err != nil {
		return FirmwareVersion{}, err
	}
	return fw, nil
}

// GetFirmwareVersion returns the IC and firmware version.
func (d *Device) GetFirmwareVersion(ctx context.Context) (FirmwareVersion, error) {
	res, err := d.command(ctx, "GetFirmwareVersion", cmdGetFirmwareVersion, nil)
	if err != nil {
		return FirmwareVersion{}, err
	}
	if len(res) < 4 {
		return FirmwareVersion{}, NewInvalidResponseError("GetFirmwareVersion", d.transport.String())
	}
	return FirmwareVersion{IC: res[0], Version: res[1], Revision: res[2], Support: res[3]}, nil
}

// SAMConfiguration selects normal mode, the SAM is not used.
func (d *Device) SAMConfiguration(ctx context.Context) error {
	_, err := d.command(ctx, "SAMConfiguration", cmdSamConfiguration,
		[]byte{samModeNormal, samTimeout, samUseIRQ})
	return err
}

// SetPassiveActivationRetries sets RF configuration item 0x05 (MaxRetries),
// keeping the power-on MxRtyATR (0xFF) and MxRtyPSL (0x01).
func (d *Device) SetPassiveActivationRetries(ctx context.Context, maxRetries byte) error {
	_, err := d.command(ctx, "RFConfiguration", cmdRFConfiguration,
		[]byte{0x05, 0xFF, 0x01, maxRetries})
	return err
}

// InListPassiveTarget looks for one 106 kbps type A target. found is false
// when the field is empty.
func (d *Device) InListPassiveTarget(ctx context.Context) (tgt Target, found bool, err error) {
	res, err := d.command(ctx, "InListPassiveTarget", cmdInListPassiveTarget, []byte{0x01, brTypeA106})
	if err != nil {
		return Target{}, false, err
	}
	if len(res) == 0 {
		return Target{}, false, NewInvalidResponseError("InListPassiveTarget", d.transport.String())
	}
	if res[0] == 0 {
		return Target{}, false, nil
	}

	// NbTg, Tg, SENS_RES (2), SEL_RES, NFCIDLength, NFCID1...
	if len(res) < 6 || len(res) < 6+int(res[5]) {
		return Target{}, false, NewInvalidResponseError("InListPassiveTarget", d.transport.String())
	}
	uidLen := int(res[5])
	uid := make([]byte, uidLen)
	copy(uid, res[6:6+uidLen])

	return Target{
		Number: res[1],
		ATQA:   uint16(res[2])<<8 | uint16(res[3]),
		SAK:    res[4],
		UID:    uid,
	}, true, nil
}

// InDataExchange sends data to target tg and returns its answer.
func (d *Device) InDataExchange(ctx context.Context, tg byte, data []byte) ([]byte, error) {
	args := make([]byte, 0, 1+len(data))
	args = append(args, tg)
	args = append(args, data...)

	res, err := d.command(ctx, "InDataExchange", cmdInDataExchange, args)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, NewInvalidResponseError("InDataExchange", d.transport.String())
	}
	if status := res[0] & 0x3F; status != 0 {
		return nil, &PN532Error{Command: "InDataExchange", ErrorCode: status, Target: tg}
	}
	return res[1:], nil
}

// ReadPages reads the four pages starting at page with the Type 2 READ
// command.
func (d *Device) ReadPages(ctx context.Context, tg byte, page int) ([]byte, error) {
	if page < 0 || page > 0xFF {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	data, err := d.InDataExchange(ctx, tg, []byte{ntagCmdRead, byte(page)})
	if err != nil {
		return nil, err
	}
	if len(data) < ntagReadSize {
		return nil, fmt.Errorf("%w: READ returned %d bytes", ErrInvalidResponse, len(data))
	}
	return data[:ntagReadSize], nil
}

// InRelease releases target tg, 0 releases all targets.
func (d *Device) InRelease(ctx context.Context, tg byte) error {
	res, err := d.command(ctx, "InRelease", cmdInRelease, []byte{tg})
	if err != nil {
		return err
	}
	if len(res) > 0 && res[0]&0x3F != 0 {
		return &PN532Error{Command: "InRelease", ErrorCode: res[0] & 0x3F, Target: tg}
	}
	return nil
}

// Close closes the transport.
func (d *Device) Close() error {
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

func (d *Device) command(ctx context.Context, name string, cmd byte, args []byte) ([]byte, error) {
	var res []byte
	start := time.Now()
	err := RetryWithConfig(ctx, d.retry, func() error {
		var err error
		res, err = d.transport.SendCommand(ctx, cmd, args)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	log.Trace().
		Str("cmd", name).
		Hex("args", args).
		Hex("res", res).
		Dur("took", time.Since(start)).
		Msg("pn532 command")
	return res, nil
}
