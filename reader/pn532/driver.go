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

// Package pn532 is the reader driver for PN532 boards on a serial (HSU) or
// I2C link. The driver polls with InListPassiveTarget and reads Type 2 tags
// with InDataExchange.
package pn532

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/tapwedge/internal/syncutil"
	"github.com/ZaparooProject/tapwedge/reader"
	"github.com/rs/zerolog/log"
)

const (
	pollInterval      = 250 * time.Millisecond
	removalTimeout    = 600 * time.Millisecond
	reconnectInterval = 2 * time.Second
	eventBuffer       = 8
)

// Transport names accepted in Options.
const (
	TransportUART = "uart"
	TransportI2C  = "i2c"
)

// Options select the link to the PN532.
type Options struct {
	// Transport is TransportUART (the default) or TransportI2C.
	Transport string
	// Device is the serial port or I2C bus. An empty serial port is
	// detected, an empty bus is DefaultI2CBus.
	Device string
}

// readGate orders tag reads against polling. A poll holds mu for its whole
// command, so a read never starts while a poll is in flight and a poll never
// starts while a read is.
type readGate struct {
	mu    syncutil.Mutex
	reads int
	gone  bool
}

func (g *readGate) begin() {
	g.mu.Lock()
	g.reads++
	g.mu.Unlock()
}

// end finishes a read. A read that failed because the target left the
// field is remembered for the next poll.
func (g *readGate) end(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads--
	var pe *PN532Error
	if errors.As(err, &pe) && pe.IsCardGone() {
		g.gone = true
	}
}

// acquire locks the gate for one poll command unless a read is running.
// gone reports a read that lost the card since the last poll. The caller
// must release a gate it acquired.
func (g *readGate) acquire() (ok, gone bool) {
	g.mu.Lock()
	if g.reads > 0 {
		g.mu.Unlock()
		return false, false
	}
	gone, g.gone = g.gone, false
	return true, gone
}

func (g *readGate) release() {
	g.mu.Unlock()
}

// Driver polls one PN532 and reports card presence.
type Driver struct {
	lastSeen          time.Time
	open              func(ctx context.Context) (Transport, error)
	now               func() time.Time
	dev               *Device
	events            chan reader.Event
	name              string
	current           string
	gate              readGate
	pollInterval      time.Duration
	removalTimeout    time.Duration
	reconnectInterval time.Duration
	mu                syncutil.Mutex
}

// New returns a driver for the link opts describe. Nothing is opened until
// Run.
func New(opts Options) (*Driver, error) {
	open, err := opener(opts)
	if err != nil {
		return nil, err
	}
	return newDriver(open), nil
}

func newDriver(open func(ctx context.Context) (Transport, error)) *Driver {
	return &Driver{
		open:              open,
		now:               time.Now,
		events:            make(chan reader.Event, eventBuffer),
		pollInterval:      pollInterval,
		removalTimeout:    removalTimeout,
		reconnectInterval: reconnectInterval,
	}
}

func opener(opts Options) (func(ctx context.Context) (Transport, error), error) {
	switch strings.ToLower(opts.Transport) {
	case "", TransportUART:
		return func(context.Context) (Transport, error) {
			port := opts.Device
			if port == "" {
				detected, err := DetectPort()
				if err != nil {
					return nil, err
				}
				port = detected
			}
			t, err := OpenUART(port)
			if err != nil {
				return nil, err
			}
			return t, nil
		}, nil
	case TransportI2C:
		return func(context.Context) (Transport, error) {
			t, err := OpenI2C(opts.Device)
			if err != nil {
				return nil, err
			}
			return t, nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, opts.Transport)
	}
}

// Events returns the event channel. It is closed when Run returns.
func (d *Driver) Events() <-chan reader.Event {
	return d.events
}

// Run opens the PN532 and polls it until ctx is cancelled. Only a failure
// to open the device the first time is returned. Later failures are sent as
// ReaderError events; a lost link is reopened.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.events)

	dev, err := d.connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", reader.ErrReader, err)
	}

	for {
		err := d.pollLoop(ctx, dev)
		_ = d.closeDevice()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Warn().Err(err).Str("reader", d.name).Msg("PN532 link lost")
		if d.current != "" {
			d.cardLeft(ctx)
		}
		reader.Emit(ctx, d.events, reader.Event{
			Type:   reader.ReaderError,
			Reader: d.name,
			Err:    fmt.Errorf("%w: %s: %w", reader.ErrReader, d.name, err),
		})

		for {
			if !sleepCtx(ctx, d.reconnectInterval) {
				return ctx.Err()
			}
			dev, err = d.connect(ctx)
			if err == nil {
				break
			}
			log.Debug().Err(err).Msg("reopen PN532")
		}
	}
}

// Close closes the device. A running Run reopens it unless its context is
// cancelled.
func (d *Driver) Close() error {
	return d.closeDevice()
}

func (d *Driver) closeDevice() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

// connect opens the transport, initializes the chip and announces it.
func (d *Driver) connect(ctx context.Context) (*Device, error) {
	t, err := d.open(ctx)
	if err != nil {
		return nil, err
	}
	dev := NewDevice(t)
	fw, err := dev.Init(ctx)
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("initialize PN532 on %s: %w", t, err)
	}

	d.mu.Lock()
	d.dev = dev
	d.mu.Unlock()
	d.name = t.String()

	log.Info().Str("reader", d.name).Stringer("firmware", fw).Msg("PN532 ready")
	reader.Emit(ctx, d.events, reader.Event{Type: reader.ReaderConnected, Reader: d.name})
	return dev, nil
}

// pollLoop polls every pollInterval. It returns on cancellation or on an
// error that IsFatal accepts; other errors are reported and polling goes on.
func (d *Driver) pollLoop(ctx context.Context, dev *Device) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.poll(ctx, dev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if IsFatal(err) {
				return err
			}
			log.Debug().Err(err).Str("reader", d.name).Msg("poll failed")
			reader.Emit(ctx, d.events, reader.Event{
				Type:   reader.ReaderError,
				Reader: d.name,
				Err:    fmt.Errorf("%w: %s: %w", reader.ErrReader, d.name, err),
			})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll runs one InListPassiveTarget. A card is removed after
// removalTimeout without a sighting, or at the first miss after a read lost
// it; a different UID replaces it at once.
func (d *Driver) poll(ctx context.Context, dev *Device) error {
	ok, gone := d.gate.acquire()
	if !ok {
		d.lastSeen = d.now()
		return nil
	}
	tgt, found, err := dev.InListPassiveTarget(ctx)
	d.gate.release()
	if err != nil {
		return err
	}
	now := d.now()

	if !found {
		if d.current != "" && (gone || now.Sub(d.lastSeen) >= d.removalTimeout) {
			d.cardLeft(ctx)
		}
		return nil
	}

	uid := hex.EncodeToString(tgt.UID)
	if uid == d.current {
		d.lastSeen = now
		return nil
	}
	if d.current != "" {
		d.cardLeft(ctx)
	}

	d.current, d.lastSeen = uid, now
	log.Debug().Str("uid", uid).Uint8("sak", tgt.SAK).Msg("PN532 card detected")
	reader.Emit(ctx, d.events, reader.Event{
		Type:   reader.CardDetected,
		Reader: d.name,
		UID:    uid,
		Tag:    newTag(dev, tgt, &d.gate),
	})
	return nil
}

func (d *Driver) cardLeft(ctx context.Context) {
	uid := d.current
	d.current = ""
	reader.Emit(ctx, d.events, reader.Event{Type: reader.CardRemoved, Reader: d.name, UID: uid})
}
