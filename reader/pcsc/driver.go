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

// Package pcsc is the reader driver for PC/SC contactless readers such as
// the ACR122U, using the platform smart card service (pcsclite, winscard).
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/tapwedge/internal/syncutil"
	"github.com/ZaparooProject/tapwedge/reader"
	"github.com/ebfe/scard"
	"github.com/rs/zerolog/log"
)

const (
	statusTimeout      = 500 * time.Millisecond
	readerPollInterval = time.Second
	eventBuffer        = 8
)

// system is the part of the PC/SC service the driver uses.
type system interface {
	ListReaders() ([]string, error)
	GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error
	Connect(reader string) (Card, error)
	Cancel() error
	Release() error
}

type scardSystem struct {
	ctx *scard.Context
}

func establish() (system, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, err
	}
	return &scardSystem{ctx: ctx}, nil
}

func (s *scardSystem) ListReaders() ([]string, error) {
	return s.ctx.ListReaders()
}

func (s *scardSystem) GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error {
	return s.ctx.GetStatusChange(rs, timeout)
}

func (s *scardSystem) Connect(name string) (Card, error) {
	card, err := s.ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, err
	}
	return card, nil
}

func (s *scardSystem) Cancel() error {
	return s.ctx.Cancel()
}

func (s *scardSystem) Release() error {
	return s.ctx.Release()
}

// Driver watches one PC/SC reader and reports card presence.
type Driver struct {
	open   func() (system, error)
	sys    system
	card   Card
	events chan reader.Event
	filter string
	uid    string
	mu     syncutil.Mutex
}

// New returns a driver for the first contactless reader whose name contains
// filter (case-insensitive). An empty filter takes the first reader.
func New(filter string) *Driver {
	return &Driver{
		open:   establish,
		filter: filter,
		events: make(chan reader.Event, eventBuffer),
	}
}

// Events returns the event channel. It is closed when Run returns.
func (d *Driver) Events() <-chan reader.Event {
	return d.events
}

// Run establishes the PC/SC context and reports readers and cards until ctx
// is cancelled. Only a failure to reach the smart card service is returned;
// reader and card failures are sent as ReaderError events.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.events)

	sys, err := d.open()
	if err != nil {
		return fmt.Errorf("%w: establish PC/SC context: %w", reader.ErrReader, err)
	}
	d.mu.Lock()
	d.sys = sys
	d.mu.Unlock()
	defer func() {
		if err := sys.Release(); err != nil {
			log.Debug().Err(err).Msg("release PC/SC context")
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = sys.Cancel()
	})
	defer stop()

	for {
		name, err := d.waitForReader(ctx, sys)
		if err != nil {
			return ctx.Err()
		}
		log.Debug().Str("reader", name).Msg("using PC/SC reader")
		if !reader.Emit(ctx, d.events, reader.Event{Type: reader.ReaderConnected, Reader: name}) {
			return ctx.Err()
		}

		err = d.watch(ctx, sys, name)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reader.Emit(ctx, d.events, reader.Event{
			Type:   reader.ReaderError,
			Reader: name,
			Err:    fmt.Errorf("%w: %s: %w", reader.ErrReader, name, err),
		})
		if !sleepCtx(ctx, readerPollInterval) {
			return ctx.Err()
		}
	}
}

// Close cancels any blocking status wait and drops the connected card.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sys != nil {
		_ = d.sys.Cancel()
	}
	return d.disconnectLocked()
}

// waitForReader polls until a matching contactless reader is attached.
func (d *Driver) waitForReader(ctx context.Context, sys system) (string, error) {
	logged := false
	for {
		readers, err := sys.ListReaders()
		if err != nil && !errors.Is(err, scard.ErrNoReadersAvailable) {
			log.Debug().Err(err).Msg("list PC/SC readers")
		}
		if name, ok := selectReader(readers, d.filter); ok {
			return name, nil
		}
		if !logged {
			log.Info().Str("filter", d.filter).Msg("waiting for a PC/SC reader")
			logged = true
		}
		if !sleepCtx(ctx, readerPollInterval) {
			return "", ctx.Err()
		}
	}
}

// selectReader picks the first non-SAM reader matching filter.
func selectReader(readers []string, filter string) (string, bool) {
	filter = strings.ToLower(filter)
	for _, name := range readers {
		lower := strings.ToLower(name)
		if strings.Contains(lower, " sam") || strings.Contains(lower, "sam ") {
			continue
		}
		if filter == "" || strings.Contains(lower, filter) {
			return name, true
		}
	}
	return "", false
}

// watch follows card presence on name until the reader goes away.
func (d *Driver) watch(ctx context.Context, sys system, name string) error {
	rs := []scard.ReaderState{{Reader: name, CurrentState: scard.StateUnaware}}
	present := false
	defer func() {
		if present {
			d.cardLeft(ctx, name)
		}
	}()

	for {
		err := sys.GetStatusChange(rs, statusTimeout)
		switch {
		case err == nil:
		case errors.Is(err, scard.ErrTimeout):
			continue
		case errors.Is(err, scard.ErrCancelled):
			return ctx.Err()
		default:
			return err
		}

		state := rs[0].EventState
		rs[0].CurrentState = state &^ scard.StateChanged
		if state&(scard.StateUnavailable|scard.StateUnknown) != 0 {
			return errors.New("reader unavailable")
		}

		nowPresent := state&scard.StatePresent != 0 && state&scard.StateMute == 0
		switch {
		case nowPresent && !present:
			present = d.cardArrived(ctx, sys, name)
		case !nowPresent && present:
			present = false
			d.cardLeft(ctx, name)
		}
	}
}

// cardArrived connects to the new card and reports it. It returns false
// when the card could not be identified.
func (d *Driver) cardArrived(ctx context.Context, sys system, name string) bool {
	card, err := sys.Connect(name)
	if err != nil {
		log.Debug().Err(err).Str("reader", name).Msg("connect to card")
		return false
	}
	tag, err := newTag(card)
	if err != nil {
		_ = card.Disconnect(scard.LeaveCard)
		log.Warn().Err(err).Str("reader", name).Msg("card present but unreadable")
		return false
	}

	d.mu.Lock()
	d.card = card
	d.uid = tag.UID()
	d.mu.Unlock()

	reader.Emit(ctx, d.events, reader.Event{
		Type:   reader.CardDetected,
		Reader: name,
		UID:    tag.UID(),
		Tag:    tag,
	})
	return true
}

func (d *Driver) cardLeft(ctx context.Context, name string) {
	d.mu.Lock()
	uid := d.uid
	if err := d.disconnectLocked(); err != nil {
		log.Debug().Err(err).Str("uid", uid).Msg("disconnect card")
	}
	d.mu.Unlock()

	reader.Emit(ctx, d.events, reader.Event{Type: reader.CardRemoved, Reader: name, UID: uid})
}

func (d *Driver) disconnectLocked() error {
	if d.card == nil {
		return nil
	}
	err := d.card.Disconnect(scard.LeaveCard)
	d.card = nil
	d.uid = ""
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
