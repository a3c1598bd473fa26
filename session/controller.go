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

// Package session turns reader events into at most one pipeline run per tag
// presentation.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/tapwedge/internal/syncutil"
	"github.com/ZaparooProject/tapwedge/reader"
	"github.com/rs/zerolog/log"
)

// State is the controller state.
type State int

const (
	Idle State = iota
	Processing
)

func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "idle"
}

// Handler processes one presented tag.
type Handler func(ctx context.Context, tag reader.Tag) error

// Config holds controller options.
type Config struct {
	// Debounce refuses new detections for this long after a handler
	// returns. Zero disables it.
	Debounce time.Duration
}

// Controller gates tag detections so that one presentation runs the handler
// once. A detection is dropped, not queued, while a handler is running, when
// it repeats the last processed card, or inside the debounce window.
type Controller struct {
	finishedAt    time.Time
	handler       Handler
	now           func() time.Time
	onDone        func(uid string, err error)
	current       string
	lastProcessed string
	wg            sync.WaitGroup
	cfg           Config
	mu            syncutil.Mutex
	state         State
	currentGone   bool
}

// New creates a controller running handler for each accepted detection.
func New(handler Handler, cfg Config) *Controller {
	return &Controller{
		handler: handler,
		cfg:     cfg,
		now:     time.Now,
	}
}

// OnDone registers a function called after every handler run, with the
// handler's error. It must be set before events are handled.
func (c *Controller) OnDone(fn func(uid string, err error)) {
	c.onDone = fn
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastProcessed returns the identifier of the last card processed while it
// is still in the field, or "".
func (c *Controller) LastProcessed() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastProcessed
}

// Run handles events until the channel closes or ctx is done, then waits
// for an in-flight handler. It returns nil on channel close and ctx.Err()
// on cancellation.
func (c *Controller) Run(ctx context.Context, events <-chan reader.Event) error {
	defer c.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.HandleEvent(ctx, ev)
		}
	}
}

// Wait blocks until no handler is running.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// HandleEvent applies one reader event. It never blocks on the handler.
func (c *Controller) HandleEvent(ctx context.Context, ev reader.Event) {
	switch ev.Type {
	case reader.CardDetected:
		c.cardDetected(ctx, ev)
	case reader.CardRemoved:
		c.cardRemoved(ev.UID)
	case reader.ReaderConnected:
		log.Info().Str("reader", ev.Reader).Msg("reader connected")
	case reader.ReaderError:
		log.Warn().Err(ev.Err).Str("reader", ev.Reader).Msg("reader error")
	default:
		log.Debug().Stringer("event", ev.Type).Msg("ignoring unknown reader event")
	}
}

func (c *Controller) cardDetected(ctx context.Context, ev reader.Event) {
	uid := ev.UID
	if ev.Tag == nil {
		log.Warn().Str("uid", uid).Msg("card detected without a tag handle")
		return
	}
	if uid == "" {
		uid = ev.Tag.UID()
	}

	c.mu.Lock()
	if reason := c.refuse(uid); reason != "" {
		c.mu.Unlock()
		log.Debug().Str("uid", uid).Str("reason", reason).Msg("dropping card detection")
		return
	}
	c.state = Processing
	c.current = uid
	c.currentGone = false
	c.wg.Add(1)
	c.mu.Unlock()

	log.Info().Str("uid", uid).Str("reader", ev.Reader).Msg("card detected")
	go c.process(ctx, uid, ev.Tag)
}

// refuse returns why a detection of uid cannot start, or "". Caller holds mu.
func (c *Controller) refuse(uid string) string {
	switch {
	case c.state == Processing:
		return "busy with " + c.current
	case uid == c.lastProcessed:
		return "already processed"
	case c.cfg.Debounce > 0 && !c.finishedAt.IsZero() && c.now().Sub(c.finishedAt) < c.cfg.Debounce:
		return "debounce"
	default:
		return ""
	}
}

func (c *Controller) cardRemoved(uid string) {
	c.mu.Lock()
	if c.lastProcessed == uid {
		c.lastProcessed = ""
	}
	if c.state == Processing && c.current == uid {
		c.currentGone = true
	}
	c.mu.Unlock()

	log.Debug().Str("uid", uid).Msg("card removed")
}

func (c *Controller) process(ctx context.Context, uid string, tag reader.Tag) {
	defer c.wg.Done()

	var err error
	defer func() {
		c.finish(uid, err)
	}()

	start := c.now()
	err = c.safeHandle(ctx, tag)
	logger := log.With().Str("uid", uid).Dur("elapsed", c.now().Sub(start)).Logger()
	if err != nil {
		logger.Error().Err(err).Msg("tag not replayed")
		return
	}
	logger.Info().Msg("tag replayed")
}

// safeHandle runs the handler, turning a panic into an error.
func (c *Controller) safeHandle(ctx context.Context, tag reader.Tag) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tag handler panicked: %v", r)
		}
	}()
	return c.handler(ctx, tag)
}

// finish returns the controller to Idle. The card becomes the last
// processed one unless it was removed while the handler ran.
func (c *Controller) finish(uid string, err error) {
	c.mu.Lock()
	c.state = Idle
	if !c.currentGone {
		c.lastProcessed = uid
	}
	c.current = ""
	c.currentGone = false
	c.finishedAt = c.now()
	onDone := c.onDone
	c.mu.Unlock()

	if onDone != nil {
		onDone(uid, err)
	}
}
