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

// Package tapwedge reads the NDEF text record of an NFC tag and replays it
// as keystrokes. This package holds the per-tag pipeline, its error
// taxonomy, configuration and logging setup; readers, keyboards and the
// card session controller live in subpackages.
package tapwedge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/tapwedge/pkg/ndef"
	"github.com/ZaparooProject/tapwedge/reader"
	"github.com/ZaparooProject/tapwedge/replay"
	"github.com/rs/zerolog/log"
)

// DecodeText locates, decodes and extracts the first text record in a raw
// tag memory dump.
//
// When the NDEF TLV span fails to decode, the record-header fallback is
// tried on the same buffer before giving up, so a tag whose TLV length
// disagrees with its record still reads.
func DecodeText(raw []byte) (ndef.Text, error) {
	span, ok := ndef.FindMessage(raw)
	if !ok {
		return ndef.Text{}, ErrNoNDEFFound
	}

	msg, err := ndef.DecodeMessage(span)
	if err != nil {
		alt, found := ndef.FindRecordHeader(raw)
		if !found || sameSpan(alt, span) {
			return ndef.Text{}, err
		}
		retry, retryErr := ndef.DecodeMessage(alt)
		if retryErr != nil {
			return ndef.Text{}, err
		}
		log.Debug().Err(err).Msg("NDEF TLV span did not decode, using record header")
		msg = retry
	}
	if !msg.Terminated {
		log.Debug().Int("records", len(msg.Records)).Msg("NDEF message has no ME record")
	}

	text, found, err := ndef.ExtractText(msg.Records)
	if err != nil {
		return ndef.Text{}, err
	}
	if !found {
		return ndef.Text{}, fmt.Errorf("%w among %d records", ErrNoTextRecord, len(msg.Records))
	}
	return text, nil
}

func sameSpan(a, b []byte) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// Pipeline processes one presented tag: read, decode, wait, replay.
type Pipeline struct {
	Keyboard replay.Keyboard
	Config   Config
}

// Process runs the pipeline for tag. Every failure is returned as a
// *TagError naming the stage; nothing is retried.
func (p *Pipeline) Process(ctx context.Context, tag reader.Tag) error {
	uid := tag.UID()
	logger := log.With().Str("uid", uid).Logger()

	raw, err := tag.Read(ctx, p.Config.BlockStart, p.Config.ReadCap)
	if err != nil {
		if !errors.Is(err, ErrRead) {
			err = fmt.Errorf("%w: %w", ErrRead, err)
		}
		return &TagError{Op: OpRead, UID: uid, Err: err}
	}
	logger.Debug().
		Int("bytes", len(raw)).
		Str("layout", ndef.DescribeTLV(raw)).
		Msg("tag memory read")

	text, err := DecodeText(raw)
	if err != nil {
		return &TagError{Op: OpDecode, UID: uid, Err: err}
	}
	logger.Debug().
		Str("lang", text.Language).
		Bool("utf16", text.UTF16).
		Int("runes", len([]rune(text.Text))).
		Msg("text record decoded")

	if err := sleepCtx(ctx, p.Config.StartDelay); err != nil {
		return &TagError{Op: OpDelay, UID: uid, Err: err}
	}

	err = replay.Replay(ctx, p.Keyboard, text.Text, replay.Options{
		BatchSize: p.Config.BatchSize,
		AutoEnter: p.Config.AutoEnter,
	})
	if err != nil {
		return &TagError{Op: OpReplay, UID: uid, Err: fmt.Errorf("%w: %w", ErrReplay, err)}
	}
	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
