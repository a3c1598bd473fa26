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

package keyboard

import (
	"context"
	"strings"

	"github.com/ZaparooProject/tapwedge/replay"
	"github.com/rs/zerolog"
)

// Log is a dry-run keyboard: it logs what would be typed instead of
// injecting it.
type Log struct {
	logger zerolog.Logger
	buf    strings.Builder
	keys   int
}

// NewLog returns a dry-run keyboard writing to logger.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("keyboard", BackendLog).Logger()}
}

func (l *Log) Tap(_ context.Context, key replay.Key) error {
	l.buf.WriteString("<" + key.String() + ">")
	l.keys++
	return nil
}

func (l *Log) TypeRune(_ context.Context, r rune) error {
	l.buf.WriteRune(r)
	l.keys++
	return nil
}

// Flush logs the keystrokes collected since the last flush.
func (l *Log) Flush(context.Context) error {
	l.logger.Info().
		Int("keystrokes", l.keys).
		Str("typed", l.buf.String()).
		Msg("dry run replay")
	l.buf.Reset()
	l.keys = 0
	return nil
}

func (*Log) Close() error {
	return nil
}
