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

//go:build linux

package keyboard

import (
	"context"
	"errors"
	"testing"

	"github.com/ZaparooProject/tapwedge/replay"
	"github.com/bendahl/uinput"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUinput struct {
	failKey int
	log     []string
}

func (f *fakeUinput) KeyPress(key int) error {
	if key == f.failKey {
		return errors.New("write failed")
	}
	f.log = append(f.log, "press:"+keyName(key))
	return nil
}

func (f *fakeUinput) KeyDown(key int) error {
	f.log = append(f.log, "down:"+keyName(key))
	return nil
}

func (f *fakeUinput) KeyUp(key int) error {
	f.log = append(f.log, "up:"+keyName(key))
	return nil
}

func (*fakeUinput) Close() error { return nil }

func keyName(key int) string {
	switch key {
	case uinput.KeyLeftshift:
		return "shift"
	case uinput.KeyTab:
		return "tab"
	case uinput.KeyEnter:
		return "enter"
	case uinput.KeyH:
		return "h"
	case uinput.KeyI:
		return "i"
	case uinput.Key1:
		return "1"
	default:
		return "?"
	}
}

func TestUinputReplay(t *testing.T) {
	t.Parallel()

	dev := &fakeUinput{failKey: -1}
	kb := &Uinput{dev: dev}

	require.NoError(t, replay.Replay(context.Background(), kb, "hI/!", replay.Options{AutoEnter: true}))
	assert.Equal(t, []string{
		"press:h",
		"down:shift", "press:i", "up:shift",
		"press:tab",
		"down:shift", "press:1", "up:shift",
		"press:enter",
	}, dev.log)
}

func TestUinputReleasesShiftOnError(t *testing.T) {
	t.Parallel()

	dev := &fakeUinput{failKey: uinput.KeyI}
	kb := &Uinput{dev: dev}

	require.Error(t, kb.TypeRune(context.Background(), 'I'))
	assert.Equal(t, []string{"down:shift", "up:shift"}, dev.log)
}

func TestUinputUnmappedRune(t *testing.T) {
	t.Parallel()

	kb := &Uinput{dev: &fakeUinput{failKey: -1}}
	require.Error(t, kb.TypeRune(context.Background(), 'é'))
}

func TestUSLayoutCoversPrintableASCII(t *testing.T) {
	t.Parallel()

	for r := rune(0x20); r < 0x7F; r++ {
		_, ok := usLayout[r]
		assert.True(t, ok, "missing %q", r)
	}
}
