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

//go:build !linux

package keyboard

import (
	"context"

	"github.com/ZaparooProject/tapwedge/replay"
)

// Uinput is only available on Linux.
type Uinput struct{}

// UinputAvailable always reports false off Linux.
func UinputAvailable() bool {
	return false
}

// NewUinput always fails off Linux.
func NewUinput() (*Uinput, error) {
	return nil, ErrUnsupportedPlatform
}

func (*Uinput) Tap(context.Context, replay.Key) error {
	return ErrUnsupportedPlatform
}

func (*Uinput) TypeRune(context.Context, rune) error {
	return ErrUnsupportedPlatform
}

func (*Uinput) Close() error {
	return nil
}
