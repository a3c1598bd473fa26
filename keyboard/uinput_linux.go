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
	"fmt"

	"github.com/ZaparooProject/tapwedge/replay"
	"github.com/bendahl/uinput"
	"golang.org/x/sys/unix"
)

const uinputPath = "/dev/uinput"

// uinputDevice is the subset of uinput.Keyboard that Uinput uses.
type uinputDevice interface {
	KeyPress(key int) error
	KeyDown(key int) error
	KeyUp(key int) error
	Close() error
}

// Uinput types through a virtual keyboard created with /dev/uinput. It
// works under X11, Wayland and the console, but needs write access to the
// device node. Characters are mapped through a US layout.
type Uinput struct {
	dev uinputDevice
}

// UinputAvailable reports whether /dev/uinput can be opened for writing.
func UinputAvailable() bool {
	return unix.Access(uinputPath, unix.W_OK) == nil
}

// NewUinput creates the virtual keyboard.
func NewUinput() (*Uinput, error) {
	dev, err := uinput.CreateKeyboard(uinputPath, []byte("tapwedge"))
	if err != nil {
		return nil, fmt.Errorf("create uinput keyboard: %w", err)
	}
	return &Uinput{dev: dev}, nil
}

// Tap presses and releases Tab or Enter.
func (u *Uinput) Tap(_ context.Context, key replay.Key) error {
	switch key {
	case replay.KeyTab:
		return u.dev.KeyPress(uinput.KeyTab)
	case replay.KeyEnter:
		return u.dev.KeyPress(uinput.KeyEnter)
	default:
		return fmt.Errorf("uinput: no mapping for %s", key)
	}
}

// TypeRune types one character, holding Shift when the layout needs it.
func (u *Uinput) TypeRune(_ context.Context, r rune) error {
	k, ok := usLayout[r]
	if !ok {
		return fmt.Errorf("uinput: no key for %q on a US layout", r)
	}
	if !k.shift {
		return u.dev.KeyPress(k.code)
	}

	if err := u.dev.KeyDown(uinput.KeyLeftshift); err != nil {
		return err
	}
	err := u.dev.KeyPress(k.code)
	if upErr := u.dev.KeyUp(uinput.KeyLeftshift); err == nil {
		err = upErr
	}
	return err
}

// Close destroys the virtual keyboard.
func (u *Uinput) Close() error {
	return u.dev.Close()
}

type keyStroke struct {
	code  int
	shift bool
}

var usLayout = buildUSLayout()

func buildUSLayout() map[rune]keyStroke {
	m := make(map[rune]keyStroke, 96)

	letters := []int{
		uinput.KeyA, uinput.KeyB, uinput.KeyC, uinput.KeyD, uinput.KeyE, uinput.KeyF,
		uinput.KeyG, uinput.KeyH, uinput.KeyI, uinput.KeyJ, uinput.KeyK, uinput.KeyL,
		uinput.KeyM, uinput.KeyN, uinput.KeyO, uinput.KeyP, uinput.KeyQ, uinput.KeyR,
		uinput.KeyS, uinput.KeyT, uinput.KeyU, uinput.KeyV, uinput.KeyW, uinput.KeyX,
		uinput.KeyY, uinput.KeyZ,
	}
	for i, code := range letters {
		m['a'+rune(i)] = keyStroke{code: code}
		m['A'+rune(i)] = keyStroke{code: code, shift: true}
	}

	digits := []int{
		uinput.Key0, uinput.Key1, uinput.Key2, uinput.Key3, uinput.Key4,
		uinput.Key5, uinput.Key6, uinput.Key7, uinput.Key8, uinput.Key9,
	}
	for i, code := range digits {
		m['0'+rune(i)] = keyStroke{code: code}
	}
	for r, code := range map[rune]int{
		')': uinput.Key0, '!': uinput.Key1, '@': uinput.Key2, '#': uinput.Key3, '$': uinput.Key4,
		'%': uinput.Key5, '^': uinput.Key6, '&': uinput.Key7, '*': uinput.Key8, '(': uinput.Key9,
	} {
		m[r] = keyStroke{code: code, shift: true}
	}

	punct := []struct {
		plain, shifted rune
		code           int
	}{
		{'-', '_', uinput.KeyMinus},
		{'=', '+', uinput.KeyEqual},
		{'[', '{', uinput.KeyLeftbrace},
		{']', '}', uinput.KeyRightbrace},
		{';', ':', uinput.KeySemicolon},
		{'\'', '"', uinput.KeyApostrophe},
		{'`', '~', uinput.KeyGrave},
		{'\\', '|', uinput.KeyBackslash},
		{',', '<', uinput.KeyComma},
		{'.', '>', uinput.KeyDot},
		{'/', '?', uinput.KeySlash},
	}
	for _, p := range punct {
		m[p.plain] = keyStroke{code: p.code}
		m[p.shifted] = keyStroke{code: p.code, shift: true}
	}

	m[' '] = keyStroke{code: uinput.KeySpace}
	m['\t'] = keyStroke{code: uinput.KeyTab}
	m['\n'] = keyStroke{code: uinput.KeyEnter}
	return m
}
