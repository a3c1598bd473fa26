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

// Package keyboard provides the input-injection backends that replay
// drives: OS automation tools, a Linux uinput virtual keyboard, the system
// clipboard and a logging dry run.
package keyboard

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/ZaparooProject/tapwedge/replay"
	"github.com/rs/zerolog/log"
)

// Backend names accepted by New.
const (
	BackendAuto      = "auto"
	BackendExec      = "exec"
	BackendUinput    = "uinput"
	BackendClipboard = "clipboard"
	BackendLog       = "log"
)

var (
	// ErrUnsupportedPlatform is returned when a backend cannot run on this OS.
	ErrUnsupportedPlatform = errors.New("keyboard backend not supported on " + runtime.GOOS)
	// ErrNoTool is returned when no automation tool is installed.
	ErrNoTool = errors.New("no keyboard automation tool found")
	// ErrUnknownBackend is returned by New for an unrecognized name.
	ErrUnknownBackend = errors.New("unknown keyboard backend")
)

// Keyboard is a replay keyboard that may hold OS resources.
type Keyboard interface {
	replay.Keyboard
	Close() error
}

// Names lists the backend names New accepts.
func Names() []string {
	return []string{BackendAuto, BackendExec, BackendUinput, BackendClipboard, BackendLog}
}

// New opens the named backend. "auto" prefers a uinput virtual keyboard
// when /dev/uinput is writable and falls back to the OS automation tools.
func New(name string) (Keyboard, error) {
	switch strings.ToLower(name) {
	case BackendAuto, "":
		if UinputAvailable() {
			kb, err := NewUinput()
			if err == nil {
				return kb, nil
			}
			log.Debug().Err(err).Msg("uinput keyboard unavailable, falling back to exec")
		}
		return open(NewExec())
	case BackendExec:
		return open(NewExec())
	case BackendUinput:
		return open(NewUinput())
	case BackendClipboard:
		return open(NewClipboard())
	case BackendLog:
		return NewLog(log.Logger), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownBackend, name, strings.Join(Names(), ", "))
	}
}

// open keeps a failed constructor from yielding a non-nil interface.
func open[K Keyboard](kb K, err error) (Keyboard, error) {
	if err != nil {
		return nil, err
	}
	return kb, nil
}
