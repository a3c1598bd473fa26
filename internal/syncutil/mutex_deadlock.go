//go:build deadlock

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

// Package syncutil selects the mutex implementation used by the session
// controller and the reader drivers. Building with -tags=deadlock swaps in
// go-deadlock, which reports lock-order inversions and locks held longer
// than the configured timeout.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// Mutex is a deadlock-detecting mutex.
type Mutex = deadlock.Mutex

// RWMutex is a deadlock-detecting reader/writer mutex.
type RWMutex = deadlock.RWMutex

// Report any lock held for more than five seconds.
func init() {
	deadlock.Opts.DeadlockTimeout = 5 * time.Second
}
