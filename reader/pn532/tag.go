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

package pn532

import (
	"context"
	"encoding/hex"

	"github.com/ZaparooProject/tapwedge/reader"
)

// Tag is a Type 2 tag selected by InListPassiveTarget.
type Tag struct {
	dev    *Device
	reads  *readGate
	uid    string
	target Target
}

func newTag(dev *Device, tgt Target, gate *readGate) *Tag {
	return &Tag{
		dev:    dev,
		reads:  gate,
		uid:    hex.EncodeToString(tgt.UID),
		target: tgt,
	}
}

// UID returns the NFCID1 as lowercase hex.
func (t *Tag) UID() string {
	return t.uid
}

// Read reads tag memory sixteen bytes at a time. Polling pauses while a
// read is in progress, so the target stays selected. A read that finds the
// card gone makes the next empty poll report its removal.
func (t *Tag) Read(ctx context.Context, blockStart, maxBytes int) ([]byte, error) {
	t.reads.begin()
	data, err := reader.ReadPages(ctx, t.uid, blockStart, maxBytes, func(ctx context.Context, page int) ([]byte, error) {
		return t.dev.ReadPages(ctx, t.target.Number, page)
	})
	t.reads.end(err)
	return data, err
}
