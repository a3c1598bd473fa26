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

package reader

import (
	"context"

	"github.com/ZaparooProject/tapwedge/pkg/ndef"
)

// Type 2 tag geometry.
const (
	PageSize = 4
	// ReadChunk is what one READ command returns: four pages.
	ReadChunk = 16
	// UserDataPage is the first page of the NDEF data area.
	UserDataPage = 4
)

// PageReader reads ReadChunk bytes starting at page.
type PageReader func(ctx context.Context, page int) ([]byte, error)

// ReadPages reads tag memory in READ-sized chunks from blockStart until
// maxBytes are collected or the data area holds a complete NDEF TLV followed
// by a Terminator TLV. A failing chunk after a complete NDEF TLV is treated
// as the end of tag memory, as is an empty chunk after any data; any other
// failure is a *ReadError.
func ReadPages(ctx context.Context, uid string, blockStart, maxBytes int, read PageReader) ([]byte, error) {
	out := make([]byte, 0, maxBytes)
	page := blockStart

	for len(out) < maxBytes {
		if err := ctx.Err(); err != nil {
			return nil, &ReadError{UID: uid, Page: page, Err: err}
		}

		chunk, err := read(ctx, page)
		if err != nil {
			if len(out) > 0 && hasCompleteNDEF(out) {
				return out, nil
			}
			return nil, &ReadError{UID: uid, Page: page, Err: err}
		}

		if len(chunk) == 0 {
			if len(out) > 0 {
				return out, nil
			}
			return nil, &ReadError{UID: uid, Page: page, Err: ErrNoData}
		}

		need := maxBytes - len(out)
		if len(chunk) > need {
			chunk = chunk[:need]
		}
		out = append(out, chunk...)
		page += ReadChunk / PageSize

		if terminated(out) {
			break
		}
	}

	return out, nil
}

func hasCompleteNDEF(data []byte) bool {
	blocks, err := ndef.ScanTLV(data)
	if err != nil {
		return false
	}
	for _, b := range blocks {
		if b.Type == ndef.TLVTypeNDEF {
			return true
		}
	}
	return false
}

func terminated(data []byte) bool {
	blocks, err := ndef.ScanTLV(data)
	if err != nil || len(blocks) == 0 {
		return false
	}
	return blocks[len(blocks)-1].Type == ndef.TLVTypeTerminator && hasCompleteNDEF(data)
}
