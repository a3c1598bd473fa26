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
	"fmt"

	"github.com/ZaparooProject/tapwedge/internal/frame"
)

// Transport carries one command frame to the PN532 and returns the data of
// its response frame, with the response code removed.
type Transport interface {
	SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error)
	Close() error
	// String names the port or bus for logs.
	String() string
}

// responseData checks that f answers cmd and strips the response code.
func responseData(op, port string, cmd byte, f frame.Frame) ([]byte, error) {
	switch f.Kind {
	case frame.KindData:
	case frame.KindError:
		return nil, NewTransportError(op, port,
			fmt.Errorf("%w: application error frame for 0x%02X", ErrInvalidResponse, cmd), ErrorTypeTransient)
	default:
		return nil, NewInvalidResponseError(op, port)
	}
	if len(f.Data) == 0 || f.Data[0] != cmd+1 {
		return nil, NewTransportError(op, port,
			fmt.Errorf("%w: response % X to command 0x%02X", ErrInvalidResponse, f.Data, cmd), ErrorTypeTransient)
	}
	return f.Data[1:], nil
}
