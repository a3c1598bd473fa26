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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func TestDetectPort(t *testing.T) {
	t.Parallel()

	errNoDetails := errors.New("no details")

	tests := []struct {
		detailErr error
		name      string
		want      string
		details   []*enumerator.PortDetails
		names     []string
		wantErr   bool
	}{
		{
			name: "known bridge wins over other ports",
			details: []*enumerator.PortDetails{
				{Name: "/dev/ttyS0"},
				{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"},
				{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523"},
			},
			want: "/dev/ttyUSB0",
		},
		{
			name: "vid pid compared case insensitively",
			details: []*enumerator.PortDetails{
				{Name: "COM4", IsUSB: true, VID: "10c4", PID: "ea60"},
			},
			want: "COM4",
		},
		{
			name:    "no known bridge",
			details: []*enumerator.PortDetails{{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"}},
			wantErr: true,
		},
		{
			name:      "single port without details",
			detailErr: errNoDetails,
			names:     []string{"/dev/ttyAMA0"},
			want:      "/dev/ttyAMA0",
		},
		{
			name:      "ambiguous ports without details",
			detailErr: errNoDetails,
			names:     []string{"/dev/ttyAMA0", "/dev/ttyS0"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := portLister{
				detailed: func() ([]*enumerator.PortDetails, error) { return tt.details, tt.detailErr },
				names:    func() ([]string, error) { return tt.names, nil },
			}
			got, err := l.detect()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrDeviceNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
