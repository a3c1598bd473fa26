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
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// knownBridges are USB serial bridges PN532 boards commonly ship with,
// keyed by VID:PID.
var knownBridges = map[string]string{
	"067B:2303": "Prolific PL2303",
	"0403:6001": "FTDI FT232",
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "WCH CH340",
}

type portLister struct {
	detailed func() ([]*enumerator.PortDetails, error)
	names    func() ([]string, error)
}

var systemPorts = portLister{
	detailed: enumerator.GetDetailedPortsList,
	names:    serial.GetPortsList,
}

// DetectPort returns the first serial port behind a known PN532 USB bridge.
// When USB details are unavailable a lone serial port is taken as is.
func DetectPort() (string, error) {
	return systemPorts.detect()
}

func (l portLister) detect() (string, error) {
	ports, err := l.detailed()
	if err == nil {
		for _, p := range ports {
			if !p.IsUSB {
				continue
			}
			id := strings.ToUpper(p.VID + ":" + p.PID)
			if bridge, ok := knownBridges[id]; ok {
				log.Debug().Str("port", p.Name).Str("vidpid", id).Str("bridge", bridge).Msg("found PN532 serial port")
				return p.Name, nil
			}
		}
		return "", fmt.Errorf("%w: no serial port with a known PN532 USB bridge", ErrDeviceNotFound)
	}

	log.Debug().Err(err).Msg("USB port details unavailable")
	names, err := l.names()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	if len(names) == 1 {
		return names[0], nil
	}
	return "", fmt.Errorf("%w: %d serial ports, pass one explicitly", ErrDeviceNotFound, len(names))
}
