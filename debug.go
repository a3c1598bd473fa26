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

package tapwedge

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DebugEnv enables debug logging when set to any non-empty value.
const DebugEnv = "TAPWEDGE_DEBUG"

// InitLogging points the global zerolog logger at a console writer on
// console, plus the session log file when one is open. Debug level is used
// when debug is true or DebugEnv is set; info otherwise.
func InitLogging(console io.Writer, debug bool) {
	if os.Getenv(DebugEnv) != "" {
		debug = true
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05.000"}
	if sessionLogWriter != nil {
		// The file gets debug lines even when the console does not.
		out = zerolog.MultiLevelWriter(
			levelFilter{w: out, min: level},
			sessionLogWriter,
		)
		level = zerolog.DebugLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// levelFilter drops events below min before they reach w.
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f levelFilter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
