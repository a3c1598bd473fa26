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

// Command tapwedge types the text record of each presented NFC tag into the
// focused application.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/tapwedge"
	"github.com/ZaparooProject/tapwedge/keyboard"
	"github.com/ZaparooProject/tapwedge/reader"
	"github.com/ZaparooProject/tapwedge/reader/pcsc"
	"github.com/ZaparooProject/tapwedge/reader/pn532"
	"github.com/ZaparooProject/tapwedge/replay"
	"github.com/ZaparooProject/tapwedge/session"
	"github.com/rs/zerolog/log"
)

// Reader backends.
const (
	backendPCSC  = "pcsc"
	backendPN532 = "pn532"
)

var errUnknownBackend = errors.New("unknown reader backend")

type config struct {
	backend   string
	device    string
	transport string
	reader    string
	keyboard  string
	pipeline  tapwedge.Config
	debug     bool
	logFile   bool
}

// Package-level flag variables
var (
	flagBackend    string
	flagDevice     string
	flagTransport  string
	flagReader     string
	flagKeyboard   string
	flagDebug      bool
	flagLogFile    bool
	flagStartDelay time.Duration
	flagDebounce   time.Duration
	flagReadCap    int
	flagBlockStart int
	flagBatchSize  int
	flagAutoEnter  bool
)

func init() {
	defaults := tapwedge.DefaultConfig()

	flag.StringVar(&flagBackend, "backend", backendPCSC, "Reader backend: pcsc or pn532")
	flag.StringVar(&flagDevice, "device", "", "PN532 serial port or I2C bus (auto-detect if empty)")
	flag.StringVar(&flagTransport, "transport", pn532.TransportUART, "PN532 transport: uart or i2c")
	flag.StringVar(&flagReader, "reader", "", "PC/SC reader name filter (first reader if empty)")
	flag.StringVar(&flagKeyboard, "keyboard", keyboard.BackendAuto,
		"Keyboard backend: "+strings.Join(keyboard.Names(), ", "))
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output (also "+tapwedge.DebugEnv+")")
	flag.BoolVar(&flagLogFile, "log-file", false, "Write a session log file to the working directory")
	flag.DurationVar(&flagStartDelay, "start-delay", defaults.StartDelay, "Wait before typing")
	flag.DurationVar(&flagDebounce, "debounce", defaults.Debounce, "Ignore new tags for this long after one is typed")
	flag.IntVar(&flagReadCap, "read-cap", defaults.ReadCap, "Bytes of tag memory to read")
	flag.IntVar(&flagBlockStart, "block-start", defaults.BlockStart, "First tag page to read")
	flag.IntVar(&flagBatchSize, "batch-size", defaults.BatchSize, "Characters typed between yields")
	flag.BoolVar(&flagAutoEnter, "auto-enter", defaults.AutoEnter, "Press Enter after the text")
}

func parseConfig() (*config, error) {
	cfg := &config{
		backend:   strings.ToLower(flagBackend),
		device:    flagDevice,
		transport: strings.ToLower(flagTransport),
		reader:    flagReader,
		keyboard:  flagKeyboard,
		debug:     flagDebug,
		logFile:   flagLogFile,
		pipeline: tapwedge.Config{
			StartDelay: flagStartDelay,
			Debounce:   flagDebounce,
			ReadCap:    flagReadCap,
			BlockStart: flagBlockStart,
			BatchSize:  flagBatchSize,
			AutoEnter:  flagAutoEnter,
		},
	}

	if err := cfg.pipeline.Validate(); err != nil {
		return nil, err
	}
	if cfg.backend != backendPCSC && cfg.backend != backendPN532 {
		return nil, fmt.Errorf("%w: %q (want %s or %s)", errUnknownBackend, flagBackend, backendPCSC, backendPN532)
	}
	return cfg, nil
}

// newDriver opens the configured reader backend.
func newDriver(cfg *config) (reader.Driver, error) {
	switch cfg.backend {
	case backendPCSC:
		return pcsc.New(cfg.reader), nil
	case backendPN532:
		drv, err := pn532.New(pn532.Options{Transport: cfg.transport, Device: cfg.device})
		if err != nil {
			return nil, fmt.Errorf("failed to create PN532 driver: %w", err)
		}
		return drv, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, cfg.backend)
	}
}

// serve runs drv and feeds its events to a session controller until the
// driver stops or ctx is cancelled.
func serve(ctx context.Context, drv reader.Driver, kb replay.Keyboard, cfg tapwedge.Config) error {
	pipeline := &tapwedge.Pipeline{Keyboard: kb, Config: cfg}
	ctrl := session.New(pipeline.Process, session.Config{Debounce: cfg.Debounce})
	ctrl.OnDone(func(uid string, err error) {
		if err == nil {
			log.Info().Str("uid", uid).Msg("tag typed")
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Warn().Err(err).Str("uid", uid).Str("kind", tapwedge.Classify(err)).Msg("tag not typed")
	})

	driverErr := make(chan error, 1)
	go func() {
		driverErr <- drv.Run(ctx)
	}()

	ctrlErr := ctrl.Run(ctx, drv.Events())
	if err := <-driverErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctrlErr
}

func run(ctx context.Context, cfg *config) error {
	drv, err := newDriver(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := drv.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close reader")
		}
	}()

	kb, err := keyboard.New(cfg.keyboard)
	if err != nil {
		return fmt.Errorf("failed to open keyboard: %w", err)
	}
	defer func() {
		if err := kb.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close keyboard")
		}
	}()

	log.Info().
		Str("backend", cfg.backend).
		Str("keyboard", cfg.keyboard).
		Bool("auto_enter", cfg.pipeline.AutoEnter).
		Msg("waiting for tags, press Ctrl+C to stop")

	return serve(ctx, drv, kb, cfg.pipeline)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if cfg.logFile {
		path, err := tapwedge.InitSessionLog()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to open session log: %v\n", err)
		} else {
			defer func() { _ = tapwedge.CloseSessionLog() }()
			_, _ = fmt.Fprintf(os.Stderr, "Session log: %s\n", path)
		}
	}
	tapwedge.InitLogging(os.Stderr, cfg.debug)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Fprint(os.Stderr, "\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		log.Error().Err(err).Msg("tapwedge stopped")
		return 1
	}
	return 0
}
