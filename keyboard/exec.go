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

package keyboard

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ZaparooProject/tapwedge/replay"
)

// tool describes how one automation program types text and taps keys.
type tool struct {
	typeArgs func(s string) []string
	keyArgs  func(k replay.Key) []string
	name     string
}

var (
	xdotool = tool{
		name: "xdotool",
		typeArgs: func(s string) []string {
			return []string{"type", "--delay", "0", "--", s}
		},
		keyArgs: func(k replay.Key) []string {
			return []string{"key", xKeysym(k)}
		},
	}

	xte = tool{
		name: "xte",
		typeArgs: func(s string) []string {
			return []string{"str " + s}
		},
		keyArgs: func(k replay.Key) []string {
			return []string{"key " + xKeysym(k)}
		},
	}

	osascript = tool{
		name: "osascript",
		typeArgs: func(s string) []string {
			return []string{"-e", `tell application "System Events" to keystroke "` + appleScriptEscape(s) + `"`}
		},
		keyArgs: func(k replay.Key) []string {
			if k == replay.KeyTab {
				return []string{"-e", `tell application "System Events" to key code 48`}
			}
			return []string{"-e", `tell application "System Events" to keystroke return`}
		},
	}

	powershell = tool{
		name: "powershell",
		typeArgs: func(s string) []string {
			return sendKeys(sendKeysEscape(s))
		},
		keyArgs: func(k replay.Key) []string {
			if k == replay.KeyTab {
				return sendKeys("{TAB}")
			}
			return sendKeys("{ENTER}")
		},
	}
)

func xKeysym(k replay.Key) string {
	if k == replay.KeyTab {
		return "Tab"
	}
	return "Return"
}

func sendKeys(keys string) []string {
	script := "Add-Type -AssemblyName System.Windows.Forms; " +
		"[System.Windows.Forms.SendKeys]::SendWait('" + strings.ReplaceAll(keys, "'", "''") + "')"
	return []string{"-NoProfile", "-NonInteractive", "-Command", script}
}

// sendKeysEscape braces the characters SendKeys treats as commands.
func sendKeysEscape(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '+', '^', '%', '~', '(', ')', '[', ']', '{', '}':
			sb.WriteString("{" + string(r) + "}")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// runner executes a program; replaced in tests.
type runner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Exec injects keystrokes by running the platform's automation tool:
// xdotool or xte on Linux, osascript on macOS and PowerShell SendKeys on
// Windows. Each call spawns one process, so it implements
// replay.StringTyper to type whole runs at once.
type Exec struct {
	run  runner
	tool tool
}

// NewExec picks the automation tool for the running OS.
func NewExec() (*Exec, error) {
	t, err := detectTool(runtime.GOOS, exec.LookPath)
	if err != nil {
		return nil, err
	}
	return &Exec{tool: t, run: runCommand}, nil
}

func detectTool(goos string, lookPath func(string) (string, error)) (tool, error) {
	var candidates []tool
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		candidates = []tool{xdotool, xte}
	case "darwin":
		candidates = []tool{osascript}
	case "windows":
		candidates = []tool{powershell}
	default:
		return tool{}, ErrUnsupportedPlatform
	}

	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, err := lookPath(c.name); err == nil {
			return c, nil
		}
		names = append(names, c.name)
	}
	return tool{}, fmt.Errorf("%w (install %s)", ErrNoTool, strings.Join(names, " or "))
}

// Tool returns the name of the automation program in use.
func (e *Exec) Tool() string {
	return e.tool.name
}

// Tap presses and releases a non-character key.
func (e *Exec) Tap(ctx context.Context, key replay.Key) error {
	return e.run(ctx, e.tool.name, e.tool.keyArgs(key)...)
}

// TypeRune types one character.
func (e *Exec) TypeRune(ctx context.Context, r rune) error {
	return e.TypeString(ctx, string(r))
}

// TypeString types s in a single tool invocation.
func (e *Exec) TypeString(ctx context.Context, s string) error {
	return e.run(ctx, e.tool.name, e.tool.typeArgs(s)...)
}

// Close is a no-op; Exec holds no resources.
func (*Exec) Close() error {
	return nil
}

var _ replay.StringTyper = (*Exec)(nil)
