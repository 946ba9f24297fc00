// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the plain-terminal REPL for pulsechat.
//
// The REPL is the fallback surface when stdin or stdout is not a terminal
// capable of hosting the TUI, and can be forced with the -repl flag. It
// offers line editing and input history through liner, markdown rendering of
// finalized replies through glamour, and a small set of slash commands for
// conversation management.
//
// # Key Types
//
//   - Session: State for one interactive run (store, consumer, input)
//   - InputCLI: Line editing and persistent input history
//
// # Usage
//
//	err := cli.Run(cfg, st, consumer)
package cli
