// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the chat view component for the pulsechat TUI.

The package implements the interactive chat surface using the Bubble Tea
framework: a scrolling transcript, a text input, a conversation list overlay,
and a delete confirmation overlay.

# Key Components

## Model (model.go)

The central Bubble Tea model. It holds only a transient display copy of the
active conversation; the store stays authoritative and the copy is re-derived
after every mutation.

## Update Loop (update.go)

Key dispatch per view mode, streaming lifecycle handling, and viewport
synchronization.

## Streaming (streaming.go)

StreamingBuffer batches arriving tokens for rendering. Batching affects only
the render cadence; the store receives every delta in arrival order before it
enters this buffer.

## View Rendering (view.go)

Header, message bubbles, code highlighting, status bar, and the overlays.
*/
package chat
