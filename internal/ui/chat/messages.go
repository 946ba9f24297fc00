// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file defines all Bubble Tea message types used by the chat interface.
// Messages are organized into the following categories:
//   - Streaming: Stream start, token delivery, completion, and errors
//   - Store: External history reloads
//   - Errors: Error display and dismissal
//
// All message types follow Bubble Tea conventions and are immutable.

package chat

import "time"

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamStartMsg signals that a send operation has begun and the user and
// placeholder assistant messages are in the store.
type StreamStartMsg struct {
	ConversationID string
	UserMessageID  string
	MessageID      string
	StartTime      time.Time
}

// StreamTokenMsg delivers a new content delta from the stream.
type StreamTokenMsg struct {
	MessageID string
	Token     string
}

// StreamCompleteMsg signals that streaming has finished. Canceled is true
// when the stream was aborted by the user and partial content was kept.
type StreamCompleteMsg struct {
	MessageID string
	Canceled  bool
}

// StreamErrorMsg signals a failed send. The assistant message already holds
// the error-wrapped content; Error carries the cause for the toast.
type StreamErrorMsg struct {
	MessageID string
	Error     error
}

// StreamTickMsg drives the batched streaming render loop.
type StreamTickMsg struct {
	Time time.Time
}

// =============================================================================
// STORE MESSAGES
// =============================================================================

// StoreReloadedMsg signals that the history file was rewritten by another
// process and the store has been reloaded.
type StoreReloadedMsg struct{}

// =============================================================================
// ERROR MESSAGES
// =============================================================================

// ErrorToastMsg shows a transient, dismissable error notice.
type ErrorToastMsg struct {
	Message string
}

// DismissErrorMsg clears the error notice.
type DismissErrorMsg struct{}
