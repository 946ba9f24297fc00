// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Message is a role/content pair as sent on the wire. Streaming flags and
// message IDs are local concerns and never leave the client.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the JSON body of a streaming chat request: the ordered
// prior messages plus the new user message text.
type ChatRequest struct {
	Messages []Message `json:"messages"`
	Message  string    `json:"message"`
}

// StreamChunk is one unit of streamed output delivered to channel consumers.
// Exactly one of Content or Err is meaningful; Done marks the final chunk.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// GenerateResponse is the envelope returned by the non-streaming generator
// endpoints: {success, data | error}.
type GenerateResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// errorBody is the JSON error envelope servers send on non-2xx responses.
type errorBody struct {
	Error string `json:"error"`
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the chat API client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeServer
	ErrTypeInvalidResponse
	ErrTypeCanceled
)

// Sentinel errors for easy checking.
var (
	ErrUnreachable = &ClientError{Type: ErrTypeConnection, Message: "unable to reach the chat service"}
	ErrTimeout     = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrIdleStream  = &ClientError{Type: ErrTypeTimeout, Message: "stream stalled without closing"}
)

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if asClientError(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// IsServerError checks if an error carries a server-reported message
// (an explicit error frame or a non-2xx error body).
func IsServerError(err error) bool {
	var clientErr *ClientError
	if asClientError(err, &clientErr) {
		return clientErr.Type == ErrTypeServer
	}
	return false
}

func asClientError(err error, target **ClientError) bool {
	return errors.As(err, target)
}
