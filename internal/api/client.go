// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the remote chat streaming endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the chat API client.
type ClientConfig struct {
	// BaseURL is the chat service base URL.
	BaseURL string

	// ChatPath is the streaming chat endpoint path (default: /api/chat).
	ChatPath string

	// Timeout for non-streaming requests (default: 30s).
	Timeout time.Duration

	// IdleTimeout bounds the gap between stream reads; if the remote end
	// stalls without closing the connection, the stream is aborted
	// (default: 60s).
	IdleTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:     "http://127.0.0.1:8787",
		ChatPath:    "/api/chat",
		Timeout:     30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the chat service.
// It is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client

	// streamClient has no whole-request timeout; streams are bounded by the
	// idle watchdog and the caller's context instead. Held on the struct so
	// connections are reused across sends.
	streamClient *http.Client
}

// NewClient creates a new client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8787"
	}
	if config.ChatPath == "" {
		config.ChatPath = "/api/chat"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 60 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		streamClient: &http.Client{},
	}
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream opens a streaming chat request and calls onDelta for each
// content delta, synchronously and in arrival order. It returns when the
// stream completes, the server sends an error frame, the idle timeout
// fires, or the context is canceled.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, onDelta func(delta string)) error {
	body, err := json.Marshal(req)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.config.BaseURL+c.config.ChatPath, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		if errors.Is(err, context.Canceled) {
			return &ClientError{Type: ErrTypeCanceled, Message: "request canceled", Cause: err}
		}
		return ErrUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Surface the server-provided message when there is one, otherwise
		// a generic connectivity error.
		var serverErr errorBody
		if decodeErr := json.NewDecoder(resp.Body).Decode(&serverErr); decodeErr == nil && serverErr.Error != "" {
			return &ClientError{Type: ErrTypeServer, Message: serverErr.Error}
		}
		return &ClientError{Type: ErrTypeConnection, Message: "chat request failed: " + resp.Status}
	}

	// Idle watchdog: cancel the read loop if no frame arrives within the
	// idle timeout. Reset on every frame, well-formed or not.
	var idleFired atomic.Bool
	watchdog := time.AfterFunc(c.config.IdleTimeout, func() {
		idleFired.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	reader := NewStreamReader(resp.Body)
	reader.onFrame = func(Frame) {
		watchdog.Reset(c.config.IdleTimeout)
	}

	err = reader.Process(streamCtx, onDelta)
	if err != nil && idleFired.Load() {
		return ErrIdleStream
	}
	return err
}

// ChatStreamChan opens a streaming chat request and returns a channel of
// chunks. The channel is closed after the final chunk; errors are delivered
// as a chunk with Err set and Done true.
func (c *Client) ChatStreamChan(ctx context.Context, req ChatRequest) <-chan StreamChunk {
	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)

		err := c.ChatStream(ctx, req, func(delta string) {
			select {
			case ch <- StreamChunk{Content: delta}:
			case <-ctx.Done():
			}
		})

		// Always deliver a terminal chunk unless the consumer is gone.
		select {
		case ch <- StreamChunk{Done: true, Err: err}:
		case <-ctx.Done():
		}
	}()

	return ch
}

// =============================================================================
// GENERATOR ENDPOINTS (non-streaming)
// =============================================================================

// Generate posts a form-shaped payload to a generator endpoint and returns
// the data payload from the {success, data | error} envelope.
func (c *Client) Generate(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrUnreachable
	}
	defer resp.Body.Close()

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "generation failed: " + resp.Status
		}
		return nil, &ClientError{Type: ErrTypeServer, Message: msg}
	}

	return result.Data, nil
}
