// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
)

// frameMarker prefixes every non-empty frame on the wire.
var frameMarker = []byte("data: ")

// =============================================================================
// FRAME TYPE
// =============================================================================

// FrameKind tags the decoded variant of one newline-delimited frame.
type FrameKind int

const (
	// FrameUnparseable marks frames that carry nothing usable: blank lines,
	// lines without the event marker, or broken JSON. The stream policy is
	// deliberate leniency: these are skipped, never fatal.
	FrameUnparseable FrameKind = iota

	// FrameContent carries a text delta to append.
	FrameContent

	// FrameError carries a server-reported error that terminates the stream.
	FrameError
)

// Frame is the tagged-variant decode of one wire frame.
type Frame struct {
	Kind    FrameKind
	Content string
	Err     string
}

// DecodeFrame parses a single newline-delimited line into a Frame.
// The line must be `data: ` followed by a JSON object holding either a
// `content` delta or an `error` message; anything else is FrameUnparseable.
func DecodeFrame(line []byte) Frame {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Frame{Kind: FrameUnparseable}
	}
	if !bytes.HasPrefix(line, frameMarker) {
		return Frame{Kind: FrameUnparseable}
	}

	var payload struct {
		Content *string `json:"content"`
		Error   *string `json:"error"`
	}
	if err := json.Unmarshal(bytes.TrimPrefix(line, frameMarker), &payload); err != nil {
		return Frame{Kind: FrameUnparseable}
	}

	if payload.Error != nil && *payload.Error != "" {
		return Frame{Kind: FrameError, Err: *payload.Error}
	}
	if payload.Content != nil {
		return Frame{Kind: FrameContent, Content: *payload.Content}
	}
	return Frame{Kind: FrameUnparseable}
}

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line frame parsing of a streaming response.
type StreamReader struct {
	reader *bufio.Reader

	// onFrame observes every decoded frame, unparseable ones included.
	// Used by the idle watchdog to note liveness; may be nil.
	onFrame func(Frame)
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Process reads the stream until EOF, an error frame, or cancellation,
// calling onDelta for each content delta in arrival order. Content is
// append-only; no buffering beyond the current frame.
//
// Returns nil on normal stream end, a ClientError with the server message
// on an error frame, or the context/transport error otherwise.
func (s *StreamReader) Process(ctx context.Context, onDelta func(delta string)) error {
	for {
		select {
		case <-ctx.Done():
			return &ClientError{Type: ErrTypeCanceled, Message: "stream canceled", Cause: ctx.Err()}
		default:
		}

		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			frame := DecodeFrame(line)
			if s.onFrame != nil {
				s.onFrame(frame)
			}
			switch frame.Kind {
			case FrameContent:
				onDelta(frame.Content)
			case FrameError:
				return &ClientError{Type: ErrTypeServer, Message: frame.Err}
			case FrameUnparseable:
				// Skipped by policy; malformed frames contribute nothing.
			}
		}

		if err != nil {
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return &ClientError{Type: ErrTypeCanceled, Message: "stream canceled", Cause: ctx.Err()}
			}
			return &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
		}
	}
}
