// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat conversations and their messages.
//
// # Key Types
//
//   - Conversation: Container for a chat session with messages and metadata
//   - Message: Single message with role, content, timestamp, and streaming state
//   - Role: Message role enumeration (user, assistant)
//
// # Usage
//
// Create a conversation and append a message:
//
//	conv := model.NewConversation()
//	conv.AddMessage(model.NewUserMessage("Hello!"))
//
// Stream an assistant reply:
//
//	msg := model.NewAssistantMessage()
//	msg.AppendDelta("partial ")
//	msg.AppendDelta("answer")
//	msg.Finalize()
package model
