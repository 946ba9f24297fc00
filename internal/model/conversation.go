// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/pulsechat/internal/util"
)

// TitlePlaceholder is the title given to a conversation before any user
// message arrives. The first user message rewrites it exactly once.
const TitlePlaceholder = "New conversation"

// TitleMaxRunes is the character budget for auto-generated titles.
const TitleMaxRunes = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a titled, timestamped, ordered sequence of messages.
// It is the unit of persisted chat history.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages (insertion order = display order)
	Messages []*Message `json:"messages"`
}

// NewConversation creates a new conversation with a generated ID, the
// placeholder title, and timestamps set to now.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        generateConversationID(),
		Title:     TitlePlaceholder,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message, refreshes UpdatedAt, and rewrites the title
// from the first user message if it is still the placeholder.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.rewriteTitle()
}

// AddUserMessage creates and appends a user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and appends a streaming assistant message.
func (c *Conversation) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	c.AddMessage(msg)
	return msg
}

// MessageByID returns a message by its ID, or nil.
func (c *Conversation) MessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Touch refreshes UpdatedAt. Called by the store on any mutation that does
// not go through AddMessage (streamed chunks, patches).
func (c *Conversation) Touch() {
	c.UpdatedAt = time.Now()
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// rewriteTitle sets the title from the first user message, once.
// After the placeholder has been replaced the title never changes again.
func (c *Conversation) rewriteTitle() {
	if c.Title != TitlePlaceholder && c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = util.TitleFromText(msg.Content, TitleMaxRunes)
			return
		}
	}
}

// =============================================================================
// SERIALIZATION HELPERS
// =============================================================================

// Preview returns a short preview of the conversation for list display.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg.Preview(80)
		}
	}
	if len(c.Messages) == 0 {
		return "Empty conversation"
	}
	return c.Messages[0].Preview(80)
}

// Clone creates a deep copy of the conversation. The UI holds only a
// display-copy; the store owns the canonical messages.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		msgCopy := Message{
			ID:          msg.ID,
			Role:        msg.Role,
			Timestamp:   msg.Timestamp,
			Content:     msg.DisplayContent(),
			IsStreaming: msg.IsStreaming,
		}
		if msgCopy.IsStreaming {
			// Re-seed the builder so further deltas on the copy still work.
			msgCopy.Content = ""
			msgCopy.streamContent.WriteString(msg.DisplayContent())
		}
		clone.Messages[i] = &msgCopy
	}
	return clone
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	return "conv_" + uuid.NewString()
}
