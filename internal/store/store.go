// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides conversation persistence for pulsechat.
//
// The Store is the sole owner of conversation and message lifetime. All
// history is serialized as a single JSON document and rewritten in full on
// every mutation; hosts hold only display copies derived from the store.
package store

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/pulsechat/internal/model"
	"github.com/jeranaias/pulsechat/internal/util"
)

// HistoryFileName is the fixed name of the persisted history document.
const HistoryFileName = "history.json"

// =============================================================================
// PERSISTED TYPES
// =============================================================================

// storedConversation is the persisted form of a conversation.
type storedConversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []storedMessage `json:"messages"`
}

// storedMessage is the persisted form of a message. In-progress streaming
// content is persisted as-is; the streaming flag itself is transient, so a
// reload always yields terminal messages.
type storedMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Meta contains lightweight conversation metadata for list display.
type Meta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
	Active       bool      `json:"-"`
}

// MessagePatch is a partial message update, used for streamed content growth
// and for finalizing the streaming flag.
type MessagePatch struct {
	// AppendDelta is appended to the message content in arrival order.
	AppendDelta string

	// Content, when set, replaces the message content entirely
	// (used for the error-wrapped failure text).
	Content *string

	// Streaming, when set, updates the streaming flag.
	Streaming *bool
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// Store holds all conversations in memory and persists them to a single
// JSON file. All access is serialized by a mutex: updates are
// read-modify-write on the full list.
type Store struct {
	mu sync.Mutex

	// path is the history file location.
	path string

	// conversations is kept sorted by UpdatedAt descending.
	conversations []*model.Conversation

	// activeID is the selected conversation, or "" when none exist.
	activeID string
}

// New creates a store persisting to the given directory.
func New(dir string) *Store {
	return &Store{path: filepath.Join(dir, HistoryFileName)}
}

// NewWithPath creates a store persisting to an explicit file path.
func NewWithPath(path string) *Store {
	return &Store{path: path}
}

// Path returns the history file path.
func (s *Store) Path() string {
	return s.path
}

// =============================================================================
// LOAD / PERSIST
// =============================================================================

// Load reads all persisted conversations. It fails soft: a missing or
// corrupt history file is treated as "no history", logged and never fatal.
// On success conversations are sorted by UpdatedAt descending and the most
// recently active one is selected.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
}

// Reload re-reads the history file, keeping the current selection when the
// conversation still exists. Used by the file watcher when another process
// rewrites the history.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevActive := s.activeID
	s.loadLocked()
	if prevActive != "" && s.findLocked(prevActive) != nil {
		s.activeID = prevActive
	}
}

func (s *Store) loadLocked() {
	s.conversations = nil
	s.activeID = ""

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("WARNING: failed to read history file %s: %v", s.path, err)
		}
		return
	}

	var stored []storedConversation
	if err := json.Unmarshal(data, &stored); err != nil {
		log.Printf("WARNING: corrupt history file %s, starting empty: %v", s.path, err)
		return
	}

	for _, sc := range stored {
		conv := &model.Conversation{
			ID:        sc.ID,
			Title:     sc.Title,
			CreatedAt: sc.CreatedAt,
			UpdatedAt: sc.UpdatedAt,
			Messages:  make([]*model.Message, 0, len(sc.Messages)),
		}
		for _, sm := range sc.Messages {
			role := model.Role(sm.Role)
			if !role.IsValid() {
				continue
			}
			conv.Messages = append(conv.Messages, &model.Message{
				ID:        sm.ID,
				Role:      role,
				Content:   sm.Content,
				Timestamp: sm.Timestamp,
			})
		}
		s.conversations = append(s.conversations, conv)
	}

	s.sortLocked()
	if len(s.conversations) > 0 {
		s.activeID = s.conversations[0].ID
	}
}

// Persist serializes the entire conversation list and writes it to the
// history file. This is a full-list rewrite, not an incremental append, so
// cost grows with total stored history. Write errors leave the in-memory
// state authoritative until the next successful write.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if len(s.conversations) == 0 {
		// The record is cleared entirely, not emptied: a later load of the
		// absent file yields "no history" rather than an empty-array document.
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			log.Printf("WARNING: failed to remove history file %s: %v", s.path, err)
			return err
		}
		return nil
	}

	stored := make([]storedConversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		stored = append(stored, toStored(conv))
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		log.Printf("WARNING: failed to serialize history: %v", err)
		return err
	}

	if err := util.AtomicWriteFile(s.path, data, 0644); err != nil {
		log.Printf("WARNING: failed to write history file %s: %v", s.path, err)
		return err
	}
	return nil
}

// =============================================================================
// LIFECYCLE OPERATIONS
// =============================================================================

// Create allocates a new conversation with an empty message list and the
// placeholder title, inserts it at the front, and makes it active.
func (s *Store) Create() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := model.NewConversation()
	s.conversations = append([]*model.Conversation{conv}, s.conversations...)
	s.activeID = conv.ID
	s.persistLocked()
	return conv.Clone()
}

// Select makes the conversation with the given ID active.
// No-op when the ID is not found.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(id) == nil {
		return false
	}
	s.activeID = id
	return true
}

// Delete removes the conversation with the given ID. Interactive
// confirmation is the caller's responsibility; the store mutates
// unconditionally. If the deleted conversation was active, the next most
// recent becomes active, or no conversation when none remain. Deleting the
// last conversation clears the persisted record entirely.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, conv := range s.conversations {
		if conv.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)

	if s.activeID == id {
		s.activeID = ""
		if len(s.conversations) > 0 {
			// Sorted by UpdatedAt descending, so the front is next-most-recent.
			s.activeID = s.conversations[0].ID
		}
	}

	s.persistLocked()
	return true
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AppendMessage appends a message to the target conversation, refreshes its
// UpdatedAt, and rewrites a placeholder title from the first user message.
// Returns false when the conversation is not found.
func (s *Store) AppendMessage(id string, msg *model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return false
	}

	conv.AddMessage(msg)
	s.sortLocked()
	s.persistLocked()
	return true
}

// UpdateMessage merges a partial update into the matching message and
// refreshes the conversation's UpdatedAt. Used for streaming content growth
// and for finalizing the streaming flag.
func (s *Store) UpdateMessage(id, messageID string, patch MessagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return false
	}
	msg := conv.MessageByID(messageID)
	if msg == nil {
		return false
	}

	if patch.AppendDelta != "" {
		msg.AppendDelta(patch.AppendDelta)
	}
	if patch.Streaming != nil && !*patch.Streaming {
		msg.Finalize()
	}
	if patch.Content != nil {
		// Wholesale replacement (the error-wrapped failure text) discards
		// any partially streamed deltas.
		msg.Finalize()
		msg.Content = *patch.Content
	}

	conv.Touch()
	s.sortLocked()
	s.persistLocked()
	return true
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ActiveID returns the ID of the active conversation, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Active returns a display copy of the active conversation, or nil.
func (s *Store) Active() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(s.activeID)
	if conv == nil {
		return nil
	}
	return conv.Clone()
}

// Get returns a display copy of the conversation with the given ID, or nil.
func (s *Store) Get(id string) *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return nil
	}
	return conv.Clone()
}

// List returns metadata for all conversations, most recently updated first.
func (s *Store) List() []Meta {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas := make([]Meta, 0, len(s.conversations))
	for _, conv := range s.conversations {
		metas = append(metas, Meta{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: conv.MessageCount(),
			Preview:      conv.Preview(),
			Active:       conv.ID == s.activeID,
		})
	}
	return metas
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Search finds conversations whose title or message content contains the
// query string (case-insensitive). An empty query returns everything.
func (s *Store) Search(query string) []Meta {
	all := s.List()
	if query == "" {
		return all
	}

	query = strings.ToLower(query)
	var results []Meta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Title), query) {
			results = append(results, meta)
			continue
		}
		conv := s.Get(meta.ID)
		if conv == nil {
			continue
		}
		for _, msg := range conv.Messages {
			if strings.Contains(strings.ToLower(msg.DisplayContent()), query) {
				results = append(results, meta)
				break
			}
		}
	}
	return results
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders a conversation as a Markdown document.
func (s *Store) ExportMarkdown(id string) (string, bool) {
	conv := s.Get(id)
	if conv == nil {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString("# " + conv.Title + "\n\n")
	sb.WriteString("Created: " + conv.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")
	for _, msg := range conv.Messages {
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.DisplayContent())
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String(), true
}

// ExportJSON renders a conversation as pretty-printed JSON, in the same
// shape as the history file. Streaming content is flattened through
// DisplayContent, same as Persist, so an in-progress reply exports with
// whatever text has arrived.
func (s *Store) ExportJSON(id string) ([]byte, bool) {
	conv := s.Get(id)
	if conv == nil {
		return nil, false
	}
	data, err := json.MarshalIndent(toStored(conv), "", "  ")
	if err != nil {
		return nil, false
	}
	return data, true
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// toStored converts a conversation to its persisted form. Message content is
// read through DisplayContent so in-progress streaming text is captured.
func toStored(conv *model.Conversation) storedConversation {
	sc := storedConversation{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  make([]storedMessage, 0, len(conv.Messages)),
	}
	for _, msg := range conv.Messages {
		sc.Messages = append(sc.Messages, storedMessage{
			ID:        msg.ID,
			Role:      msg.Role.String(),
			Content:   msg.DisplayContent(),
			Timestamp: msg.Timestamp,
		})
	}
	return sc
}

// findLocked returns the live conversation for an ID (caller holds lock).
func (s *Store) findLocked(id string) *model.Conversation {
	if id == "" {
		return nil
	}
	for _, conv := range s.conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}

// sortLocked keeps the list ordered by UpdatedAt descending.
func (s *Store) sortLocked() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].UpdatedAt.After(s.conversations[j].UpdatedAt)
	})
}
