// Package chat holds the client-local conversation state the delivery
// router feeds: open conversation, per-conversation messages, unread
// counters and typing indicators.
package chat

import (
	"sync"

	"pingme-link/internal/model"
)

type Store struct {
	mu       sync.Mutex
	selected string
	messages map[string][]model.Message
	unread   map[string]int
	typing   map[string]bool
}

func NewStore() *Store {
	return &Store{
		messages: make(map[string][]model.Message),
		unread:   make(map[string]int),
		typing:   make(map[string]bool),
	}
}

// Select opens a conversation and clears its unread counter. Selecting ""
// closes the current one.
func (s *Store) Select(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = conversationID
	if conversationID != "" {
		delete(s.unread, conversationID)
	}
}

func (s *Store) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Append delivers a message into its conversation.
func (s *Store) Append(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := msg.ConversationID()
	s.messages[conv] = append(s.messages[conv], msg)
}

func (s *Store) Messages(conversationID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (s *Store) IncrementUnread(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[conversationID]++
}

func (s *Store) Unread(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[conversationID]
}

func (s *Store) SetTyping(userID string, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if typing {
		s.typing[userID] = true
	} else {
		delete(s.typing, userID)
	}
}

func (s *Store) IsTyping(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing[userID]
}
