package session

import (
	"errors"
	"time"

	"github.com/parchmentlabs/parchment/internal/models"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned when a session exists but has expired.
	ErrExpired = errors.New("session expired")
)

// Session carries one conversation's continuity: its history and the
// indexes it has been chatting against.
type Session struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	IndexIDs  []string         `json:"index_ids,omitempty"`
	History   []models.Message `json:"history"`
	// LastResult is the final answer of the most recent workflow run.
	LastResult string `json:"last_result,omitempty"`
}

// IsExpired reports whether the session is past its TTL.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// RecentHistory returns the last count messages in order.
func (s *Session) RecentHistory(count int) []models.Message {
	if count <= 0 || len(s.History) <= count {
		return s.History
	}
	return s.History[len(s.History)-count:]
}
