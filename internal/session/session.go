// Package session holds in-memory conversation sessions: identity, message
// history and per-session model selection.
package session

import (
	"fmt"
	"time"
)

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a single conversation.
type Session struct {
	SessionID       string         `json:"session_id"`
	CreatedAt       time.Time      `json:"created_at"`
	LastActive      time.Time      `json:"last_active"`
	MessageCount    int            `json:"message_count"`
	Name            string         `json:"name"`
	ModelID         string         `json:"model_id"`
	Messages        []Message      `json:"messages"`
	UserPreferences map[string]any `json:"user_preferences,omitempty"`
}

// DefaultName returns the name given to unnamed sessions.
func DefaultName(now time.Time) string {
	return fmt.Sprintf("会话 %s", now.Format("2006-01-02"))
}

// clone returns a deep enough copy that callers cannot mutate store state.
func (s *Session) clone() *Session {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	if s.UserPreferences != nil {
		prefs := make(map[string]any, len(s.UserPreferences))
		for k, v := range s.UserPreferences {
			prefs[k] = v
		}
		cp.UserPreferences = prefs
	}
	return &cp
}

// Summary is the listing view of a session, without message bodies.
type Summary struct {
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	ModelID      string    `json:"model_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
	MessageCount int       `json:"message_count"`
}

func (s *Session) summary() Summary {
	return Summary{
		SessionID:    s.SessionID,
		Name:         s.Name,
		ModelID:      s.ModelID,
		CreatedAt:    s.CreatedAt,
		LastActive:   s.LastActive,
		MessageCount: s.MessageCount,
	}
}
