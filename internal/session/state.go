// Package session holds per-conversation backend state and the stores that keep it
// between turns of the same conversation.
package session

import (
	"encoding/json"
	"time"

	"github.com/playfab-session/internal/domain"
)

// State is the backend state of one conversation
type State struct {
	LoginStatus          domain.LoginStatus `json:"login_status"`
	LoginInfo            json.RawMessage    `json:"login_info,omitempty"`
	SessionTicket        string             `json:"session_ticket,omitempty"`
	PlayerID             string             `json:"player_id,omitempty"`
	Profile              domain.ProfileInfo `json:"profile"`
	IsDisplayNameUpdated *bool              `json:"is_display_name_updated,omitempty"`
}

// NewState returns an empty, fully initialised state
func NewState() *State {
	return &State{
		LoginStatus: domain.LoginStatusUnset,
		Profile:     domain.ProfileInfo{},
	}
}

// LoggedIn reports whether the conversation holds a live session ticket
func (s *State) LoggedIn() bool {
	return s.SessionTicket != ""
}

// SetDisplayNameUpdated records whether the last display name update was accepted
func (s *State) SetDisplayNameUpdated(updated bool) {
	s.IsDisplayNameUpdated = &updated
}

// DisplayNameUpdated is true only when the backend confirmed a display name
func (s *State) DisplayNameUpdated() bool {
	return s.IsDisplayNameUpdated != nil && *s.IsDisplayNameUpdated
}

// Conversation is the explicit context every backend operation runs in: who the user is,
// which conversation this is, and its mutable state.
type Conversation struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Locale    string    `json:"locale,omitempty"`
	State     *State    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation starts a conversation with fresh state
func NewConversation(sessionID, userID, locale string) *Conversation {
	now := time.Now()
	return &Conversation{
		SessionID: sessionID,
		UserID:    userID,
		Locale:    locale,
		State:     NewState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot returns the player profile view of the conversation, or false before login
func (c *Conversation) Snapshot() (domain.PlayerSnapshot, bool) {
	if c.State == nil || c.State.PlayerID == "" {
		return domain.PlayerSnapshot{}, false
	}
	return domain.PlayerSnapshot{
		PlayerID:    c.State.PlayerID,
		UserID:      c.UserID,
		DisplayName: c.State.Profile.DisplayName,
		AvatarURL:   c.State.Profile.AvatarURL,
		LoginStatus: c.State.LoginStatus,
		UpdatedAt:   c.UpdatedAt,
	}, true
}
