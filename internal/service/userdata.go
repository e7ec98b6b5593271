package service

import (
	"context"
	"fmt"

	"github.com/playfab-session/internal/domain"
	"github.com/playfab-session/internal/session"
	"github.com/playfab-session/internal/userdata"
)

// UpdateUserData stores data for the logged in player, one record per key
func (s *PlayerService) UpdateUserData(ctx context.Context, conv *session.Conversation, data map[string]any, permission domain.UserDataPermission) bool {
	state := conv.State
	if !state.LoggedIn() {
		return false
	}
	if permission == "" {
		permission = domain.UserDataPublic
	}

	encoded, err := userdata.Stringify(data)
	if err != nil {
		s.logger.Error("failed to encode user data", "session_id", conv.SessionID, "error", err)
		return false
	}

	if err := s.api.UpdateUserData(ctx, state.SessionTicket, encoded, permission); err != nil {
		s.logger.Error("failed to update user data", "session_id", conv.SessionID, "error", err)
		return false
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	s.record(ctx, conv, domain.EventUserDataUpdate, map[string]any{
		"keys":       keys,
		"permission": string(permission),
	})
	return true
}

// GetUserData reads user data records of playerID, or of the logged in player when
// playerID is empty, and decodes their values
func (s *PlayerService) GetUserData(ctx context.Context, conv *session.Conversation, keys []string, playerID string) (map[string]any, error) {
	state := conv.State
	if !state.LoggedIn() {
		return nil, domain.ErrNotLoggedIn
	}

	records, err := s.api.GetUserData(ctx, state.SessionTicket, keys, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting user data: %w", err)
	}
	return userdata.Parse(records), nil
}
