package service

import (
	"context"
	"fmt"

	"github.com/playfab-session/internal/domain"
	"github.com/playfab-session/internal/playfab"
	"github.com/playfab-session/internal/session"
)

// UpdateStat sets a statistic of the logged in player
func (s *PlayerService) UpdateStat(ctx context.Context, conv *session.Conversation, statName string, value int) bool {
	state := conv.State
	if !state.LoggedIn() {
		s.logger.Warn("stat update without login", "session_id", conv.SessionID, "stat_name", statName)
		return false
	}

	err := s.api.UpdatePlayerStatistics(ctx, state.SessionTicket, []playfab.StatisticUpdate{{
		StatisticName: statName,
		Value:         value,
		CustomTags:    map[string]string{"sessionId": conv.SessionID},
	}})
	if err != nil {
		s.logger.Error("failed to update statistic",
			"session_id", conv.SessionID,
			"stat_name", statName,
			"error", err,
		)
		return false
	}

	s.logger.Debug("updated statistic", "player_id", state.PlayerID, "stat_name", statName, "value", value)

	s.record(ctx, conv, domain.EventStatUpdate, map[string]any{
		"stat_name": statName,
		"value":     value,
	})
	if s.hub != nil {
		s.hub.BroadcastStatUpdate(statName, domain.StatUpdate{
			PlayerID:    state.PlayerID,
			DisplayName: state.Profile.DisplayName,
			StatName:    statName,
			Value:       value,
		})
	}
	return true
}

// GetStat returns a statistic of the logged in player. It fails with
// domain.ErrStatNotFound when the player has no value for statName; any other error
// comes from the backend.
func (s *PlayerService) GetStat(ctx context.Context, conv *session.Conversation, statName string) (int, error) {
	state := conv.State
	if !state.LoggedIn() {
		return 0, domain.ErrNotLoggedIn
	}

	stats, err := s.api.GetPlayerStatistics(ctx, state.SessionTicket, []string{statName})
	if err != nil {
		s.logger.Error("failed to get statistic",
			"session_id", conv.SessionID,
			"stat_name", statName,
			"error", err,
		)
		return 0, fmt.Errorf("getting statistic %s: %w", statName, err)
	}

	for _, stat := range stats {
		if stat.StatisticName == statName {
			return stat.Value, nil
		}
	}
	return 0, domain.ErrStatNotFound
}

// SubmitStatBatch applies queued stat submissions to their conversations.
// Failed submissions are logged and skipped.
func (s *PlayerService) SubmitStatBatch(ctx context.Context, batch domain.BatchStatSubmission) error {
	convs := make(map[string]*session.Conversation)

	for _, submission := range batch.Stats {
		conv, ok := convs[submission.SessionID]
		if !ok {
			var err error
			conv, err = s.Resume(ctx, submission.SessionID)
			if err != nil {
				s.logger.Error("failed to submit stat in batch",
					"session_id", submission.SessionID,
					"stat_name", submission.StatName,
					"error", err,
				)
				// Continue processing other stats
				continue
			}
			convs[submission.SessionID] = conv
		}

		s.UpdateStat(ctx, conv, submission.StatName, submission.Value)
	}
	return nil
}
