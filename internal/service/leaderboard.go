package service

import (
	"context"
	"fmt"

	"github.com/playfab-session/internal/domain"
	"github.com/playfab-session/internal/playfab"
	"github.com/playfab-session/internal/session"
	"golang.org/x/sync/errgroup"
)

// GetLeaderboard aggregates the top slice and the slice around the current player for
// statName. Any failed slice fetch makes the whole leaderboard unavailable; callers must
// not treat the error as an empty leaderboard.
func (s *PlayerService) GetLeaderboard(ctx context.Context, conv *session.Conversation, statName string) ([]domain.LeaderboardEntry, error) {
	state := conv.State
	if !state.LoggedIn() {
		return nil, domain.ErrNotLoggedIn
	}
	ticket := state.SessionTicket
	constraints := s.leaderboard.ProfileConstraints

	var top, neighbors []playfab.PlayerLeaderboardEntry
	var g errgroup.Group

	if s.leaderboard.TopMax > 0 {
		g.Go(func() error {
			entries, err := s.api.GetLeaderboard(ctx, ticket, playfab.LeaderboardRequest{
				StatisticName:      statName,
				MaxResultsCount:    s.leaderboard.TopMax,
				ProfileConstraints: &constraints,
			})
			if err != nil {
				return fmt.Errorf("getting top entries: %w", err)
			}
			top = entries
			return nil
		})
	}

	if s.leaderboard.NeighborMax > 0 {
		g.Go(func() error {
			entries, err := s.api.GetLeaderboardAroundPlayer(ctx, ticket, playfab.LeaderboardRequest{
				StatisticName:      statName,
				MaxResultsCount:    s.leaderboard.NeighborMax,
				ProfileConstraints: &constraints,
			})
			if err != nil {
				return fmt.Errorf("getting entries around player: %w", err)
			}
			neighbors = entries
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("failed to get leaderboard",
			"session_id", conv.SessionID,
			"stat_name", statName,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", domain.ErrLeaderboardUnavailable, err)
	}

	entries := mergeEntries(state.PlayerID, top, neighbors)

	if keys := s.leaderboard.UserDataKeys; len(keys) > 0 {
		// Enrichment is sequential, one call per entry.
		for i := range entries {
			data, err := s.GetUserData(ctx, conv, keys, entries[i].PlayerID)
			if err != nil {
				s.logger.Warn("failed to get leaderboard user data",
					"player_id", entries[i].PlayerID,
					"error", err,
				)
				continue
			}
			entries[i].UserData = data
		}
	}

	if s.hub != nil {
		s.hub.BroadcastLeaderboard(statName, entries)
	}

	return entries, nil
}

// mergeEntries concatenates slices in order and keeps the first entry of every player
func mergeEntries(currentPlayerID string, slices ...[]playfab.PlayerLeaderboardEntry) []domain.LeaderboardEntry {
	seen := make(map[string]struct{})
	merged := make([]domain.LeaderboardEntry, 0)

	for _, slice := range slices {
		for _, item := range slice {
			if _, ok := seen[item.PlayFabID]; ok {
				continue
			}
			seen[item.PlayFabID] = struct{}{}

			displayName := item.DisplayName
			if displayName == "" && item.Profile != nil {
				displayName = item.Profile.DisplayName
			}

			merged = append(merged, domain.LeaderboardEntry{
				PlayerID:        item.PlayFabID,
				DisplayName:     displayName,
				Position:        item.Position,
				StatValue:       item.StatValue,
				Profile:         item.Profile,
				IsCurrentPlayer: currentPlayerID != "" && item.PlayFabID == currentPlayerID,
			})
		}
	}
	return merged
}
