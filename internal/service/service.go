package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/playfab-session/internal/config"
	"github.com/playfab-session/internal/domain"
	"github.com/playfab-session/internal/playfab"
	"github.com/playfab-session/internal/session"
)

// NewProfileFunc supplies a candidate profile for a newly created player.
// It is called once per new player and once more per display name conflict retry.
type NewProfileFunc func(ctx context.Context, conv *session.Conversation) (domain.ProfileInfo, error)

// EventRecorder receives session events. Recording is best-effort.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event domain.SessionEvent) error
}

// Broadcaster pushes realtime updates to subscribers of a statistic
type Broadcaster interface {
	BroadcastStatUpdate(statName string, update domain.StatUpdate)
	BroadcastLeaderboard(statName string, entries []domain.LeaderboardEntry)
}

// PlayerService runs the backend side of a conversation: login, profile, statistics,
// user data and leaderboards
type PlayerService struct {
	api         *playfab.Client
	store       session.Store
	login       *config.LoginConfig
	leaderboard *config.LeaderboardConfig
	newProfile  NewProfileFunc
	recorders   []EventRecorder
	hub         Broadcaster
	logger      *slog.Logger
}

// NewPlayerService creates a new player service
func NewPlayerService(
	api *playfab.Client,
	store session.Store,
	loginCfg *config.LoginConfig,
	leaderboardCfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *PlayerService {
	return &PlayerService{
		api:         api,
		store:       store,
		login:       loginCfg,
		leaderboard: leaderboardCfg,
		logger:      logger,
	}
}

// SetNewProfileFunc sets the supplier used to name new players
func (s *PlayerService) SetNewProfileFunc(fn NewProfileFunc) {
	s.newProfile = fn
}

// SetHub sets the realtime broadcaster
func (s *PlayerService) SetHub(hub Broadcaster) {
	s.hub = hub
}

// AddRecorder registers an event recorder
func (s *PlayerService) AddRecorder(r EventRecorder) {
	s.recorders = append(s.recorders, r)
}

// Start runs at the beginning of every conversation turn. It loads the conversation or
// creates it, logs in when auto login is enabled, and stores the result.
func (s *PlayerService) Start(ctx context.Context, sessionID, userID, locale string) (*session.Conversation, error) {
	if sessionID == "" {
		return nil, domain.ErrMissingSessionID
	}
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}

	conv, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if conv == nil {
		conv = session.NewConversation(sessionID, userID, locale)
	}

	if s.login.AutoLogin {
		s.Login(ctx, conv)
	}

	if err := s.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Resume loads a stored conversation
func (s *PlayerService) Resume(ctx context.Context, sessionID string) (*session.Conversation, error) {
	if sessionID == "" {
		return nil, domain.ErrMissingSessionID
	}
	conv, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrSessionNotFound
	}
	return conv, nil
}

// Save stores a conversation after its state changed
func (s *PlayerService) Save(ctx context.Context, conv *session.Conversation) error {
	conv.UpdatedAt = time.Now()
	if err := s.store.Put(ctx, conv); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// End removes a conversation
func (s *PlayerService) End(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Snapshots returns the player profile of every stored, logged in conversation
func (s *PlayerService) Snapshots(ctx context.Context) ([]domain.PlayerSnapshot, error) {
	convs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	snapshots := make([]domain.PlayerSnapshot, 0, len(convs))
	for _, conv := range convs {
		if snapshot, ok := conv.Snapshot(); ok {
			snapshots = append(snapshots, snapshot)
		}
	}
	return snapshots, nil
}

// record emits a session event to every recorder
func (s *PlayerService) record(ctx context.Context, conv *session.Conversation, eventType domain.SessionEventType, data map[string]any) {
	if len(s.recorders) == 0 {
		return
	}
	event := domain.SessionEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: conv.SessionID,
		UserID:    conv.UserID,
		PlayerID:  conv.State.PlayerID,
		Data:      data,
		Timestamp: time.Now(),
	}
	for _, r := range s.recorders {
		if err := r.RecordEvent(ctx, event); err != nil {
			// Don't fail the operation if event recording fails
			s.logger.Warn("failed to record session event", "type", eventType, "error", err)
		}
	}
}
