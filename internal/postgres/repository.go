package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playfab-session/internal/config"
	"github.com/playfab-session/internal/domain"
)

// Repository journals session events and keeps the last known profile of every player
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations creates the journal tables
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS session_events (
			id VARCHAR(64) PRIMARY KEY,
			session_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			player_id VARCHAR(64),
			event_type VARCHAR(32) NOT NULL,
			data JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS player_profiles (
			player_id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			display_name VARCHAR(255),
			avatar_url TEXT,
			login_status VARCHAR(20) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_player_profiles_user ON player_profiles(user_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// RecordEvent appends a session event to the journal
func (r *Repository) RecordEvent(ctx context.Context, event domain.SessionEvent) error {
	var data []byte
	if event.Data != nil {
		var err error
		data, err = json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("marshaling event data: %w", err)
		}
	}

	query := `
		INSERT INTO session_events (id, session_id, user_id, player_id, event_type, data, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.SessionID,
		event.UserID,
		event.PlayerID,
		string(event.Type),
		data,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events of a session, newest first
func (r *Repository) ListEvents(ctx context.Context, sessionID string, limit int) ([]domain.SessionEvent, error) {
	query := `
		SELECT id, session_id, user_id, COALESCE(player_id, ''), event_type, data, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.SessionEvent, 0)
	for rows.Next() {
		var event domain.SessionEvent
		var eventType string
		var data []byte
		if err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.UserID,
			&event.PlayerID,
			&eventType,
			&data,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		event.Type = domain.SessionEventType(eventType)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &event.Data); err != nil {
				return nil, fmt.Errorf("unmarshaling event data: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// GetProfile returns the last snapshot of a player
func (r *Repository) GetProfile(ctx context.Context, playerID string) (*domain.PlayerSnapshot, error) {
	query := `
		SELECT player_id, user_id, COALESCE(display_name, ''), COALESCE(avatar_url, ''), login_status, updated_at
		FROM player_profiles
		WHERE player_id = $1
	`
	var snapshot domain.PlayerSnapshot
	var status string
	err := r.pool.QueryRow(ctx, query, playerID).Scan(
		&snapshot.PlayerID,
		&snapshot.UserID,
		&snapshot.DisplayName,
		&snapshot.AvatarURL,
		&status,
		&snapshot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	snapshot.LoginStatus = domain.LoginStatus(status)
	return &snapshot, nil
}

// BatchUpsertProfiles stores profile snapshots. An older snapshot never replaces a newer one.
func (r *Repository) BatchUpsertProfiles(ctx context.Context, snapshots []domain.PlayerSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO player_profiles (player_id, user_id, display_name, avatar_url, login_status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (player_id)
		DO UPDATE SET
			user_id = $2,
			display_name = $3,
			avatar_url = $4,
			login_status = $5,
			updated_at = $6
		WHERE player_profiles.updated_at <= $6
	`
	for _, s := range snapshots {
		batch.Queue(query, s.PlayerID, s.UserID, s.DisplayName, s.AvatarURL, string(s.LoginStatus), s.UpdatedAt)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch upserting profiles: %w", err)
		}
	}
	return nil
}
