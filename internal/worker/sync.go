package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playfab-session/internal/config"
	"github.com/playfab-session/internal/domain"
)

// SnapshotSource lists the profiles of logged in conversations
type SnapshotSource interface {
	Snapshots(ctx context.Context) ([]domain.PlayerSnapshot, error)
}

// ProfileSink persists player profile snapshots
type ProfileSink interface {
	BatchUpsertProfiles(ctx context.Context, snapshots []domain.PlayerSnapshot) error
}

// SyncWorker periodically copies the profiles of logged in conversations into the
// profile sink. A snapshot is written when it is newer than the last one written for
// the same player, so a save that lands after a cycle listed the sessions is picked up
// by the next cycle.
type SyncWorker struct {
	source SnapshotSource
	sink   ProfileSink
	config *config.SyncConfig
	logger *slog.Logger

	mu      sync.Mutex
	stop    context.CancelFunc
	done    chan struct{}
	written map[string]time.Time
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(source SnapshotSource, sink ProfileSink, cfg *config.SyncConfig, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		source:  source,
		sink:    sink,
		config:  cfg,
		logger:  logger.With("component", "profile_sync"),
		written: make(map[string]time.Time),
	}
}

// Start launches the sync loop. Starting a running worker is a no-op.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.stop = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx, w.done)

	w.logger.Info("sync worker started", "interval", w.config.Interval)
	return nil
}

// Stop ends the sync loop and waits for an in-flight cycle to finish
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()

	if stop == nil {
		return nil
	}
	stop()
	<-done

	w.logger.Info("sync worker stopped")
	return nil
}

// IsRunning reports whether the sync loop is active
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stop != nil
}

func (w *SyncWorker) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	tick := time.NewTicker(w.config.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("profile sync failed", "error", err)
			}
		}
	}
}

// RunOnce runs a single sync cycle and returns the number of snapshots written
func (w *SyncWorker) RunOnce(ctx context.Context) (int, error) {
	cycleStart := time.Now()

	snapshots, err := w.source.Snapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing snapshots: %w", err)
	}

	w.mu.Lock()
	changed := make([]domain.PlayerSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if last, ok := w.written[s.PlayerID]; !ok || s.UpdatedAt.After(last) {
			changed = append(changed, s)
		}
	}
	w.mu.Unlock()

	size := w.config.BatchSize
	if size <= 0 {
		size = 500
	}

	written := 0
	for start := 0; start < len(changed); start += size {
		end := min(start+size, len(changed))
		batch := changed[start:end]
		if err := w.sink.BatchUpsertProfiles(ctx, batch); err != nil {
			return written, fmt.Errorf("writing snapshots: %w", err)
		}
		w.markWritten(batch)
		written += len(batch)
	}

	w.prune(snapshots)

	w.logger.Info("sync cycle completed",
		"duration", time.Since(cycleStart),
		"sessions", len(snapshots),
		"written", written,
	)
	return written, nil
}

func (w *SyncWorker) markWritten(batch []domain.PlayerSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range batch {
		if last, ok := w.written[s.PlayerID]; !ok || s.UpdatedAt.After(last) {
			w.written[s.PlayerID] = s.UpdatedAt
		}
	}
}

// prune forgets players whose conversations are gone
func (w *SyncWorker) prune(live []domain.PlayerSnapshot) {
	seen := make(map[string]struct{}, len(live))
	for _, s := range live {
		seen[s.PlayerID] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for id := range w.written {
		if _, ok := seen[id]; !ok {
			delete(w.written, id)
		}
	}
}
