package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/playfab-session/internal/config"
	"github.com/playfab-session/internal/domain"
)

type fakeSource struct {
	snapshots []domain.PlayerSnapshot
	err       error
}

func (f *fakeSource) Snapshots(context.Context) ([]domain.PlayerSnapshot, error) {
	return f.snapshots, f.err
}

type fakeSink struct {
	batches [][]domain.PlayerSnapshot
	err     error
}

func (f *fakeSink) BatchUpsertProfiles(_ context.Context, snapshots []domain.PlayerSnapshot) error {
	if f.err != nil {
		return f.err
	}
	batch := make([]domain.PlayerSnapshot, len(snapshots))
	copy(batch, snapshots)
	f.batches = append(f.batches, batch)
	return nil
}

func newTestWorker(source SnapshotSource, sink ProfileSink, batchSize int) *SyncWorker {
	cfg := &config.SyncConfig{Interval: time.Hour, BatchSize: batchSize, Enabled: true}
	return NewSyncWorker(source, sink, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func snapshot(id string, updated time.Time) domain.PlayerSnapshot {
	return domain.PlayerSnapshot{PlayerID: id, UserID: "u-" + id, LoginStatus: domain.LoginStatusExistingUser, UpdatedAt: updated}
}

func TestRunOnceWritesInBatches(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	source := &fakeSource{snapshots: []domain.PlayerSnapshot{
		snapshot("A", past), snapshot("B", past), snapshot("C", past),
	}}
	sink := &fakeSink{}
	w := newTestWorker(source, sink, 2)

	written, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if written != 3 {
		t.Fatalf("written = %d, want 3", written)
	}
	if len(sink.batches) != 2 || len(sink.batches[0]) != 2 || len(sink.batches[1]) != 1 {
		t.Fatalf("batches = %v", sink.batches)
	}
}

func TestRunOnceSkipsUnchangedSnapshots(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	source := &fakeSource{snapshots: []domain.PlayerSnapshot{snapshot("A", past)}}
	sink := &fakeSink{}
	w := newTestWorker(source, sink, 10)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	source.snapshots = append(source.snapshots, snapshot("B", time.Now().Add(time.Minute)))
	written, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if written != 1 {
		t.Fatalf("written = %d, want 1", written)
	}
	last := sink.batches[len(sink.batches)-1]
	if len(last) != 1 || last[0].PlayerID != "B" {
		t.Fatalf("last batch = %v", last)
	}
}

func TestRunOnceErrors(t *testing.T) {
	w := newTestWorker(&fakeSource{err: errors.New("store down")}, &fakeSink{}, 10)
	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected source error")
	}

	past := time.Now().Add(-time.Minute)
	sink := &fakeSink{err: errors.New("db down")}
	w = newTestWorker(&fakeSource{snapshots: []domain.PlayerSnapshot{snapshot("A", past)}}, sink, 10)
	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected sink error")
	}

	// A failed cycle does not advance the watermark.
	sink.err = nil
	written, err := w.RunOnce(context.Background())
	if err != nil || written != 1 {
		t.Fatalf("retry = %d, %v, want 1, nil", written, err)
	}
}

func TestStartStop(t *testing.T) {
	w := newTestWorker(&fakeSource{}, &fakeSink{}, 10)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !w.IsRunning() {
		t.Fatalf("expected worker to be running")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if w.IsRunning() {
		t.Fatalf("expected worker to be stopped")
	}
}

func TestRestart(t *testing.T) {
	w := newTestWorker(&fakeSource{}, &fakeSink{}, 10)

	for i := 0; i < 2; i++ {
		if err := w.Start(context.Background()); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if err := w.Start(context.Background()); err != nil {
			t.Fatalf("second start %d: %v", i, err)
		}
		if err := w.Stop(); err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop when idle: %v", err)
	}
}

func TestRunOnceWritesLateSaves(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	source := &fakeSource{snapshots: []domain.PlayerSnapshot{snapshot("A", past)}}
	sink := &fakeSink{}
	w := newTestWorker(source, sink, 10)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Stamped before the first cycle started but only visible after it listed the sessions.
	source.snapshots = append(source.snapshots, snapshot("B", past.Add(-time.Hour)))
	source.snapshots[0] = snapshot("A", past.Add(-time.Second))

	written, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if written != 1 {
		t.Fatalf("written = %d, want 1", written)
	}
	last := sink.batches[len(sink.batches)-1]
	if len(last) != 1 || last[0].PlayerID != "B" {
		t.Fatalf("last batch = %v, want only B", last)
	}
}
