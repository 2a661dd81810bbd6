// Package syncer replays the kiosk outbox against the server.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/crucial707/keykiosk/internal/client"
	"github.com/crucial707/keykiosk/internal/localstore"
	"github.com/crucial707/keykiosk/internal/metrics"
	"github.com/crucial707/keykiosk/internal/models"
)

// DefaultAlertAfter is how many failed attempts on one entry escalate the
// log level to error.
const DefaultAlertAfter = 10

// Server is the part of the server API replay needs.
type Server interface {
	SubmitOfflineCheckout(ctx context.Context, req models.OfflineCheckout) (models.ApplyResult, error)
	SubmitOfflineCheckin(ctx context.Context, req models.OfflineCheckin) (models.ApplyResult, error)
	Mirror(ctx context.Context) (models.Snapshot, error)
	Notify(ctx context.Context, event string) error
}

// Queue is the outbox.
type Queue interface {
	Pending(ctx context.Context) ([]models.QueuedTransaction, error)
	PendingCount(ctx context.Context) (int, error)
	MarkSynced(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, cause error) (int, error)
}

// Mirror receives the server snapshot after a clean drain.
type Mirror interface {
	Version(ctx context.Context) (int64, error)
	ApplySnapshot(ctx context.Context, snap models.Snapshot, version int64) error
}

// Report is the outcome of one sync run.
type Report struct {
	Synced    int
	Remaining int
	Err       error
}

// Engine drains the outbox. At most one run is in flight per engine.
type Engine struct {
	server Server
	queue  Queue
	mirror Mirror
	logger *slog.Logger

	// AlertAfter escalates repeated failures of one entry.
	AlertAfter int
	// OnTransientFailure is called when replay stops because the server
	// could not be reached.
	OnTransientFailure func()
	// Gate, when set, is held while a snapshot is applied. Sharing it with
	// the scan path keeps a refresh from landing in the middle of a scan.
	Gate sync.Locker

	group singleflight.Group
	dirty atomic.Bool
}

func New(server Server, queue Queue, mirror Mirror, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		server:     server,
		queue:      queue,
		mirror:     mirror,
		logger:     logger,
		AlertAfter: DefaultAlertAfter,
	}
}

// Run drains the outbox and waits for the result. A call made while a run
// is in flight joins it instead of starting another.
func (e *Engine) Run(ctx context.Context) Report {
	v, _, _ := e.group.Do("sync", func() (any, error) {
		return e.run(ctx), nil
	})
	return v.(Report)
}

// Trigger starts a run in the background. Entries queued while a run is in
// flight are picked up by a follow-up run.
func (e *Engine) Trigger(ctx context.Context) {
	e.dirty.Store(true)
	go func() {
		for {
			rep := e.Run(ctx)
			if rep.Err != nil || ctx.Err() != nil || !e.dirty.Load() {
				return
			}
		}
	}()
}

func (e *Engine) run(ctx context.Context) Report {
	var rep Report
	for {
		e.dirty.Store(false)
		pending, err := e.queue.Pending(ctx)
		if err != nil {
			rep.Err = fmt.Errorf("reading outbox: %w", err)
			break
		}
		if len(pending) == 0 {
			break
		}
		n, err := e.replay(ctx, pending)
		rep.Synced += n
		if err != nil {
			rep.Err = err
			break
		}
	}

	if count, err := e.queue.PendingCount(ctx); err == nil {
		rep.Remaining = count
		metrics.SetOutboxPending(count)
	}

	switch {
	case rep.Err != nil:
		metrics.RecordSyncRun("halted", rep.Synced)
		e.logger.Warn("sync halted", "synced", rep.Synced, "remaining", rep.Remaining, "error", rep.Err)
	default:
		metrics.RecordSyncRun("clean", rep.Synced)
		if rep.Synced > 0 {
			e.logger.Info("sync complete", "synced", rep.Synced)
			if err := e.server.Notify(ctx, "sync"); err != nil {
				e.logger.Debug("notify after sync failed", "error", err)
			}
		}
		if rep.Remaining == 0 {
			e.refreshMirror(ctx)
		}
	}
	return rep
}

// replay applies entries in order and stops at the first failure.
func (e *Engine) replay(ctx context.Context, pending []models.QueuedTransaction) (int, error) {
	for i, entry := range pending {
		var err error
		switch entry.Kind {
		case models.KindCheckout:
			_, err = e.server.SubmitOfflineCheckout(ctx, entry.CheckoutRequest())
		case models.KindCheckin:
			_, err = e.server.SubmitOfflineCheckin(ctx, entry.CheckinRequest())
		default:
			err = fmt.Errorf("unknown transaction kind %q", entry.Kind)
		}
		if err != nil {
			e.fail(ctx, entry, err)
			return i, fmt.Errorf("replaying %s %s (id %d): %w", entry.Kind, entry.AssetCode, entry.ID, err)
		}
		if err := e.queue.MarkSynced(ctx, entry.ID); err != nil {
			return i, err
		}
		e.logger.Debug("replayed queued transaction", "id", entry.ID, "kind", entry.Kind, "asset", entry.AssetCode)
	}
	return len(pending), nil
}

func (e *Engine) fail(ctx context.Context, entry models.QueuedTransaction, cause error) {
	attempts, err := e.queue.RecordFailure(ctx, entry.ID, cause)
	if err != nil {
		e.logger.Error("recording sync failure", "id", entry.ID, "error", err)
	}
	if e.AlertAfter > 0 && attempts >= e.AlertAfter {
		e.logger.Error("queued transaction keeps failing, needs manual follow-up",
			"id", entry.ID, "kind", entry.Kind, "asset", entry.AssetCode,
			"attempts", attempts, "error", cause)
	}
	if client.IsTransient(cause) && e.OnTransientFailure != nil {
		e.OnTransientFailure()
	}
}

// refreshMirror replaces the local mirror with the server's state. The
// mirror refuses the snapshot if a transaction was queued or a local write
// landed while it was being fetched.
func (e *Engine) refreshMirror(ctx context.Context) {
	if e.mirror == nil {
		return
	}
	version, err := e.mirror.Version(ctx)
	if err != nil {
		e.logger.Warn("mirror refresh failed", "error", err)
		return
	}
	snap, err := e.server.Mirror(ctx)
	if err != nil {
		e.logger.Warn("mirror refresh failed", "error", err)
		return
	}

	if e.Gate != nil {
		e.Gate.Lock()
		defer e.Gate.Unlock()
	}
	if err := e.mirror.ApplySnapshot(ctx, snap, version); err != nil {
		switch {
		case errors.Is(err, localstore.ErrUnsyncedChanges):
			e.logger.Debug("mirror refresh deferred, outbox not empty")
		case errors.Is(err, localstore.ErrStaleSnapshot):
			e.logger.Debug("mirror refresh deferred, local ledger changed during fetch")
		default:
			e.logger.Warn("applying mirror snapshot", "error", err)
		}
		return
	}
	e.logger.Debug("mirror refreshed", "users", len(snap.Users), "assets", len(snap.Assets))
}
