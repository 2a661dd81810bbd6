package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/crucial707/keykiosk/internal/client"
	"github.com/crucial707/keykiosk/internal/metrics"
	"github.com/crucial707/keykiosk/internal/models"
)

// Mode says how a ledger change reached the server.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeQueued Mode = "queued"
)

// Commit records a change in the kiosk's own ledger. Entries passed to it
// are appended to the outbox in the same local transaction, and the pending
// count afterwards is returned.
type Commit func(ctx context.Context, queue []models.QueuedTransaction) (pending int, err error)

// Writer delivers one change: it sends entries to the server or queues
// them, and runs commit exactly once either way. Entries of one change are
// delivered together or queued together.
type Writer interface {
	Write(ctx context.Context, commit Commit, entries ...models.QueuedTransaction) (mode Mode, pending int, err error)
}

// LiveServer is the server API used for direct writes.
type LiveServer interface {
	Checkout(ctx context.Context, req models.OfflineCheckout) (models.ApplyResult, error)
	Checkin(ctx context.Context, req models.OfflineCheckin) (models.ApplyResult, error)
	Notify(ctx context.Context, event string) error
}

// Outbox is the durable queue. Appends go through Commit.
type Outbox interface {
	PendingCount(ctx context.Context) (int, error)
}

// Connectivity is the cached view of the server.
type Connectivity interface {
	Online() bool
	Check(ctx context.Context) bool
	ReportFailure()
}

// SyncTrigger starts a background drain of the outbox.
type SyncTrigger interface {
	Trigger(ctx context.Context)
}

// LiveOrQueue writes straight to the server while it is reachable and the
// outbox is empty, and queues otherwise. Queueing whenever anything is
// already pending keeps the server's view in event order. A queued change
// and its local record are committed together.
type LiveOrQueue struct {
	Server  LiveServer
	Outbox  Outbox
	Monitor Connectivity
	Sync    SyncTrigger
	Logger  *slog.Logger

	// NotifyTimeout bounds the best-effort change broadcast.
	NotifyTimeout time.Duration
}

func (s *LiveOrQueue) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *LiveOrQueue) Write(ctx context.Context, commit Commit, entries ...models.QueuedTransaction) (Mode, int, error) {
	pending, err := s.Outbox.PendingCount(ctx)
	if err != nil {
		return "", 0, err
	}

	// trigger starts a drain once the change is queued.
	trigger := false
	switch online := s.Monitor.Online(); {
	case online && pending == 0:
		err := s.writeLive(ctx, entries)
		if err == nil {
			if _, err := commit(ctx, nil); err != nil {
				// The server has the change; the next mirror refresh
				// brings it back to this kiosk.
				return ModeLive, 0, fmt.Errorf("recording live change locally: %w", err)
			}
			s.notify(ctx, entries)
			return ModeLive, 0, nil
		}
		s.logger().Warn("direct write failed, queueing", "error", err)
		if client.IsTransient(err) {
			s.Monitor.ReportFailure()
		}
	case online:
		trigger = true
	default:
		// A successful check flips the monitor online and starts a sync
		// that may finish before this change is queued.
		trigger = s.Monitor.Check(ctx)
	}

	n, err := commit(ctx, entries)
	if err != nil {
		return "", 0, err
	}
	metrics.SetOutboxPending(n)
	if trigger && s.Sync != nil {
		s.Sync.Trigger(context.WithoutCancel(ctx))
	}
	return ModeQueued, n, nil
}

func (s *LiveOrQueue) writeLive(ctx context.Context, entries []models.QueuedTransaction) error {
	released := ""
	for i, e := range entries {
		// A handoff's checkin is implied: the server closes the previous
		// holder's record inside the checkout transaction and claims the
		// checkin's event id with it.
		if e.Kind == models.KindCheckin && i+1 < len(entries) &&
			entries[i+1].Kind == models.KindCheckout &&
			strings.EqualFold(entries[i+1].AssetCode, e.AssetCode) {
			released = e.EventID
			continue
		}

		var err error
		switch e.Kind {
		case models.KindCheckout:
			req := e.CheckoutRequest()
			req.ReleasesEventID = released
			released = ""
			_, err = s.Server.Checkout(ctx, req)
		case models.KindCheckin:
			_, err = s.Server.Checkin(ctx, e.CheckinRequest())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *LiveOrQueue) notify(ctx context.Context, entries []models.QueuedTransaction) {
	event := string(entries[len(entries)-1].Kind)
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	base := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		if err := s.Server.Notify(ctx, event); err != nil {
			s.logger().Debug("change notification not delivered", "error", err)
		}
	}()
}
