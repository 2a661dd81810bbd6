package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucial707/keykiosk/internal/checkout"
	"github.com/crucial707/keykiosk/internal/config"
	"github.com/crucial707/keykiosk/internal/models"
)

// fakeServer answers the kiosk API while up and 503 otherwise.
type fakeServer struct {
	*httptest.Server
	up atomic.Bool

	mu    sync.Mutex
	paths []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.up.Load() {
			http.Error(w, `{"error":"down"}`, http.StatusServiceUnavailable)
			return
		}
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/health":
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case "/api/offline_sync/checkout", "/api/offline_sync/checkin":
			json.NewEncoder(w).Encode(models.ApplyResult{Applied: true, RecordID: 1})
		case "/api/notify":
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func openTestApp(t *testing.T, serverURL string) *App {
	t.Helper()
	cfg := config.Kiosk{
		ID:             "front-desk",
		ServerURL:      serverURL,
		DBPath:         filepath.Join(t.TempDir(), "kiosk.db"),
		RequestTimeout: 2 * time.Second,
		ProbeInterval:  time.Hour,
		ProbeTimeout:   time.Second,
		SessionTimeout: 30 * time.Second,
		SyncAlertAfter: 10,
		Zone:           "UTC",
	}
	a, err := Open(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOfflineScanQueuesThenSyncDrains(t *testing.T) {
	srv := newFakeServer(t)
	a := openTestApp(t, srv.URL)
	ctx := context.Background()

	_, err := a.Store.RegisterUser(ctx, "U1", models.UserDetails{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	_, err = a.Store.RegisterAsset(ctx, "FOB-1", models.AssetDetails{Name: "Truck 1"}.Normalize())
	require.NoError(t, err)

	m := a.Machine(nil)
	_, err = m.Scan(ctx, "U1")
	require.NoError(t, err)
	res, err := m.Scan(ctx, "fob-1")
	require.NoError(t, err)
	assert.Equal(t, checkout.ActionCheckout, res.Action)
	assert.Equal(t, checkout.ModeQueued, res.Mode)
	assert.Equal(t, 1, res.Pending)

	srv.up.Store(true)

	// Still believed offline: the scheduled refresh leaves the queue alone.
	require.NoError(t, a.RefreshMirror(ctx))
	pending, err := a.Outbox.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	require.True(t, a.Monitor.Check(ctx))
	rep := a.Syncer.Run(ctx)
	require.NoError(t, rep.Err)
	assert.Equal(t, 1, rep.Synced)
	assert.Equal(t, 0, rep.Remaining)
	assert.Contains(t, srv.seen(), "/api/offline_sync/checkout")
}

func TestMetricsHandler(t *testing.T) {
	srv := newFakeServer(t)
	a := openTestApp(t, srv.URL)

	rec := httptest.NewRecorder()
	a.metricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kiosk_online")
}
