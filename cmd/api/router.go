package main

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crucial707/keykiosk/internal/config"
	"github.com/crucial707/keykiosk/internal/handlers"
	"github.com/crucial707/keykiosk/internal/middleware"
	"github.com/crucial707/keykiosk/internal/notify"
	"github.com/crucial707/keykiosk/internal/repo"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

// newRouter wires the ledger API. b receives change broadcasts from
// /api/notify; nil logs them instead.
func newRouter(db *sql.DB, cfg config.Config, b notify.Broadcaster, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if b == nil {
		b = notify.Log{Logger: logger}
	}

	assets := repo.NewAssetRepo(db)
	users := repo.NewUserRepo(db)
	ledger := repo.NewLedgerRepo(db)
	reservations := repo.NewReservationRepo(db)
	audit := repo.NewAuditRepo(db)
	notes := repo.NewNoteRepo(db)

	statusH := &handlers.StatusHandler{
		DB:           db,
		Assets:       assets,
		Users:        users,
		Ledger:       ledger,
		Reservations: reservations,
		Notes:        notes,
		Broadcaster:  b,
	}
	zone, err := timeutil.LoadZone(cfg.Zone)
	if err != nil {
		logger.Warn("site zone unavailable, reading naive timestamps as UTC", "zone", cfg.Zone, "err", err)
		zone = time.UTC
	}
	ledgerH := &handlers.LedgerHandler{Repo: ledger, AuditRepo: audit, Zone: zone}
	assetH := &handlers.AssetHandler{Repo: assets, AuditRepo: audit}
	userH := &handlers.UserHandler{Repo: users, AuditRepo: audit}
	reservationH := &handlers.ReservationHandler{Repo: reservations, AuditRepo: audit}
	auditH := &handlers.AuditHandler{Repo: audit}
	noteH := &handlers.NoteHandler{Repo: notes, AuditRepo: audit}

	notifyLimit := middleware.NotifyRateLimiter(cfg.NotifyPerMinute)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.RequestLog(logger))
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders(cfg.TLSCertFile != ""))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.MaxBytes(middleware.DefaultMaxBodyBytes))

	r.Get("/health", statusH.Live)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.KioskAuth([]byte(cfg.JWTSecret)))
		r.Use(middleware.RequireJSON)

		r.Get("/health", statusH.Health)
		r.Get("/status", statusH.Status)
		r.Get("/mirror", statusH.Mirror)
		r.With(notifyLimit.Middleware).Post("/notify", statusH.Notify)

		r.Post("/checkouts", ledgerH.Checkout)
		r.Post("/checkins", ledgerH.Checkin)
		r.Post("/offline_sync/checkout", ledgerH.OfflineCheckout)
		r.Post("/offline_sync/checkin", ledgerH.OfflineCheckin)
		r.Get("/history", ledgerH.History)

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", assetH.ListAssets)
			r.Post("/", assetH.CreateAsset)
			r.Put("/{id}", assetH.UpdateAsset)
			r.Post("/{id}/active", assetH.SetActive)
			r.Put("/{id}/code", assetH.ReplaceCode)
			r.Put("/{id}/note", noteH.SetNote)
			r.Delete("/{id}/note", noteH.DeleteNote)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", userH.ListUsers)
			r.Post("/", userH.CreateUser)
			r.Post("/replace_card", userH.ReplaceCardByCard)
			r.Put("/{id}", userH.UpdateUser)
			r.Post("/{id}/active", userH.SetActive)
			r.Put("/{id}/card", userH.ReplaceCard)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", reservationH.ListReservations)
			r.Post("/", reservationH.CreateReservation)
			r.Delete("/{id}", reservationH.DeleteReservation)
		})

		r.Get("/audit", auditH.ListAudit)
	})

	return r
}
