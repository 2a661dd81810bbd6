// Package checkout turns kiosk scans into ledger changes: checkout,
// checkin, and handoff between holders, with reservation checks and
// registration of unknown cards and assets.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crucial707/keykiosk/internal/client"
	"github.com/crucial707/keykiosk/internal/localstore"
	"github.com/crucial707/keykiosk/internal/metrics"
	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/reservation"
)

// DefaultSessionTimeout clears a half-finished scan sequence.
const DefaultSessionTimeout = 30 * time.Second

var (
	// ErrCancelled means the operator backed out; nothing was written.
	ErrCancelled = errors.New("cancelled")
	// ErrIdentifierTaken means a card or code belongs to someone else.
	ErrIdentifierTaken = errors.New("already registered to someone else")
	// ErrInactive means the scanned card or asset has been deactivated.
	ErrInactive = errors.New("deactivated")
	// ErrServerRequired means the operation cannot be done offline.
	ErrServerRequired = errors.New("server must be reachable")
)

// Action is what a scan did.
type Action string

const (
	ActionUserScanned  Action = "user_scanned"
	ActionAssetPending Action = "asset_pending"
	ActionCheckout     Action = "checkout"
	ActionCheckin      Action = "checkin"
	ActionHandoff      Action = "handoff"
	ActionDeclined     Action = "declined"
	ActionReplaceCard  Action = "replace_card"
	ActionCardReplaced Action = "card_replaced"
)

// Result describes the outcome of one scan.
type Result struct {
	Action      Action
	Mode        Mode
	User        *models.User
	Asset       *models.Asset
	Previous    *models.CheckoutRecord
	Reservation *models.Reservation
	Pending     int
}

// Ledger is the kiosk's local copy of the ledger.
type Ledger interface {
	UserByCard(ctx context.Context, card string) (models.User, error)
	AssetByCode(ctx context.Context, code string) (models.Asset, error)
	RegisterUser(ctx context.Context, card string, d models.UserDetails) (models.User, error)
	RegisterAsset(ctx context.Context, code string, d models.AssetDetails) (models.Asset, error)
	ReplaceCard(ctx context.Context, userID int, card string) (models.User, error)
	OpenCheckout(ctx context.Context, assetID int) (*models.CheckoutRecord, error)
	Reservations(ctx context.Context, assetID int) ([]models.Reservation, error)
	// Checkout and Checkin append queue to the outbox in the same local
	// transaction and return the pending count.
	Checkout(ctx context.Context, assetID, userID int, at time.Time, queue ...models.QueuedTransaction) (int, error)
	Checkin(ctx context.Context, assetID int, at time.Time, queue ...models.QueuedTransaction) (int, error)
}

// CardReplacer changes a card on the server.
type CardReplacer interface {
	ReplaceCard(ctx context.Context, oldCard, newCard string) (models.User, error)
}

// Config wires a Machine.
type Config struct {
	Ledger   Ledger
	Writer   Writer
	Prompter Prompter
	Cards    CardReplacer
	KioskID  string
	Timeout  time.Duration
	Logger   *slog.Logger

	// Gate serializes scans with anything else that rewrites the local
	// ledger, such as a mirror refresh. Nil gives the machine its own lock.
	Gate sync.Locker
}

// Machine processes scans one at a time.
type Machine struct {
	ledger   Ledger
	writer   Writer
	prompter Prompter
	cards    CardReplacer
	kioskID  string
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Locker
	session Session
}

func NewMachine(cfg Config) *Machine {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gate == nil {
		cfg.Gate = &sync.Mutex{}
	}
	return &Machine{
		ledger:   cfg.Ledger,
		writer:   cfg.Writer,
		prompter: cfg.Prompter,
		cards:    cfg.Cards,
		kioskID:  cfg.KioskID,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		now:      time.Now,
		mu:       cfg.Gate,
	}
}

// Session returns a copy of the current scan sequence.
func (m *Machine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Reset abandons the current scan sequence.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.session.reset()
	m.mu.Unlock()
}

// ExpireIdle clears a session that has been inactive for the timeout. It
// reports whether anything was cleared.
func (m *Machine) ExpireIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.session.Expired(m.now(), m.timeout) {
		return false
	}
	m.logger.Info("session timed out", "state", m.session.State.String())
	m.session.reset()
	return true
}

// Scan handles one scanned identifier.
func (m *Machine) Scan(ctx context.Context, id string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.session.Expired(now, m.timeout) {
		m.session.reset()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Result{}, ErrCancelled
	}

	if m.session.State == StateReplaceCard {
		return m.finishReplace(ctx, id)
	}

	user, err := m.ledger.UserByCard(ctx, id)
	if err == nil {
		return m.userScanned(ctx, user, now)
	}
	if !errors.Is(err, localstore.ErrNotFound) {
		return Result{}, err
	}

	asset, err := m.ledger.AssetByCode(ctx, id)
	if err == nil {
		return m.assetScanned(ctx, asset, now)
	}
	if !errors.Is(err, localstore.ErrNotFound) {
		return Result{}, err
	}

	return m.unknownScanned(ctx, id, now)
}

func (m *Machine) unknownScanned(ctx context.Context, id string, now time.Time) (Result, error) {
	kind, err := m.prompter.ClassifyUnknown(ctx, id)
	if err != nil {
		return m.cancel(err)
	}

	switch kind {
	case IdentityKeycard:
		d, err := m.prompter.RegisterUser(ctx, id)
		if err != nil {
			return m.cancel(err)
		}
		d.FirstName, d.LastName = strings.TrimSpace(d.FirstName), strings.TrimSpace(d.LastName)
		if d.FirstName == "" || d.LastName == "" {
			return m.cancel(nil)
		}
		user, err := m.ledger.RegisterUser(ctx, id, d)
		if errors.Is(err, localstore.ErrConflict) {
			m.session.reset()
			return Result{}, ErrIdentifierTaken
		}
		if err != nil {
			return Result{}, err
		}
		m.logger.Info("registered card", "card", id, "name", user.FullName())
		return m.userScanned(ctx, user, now)

	case IdentityAsset:
		d, err := m.prompter.RegisterAsset(ctx, id)
		if err != nil {
			return m.cancel(err)
		}
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return m.cancel(nil)
		}
		asset, err := m.ledger.RegisterAsset(ctx, id, d)
		if errors.Is(err, localstore.ErrConflict) {
			m.session.reset()
			return Result{}, ErrIdentifierTaken
		}
		if err != nil {
			return Result{}, err
		}
		m.logger.Info("registered asset", "code", id, "name", asset.Name)
		return m.assetScanned(ctx, asset, now)
	}
	return m.cancel(nil)
}

func (m *Machine) cancel(cause error) (Result, error) {
	m.session.reset()
	if cause != nil && !errors.Is(cause, ErrCancelled) {
		return Result{}, fmt.Errorf("%w: %v", ErrCancelled, cause)
	}
	return Result{}, ErrCancelled
}

func (m *Machine) userScanned(ctx context.Context, user models.User, now time.Time) (Result, error) {
	if !user.Active {
		m.session.reset()
		return Result{User: &user}, ErrInactive
	}
	if m.session.State == StateAssetPending && m.session.PendingAsset != nil {
		return m.transition(ctx, user, *m.session.PendingAsset, now)
	}
	m.session.holdUser(user, now)
	return Result{Action: ActionUserScanned, User: &user}, nil
}

func (m *Machine) assetScanned(ctx context.Context, asset models.Asset, now time.Time) (Result, error) {
	if !asset.Active {
		m.session.reset()
		return Result{Asset: &asset}, ErrInactive
	}
	if m.session.State == StateUserScanned && m.session.User != nil {
		return m.transition(ctx, *m.session.User, asset, now)
	}

	open, err := m.ledger.OpenCheckout(ctx, asset.ID)
	if err != nil {
		return Result{}, err
	}
	if open != nil {
		// Returned without a card: check it in for whoever held it.
		return m.checkin(ctx, asset, open, now)
	}
	m.session.holdAsset(asset, now)
	return Result{Action: ActionAssetPending, Asset: &asset}, nil
}

// transition applies user scanning asset.
func (m *Machine) transition(ctx context.Context, user models.User, asset models.Asset, now time.Time) (Result, error) {
	open, err := m.ledger.OpenCheckout(ctx, asset.ID)
	if err != nil {
		return Result{}, err
	}

	switch {
	case open == nil:
		list, err := m.ledger.Reservations(ctx, asset.ID)
		if err != nil {
			return Result{}, err
		}
		if r := reservation.Conflict(list, asset.ID, user, now); r != nil {
			ok, err := m.prompter.ConfirmReservedCheckout(ctx, user, asset, *r)
			if err != nil || !ok {
				m.session.reset()
				m.logger.Info("reserved checkout declined", "asset", asset.Code, "card", user.CardID, "reserved_for", r.ReservedFor())
				return Result{Action: ActionDeclined, User: &user, Asset: &asset, Reservation: r}, nil
			}
		}
		return m.deliver(ctx, Result{Action: ActionCheckout, User: &user, Asset: &asset},
			m.commitCheckout(asset, user, now), m.checkoutEntry(user, asset, now))

	case open.UserID == user.ID:
		return m.checkin(ctx, asset, open, now)

	default:
		return m.deliver(ctx, Result{Action: ActionHandoff, User: &user, Asset: &asset, Previous: open},
			m.commitCheckout(asset, user, now), m.checkinEntry(asset, now), m.checkoutEntry(user, asset, now))
	}
}

func (m *Machine) checkin(ctx context.Context, asset models.Asset, open *models.CheckoutRecord, now time.Time) (Result, error) {
	commit := func(ctx context.Context, queue []models.QueuedTransaction) (int, error) {
		return m.ledger.Checkin(ctx, asset.ID, now, queue...)
	}
	return m.deliver(ctx, Result{Action: ActionCheckin, Asset: &asset, Previous: open}, commit, m.checkinEntry(asset, now))
}

// commitCheckout records the checkout locally. A previous holder's record
// is closed in the same transaction.
func (m *Machine) commitCheckout(asset models.Asset, user models.User, now time.Time) Commit {
	return func(ctx context.Context, queue []models.QueuedTransaction) (int, error) {
		return m.ledger.Checkout(ctx, asset.ID, user.ID, now, queue...)
	}
}

// deliver hands a change to the writer, which sends or queues it and
// records it locally, and ends the session.
func (m *Machine) deliver(ctx context.Context, res Result, commit Commit, entries ...models.QueuedTransaction) (Result, error) {
	m.session.reset()

	mode, pending, err := m.writer.Write(ctx, commit, entries...)
	if err != nil {
		m.logger.Error("ledger change failed", "action", res.Action, "mode", mode, "asset", res.Asset.Code, "error", err)
		return res, fmt.Errorf("recording %s: %w", res.Action, err)
	}
	res.Mode = mode
	res.Pending = pending
	metrics.RecordTransition(string(res.Action), string(mode))
	m.logger.Info("ledger change", "action", res.Action, "mode", mode, "asset", res.Asset.Code, "pending", pending)
	return res, nil
}

func (m *Machine) checkoutEntry(u models.User, a models.Asset, at time.Time) models.QueuedTransaction {
	return models.QueuedTransaction{
		EventID:       uuid.NewString(),
		Kind:          models.KindCheckout,
		UserCardID:    u.CardID,
		UserFirstName: u.FirstName,
		UserLastName:  u.LastName,
		AssetCode:     a.Code,
		AssetName:     a.Name,
		AssetCategory: a.Category,
		AssetLocation: a.Location,
		OccurredAt:    at,
		KioskID:       m.kioskID,
	}
}

func (m *Machine) checkinEntry(a models.Asset, at time.Time) models.QueuedTransaction {
	return models.QueuedTransaction{
		EventID:    uuid.NewString(),
		Kind:       models.KindCheckin,
		AssetCode:  a.Code,
		AssetName:  a.Name,
		OccurredAt: at,
		KioskID:    m.kioskID,
	}
}

// BeginReplaceCard looks up the holder of oldCard and waits for the
// replacement card as the next scan.
func (m *Machine) BeginReplaceCard(ctx context.Context, oldCard string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, err := m.ledger.UserByCard(ctx, strings.TrimSpace(oldCard))
	if err != nil {
		m.session.reset()
		return Result{}, err
	}
	m.session = Session{State: StateReplaceCard, User: &user, LastActivity: m.now()}
	return Result{Action: ActionReplaceCard, User: &user}, nil
}

func (m *Machine) finishReplace(ctx context.Context, newCard string) (Result, error) {
	user := *m.session.User
	m.session.reset()
	updated, err := m.replaceCard(ctx, user, newCard)
	if err != nil {
		return Result{User: &user}, err
	}
	return Result{Action: ActionCardReplaced, User: &updated}, nil
}

// ReplaceCard moves the holder of oldCard onto newCard, on the server first
// and then locally. A card registered to anyone else is rejected with
// ErrIdentifierTaken and nothing changes.
func (m *Machine) ReplaceCard(ctx context.Context, oldCard, newCard string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, err := m.ledger.UserByCard(ctx, strings.TrimSpace(oldCard))
	if err != nil {
		return models.User{}, err
	}
	return m.replaceCard(ctx, user, strings.TrimSpace(newCard))
}

func (m *Machine) replaceCard(ctx context.Context, user models.User, newCard string) (models.User, error) {
	if newCard == "" {
		return models.User{}, ErrCancelled
	}
	existing, err := m.ledger.UserByCard(ctx, newCard)
	switch {
	case err == nil && existing.ID == user.ID:
		return existing, nil
	case err == nil:
		return models.User{}, ErrIdentifierTaken
	case !errors.Is(err, localstore.ErrNotFound):
		return models.User{}, err
	}

	if m.cards != nil {
		if _, err := m.cards.ReplaceCard(ctx, user.CardID, newCard); err != nil {
			switch {
			case client.IsConflict(err):
				return models.User{}, ErrIdentifierTaken
			case client.IsTransient(err):
				return models.User{}, fmt.Errorf("%w: %v", ErrServerRequired, err)
			default:
				return models.User{}, err
			}
		}
	}

	updated, err := m.ledger.ReplaceCard(ctx, user.ID, newCard)
	if errors.Is(err, localstore.ErrConflict) {
		return models.User{}, ErrIdentifierTaken
	}
	if err != nil {
		return models.User{}, err
	}
	m.logger.Info("card replaced", "user", updated.FullName(), "old_card", user.CardID, "new_card", newCard)
	return updated, nil
}
