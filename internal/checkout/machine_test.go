package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucial707/keykiosk/internal/client"
	"github.com/crucial707/keykiosk/internal/db"
	"github.com/crucial707/keykiosk/internal/localstore"
	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/outbox"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

type recordingWriter struct {
	writes [][]models.QueuedTransaction
	mode   Mode
	err    error
}

func (w *recordingWriter) Write(ctx context.Context, commit Commit, entries ...models.QueuedTransaction) (Mode, int, error) {
	if w.err != nil {
		return "", 0, w.err
	}
	w.writes = append(w.writes, entries)
	if w.mode == "" {
		_, err := commit(ctx, nil)
		return ModeLive, 0, err
	}
	n, err := commit(ctx, entries)
	return w.mode, n, err
}

type scriptedPrompter struct {
	identity  Identity
	user      models.UserDetails
	asset     models.AssetDetails
	confirm   bool
	err       error
	confirmed int
}

func (p *scriptedPrompter) ClassifyUnknown(context.Context, string) (Identity, error) {
	return p.identity, p.err
}

func (p *scriptedPrompter) RegisterUser(context.Context, string) (models.UserDetails, error) {
	return p.user, p.err
}

func (p *scriptedPrompter) RegisterAsset(context.Context, string) (models.AssetDetails, error) {
	return p.asset, p.err
}

func (p *scriptedPrompter) ConfirmReservedCheckout(context.Context, models.User, models.Asset, models.Reservation) (bool, error) {
	p.confirmed++
	return p.confirm, p.err
}

type fixture struct {
	store    *localstore.Store
	writer   *recordingWriter
	prompter *scriptedPrompter
	machine  *Machine
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    localstore.New(db.NewTestDB(t), "kiosk-a"),
		writer:   &recordingWriter{},
		prompter: &scriptedPrompter{},
		clock:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.machine = NewMachine(Config{
		Ledger:   f.store,
		Writer:   f.writer,
		Prompter: f.prompter,
		KioskID:  "kiosk-a",
	})
	f.machine.now = func() time.Time { return f.clock }

	ctx := context.Background()
	for _, u := range []struct{ card, first, last string }{
		{"U1", "Ada", "Lovelace"},
		{"U2", "Bob", "Ross"},
	} {
		_, err := f.store.RegisterUser(ctx, u.card, models.UserDetails{FirstName: u.first, LastName: u.last})
		require.NoError(t, err)
	}
	_, err := f.store.RegisterAsset(ctx, "A", models.AssetDetails{Name: "Truck 1"})
	require.NoError(t, err)
	return f
}

func (f *fixture) scan(t *testing.T, id string) Result {
	t.Helper()
	res, err := f.machine.Scan(context.Background(), id)
	require.NoError(t, err)
	return res
}

func (f *fixture) openRecords(t *testing.T) []models.CheckoutRecord {
	t.Helper()
	open, err := f.store.OpenCheckouts(context.Background())
	require.NoError(t, err)
	return open
}

func (f *fixture) recordCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.store.DB().QueryRow(`SELECT COUNT(*) FROM checkouts`).Scan(&n))
	return n
}

func (f *fixture) reserve(t *testing.T, code, card, name string, at time.Time, lead int) {
	t.Helper()
	_, err := f.store.DB().Exec(
		`INSERT INTO reservations (asset_code, user_card_id, reserved_for_name, reserved_at, lead_hours) VALUES (?, ?, ?, ?, ?)`,
		code, nullIfEmpty(card), nullIfEmpty(name), timeutil.Store(at), lead)
	require.NoError(t, err)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func TestSimpleCheckoutThenCheckin(t *testing.T) {
	f := newFixture(t)

	res := f.scan(t, "U1")
	assert.Equal(t, ActionUserScanned, res.Action)
	assert.Equal(t, StateUserScanned, f.machine.Session().State)

	res = f.scan(t, "a")
	assert.Equal(t, ActionCheckout, res.Action)
	assert.Equal(t, ModeLive, res.Mode)
	open := f.openRecords(t)
	require.Len(t, open, 1)
	assert.Equal(t, "U1", open[0].UserCard)
	assert.Equal(t, StateIdle, f.machine.Session().State)

	f.clock = f.clock.Add(time.Hour)
	f.scan(t, "U1")
	res = f.scan(t, "A")
	assert.Equal(t, ActionCheckin, res.Action)
	assert.Empty(t, f.openRecords(t))
	assert.Equal(t, 1, f.recordCount(t), "checkin closes the record without creating one")

	require.Len(t, f.writer.writes, 2)
	assert.Equal(t, models.KindCheckout, f.writer.writes[0][0].Kind)
	assert.Equal(t, "Ada", f.writer.writes[0][0].UserFirstName)
	assert.Equal(t, models.KindCheckin, f.writer.writes[1][0].Kind)
	assert.True(t, f.writer.writes[1][0].OccurredAt.Equal(f.clock))
}

func TestAssetFirstThenCard(t *testing.T) {
	f := newFixture(t)

	res := f.scan(t, "A")
	assert.Equal(t, ActionAssetPending, res.Action)
	assert.Equal(t, StateAssetPending, f.machine.Session().State)
	assert.Empty(t, f.writer.writes)

	res = f.scan(t, "U2")
	assert.Equal(t, ActionCheckout, res.Action)
	open := f.openRecords(t)
	require.Len(t, open, 1)
	assert.Equal(t, "U2", open[0].UserCard)
}

func TestHeldAssetWithoutCardChecksIn(t *testing.T) {
	f := newFixture(t)
	f.scan(t, "U1")
	f.scan(t, "A")

	res := f.scan(t, "A")
	assert.Equal(t, ActionCheckin, res.Action)
	require.NotNil(t, res.Previous)
	assert.Equal(t, "Ada Lovelace", res.Previous.UserName)
	assert.Empty(t, f.openRecords(t))
}

func TestHandoffIsOneChange(t *testing.T) {
	f := newFixture(t)
	f.scan(t, "U1")
	f.scan(t, "A")

	f.clock = f.clock.Add(10 * time.Minute)
	f.scan(t, "U2")
	res := f.scan(t, "A")

	assert.Equal(t, ActionHandoff, res.Action)
	require.NotNil(t, res.Previous)
	assert.Equal(t, "U1", res.Previous.UserCard)

	open := f.openRecords(t)
	require.Len(t, open, 1, "never two open records")
	assert.Equal(t, "U2", open[0].UserCard)
	assert.Equal(t, 2, f.recordCount(t))

	require.Len(t, f.writer.writes, 2)
	handoff := f.writer.writes[1]
	require.Len(t, handoff, 2)
	assert.Equal(t, models.KindCheckin, handoff[0].Kind)
	assert.Equal(t, models.KindCheckout, handoff[1].Kind)
	assert.Equal(t, "U2", handoff[1].UserCardID)
}

func TestReservedCheckoutDeclined(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "A", "U2", "", f.clock.Add(2*time.Hour), 24)
	f.prompter.confirm = false

	f.scan(t, "U1")
	res := f.scan(t, "A")

	assert.Equal(t, ActionDeclined, res.Action)
	require.NotNil(t, res.Reservation)
	assert.Equal(t, 1, f.prompter.confirmed)
	assert.Empty(t, f.openRecords(t))
	assert.Zero(t, f.recordCount(t))
	assert.Empty(t, f.writer.writes)
	assert.Equal(t, StateIdle, f.machine.Session().State)
}

func TestReservedCheckoutConfirmed(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "A", "", "Grace Hopper", f.clock.Add(2*time.Hour), 24)
	f.prompter.confirm = true

	f.scan(t, "U1")
	res := f.scan(t, "A")
	assert.Equal(t, ActionCheckout, res.Action)
	assert.Len(t, f.openRecords(t), 1)
}

func TestReservationHolderIsNotPrompted(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "A", "", "ada lovelace", f.clock.Add(time.Hour), 24)

	f.scan(t, "U1")
	res := f.scan(t, "A")
	assert.Equal(t, ActionCheckout, res.Action)
	assert.Zero(t, f.prompter.confirmed)
}

func TestReservationOutsideLeadWindowIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "A", "U2", "", f.clock.Add(25*time.Hour), 24)

	f.scan(t, "U1")
	res := f.scan(t, "A")
	assert.Equal(t, ActionCheckout, res.Action)
	assert.Zero(t, f.prompter.confirmed)
}

func TestUnknownCardIsRegistered(t *testing.T) {
	f := newFixture(t)
	f.prompter.identity = IdentityKeycard
	f.prompter.user = models.UserDetails{FirstName: " Grace ", LastName: "Hopper"}

	res := f.scan(t, "NEW-CARD")
	assert.Equal(t, ActionUserScanned, res.Action)
	assert.Equal(t, "Grace Hopper", res.User.FullName())

	u, err := f.store.UserByCard(context.Background(), "new-card")
	require.NoError(t, err)
	assert.Equal(t, "Grace", u.FirstName)
}

func TestUnknownCardWithEmptyNameIsCancelled(t *testing.T) {
	f := newFixture(t)
	f.prompter.identity = IdentityKeycard
	f.prompter.user = models.UserDetails{FirstName: "Grace"}

	_, err := f.machine.Scan(context.Background(), "NEW-CARD")
	assert.ErrorIs(t, err, ErrCancelled)
	_, err = f.store.UserByCard(context.Background(), "NEW-CARD")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestCancelledPromptWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.prompter.err = errors.New("dialog closed")

	_, err := f.machine.Scan(context.Background(), "MYSTERY")
	assert.ErrorIs(t, err, ErrCancelled)
	_, err = f.store.AssetByCode(context.Background(), "MYSTERY")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestUnknownAssetRegisteredAndCheckedOut(t *testing.T) {
	f := newFixture(t)
	f.prompter.identity = IdentityAsset
	f.prompter.asset = models.AssetDetails{Name: "Lift 3", Category: "Equipment"}

	f.scan(t, "U1")
	res := f.scan(t, "LIFT-3")
	assert.Equal(t, ActionCheckout, res.Action)
	assert.Equal(t, "Equipment", res.Asset.Category)
	assert.Equal(t, models.DefaultLocation, res.Asset.Location)

	entry := f.writer.writes[0][0]
	assert.Equal(t, "Lift 3", entry.AssetName)
	assert.Equal(t, "Equipment", entry.AssetCategory)
}

func TestSessionTimeoutClearsUser(t *testing.T) {
	f := newFixture(t)
	f.scan(t, "U1")

	f.clock = f.clock.Add(DefaultSessionTimeout + time.Second)
	res := f.scan(t, "A")
	assert.Equal(t, ActionAssetPending, res.Action, "an expired user must not take the asset")
	assert.Empty(t, f.writer.writes)

	assert.False(t, f.machine.ExpireIdle())
	f.clock = f.clock.Add(DefaultSessionTimeout)
	assert.True(t, f.machine.ExpireIdle())
	assert.Equal(t, StateIdle, f.machine.Session().State)
}

func TestInactiveUserRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.DB().Exec(`UPDATE users SET active = 0 WHERE card_id = 'U1'`)
	require.NoError(t, err)

	_, err = f.machine.Scan(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrInactive)
	assert.Equal(t, StateIdle, f.machine.Session().State)
}

func TestWriterFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.writer.err = errors.New("disk full")

	f.scan(t, "U1")
	_, err := f.machine.Scan(context.Background(), "A")
	require.Error(t, err)
	assert.Empty(t, f.openRecords(t), "a change neither sent nor queued is not recorded")
	assert.Equal(t, StateIdle, f.machine.Session().State)
}

func TestInactiveAssetEndsSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.DB().Exec(`UPDATE assets SET active = 0 WHERE code = 'A'`)
	require.NoError(t, err)

	f.scan(t, "U1")
	_, err = f.machine.Scan(context.Background(), "A")
	assert.ErrorIs(t, err, ErrInactive)
	assert.Equal(t, StateIdle, f.machine.Session().State)
	assert.Nil(t, f.machine.Session().User)
	assert.Empty(t, f.writer.writes)
}

func TestFailedQueueAppendLeavesNoLocalChange(t *testing.T) {
	f := newFixture(t)
	q := outbox.New(f.store.DB())
	f.machine.writer = &LiveOrQueue{Server: newFakeServer(), Outbox: q, Monitor: &fakeMonitor{}}
	_, err := f.store.DB().Exec(`CREATE TRIGGER outbox_full BEFORE INSERT ON queued_transactions
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	f.scan(t, "U1")
	_, err = f.machine.Scan(context.Background(), "A")
	require.Error(t, err)

	assert.Empty(t, f.openRecords(t))
	assert.Zero(t, f.recordCount(t))
	n, err := q.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScanEntriesCarryEventIDs(t *testing.T) {
	f := newFixture(t)
	f.scan(t, "U1")
	f.scan(t, "A")
	f.scan(t, "U2")
	f.scan(t, "A")

	require.Len(t, f.writer.writes, 2)
	handoff := f.writer.writes[1]
	require.Len(t, handoff, 2)
	assert.NotEmpty(t, f.writer.writes[0][0].EventID)
	assert.NotEmpty(t, handoff[0].EventID)
	assert.NotEqual(t, handoff[0].EventID, handoff[1].EventID)
}

type fakeCards struct {
	err   error
	calls int
}

func (c *fakeCards) ReplaceCard(_ context.Context, _, newCard string) (models.User, error) {
	c.calls++
	return models.User{CardID: newCard}, c.err
}

func TestReplaceCard(t *testing.T) {
	f := newFixture(t)
	cards := &fakeCards{}
	f.machine.cards = cards
	ctx := context.Background()

	_, err := f.machine.ReplaceCard(ctx, "U1", "u2")
	assert.ErrorIs(t, err, ErrIdentifierTaken)
	assert.Zero(t, cards.calls, "local conflict is rejected before the server is asked")

	res := f.scan(t, "U1")
	require.Equal(t, ActionUserScanned, res.Action)
	res, err = f.machine.BeginReplaceCard(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, StateReplaceCard, f.machine.Session().State)

	res = f.scan(t, "U1-NEW")
	assert.Equal(t, ActionCardReplaced, res.Action)
	assert.Equal(t, "U1-NEW", res.User.CardID)
	assert.Equal(t, 1, cards.calls)

	_, err = f.store.UserByCard(ctx, "U1")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestReplaceCardOffline(t *testing.T) {
	f := newFixture(t)
	f.machine.cards = &fakeCards{err: fmt.Errorf("dial: %w", client.ErrUnavailable)}

	_, err := f.machine.ReplaceCard(context.Background(), "U1", "U9")
	assert.ErrorIs(t, err, ErrServerRequired)
	u, err := f.store.UserByCard(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "U1", u.CardID)
}
