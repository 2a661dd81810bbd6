package checkout

import (
	"time"

	"github.com/crucial707/keykiosk/internal/models"
)

// State is where the kiosk is in a scan sequence.
type State int

const (
	// StateIdle waits for a card or an asset.
	StateIdle State = iota
	// StateUserScanned holds a user and waits for an asset.
	StateUserScanned
	// StateAssetPending holds an available asset and waits for a card.
	StateAssetPending
	// StateReplaceCard holds a user and waits for their new card.
	StateReplaceCard
)

func (s State) String() string {
	switch s {
	case StateUserScanned:
		return "user_scanned"
	case StateAssetPending:
		return "asset_pending"
	case StateReplaceCard:
		return "replace_card"
	default:
		return "idle"
	}
}

// Session is the state of one scan sequence. It is reset after every
// completed transition, on cancellation, and after inactivity.
type Session struct {
	State        State
	User         *models.User
	PendingAsset *models.Asset
	LastActivity time.Time
}

// Expired reports whether the session has been idle for longer than timeout.
func (s Session) Expired(now time.Time, timeout time.Duration) bool {
	if s.State == StateIdle || timeout <= 0 {
		return false
	}
	return now.Sub(s.LastActivity) >= timeout
}

func (s *Session) reset() {
	*s = Session{}
}

func (s *Session) holdUser(u models.User, now time.Time) {
	s.State = StateUserScanned
	s.User = &u
	s.PendingAsset = nil
	s.LastActivity = now
}

func (s *Session) holdAsset(a models.Asset, now time.Time) {
	s.State = StateAssetPending
	s.User = nil
	s.PendingAsset = &a
	s.LastActivity = now
}
