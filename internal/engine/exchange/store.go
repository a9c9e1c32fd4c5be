// Package exchange keeps the exchanges found during this process's
// lifetime together with the per-kingdom scan history.
package exchange

import (
	"time"

	"github.com/ConserveLee/exchange-scout/internal/constants"
)

// Exchange is a located target building.
type Exchange struct {
	Kingdom      int
	X            int
	Y            int
	FoundAt      time.Time
	ScanDuration time.Duration // zero when unknown
	Confirmed    bool          // true = coordinates read from the game's own popup
	Screenshot   []byte        // PNG of the popup at confirmation, may be nil
}

// Store is not safe for concurrent use: its owner serializes access under
// its own lock.
type Store struct {
	exchanges []Exchange
	lastScan  map[int]time.Time
	window    time.Duration
}

// NewStore creates an empty store with the 5-minute duplicate window.
func NewStore() *Store {
	return &Store{
		lastScan: make(map[int]time.Time),
		window:   constants.ExchangeDedupWindow,
	}
}

// Add stores e unless an exchange with the same kingdom and coordinates was
// found within the duplicate window before now. Coordinates are clamped to
// the world first. It reports whether e was stored.
func (s *Store) Add(e Exchange, now time.Time) bool {
	e.X = clamp(e.X)
	e.Y = clamp(e.Y)
	for _, ex := range s.exchanges {
		if ex.Kingdom == e.Kingdom && ex.X == e.X && ex.Y == e.Y && now.Sub(ex.FoundAt) < s.window {
			return false
		}
	}
	if e.FoundAt.IsZero() {
		e.FoundAt = now
	}
	s.exchanges = append(s.exchanges, e)
	return true
}

// ForKingdom returns the most recently found exchange in kingdom.
func (s *Store) ForKingdom(kingdom int) (Exchange, bool) {
	var best Exchange
	found := false
	for _, ex := range s.exchanges {
		if ex.Kingdom != kingdom {
			continue
		}
		if !found || ex.FoundAt.After(best.FoundAt) {
			best = ex
			found = true
		}
	}
	return best, found
}

// Refresh bumps FoundAt of the exchange at (kingdom, x, y) to now.
func (s *Store) Refresh(kingdom, x, y int, now time.Time) bool {
	for i := range s.exchanges {
		ex := &s.exchanges[i]
		if ex.Kingdom == kingdom && ex.X == x && ex.Y == y {
			ex.FoundAt = now
			return true
		}
	}
	return false
}

// Remove drops every exchange in kingdom and returns how many were removed.
func (s *Store) Remove(kingdom int) int {
	kept := s.exchanges[:0]
	removed := 0
	for _, ex := range s.exchanges {
		if ex.Kingdom == kingdom {
			removed++
			continue
		}
		kept = append(kept, ex)
	}
	for i := len(kept); i < len(s.exchanges); i++ {
		s.exchanges[i] = Exchange{}
	}
	s.exchanges = kept
	return removed
}

// List returns a copy of all exchanges in insertion order.
func (s *Store) List() []Exchange {
	out := make([]Exchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

// Get returns the exchange at index i of List.
func (s *Store) Get(i int) (Exchange, bool) {
	if i < 0 || i >= len(s.exchanges) {
		return Exchange{}, false
	}
	return s.exchanges[i], true
}

// Len returns the number of stored exchanges.
func (s *Store) Len() int {
	return len(s.exchanges)
}

// Clear drops all exchanges. Scan history is kept.
func (s *Store) Clear() {
	s.exchanges = nil
}

// LastScan returns when kingdom last finished a full scan.
func (s *Store) LastScan(kingdom int) (time.Time, bool) {
	t, ok := s.lastScan[kingdom]
	return t, ok
}

// SetLastScan records a completed full scan of kingdom.
func (s *Store) SetLastScan(kingdom int, at time.Time) {
	s.lastScan[kingdom] = at
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > constants.WorldMax {
		return constants.WorldMax
	}
	return v
}
