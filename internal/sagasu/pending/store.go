// Package pending holds disambiguation state between the candidate prompt
// and the user's selection.
//
// When a name query matches several plausible people, the pipeline pauses: a
// numbered candidate list goes out and the ranked choices are parked here,
// keyed by (room, sender), until the user picks one or the entry expires.
// The state is deliberately in-process only — an expired or lost entry just
// means the user re-runs the query.
package pending

import (
	"errors"
	"sync"
	"time"
)

// DefaultTTL is how long a disambiguation prompt stays answerable.
const DefaultTTL = 5 * time.Minute

// ErrNoPending is returned when a selection arrives with nothing parked for
// that room and sender (or the entry has expired).
var ErrNoPending = errors.New("pending: no disambiguation awaiting selection")

// ErrBadChoice is returned when the selection index is out of range.
var ErrBadChoice = errors.New("pending: selection out of range")

// Selection is the opaque value a disambiguation choice carries: just enough
// to resume the lookup without refetching the directory.
type Selection struct {
	ID    int64
	Name  string
	Email string
}

// entry is one parked disambiguation.
type entry struct {
	query      string
	candidates []Selection
	createdAt  time.Time
}

// Store is a TTL-bounded in-memory map of parked disambiguations.  Safe for
// concurrent use.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewStore creates a Store.  ttl <= 0 selects DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func storeKey(roomID, sender string) string {
	return roomID + "|" + sender
}

// Put parks a candidate list for the given room and sender, replacing any
// previous one.
func (s *Store) Put(roomID, sender, query string, candidates []Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()
	s.entries[storeKey(roomID, sender)] = entry{
		query:      query,
		candidates: candidates,
		createdAt:  s.now(),
	}
}

// Take consumes the parked entry for (roomID, sender) and returns the
// candidate at the 1-based index n along with the original query text.
func (s *Store) Take(roomID, sender string, n int) (Selection, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()
	key := storeKey(roomID, sender)
	e, ok := s.entries[key]
	if !ok {
		return Selection{}, "", ErrNoPending
	}
	if n < 1 || n > len(e.candidates) {
		// Leave the entry parked so the user can correct their pick.
		return Selection{}, "", ErrBadChoice
	}

	delete(s.entries, key)
	return e.candidates[n-1], e.query, nil
}

// purgeLocked drops expired entries.  Caller holds s.mu.
func (s *Store) purgeLocked() {
	deadline := s.now().Add(-s.ttl)
	for key, e := range s.entries {
		if e.createdAt.Before(deadline) {
			delete(s.entries, key)
		}
	}
}
