package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTTL is the idle lifetime after which a session is absent.
	DefaultTTL = time.Hour

	// DefaultWindow is the number of retained exchanges per session.
	DefaultWindow = 4

	defaultSweepEvery = time.Minute
)

// ErrEmptySessionID indicates an operation was attempted without a session id.
var ErrEmptySessionID = errors.New("empty session id")

// Config configures a Store. Zero values take the defaults above.
type Config struct {
	TTL        time.Duration
	Window     int
	SweepEvery time.Duration
	Logger     *slog.Logger

	// Clock overrides the time source. Test hook; nil means time.Now.
	Clock func() time.Time
}

// Store is an in-memory session store with idle expiry and a sliding history
// window. It is safe for concurrent use: operations on distinct session ids
// proceed independently, operations on the same id are serialized.
//
// Locking protocol: the entries map is guarded by mu. Per-entry mutexes
// serialize same-key operations and are only acquired while holding mu.RLock;
// holders of mu.Lock therefore have exclusive access to every entry and skip
// entry locks. This keeps the lazy expiry check and the background sweep from
// racing each other into disagreeing about liveness.
type Store struct {
	ttl        time.Duration
	window     int
	sweepEvery time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	sess Session
}

// New creates a Store with the given configuration.
func New(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = defaultSweepEvery
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Store{
		ttl:        cfg.TTL,
		window:     cfg.Window,
		sweepEvery: cfg.SweepEvery,
		logger:     cfg.Logger,
		now:        cfg.Clock,
		entries:    make(map[string]*entry),
	}
}

// Get returns a snapshot of the session, or false if it does not exist or has
// expired. Get never resurrects an expired session.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s.expiredAt(e.sess.LastActivity, s.now()) {
		return nil, false
	}
	snap := snapshot(e.sess)
	return &snap, true
}

// CreateOrTouch resolves the session for a new turn: an empty id mints a
// fresh session with a generated UUID, a live id is touched, and an expired
// id is replaced by a fresh session under the same id (old history is never
// resurrected). Returns a snapshot taken at resolution time.
func (s *Store) CreateOrTouch(id, userID string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()

	// Fast path: live session, touch under the read lock.
	s.mu.RLock()
	if e, ok := s.entries[id]; ok {
		e.mu.Lock()
		if !s.expiredAt(e.sess.LastActivity, now) {
			e.sess.LastActivity = now
			snap := snapshot(e.sess)
			e.mu.Unlock()
			s.mu.RUnlock()
			return &snap
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	// Slow path: create or replace under the write lock, re-checking in case
	// another request won the race.
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok && !s.expiredAt(e.sess.LastActivity, now) {
		e.sess.LastActivity = now
		snap := snapshot(e.sess)
		return &snap
	}

	fresh := &entry{sess: Session{ID: id, UserID: userID, LastActivity: now}}
	s.entries[id] = fresh
	s.logger.Debug("session created", "session_id", id, "user_id", userID)
	snap := snapshot(fresh.sess)
	return &snap
}

// Append records a completed exchange and slides the history window. The
// session is touched in the same critical section. If the session vanished
// mid-turn (expired or swept), the conversation restarts with this exchange
// rather than losing it.
func (s *Store) Append(id, userID string, ex Exchange) error {
	if id == "" {
		return ErrEmptySessionID
	}
	now := s.now()
	if ex.At.IsZero() {
		ex.At = now
	}

	s.mu.RLock()
	if e, ok := s.entries[id]; ok {
		e.mu.Lock()
		if !s.expiredAt(e.sess.LastActivity, now) {
			s.appendLocked(&e.sess, ex, now)
			e.mu.Unlock()
			s.mu.RUnlock()
			return nil
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok && !s.expiredAt(e.sess.LastActivity, now) {
		s.appendLocked(&e.sess, ex, now)
		return nil
	}

	fresh := &entry{sess: Session{ID: id, UserID: userID, LastActivity: now}}
	s.appendLocked(&fresh.sess, ex, now)
	s.entries[id] = fresh
	return nil
}

func (s *Store) appendLocked(sess *Session, ex Exchange, now time.Time) {
	sess.Exchanges = append(sess.Exchanges, ex)
	if len(sess.Exchanges) > s.window {
		// Copy instead of re-slicing so dropped exchanges are released.
		keep := make([]Exchange, s.window)
		copy(keep, sess.Exchanges[len(sess.Exchanges)-s.window:])
		sess.Exchanges = keep
	}
	sess.LastActivity = now
}

// Len counts live (non-expired) sessions.
func (s *Store) Len() int {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		e.mu.Lock()
		if !s.expiredAt(e.sess.LastActivity, now) {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Run sweeps expired sessions periodically until ctx is cancelled. The store
// works without it; lazy expiry at access keeps results correct either way,
// the sweep only reclaims memory for sessions never touched again.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if s.expiredAt(e.sess.LastActivity, now) {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("swept expired sessions", "removed", removed, "remaining", len(s.entries))
	}
}

func (s *Store) expiredAt(lastActivity, now time.Time) bool {
	return now.After(lastActivity.Add(s.ttl))
}

func snapshot(sess Session) Session {
	out := sess
	out.Exchanges = make([]Exchange, len(sess.Exchanges))
	copy(out.Exchanges, sess.Exchanges)
	return out
}
