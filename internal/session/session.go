// Package session holds in-process conversation state keyed by session id.
//
// The store is the only shared mutable state on the request path. Sessions
// expire after an idle TTL and retain a sliding window of recent exchanges;
// both bounds are configurable. Expired sessions are logically absent: any
// access observes them as gone, whether or not the background sweep has
// collected them yet.
//
// Ownership: the store exclusively owns Session and Exchange lifetime. All
// accessors return snapshots; callers never hold references into live store
// state.
package session

import "time"

// Exchange is one completed query/answer turn. Immutable once appended.
type Exchange struct {
	Query  string
	Answer string
	At     time.Time
}

// Session is a snapshot of one conversation's retained state.
type Session struct {
	ID           string
	UserID       string
	Exchanges    []Exchange // oldest first, bounded to the configured window
	LastActivity time.Time
}

// ExpiresAt returns the instant after which the session is treated as absent.
func (s *Session) ExpiresAt(ttl time.Duration) time.Time {
	return s.LastActivity.Add(ttl)
}
