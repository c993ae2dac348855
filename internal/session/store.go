// Package session keeps per-visitor page state in memory. Every browser gets
// its own contact controller and lightbox, keyed by a random cookie id.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/dcmarble/stonesite/internal/contact"
	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/dcmarble/stonesite/internal/gallery"
	"github.com/dcmarble/stonesite/internal/logging"
	"github.com/google/uuid"
)

// CookieName is the cookie carrying the visitor id.
const CookieName = "stonesite_session"

// ErrFull is returned by GetOrCreate when the store is at its visitor cap
// and every visitor is busy.
var ErrFull = errors.NewSecurityError(errors.ErrCodeSessionLimit, "too many visitor sessions")

// subscriberBuffer bounds how many snapshots a slow websocket may lag.
const subscriberBuffer = 4

// ControllerFactory builds the contact controller for a new visitor. The
// observer must be registered so subscribers see state changes.
type ControllerFactory func(observer contact.Observer) *contact.Controller

// Visitor is one browser's page state.
type Visitor struct {
	ID       string
	Contact  *contact.Controller
	Lightbox *gallery.Lightbox

	mu       sync.Mutex
	lastSeen time.Time
	subs     map[chan contact.Snapshot]struct{}
}

// Subscribe returns a channel receiving every contact snapshot published
// after the call, and a cancel func that closes it.
func (v *Visitor) Subscribe() (<-chan contact.Snapshot, func()) {
	ch := make(chan contact.Snapshot, subscriberBuffer)

	v.mu.Lock()
	v.subs[ch] = struct{}{}
	v.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, ch)
			v.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (v *Visitor) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// publish fans a snapshot out without blocking. A full subscriber loses its
// oldest pending snapshot; the newest state always gets through.
func (v *Visitor) publish(snap contact.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for ch := range v.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (v *Visitor) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *Visitor) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return now.Sub(v.lastSeen)
}

// busy reports whether removing v would lose a send or orphan a websocket.
func (v *Visitor) busy() bool {
	return v.Contact.InFlight() || v.Subscribers() > 0
}

// Store holds visitors until they go idle for longer than the TTL.
type Store struct {
	mu       sync.RWMutex
	visitors map[string]*Visitor

	ttl           time.Duration
	maxVisitors   int
	newController ControllerFactory
	logger        logging.Logger
	now           func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.WithComponent("session")
		}
	}
}

// WithMaxVisitors caps the number of live visitors. At the cap a new
// visitor displaces the one idle the longest. n <= 0 means no cap.
func WithMaxVisitors(n int) Option {
	return func(s *Store) {
		s.maxVisitors = n
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store.
func NewStore(ttl time.Duration, newController ControllerFactory, opts ...Option) *Store {
	s := &Store{
		visitors:      make(map[string]*Visitor),
		ttl:           ttl,
		newController: newController,
		logger:        logging.NewNopLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the visitor for id and marks it active.
func (s *Store) Get(id string) (*Visitor, bool) {
	s.mu.RLock()
	v, ok := s.visitors[id]
	s.mu.RUnlock()

	if ok {
		v.touch(s.now())
	}
	return v, ok
}

// GetOrCreate returns the visitor for id, creating a fresh one under a new
// id when id is empty or unknown. created reports whether that happened.
// It fails with ErrFull only when the cap is reached and no visitor can be
// displaced.
func (s *Store) GetOrCreate(id string) (v *Visitor, created bool, err error) {
	if id != "" {
		if v, ok := s.Get(id); ok {
			return v, false, nil
		}
	}

	now := s.now()
	v = &Visitor{
		ID:       uuid.NewString(),
		Lightbox: gallery.NewLightbox(),
		lastSeen: now,
		subs:     make(map[chan contact.Snapshot]struct{}),
	}
	v.Contact = s.newController(v.publish)

	s.mu.Lock()
	var evicted string
	if s.maxVisitors > 0 && len(s.visitors) >= s.maxVisitors {
		if evicted = s.evictLocked(now); evicted == "" {
			s.mu.Unlock()
			return nil, false, ErrFull
		}
	}
	s.visitors[v.ID] = v
	s.mu.Unlock()

	if evicted != "" {
		s.logger.Debug(context.Background(), "Visitor session displaced", "session", evicted[:8])
	}
	s.logger.Debug(context.Background(), "Visitor session created", "session", v.ID[:8])
	return v, true, nil
}

// evictLocked removes the least recently seen visitor that is not busy and
// returns its id, or "" when every visitor is busy. s.mu must be held.
func (s *Store) evictLocked(now time.Time) string {
	var (
		oldest string
		idle   time.Duration = -1
	)
	for id, v := range s.visitors {
		if d := v.idleSince(now); d > idle && !v.busy() {
			oldest, idle = id, d
		}
	}
	if oldest != "" {
		delete(s.visitors, oldest)
	}
	return oldest
}

// Len returns the number of live visitors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visitors)
}

// Sweep removes visitors idle longer than the TTL. Visitors with a submit
// in flight or an open websocket are kept.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, v := range s.visitors {
		if v.idleSince(now) <= s.ttl {
			continue
		}
		if v.busy() {
			continue
		}
		delete(s.visitors, id)
		removed++
	}
	return removed
}

// Run sweeps expired visitors periodically until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug(ctx, "Expired visitor sessions removed", "count", n, "remaining", s.Len())
			}
		}
	}
}
