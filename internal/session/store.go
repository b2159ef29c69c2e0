package session

import (
	"context"
	"sync"
	"time"

	"resumetailor/internal/errors"
)

// Handle guards one stored session. Callers hold the lock for the whole of an
// input so a conversation never processes two inputs at once.
type Handle struct {
	mu       sync.Mutex
	session  *Session
	lastUsed time.Time
}

// Lock acquires exclusive access and returns the session.
func (h *Handle) Lock() *Session {
	h.mu.Lock()
	return h.session
}

// Unlock releases the session. UpdatedAt only moves when the session records
// a message or is reset, so reads leave it alone.
func (h *Handle) Unlock() {
	h.mu.Unlock()
}

// Store keeps conversations in memory and evicts idle ones.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Handle
	ttl      time.Duration
	max      int
	logger   *errors.Logger
	onRemove func(*Session)

	cleanupInterval time.Duration
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

// NewStore creates a store. A zero ttl disables eviction; a zero max disables the limit.
func NewStore(ttl, cleanupInterval time.Duration, max int, logger *errors.Logger) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &Store{
		sessions:        make(map[string]*Handle),
		ttl:             ttl,
		max:             max,
		logger:          logger,
		cleanupInterval: cleanupInterval,
	}
}

// Start launches the eviction loop.
func (s *Store) Start(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.EvictIdle(now); n > 0 {
					s.logger.Info("Evicted idle sessions", "count", n, "remaining", s.Len())
				}
			}
		}
	}()
}

// Close stops the eviction loop.
func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// OnRemove registers fn to run for every session that leaves the store through
// Delete, DeleteAll or EvictIdle. fn runs with the session locked and outside
// the store lock, so it may wait for an in-flight input to finish.
func (s *Store) OnRemove(fn func(*Session)) {
	s.mu.Lock()
	s.onRemove = fn
	s.mu.Unlock()
}

// Create stores a new session.
func (s *Store) Create() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.max > 0 && len(s.sessions) >= s.max {
		return nil, errors.NewValidationError(errors.ErrCodeSessionLimit, "too many active sessions", nil).
			WithContext("max_sessions", s.max)
	}

	sess := New()
	s.sessions[sess.ID] = &Handle{session: sess, lastUsed: time.Now()}
	return sess, nil
}

// Get returns the handle of a stored session.
func (s *Store) Get(id string) (*Handle, error) {
	s.mu.RLock()
	h, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewValidationError(errors.ErrCodeSessionNotFound, "session not found", nil).
			WithContext("session_id", id)
	}
	s.mu.Lock()
	h.lastUsed = time.Now()
	s.mu.Unlock()
	return h, nil
}

// Delete removes a session; deleting an unknown id is not an error.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	h, ok := s.sessions[id]
	delete(s.sessions, id)
	fn := s.onRemove
	s.mu.Unlock()
	if ok {
		release(fn, h)
	}
}

// DeleteAll empties the store and returns how many sessions were removed.
func (s *Store) DeleteAll() int {
	s.mu.Lock()
	removed := make([]*Handle, 0, len(s.sessions))
	for id, h := range s.sessions {
		removed = append(removed, h)
		delete(s.sessions, id)
	}
	fn := s.onRemove
	s.mu.Unlock()

	for _, h := range removed {
		release(fn, h)
	}
	return len(removed)
}

func release(fn func(*Session), h *Handle) {
	if fn == nil {
		return
	}
	sess := h.Lock()
	defer h.Unlock()
	fn(sess)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle removes sessions unused for longer than the ttl and returns how many were removed.
func (s *Store) EvictIdle(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	var evicted []*Handle
	for id, h := range s.sessions {
		if now.Sub(h.lastUsed) > s.ttl {
			delete(s.sessions, id)
			evicted = append(evicted, h)
		}
	}
	fn := s.onRemove
	s.mu.Unlock()

	for _, h := range evicted {
		release(fn, h)
	}
	return len(evicted)
}
