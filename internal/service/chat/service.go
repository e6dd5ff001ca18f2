package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/chat"
)

var (
	ErrSessionRequired = errors.New("session id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrLeaseReleased   = errors.New("session lease already released")
)

const sweepInterval = time.Minute

// Options 控制会话存储的容量与淘汰策略。
type Options struct {
	// MaxSessions 超过后淘汰最久未使用且未被占用的会话，<=0 表示不限制。
	MaxSessions int
	// MaxTurns 单个会话允许保存的最大轮次，<=0 表示不限制。
	MaxTurns int
	// TTL 会话空闲超过该时长后整体淘汰，<=0 表示不过期。
	TTL time.Duration
	// Now 用于测试注入时钟。
	Now func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxSessions: 10000,
		MaxTurns:    200,
		TTL:         2 * time.Hour,
	}
}

// Service is the in-memory session store. It is owned by the orchestrator and injected
// wherever transcripts are needed; sessions disappear on process restart.
type Service struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	opts      Options
	now       func() time.Time
	lastSweep time.Time
}

type entry struct {
	// sem is held by the active Lease; it serialises turns of one session.
	sem chan struct{}

	// guarded by entry.mu
	mu      sync.RWMutex
	session chat.Session
	turns   []chat.Turn

	// guarded by Service.mu
	leases   int
	lastSeen time.Time
}

// NewService bootstraps the in-memory session store.
func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		sessions: make(map[string]*entry),
		opts:     opts,
		now:      now,
	}
}

// Acquire returns an exclusive lease on the session, creating it on first use. Concurrent
// callers for the same session wait in turn; the wait honours ctx.
func (s *Service) Acquire(ctx context.Context, sessionID string) (*Lease, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	s.mu.Lock()
	now := s.now().UTC()
	s.sweepLocked(now)

	e, ok := s.sessions[sessionID]
	if ok && e.leases == 0 && s.expired(e, now) {
		delete(s.sessions, sessionID)
		ok = false
	}
	if !ok {
		if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
			s.evictOldestLocked()
		}
		e = &entry{
			sem:     make(chan struct{}, 1),
			session: chat.Session{ID: sessionID, CreatedAt: now, LastSeenAt: now},
			turns:   make([]chat.Turn, 0, 16),
		}
		s.sessions[sessionID] = e
	}
	e.leases++
	e.lastSeen = now
	s.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		s.mu.Lock()
		e.leases--
		s.mu.Unlock()
		return nil, ctx.Err()
	}

	e.mu.Lock()
	e.session.LastSeenAt = now
	e.mu.Unlock()

	return &Lease{svc: s, entry: e}, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session, nil
}

// Transcript returns a copy of every stored turn for the session, oldest first.
func (s *Service) Transcript(_ context.Context, sessionID string) ([]chat.Turn, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	copied := make([]chat.Turn, len(e.turns))
	copy(copied, e.turns)
	return copied, nil
}

// Delete evicts the whole session. Deleting an unknown session is a no-op.
// A session with an in-flight turn keeps its entry, so later turns still queue behind the
// current lease; only its transcript is cleared.
func (s *Service) Delete(_ context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	if e.leases == 0 {
		delete(s.sessions, sessionID)
		return
	}

	e.mu.Lock()
	e.turns = make([]chat.Turn, 0, 16)
	e.session.CreatedAt = s.now().UTC()
	e.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if e.leases == 0 && s.expired(e, s.now().UTC()) {
		delete(s.sessions, sessionID)
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *Service) expired(e *entry, now time.Time) bool {
	return s.opts.TTL > 0 && now.Sub(e.lastSeen) > s.opts.TTL
}

// sweepLocked drops idle expired sessions, at most once per sweepInterval.
func (s *Service) sweepLocked(now time.Time) {
	if s.opts.TTL <= 0 || now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for id, e := range s.sessions {
		if e.leases == 0 && s.expired(e, now) {
			delete(s.sessions, id)
		}
	}
}

func (s *Service) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range s.sessions {
		if e.leases > 0 {
			continue
		}
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}

// Lease is the single-writer handle for one session, held for the duration of a turn.
type Lease struct {
	svc      *Service
	entry    *entry
	released bool
}

// SessionID returns the leased session identifier.
func (l *Lease) SessionID() string {
	return l.entry.session.ID
}

// Len returns the number of stored turns.
func (l *Lease) Len() int {
	l.entry.mu.RLock()
	defer l.entry.mu.RUnlock()
	return len(l.entry.turns)
}

// Recent returns a copy of at most the last k turns, oldest first.
func (l *Lease) Recent(k int) []chat.Turn {
	l.entry.mu.RLock()
	defer l.entry.mu.RUnlock()

	if k <= 0 || len(l.entry.turns) == 0 {
		return nil
	}
	start := 0
	if len(l.entry.turns) > k {
		start = len(l.entry.turns) - k
	}
	recent := make([]chat.Turn, len(l.entry.turns)-start)
	copy(recent, l.entry.turns[start:])
	return recent
}

// Append stores the turns atomically: either all of them are appended or none.
func (l *Lease) Append(turns ...chat.Turn) error {
	if l.released {
		return ErrLeaseReleased
	}

	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()

	if limit := l.svc.opts.MaxTurns; limit > 0 && len(l.entry.turns)+len(turns) > limit {
		return errs.E(errs.KindSessionFull, "chat.append",
			fmt.Errorf("session %s holds %d of %d turns", l.entry.session.ID, len(l.entry.turns), limit))
	}

	now := l.svc.now().UTC()
	for _, turn := range turns {
		if turn.ID == "" {
			turn.ID = uuid.NewString()
		}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = now
		}
		l.entry.turns = append(l.entry.turns, turn)
	}
	return nil
}

// Release gives the session back. It is safe to call more than once.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	<-l.entry.sem

	l.svc.mu.Lock()
	l.entry.leases--
	l.entry.lastSeen = l.svc.now().UTC()
	l.svc.mu.Unlock()
}
