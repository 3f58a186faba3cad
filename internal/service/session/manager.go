package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/metrics"
)

// Acquirer establishes a fresh session with a chatbot target.
type Acquirer interface {
	Acquire(ctx context.Context, target chatbot.Target) (sessionModel.Grant, error)
}

// Error reports a failed acquisition for one target.
type Error struct {
	TargetID string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("session for %s: %v", e.TargetID, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Config tunes session lifetime.
type Config struct {
	TTL            time.Duration
	AcquireTimeout time.Duration
}

// Manager caches one session per target id. Acquisitions for the same id are
// collapsed into a single in-flight call; different ids never wait on each
// other.
type Manager struct {
	acquirer Acquirer
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Recorder
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]sessionModel.Session
	// generations is bumped by Invalidate. An acquisition only stores its
	// session if the generation it started under is still current.
	generations map[string]uint64
	inflight    singleflight.Group
}

// acquired is what a shared acquisition hands to its waiters.
type acquired struct {
	session    sessionModel.Session
	generation uint64
}

// NewManager creates a session manager. metrics may be nil.
func NewManager(acquirer Acquirer, cfg Config, logger *zap.Logger, rec *metrics.Recorder) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		acquirer:    acquirer,
		cfg:         cfg,
		logger:      logger.Named("session"),
		metrics:     rec,
		now:         time.Now,
		sessions:    make(map[string]sessionModel.Session),
		generations: make(map[string]uint64),
	}
}

// Get returns a valid session for target, acquiring one if needed. The
// caller's context only bounds how long this caller waits: the shared
// acquisition keeps running for the other waiters under AcquireTimeout.
// At most one acquisition per target is in flight. A caller that arrives after
// an invalidation does not take the result of an acquisition started before
// it; it waits for that call to return and then acquires again.
func (m *Manager) Get(ctx context.Context, target chatbot.Target) (sessionModel.Session, error) {
	for {
		if s, ok := m.cached(target.ID); ok {
			return s, nil
		}

		want := m.generation(target.ID)
		ch := m.inflight.DoChan(target.ID, func() (any, error) {
			gen := m.generation(target.ID)
			if s, ok := m.cached(target.ID); ok {
				return acquired{session: s, generation: gen}, nil
			}
			s, err := m.acquire(target, gen)
			return acquired{session: s, generation: gen}, err
		})

		select {
		case <-ctx.Done():
			return sessionModel.Session{}, &Error{TargetID: target.ID, Cause: ctx.Err()}
		case res := <-ch:
			got, _ := res.Val.(acquired)
			if got.generation < want {
				continue
			}
			if res.Err != nil {
				return sessionModel.Session{}, res.Err
			}
			return got.session, nil
		}
	}
}

// Invalidate drops the cached session for id. The next Get re-acquires, and
// an acquisition already in flight is not cached when it completes.
func (m *Manager) Invalidate(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.generations[id]++
	m.mu.Unlock()

	if ok {
		m.logger.Info("session invalidated", zap.String("target", id))
	}
	return ok
}

// Snapshot lists the sessions that are still valid, sorted by target id.
// Expired entries are dropped along the way.
func (m *Manager) Snapshot() []sessionModel.Session {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]sessionModel.Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		if !s.Valid(now) {
			delete(m.sessions, id)
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TargetID < result[j].TargetID
	})
	return result
}

// SetupResult reports the pre-warm outcome for one target.
type SetupResult struct {
	TargetID  string    `json:"id"`
	Ready     bool      `json:"ready"`
	Reused    bool      `json:"reused"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Setup pre-warms sessions for every target concurrently. Valid sessions are
// reused, so calling it twice does not acquire twice. Failures are reported
// per target and never abort the others.
func (m *Manager) Setup(ctx context.Context, targets []chatbot.Target) []SetupResult {
	results := make([]SetupResult, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target chatbot.Target) {
			defer wg.Done()

			_, reused := m.cached(target.ID)
			s, err := m.Get(ctx, target)
			if err != nil {
				results[i] = SetupResult{TargetID: target.ID, Error: err.Error()}
				return
			}
			results[i] = SetupResult{
				TargetID:  target.ID,
				Ready:     true,
				Reused:    reused,
				ExpiresAt: s.ExpiresAt,
			}
		}(i, target)
	}
	wg.Wait()

	return results
}

func (m *Manager) cached(id string) (sessionModel.Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || !s.Valid(m.now()) {
		return sessionModel.Session{}, false
	}
	return s, true
}

func (m *Manager) generation(id string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generations[id]
}

func (m *Manager) acquire(target chatbot.Target, gen uint64) (s sessionModel.Session, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.AcquireTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &Error{TargetID: target.ID, Cause: fmt.Errorf("panic during acquisition: %v", r)}
		}
		m.metrics.ObserveAcquisition(target.ID, err)
	}()

	started := m.now()
	grant, err := m.acquirer.Acquire(ctx, target)
	if err != nil {
		m.logger.Warn("session acquisition failed", zap.String("target", target.ID), zap.Error(err))
		return sessionModel.Session{}, &Error{TargetID: target.ID, Cause: err}
	}

	ttl := grant.TTL
	if ttl <= 0 {
		ttl = m.cfg.TTL
	}

	s = sessionModel.Session{
		TargetID:  target.ID,
		Token:     grant.Token,
		CreatedAt: started,
		ExpiresAt: started.Add(ttl),
	}

	m.mu.Lock()
	current := m.generations[target.ID] == gen
	if current {
		m.sessions[target.ID] = s
	}
	m.mu.Unlock()

	if !current {
		m.logger.Info("session invalidated during acquisition, not cached", zap.String("target", target.ID))
		return s, nil
	}

	m.logger.Info("session established",
		zap.String("target", target.ID),
		zap.Time("expiresAt", s.ExpiresAt),
		zap.Duration("took", m.now().Sub(started)))
	return s, nil
}
