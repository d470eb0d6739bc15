package arena

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/internal/metrics"
)

// Loader fetches a competition the first time its session is needed.
type Loader func(ctx context.Context, competitionID string) (*domain.Competition, error)

// RetentionPolicy decides when a finished competition's live state may be dropped.
type RetentionPolicy struct {
	CompletedTTL time.Duration
}

// Registry maps competition ids to their live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	loads    singleflight.Group
	spawn    func(*domain.Competition) *Session
	metrics  *metrics.Recorder
}

func NewRegistry(spawn func(*domain.Competition) *Session, rec *metrics.Recorder) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		spawn:    spawn,
		metrics:  rec,
	}
}

func (r *Registry) Get(competitionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[strings.TrimSpace(competitionID)]
	return s, ok
}

// GetOrCreate returns the session for competitionID, loading it on first access.
// Concurrent first accesses share one load and yield the same session.
func (r *Registry) GetOrCreate(ctx context.Context, competitionID string, load Loader) (*Session, error) {
	id := strings.TrimSpace(competitionID)
	if id == "" {
		return nil, ErrInvalidArgs
	}
	if s, ok := r.Get(id); ok {
		return s, nil
	}
	v, err, _ := r.loads.Do(id, func() (any, error) {
		if s, ok := r.Get(id); ok {
			return s, nil
		}
		c, err := load(ctx, id)
		if err != nil {
			return nil, err
		}
		if c == nil || c.ID != id {
			return nil, ErrCompetitionNotFound
		}
		s := r.spawn(c)
		r.mu.Lock()
		r.sessions[id] = s
		n := len(r.sessions)
		r.mu.Unlock()
		r.metrics.Sessions(n)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	s, ok := v.(*Session)
	if !ok {
		return nil, errors.New("registry: unexpected load result")
	}
	return s, nil
}

// Evict stops and forgets a session. Queued commands that have not run yet fail with ErrSessionClosed.
func (r *Registry) Evict(competitionID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[competitionID]
	if ok {
		delete(r.sessions, competitionID)
	}
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.stop()
	r.metrics.Sessions(n)
	return true
}

// Sweep evicts sessions the policy allows to be dropped and returns their ids.
// Competitions that are not completed are never swept.
func (r *Registry) Sweep(ctx context.Context, now time.Time, p RetentionPolicy) []string {
	r.mu.RLock()
	candidates := make(map[string]*Session, len(r.sessions))
	for id, s := range r.sessions {
		candidates[id] = s
	}
	r.mu.RUnlock()

	var evicted []string
	for id, s := range candidates {
		var idle bool
		if err := s.inspect(ctx, func() { idle = s.idle(now, p.CompletedTTL) }); err != nil || !idle {
			continue
		}
		r.mu.Lock()
		current, ok := r.sessions[id]
		if ok && current == s {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
		if !ok || current != s {
			continue
		}
		s.stop()
		evicted = append(evicted, id)
	}
	r.metrics.Sessions(r.Len())
	return evicted
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		s.stop()
	}
	r.metrics.Sessions(0)
}
