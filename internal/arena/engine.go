package arena

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/internal/metrics"
	"github.com/park285/typing-arena/internal/obslog"
	"github.com/park285/typing-arena/internal/store"
)

const defaultStoreTimeout = 5 * time.Second

type Options struct {
	Store       store.Gateway
	Broadcaster Broadcaster
	Verifier    OrganizerVerifier
	Rankings    RankingsCache
	Metrics     *metrics.Recorder
	Clock       clockwork.Clock
	Logger      *zap.Logger

	// StoreTimeout bounds every store call the engine makes on its own behalf.
	StoreTimeout time.Duration
	NewID        func() string
}

// Engine routes connection events to per-competition sessions.
type Engine struct {
	store        store.Gateway
	bc           Broadcaster
	verifier     OrganizerVerifier
	rankings     RankingsCache
	metrics      *metrics.Recorder
	clock        clockwork.Clock
	logger       *zap.Logger
	storeTimeout time.Duration
	newID        func() string

	registry *Registry

	mu    sync.Mutex
	conns map[ConnID]binding
}

// binding is the competition a connection currently belongs to.
type binding struct {
	competitionID string
	organizer     bool
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("arena: store is required")
	}
	if opts.Broadcaster == nil {
		return nil, errors.New("arena: broadcaster is required")
	}
	e := &Engine{
		store:        opts.Store,
		bc:           opts.Broadcaster,
		verifier:     opts.Verifier,
		rankings:     opts.Rankings,
		metrics:      opts.Metrics,
		clock:        opts.Clock,
		logger:       opts.Logger,
		storeTimeout: opts.StoreTimeout,
		newID:        opts.NewID,
		conns:        make(map[ConnID]binding),
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.logger == nil {
		e.logger = obslog.L()
	}
	if e.storeTimeout <= 0 {
		e.storeTimeout = defaultStoreTimeout
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	e.registry = NewRegistry(e.spawn, e.metrics)
	return e, nil
}

func (e *Engine) Registry() *Registry { return e.registry }

// Close stops every live session.
func (e *Engine) Close() {
	e.registry.Close()
}

func (e *Engine) spawn(c *domain.Competition) *Session {
	return newSession(e, c)
}

func (e *Engine) storeCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, e.storeTimeout)
}

// loadCompetition is the registry loader used when a session is created by id.
func (e *Engine) loadCompetition(ctx context.Context, id string) (*domain.Competition, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	c, err := e.store.FindCompetitionByID(sctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCompetitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load competition: %w", err)
	}
	return c, nil
}

func (e *Engine) binding(conn ConnID) (binding, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.conns[conn]
	return b, ok
}

// bind attaches conn to a competition and returns the binding it replaced, if any.
func (e *Engine) bind(conn ConnID, b binding) (binding, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, ok := e.conns[conn]
	e.conns[conn] = b
	return prev, ok
}

func (e *Engine) unbind(conn ConnID) (binding, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.conns[conn]
	if ok {
		delete(e.conns, conn)
	}
	return b, ok
}

// organizerSession resolves the session an organizer command targets.
// An empty competitionID means the competition the connection is bound to.
func (e *Engine) organizerSession(conn ConnID, competitionID string) (*Session, error) {
	b, ok := e.binding(conn)
	if !ok || !b.organizer {
		return nil, ErrNotAuthorized
	}
	competitionID = strings.TrimSpace(competitionID)
	if competitionID == "" {
		competitionID = b.competitionID
	}
	if competitionID != b.competitionID {
		return nil, ErrNotAuthorized
	}
	s, ok := e.registry.Get(competitionID)
	if !ok {
		return nil, ErrNotAuthorized
	}
	return s, nil
}

// Snapshot returns a copy of the live competition state, or ErrCompetitionNotFound
// when no session is loaded for the id.
func (e *Engine) Snapshot(ctx context.Context, competitionID string) (*domain.Competition, error) {
	s, ok := e.registry.Get(competitionID)
	if !ok {
		return nil, ErrCompetitionNotFound
	}
	return s.Snapshot(ctx)
}
