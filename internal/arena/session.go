package arena

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/typing-arena/internal/domain"
)

const sessionQueueSize = 256

// Session is the live state of one competition. Every read and write of that state
// runs on the session goroutine, in the order commands were queued.
type Session struct {
	id  string
	e   *Engine
	log *zap.Logger

	cmds     chan func()
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	writes   *writeQueue

	// owned by the session goroutine
	comp       *domain.Competition
	runtimes   map[ConnID]*runtime
	organizers map[ConnID]struct{}
	joinSeq    int64
	timer      clockwork.Timer
	lastActive time.Time
	lastReport *FinalizeReport
	finalizing *finalizeRun
}

// runtime is the in-memory view of one connected participant.
type runtime struct {
	conn          ConnID
	participantID string
	name          string
	joinedAt      time.Time
	joinSeq       int64
	connected     bool
	scores        []domain.RoundScore

	progress    Snapshot
	hasProgress bool
	progressAt  time.Time
}

func (rt *runtime) attempt() Attempt {
	return Attempt{
		Key:      rt.name,
		WPM:      rt.progress.WPM,
		Accuracy: rt.progress.Accuracy,
		Errors:   rt.progress.Errors,
		JoinedAt: rt.joinedAt,
		JoinSeq:  rt.joinSeq,
	}
}

func (rt *runtime) resetProgress() {
	rt.progress = Snapshot{}
	rt.hasProgress = false
	rt.progressAt = time.Time{}
}

func newSession(e *Engine, c *domain.Competition) *Session {
	s := &Session{
		id:         c.ID,
		e:          e,
		log:        e.logger.With(zap.String("competition_id", c.ID)),
		cmds:       make(chan func(), sessionQueueSize),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		comp:       c.Clone(),
		runtimes:   make(map[ConnID]*runtime),
		organizers: make(map[ConnID]struct{}),
		lastActive: e.clock.Now(),
		writes:     newWriteQueue(),
	}
	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.quit:
			s.stopTimer()
			return
		case cmd := <-s.cmds:
			s.exec(cmd)
		}
	}
}

func (s *Session) exec(cmd func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session_command_panic", zap.Any("panic", r))
		}
	}()
	cmd()
}

// do runs fn on the session goroutine and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	return s.submit(ctx, fn, true)
}

// inspect is do without marking the session active.
func (s *Session) inspect(ctx context.Context, fn func()) error {
	return s.submit(ctx, fn, false)
}

func (s *Session) submit(ctx context.Context, fn func(), touch bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		if touch {
			s.lastActive = s.e.clock.Now()
		}
		fn()
	}
	select {
	case s.cmds <- cmd:
	case <-s.quit:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting; used by timer callbacks.
func (s *Session) post(fn func()) {
	go func() {
		if err := s.do(context.Background(), fn); err != nil {
			s.log.Debug("session_post_dropped", zap.Error(err))
		}
	}()
}

// stop ends the session goroutine and then lets queued writes finish.
func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	<-s.stopped
	s.writes.close()
}

// Snapshot returns a deep copy of the competition as the session currently sees it.
func (s *Session) Snapshot(ctx context.Context) (*domain.Competition, error) {
	var out *domain.Competition
	if err := s.inspect(ctx, func() { out = s.comp.Clone() }); err != nil {
		return nil, err
	}
	return out, nil
}

// ParticipantNames lists the runtimes in join order.
func (s *Session) ParticipantNames(ctx context.Context) ([]string, error) {
	var out []string
	if err := s.inspect(ctx, func() { out = s.participantNames() }); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) participantNames() []string {
	list := s.orderedRuntimes()
	out := make([]string, 0, len(list))
	for _, rt := range list {
		out = append(out, rt.name)
	}
	return out
}

func (s *Session) orderedRuntimes() []*runtime {
	list := make([]*runtime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		list = append(list, rt)
	}
	sort.Slice(list, func(i, j int) bool {
		return joinedBefore(list[i].joinedAt, list[i].joinSeq, list[j].joinedAt, list[j].joinSeq)
	})
	return list
}

func (s *Session) runtimeByName(name string) *runtime {
	for _, rt := range s.runtimes {
		if rt.name == name {
			return rt
		}
	}
	return nil
}

func (s *Session) isOrganizer(conn ConnID) bool {
	_, ok := s.organizers[conn]
	return ok
}

// idle reports whether a completed session with no connections and no finalize in flight
// has been untouched for at least ttl.
func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	if !s.comp.IsCompleted() || len(s.organizers) > 0 || s.finalizing != nil {
		return false
	}
	for _, rt := range s.runtimes {
		if rt.connected {
			return false
		}
	}
	return now.Sub(s.lastActive) >= ttl
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// persist queues a write of the current competition document. Failures are logged;
// live state stays authoritative.
func (s *Session) persist(event string) {
	doc := s.comp.Clone()
	s.write(func() { s.writeCompetition(doc, event) })
}

// write queues job behind every earlier write of this session.
func (s *Session) write(job func()) {
	ok := s.writes.enqueue(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("session_write_panic", zap.Any("panic", r))
			}
		}()
		job()
	})
	if !ok {
		s.log.Warn("session_write_dropped")
	}
}

func (s *Session) writeCompetition(doc *domain.Competition, event string) bool {
	ctx, cancel := s.e.storeCtx(context.Background())
	defer cancel()
	if err := s.e.store.UpdateCompetition(ctx, doc); err != nil {
		s.log.Warn("competition_persist_error", zap.String("event", event), zap.Error(err))
		return false
	}
	return true
}
