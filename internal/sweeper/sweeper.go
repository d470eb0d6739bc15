package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/typing-arena/internal/arena"
	"github.com/park285/typing-arena/internal/obslog"
)

const sweepTimeout = 10 * time.Second

// Target is the session registry being swept.
type Target interface {
	Sweep(ctx context.Context, now time.Time, p arena.RetentionPolicy) []string
}

// Sweeper periodically evicts completed, idle competitions from the live registry.
type Sweeper struct {
	sched  gocron.Scheduler
	target Target
	policy arena.RetentionPolicy
	clock  clockwork.Clock
	logger *zap.Logger
}

func New(target Target, interval, ttl time.Duration, clock clockwork.Clock, logger *zap.Logger) (*Sweeper, error) {
	if target == nil {
		return nil, errors.New("sweeper: target is required")
	}
	if interval <= 0 {
		return nil, errors.New("sweeper: interval must be positive")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = obslog.L()
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, err
	}
	s := &Sweeper{
		sched:  sched,
		target: target,
		policy: arena.RetentionPolicy{CompletedTTL: ttl},
		clock:  clock,
		logger: logger,
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run),
		gocron.WithName("registry_sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = sched.Shutdown()
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() { s.sched.Start() }

func (s *Sweeper) Shutdown() error { return s.sched.Shutdown() }

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	evicted := s.target.Sweep(ctx, s.clock.Now(), s.policy)
	if len(evicted) > 0 {
		s.logger.Info("registry_sweep", zap.Int("evicted", len(evicted)), zap.Strings("competition_ids", evicted))
	}
}
