package arena

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/park285/typing-arena/internal/domain"
)

// Snapshot is a self-contained progress report; each one replaces the previous.
type Snapshot struct {
	WPM            float64
	Accuracy       float64
	CorrectChars   int
	IncorrectChars int
	TotalChars     int
	Errors         int
	Backspaces     int
	KeyStats       map[string]domain.KeyStat
}

func (s Snapshot) sanitized() Snapshot {
	out := Snapshot{
		WPM:            nonNegative(s.WPM),
		Accuracy:       math.Min(nonNegative(s.Accuracy), 100),
		CorrectChars:   max(s.CorrectChars, 0),
		IncorrectChars: max(s.IncorrectChars, 0),
		TotalChars:     max(s.TotalChars, 0),
		Errors:         max(s.Errors, 0),
		Backspaces:     max(s.Backspaces, 0),
	}
	if len(s.KeyStats) > 0 {
		out.KeyStats = make(map[string]domain.KeyStat, len(s.KeyStats))
		for k, v := range s.KeyStats {
			out.KeyStats[k] = domain.KeyStat{
				Count:        max(v.Count, 0),
				Errors:       max(v.Errors, 0),
				TotalLatency: nonNegative(v.TotalLatency),
			}
		}
	}
	return out
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// HandleProgress records a participant's latest snapshot and broadcasts the live leaderboard.
// Reports from unknown connections, organizers, or outside an in-progress round are dropped.
func (e *Engine) HandleProgress(ctx context.Context, conn ConnID, snap Snapshot) error {
	b, ok := e.binding(conn)
	if !ok || b.organizer {
		return nil
	}
	s, ok := e.registry.Get(b.competitionID)
	if !ok {
		return nil
	}
	clean := snap.sanitized()
	return s.do(ctx, func() { s.recordProgress(conn, clean) })
}

func (s *Session) recordProgress(conn ConnID, snap Snapshot) {
	rt := s.runtimes[conn]
	if rt == nil {
		s.log.Debug("progress_dropped", zap.String("conn_id", string(conn)), zap.String("reason", "unknown_connection"))
		return
	}
	r := s.comp.ActiveRound()
	if r == nil {
		s.log.Debug("progress_dropped", zap.String("conn_id", string(conn)), zap.String("reason", "no_active_round"))
		return
	}
	rt.progress = snap
	rt.hasProgress = true
	rt.progressAt = s.e.clock.Now()
	s.e.bc.Broadcast(s.id, leaderboardMessage(r.RoundNumber, s.liveAttempts()))
}

// liveAttempts ranks every runtime that reported progress in the active round.
func (s *Session) liveAttempts() []Attempt {
	out := make([]Attempt, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		if !rt.hasProgress {
			continue
		}
		out = append(out, rt.attempt())
	}
	OrderAttempts(out)
	return out
}
