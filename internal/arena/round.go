package arena

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/typing-arena/internal/domain"
)

// Round completion triggers.
const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// HandleStartRound starts the round at roundIndex. Only the round after the current one
// may start, and only once the current one has completed.
func (e *Engine) HandleStartRound(ctx context.Context, conn ConnID, competitionID string, roundIndex int) error {
	s, err := e.organizerSession(conn, competitionID)
	if err != nil {
		return err
	}
	var startErr error
	if err := s.do(ctx, func() { startErr = s.startRound(conn, roundIndex) }); err != nil {
		return err
	}
	return startErr
}

// HandleEndRound ends the in-progress round early. It is the same as the round timer
// firing; ending a round that already ended is a no-op.
func (e *Engine) HandleEndRound(ctx context.Context, conn ConnID, competitionID string) error {
	s, err := e.organizerSession(conn, competitionID)
	if err != nil {
		return err
	}
	var endErr error
	if err := s.do(ctx, func() { endErr = s.endRound(conn) }); err != nil {
		return err
	}
	return endErr
}

func (s *Session) startRound(conn ConnID, idx int) error {
	if !s.isOrganizer(conn) {
		return ErrNotAuthorized
	}
	if s.comp.IsCompleted() {
		return ErrCompetitionAlreadyCompleted
	}
	r := s.comp.RoundAt(idx)
	if r == nil || idx != s.comp.NextRoundIndex() {
		return ErrInvalidRoundIndex
	}
	if prev := s.comp.RoundAt(idx - 1); prev != nil && prev.Status != domain.RoundCompleted {
		return ErrInvalidRoundIndex
	}
	if !r.CanStart() {
		return ErrRoundNotPending
	}

	now := s.e.clock.Now()
	r.Status = domain.RoundInProgress
	r.StartedAt = &now
	s.comp.CurrentRound = idx
	if s.comp.Status == domain.CompetitionPending {
		s.comp.Status = domain.CompetitionOngoing
		s.comp.StartedAt = &now
	}
	for _, rt := range s.runtimes {
		rt.resetProgress()
	}
	s.armTimer(idx, r.Duration)

	s.e.bc.Broadcast(s.id, roundStartedMessage(r))
	s.log.Info("round_start",
		zap.Int("round_number", r.RoundNumber),
		zap.Int("duration_sec", r.Duration),
		zap.Int("participants", len(s.runtimes)),
	)
	s.persist("round_start")
	return nil
}

func (s *Session) endRound(conn ConnID) error {
	if !s.isOrganizer(conn) {
		return ErrNotAuthorized
	}
	if s.comp.ActiveRound() == nil {
		return nil
	}
	s.completeRound(s.comp.CurrentRound, TriggerManual)
	return nil
}

// armTimer schedules completion of round idx. A non-positive duration has no timer
// and the round runs until the organizer ends it.
func (s *Session) armTimer(idx, seconds int) {
	s.stopTimer()
	if seconds <= 0 {
		return
	}
	s.timer = s.e.clock.AfterFunc(time.Duration(seconds)*time.Second, func() {
		s.post(func() { s.completeRound(idx, TriggerTimer) })
	})
}

// completeRound records results for round idx. It only acts while that round is the
// current in-progress round, so a late timer after an explicit end does nothing.
func (s *Session) completeRound(idx int, trigger string) {
	r := s.comp.RoundAt(idx)
	if r == nil || r.Status != domain.RoundInProgress || s.comp.CurrentRound != idx {
		s.log.Debug("round_complete_skipped", zap.Int("round_index", idx), zap.String("trigger", trigger))
		return
	}
	s.stopTimer()

	now := s.e.clock.Now()
	r.Results = s.roundResults(r, now)
	sum := summarizeRound(r.Results)
	r.ParticipantsCompleted = sum.Completed
	r.HighestWPM = sum.HighestWPM
	r.LowestWPM = sum.LowestWPM
	r.AverageWPM = sum.AverageWPM
	r.AverageAccuracy = sum.AverageAccuracy
	r.Status = domain.RoundCompleted
	r.EndedAt = &now
	if r.StartedAt != nil {
		r.TotalDuration = round2(now.Sub(*r.StartedAt).Seconds())
	}
	s.comp.RoundsCompleted++

	for _, res := range r.Results {
		rt := s.runtimeByName(res.ParticipantName)
		if rt == nil {
			continue
		}
		rt.scores = domain.UpsertScore(rt.scores, domain.RoundScore{
			RoundNumber: r.RoundNumber,
			WPM:         res.WPM,
			Accuracy:    res.Accuracy,
			Rank:        res.Rank,
			Errors:      res.Errors,
			Backspaces:  res.Backspaces,
			KeyStats:    copyKeyStats(rt.progress.KeyStats),
		})
	}

	s.e.bc.Broadcast(s.id, roundEndedMessage(r))
	s.e.metrics.RoundCompleted(trigger)
	s.log.Info("round_complete",
		zap.Int("round_number", r.RoundNumber),
		zap.String("trigger", trigger),
		zap.Int("results", len(r.Results)),
		zap.Float64("average_wpm", r.AverageWPM),
	)
	s.persist("round_complete")

	if s.comp.IsLastRound(idx) {
		s.finalize()
	}
}

// roundResults ranks every runtime that reported progress during the round.
func (s *Session) roundResults(r *domain.Round, now time.Time) []domain.RoundResult {
	ranked := s.liveAttempts()
	out := make([]domain.RoundResult, 0, len(ranked))
	for i, a := range ranked {
		rt := s.runtimeByName(a.Key)
		p := rt.progress
		out = append(out, domain.RoundResult{
			ParticipantName: rt.name,
			ParticipantID:   rt.participantID,
			WPM:             p.WPM,
			Accuracy:        p.Accuracy,
			CorrectChars:    p.CorrectChars,
			IncorrectChars:  p.IncorrectChars,
			TotalChars:      p.TotalChars,
			Errors:          p.Errors,
			Backspaces:      p.Backspaces,
			Rank:            i + 1,
			TypingTime:      typingTime(r, rt.progressAt),
			CreatedAt:       now,
		})
	}
	return out
}

// typingTime is the seconds from round start to the participant's last report, capped at the round duration.
func typingTime(r *domain.Round, last time.Time) float64 {
	if r.StartedAt == nil || last.IsZero() {
		return 0
	}
	sec := last.Sub(*r.StartedAt).Seconds()
	if sec < 0 {
		sec = 0
	}
	if r.Duration > 0 && sec > float64(r.Duration) {
		sec = float64(r.Duration)
	}
	return round2(sec)
}

func copyKeyStats(in map[string]domain.KeyStat) map[string]domain.KeyStat {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]domain.KeyStat, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
