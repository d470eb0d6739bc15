package arena

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/internal/store"
)

// FinalizeReport describes which writes of a finalize landed.
type FinalizeReport struct {
	CompetitionID    string
	CompetitionSaved bool
	AlreadyFinalized bool
	Succeeded        []string
	Failures         []ParticipantFailure
}

type ParticipantFailure struct {
	ParticipantID   string
	ParticipantName string
	Err             error
}

// Partial reports whether any write of the finalize failed.
func (r *FinalizeReport) Partial() bool {
	return r != nil && (!r.CompetitionSaved || len(r.Failures) > 0)
}

// finalizeRun is one queued batch of finalize writes. The first run for a competition
// announces the rankings once its writes were attempted; later runs only retry.
type finalizeRun struct {
	announce bool
	waiters  []finalizeWaiter
}

type finalizeWaiter struct {
	ch     chan *FinalizeReport
	repeat bool
}

func (r *finalizeRun) subscribe(repeat bool) <-chan *FinalizeReport {
	ch := make(chan *FinalizeReport, 1)
	r.waiters = append(r.waiters, finalizeWaiter{ch: ch, repeat: repeat})
	return ch
}

// HandleShowFinalResults finalizes the competition on organizer request and returns once
// every write was attempted. On a competition that is already completed it re-sends the
// rankings to the caller and retries any participant writes an earlier finalize could not make.
func (e *Engine) HandleShowFinalResults(ctx context.Context, conn ConnID, competitionID string) (*FinalizeReport, error) {
	s, err := e.organizerSession(conn, competitionID)
	if err != nil {
		return nil, err
	}
	var report *FinalizeReport
	var wait <-chan *FinalizeReport
	var finErr error
	if err := s.do(ctx, func() { report, wait, finErr = s.showFinalResults(conn) }); err != nil {
		return nil, err
	}
	if finErr != nil || wait == nil {
		return report, finErr
	}
	select {
	case r := <-wait:
		return r, nil
	case <-s.stopped:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) showFinalResults(conn ConnID) (*FinalizeReport, <-chan *FinalizeReport, error) {
	if !s.isOrganizer(conn) {
		return nil, nil, ErrNotAuthorized
	}
	if !s.comp.IsCompleted() {
		if s.comp.ActiveRound() != nil {
			return nil, nil, ErrRoundInProgress
		}
		return nil, s.finalize().subscribe(false), nil
	}

	if run := s.finalizing; run != nil {
		// an announcing run reaches the caller through the group broadcast
		if !run.announce {
			s.e.bc.Send(conn, finalResultsMessage(s.comp.FinalRankings))
		}
		return nil, run.subscribe(true), nil
	}
	s.e.bc.Send(conn, finalResultsMessage(s.comp.FinalRankings))
	if s.lastReport.Partial() {
		return nil, s.persistFinal(false).subscribe(true), nil
	}
	report := &FinalizeReport{CompetitionID: s.id, CompetitionSaved: true}
	if s.lastReport != nil {
		cp := *s.lastReport
		report = &cp
	}
	report.AlreadyFinalized = true
	return report, nil, nil
}

// finalize completes the competition and queues its writes. The status flips before
// anything is written so a second trigger sees a completed competition.
func (s *Session) finalize() *finalizeRun {
	now := s.e.clock.Now()
	s.comp.Status = domain.CompetitionCompleted
	s.comp.CompletedAt = &now
	s.stopTimer()

	standings := s.standings()
	rankings := make([]domain.FinalRanking, 0, len(standings))
	for i, st := range standings {
		rankings = append(rankings, domain.FinalRanking{
			Rank:                 i + 1,
			ParticipantName:      st.Key,
			AverageWPM:           st.AverageWPM,
			AverageAccuracy:      st.AverageAccuracy,
			TotalRoundsCompleted: st.RoundsCompleted,
			HighestWPM:           st.HighestWPM,
			LowestWPM:            st.LowestWPM,
		})
	}
	s.comp.FinalRankings = rankings
	s.log.Info("competition_finalize", zap.Int("participants", len(rankings)))
	return s.persistFinal(true)
}

func (s *Session) standings() []Standing {
	out := make([]Standing, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		out = append(out, StandingFromScores(rt.name, rt.joinedAt, rt.joinSeq, rt.scores))
	}
	OrderStandings(out)
	return out
}

// persistFinal copies the competition and every participant document and hands them to
// the write queue. The session learns the outcome through finalized.
func (s *Session) persistFinal(announce bool) *finalizeRun {
	run := &finalizeRun{announce: announce}
	s.finalizing = run

	comp := s.comp.Clone()
	var docs []*domain.Participant
	for i, st := range s.standings() {
		if rt := s.runtimeByName(st.Key); rt != nil {
			docs = append(docs, rt.document(s.id, st, i+1))
		}
	}
	s.write(func() {
		report := s.writeFinal(comp, docs)
		if announce {
			s.cacheRankings(comp.FinalRankings)
		}
		if err := s.do(context.Background(), func() { s.finalized(run, report) }); err != nil {
			s.log.Warn("finalize_report_dropped", zap.Error(err))
		}
	})
	return run
}

// writeFinal writes the competition and then every participant with absolute values.
// Each write is attempted regardless of earlier failures.
func (s *Session) writeFinal(comp *domain.Competition, docs []*domain.Participant) *FinalizeReport {
	report := &FinalizeReport{CompetitionID: s.id}
	report.CompetitionSaved = s.writeCompetition(comp, "competition_finalize")
	for _, doc := range docs {
		if err := s.writeParticipant(doc); err != nil {
			s.log.Warn("finalize_participant_error",
				zap.String("participant_id", doc.ID),
				zap.String("participant", doc.Name),
				zap.Error(err),
			)
			report.Failures = append(report.Failures, ParticipantFailure{
				ParticipantID:   doc.ID,
				ParticipantName: doc.Name,
				Err:             err,
			})
			continue
		}
		report.Succeeded = append(report.Succeeded, doc.Name)
	}
	s.e.metrics.FinalizeFailures(len(report.Failures))
	return report
}

// finalized runs on the session goroutine after a run's writes were attempted.
func (s *Session) finalized(run *finalizeRun, report *FinalizeReport) {
	s.lastReport = report
	if s.finalizing == run {
		s.finalizing = nil
	}
	if run.announce {
		s.e.bc.Broadcast(s.id, finalResultsMessage(s.comp.FinalRankings))
	}
	s.notifyPartial(report)
	s.log.Info("competition_finalize_written",
		zap.Bool("competition_saved", report.CompetitionSaved),
		zap.Int("participants_written", len(report.Succeeded)),
		zap.Int("participant_failures", len(report.Failures)),
	)
	for _, w := range run.waiters {
		out := *report
		out.AlreadyFinalized = w.repeat
		w.ch <- &out
	}
}

// writeParticipant replaces the participant document, recreating it if it vanished.
func (s *Session) writeParticipant(p *domain.Participant) error {
	ctx, cancel := s.e.storeCtx(context.Background())
	defer cancel()
	err := s.e.store.UpdateParticipant(ctx, p)
	if errors.Is(err, store.ErrNotFound) {
		err = s.e.store.CreateParticipant(ctx, p)
	}
	return err
}

func (s *Session) notifyPartial(r *FinalizeReport) {
	if !r.Partial() {
		return
	}
	msg := partialFailureMessage(r)
	for conn := range s.organizers {
		s.e.bc.Send(conn, msg)
	}
}

func (s *Session) cacheRankings(rankings []domain.FinalRanking) {
	if s.e.rankings == nil {
		return
	}
	ctx, cancel := s.e.storeCtx(context.Background())
	defer cancel()
	if err := s.e.rankings.PutRankings(ctx, s.id, rankings); err != nil {
		s.log.Warn("rankings_cache_error", zap.Error(err))
	}
}

func (rt *runtime) document(competitionID string, st Standing, rank int) *domain.Participant {
	r := rank
	return &domain.Participant{
		ID:              rt.participantID,
		CompetitionID:   competitionID,
		Name:            rt.name,
		ConnectionID:    string(rt.conn),
		JoinedAt:        rt.joinedAt,
		TotalWPM:        st.AverageWPM,
		TotalAccuracy:   st.AverageAccuracy,
		RoundsCompleted: st.RoundsCompleted,
		FinalRank:       &r,
		RoundScores:     domain.CloneScores(rt.scores),
	}
}
