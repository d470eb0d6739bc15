package arena

import (
	"context"
	"testing"
	"time"

	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/pkg/arenadto"
)

func TestWriteQueueKeepsOrder(t *testing.T) {
	q := newWriteQueue()
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.enqueue(func() { got = append(got, i) })
	}
	if err := q.flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("job %d ran at position %d", v, i)
		}
	}
	if len(got) != 100 {
		t.Fatalf("ran %d jobs", len(got))
	}

	ran := false
	q.enqueue(func() { ran = true })
	q.close()
	if !ran {
		t.Fatalf("close must run jobs queued before it")
	}
	if q.enqueue(func() {}) {
		t.Fatalf("enqueue after close should be refused")
	}
	if err := q.flush(context.Background()); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
}

// blockingWrites makes store writes wait until release is closed.
func blockingWrites(entered chan<- string, release <-chan struct{}) func(ctx context.Context, what string) error {
	return func(ctx context.Context, what string) error {
		entered <- what
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func waitEntered(t *testing.T, entered <-chan string) string {
	t.Helper()
	select {
	case what := <-entered:
		return what
	case <-time.After(2 * time.Second):
		t.Fatalf("store write never started")
		return ""
	}
}

func TestProgressDoesNotWaitForRoundStartWrite(t *testing.T) {
	h := newHarness(t, newCompetition(1))
	h.organizer()
	h.join("c1", "ana")

	entered := make(chan string, 4)
	release := make(chan struct{})
	block := blockingWrites(entered, release)
	h.store.UpdateCompetitionFunc = func(ctx context.Context, c *domain.Competition) error {
		if err := block(ctx, "competition"); err != nil {
			return err
		}
		return h.store.Gateway.UpdateCompetition(ctx, c)
	}

	if err := h.engine.HandleStartRound(h.ctx(), organizerConn, testCompetitionID, 0); err != nil {
		t.Fatalf("HandleStartRound: %v", err)
	}
	waitEntered(t, entered)

	done := make(chan error, 1)
	go func() {
		done <- h.engine.HandleProgress(context.Background(), "c1", Snapshot{WPM: 42, Accuracy: 93})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("HandleProgress: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("progress waited for the competition write")
	}
	if got := len(h.bc.ofType(arenadto.EventLeaderboard)); got != 1 {
		t.Fatalf("leaderboard broadcasts = %d", got)
	}

	close(release)
	h.settle()
	stored, err := h.store.Gateway.FindCompetitionByID(context.Background(), testCompetitionID)
	if err != nil {
		t.Fatalf("FindCompetitionByID: %v", err)
	}
	if stored.Status != domain.CompetitionOngoing || stored.Rounds[0].Status != domain.RoundInProgress {
		t.Fatalf("round start not written: %s / %s", stored.Status, stored.Rounds[0].Status)
	}
}

func TestFinalResultsFollowParticipantWrites(t *testing.T) {
	h := newHarness(t, newCompetition(1))
	h.organizer()
	h.join("c1", "ana")
	h.join("c2", "ben")
	h.start(0)
	h.progress("c1", 50, 90, 0)
	h.progress("c2", 40, 90, 0)

	entered := make(chan string, 8)
	release := make(chan struct{})
	block := blockingWrites(entered, release)
	h.store.UpdateParticipantFunc = func(ctx context.Context, p *domain.Participant) error {
		if err := block(ctx, p.Name); err != nil {
			return err
		}
		return h.store.Gateway.UpdateParticipant(ctx, p)
	}

	if err := h.engine.HandleEndRound(h.ctx(), organizerConn, testCompetitionID); err != nil {
		t.Fatalf("HandleEndRound: %v", err)
	}
	if first := waitEntered(t, entered); first != "ana" {
		t.Fatalf("participants should be written in rank order, first was %s", first)
	}

	// the session keeps serving while the writes are stuck
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := h.engine.Snapshot(ctx, testCompetitionID)
	if err != nil {
		t.Fatalf("Snapshot during finalize writes: %v", err)
	}
	if snap.Status != domain.CompetitionCompleted || len(snap.FinalRankings) != 2 {
		t.Fatalf("live state should be final already: %s, %d rankings", snap.Status, len(snap.FinalRankings))
	}
	if got := len(h.bc.ofType(arenadto.EventFinalResults)); got != 0 {
		t.Fatalf("finalResults went out before the writes were attempted")
	}

	reports := make(chan *FinalizeReport, 1)
	go func() {
		r, err := h.engine.HandleShowFinalResults(context.Background(), organizerConn, testCompetitionID)
		if err != nil {
			t.Errorf("HandleShowFinalResults: %v", err)
		}
		reports <- r
	}()

	close(release)
	h.settle()
	var r *FinalizeReport
	select {
	case r = <-reports:
	case <-time.After(2 * time.Second):
		t.Fatalf("duplicate request never returned")
	}
	if r == nil || !r.AlreadyFinalized || r.Partial() {
		t.Fatalf("duplicate request should see a clean finished report: %+v", r)
	}

	broadcasts := 0
	for _, d := range h.bc.ofType(arenadto.EventFinalResults) {
		if d.group != "" {
			broadcasts++
		}
	}
	if broadcasts != 1 {
		t.Fatalf("finalResults broadcast %d times", broadcasts)
	}
	for i, name := range []string{"ana", "ben"} {
		if p := h.participant(name); p.FinalRank == nil || *p.FinalRank != i+1 {
			t.Fatalf("%s not written: %v", name, p.FinalRank)
		}
	}
}
