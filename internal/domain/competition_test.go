package domain

import (
	"testing"
	"time"
)

func TestCloneDoesNotShareResults(t *testing.T) {
	now := time.Now()
	c := &Competition{
		ID:           "c1",
		CurrentRound: 0,
		StartedAt:    &now,
		Rounds: []Round{{
			RoundNumber: 1,
			Status:      RoundCompleted,
			Results:     []RoundResult{{ParticipantName: "a", WPM: 50, Rank: 1}},
		}},
		FinalRankings: []FinalRanking{{Rank: 1, ParticipantName: "a"}},
	}
	cp := c.Clone()
	cp.Rounds[0].Results[0].WPM = 99
	cp.Rounds[0].Status = RoundPending
	cp.FinalRankings[0].Rank = 7
	*cp.StartedAt = now.Add(time.Hour)

	if c.Rounds[0].Results[0].WPM != 50 {
		t.Fatalf("results shared between clone and original")
	}
	if c.Rounds[0].Status != RoundCompleted {
		t.Fatalf("round status shared between clone and original")
	}
	if c.FinalRankings[0].Rank != 1 {
		t.Fatalf("final rankings shared between clone and original")
	}
	if !c.StartedAt.Equal(now) {
		t.Fatalf("startedAt pointer shared between clone and original")
	}
}

func TestActiveRound(t *testing.T) {
	c := &Competition{CurrentRound: NotStarted, Rounds: []Round{{RoundNumber: 1, Status: RoundPending}}}
	if c.ActiveRound() != nil {
		t.Fatalf("no round should be active before start")
	}
	c.CurrentRound = 0
	c.Rounds[0].Status = RoundInProgress
	if r := c.ActiveRound(); r == nil || r.RoundNumber != 1 {
		t.Fatalf("expected round 1 active, got %+v", r)
	}
	c.Rounds[0].Status = RoundCompleted
	if c.ActiveRound() != nil {
		t.Fatalf("completed round reported as active")
	}
}

func TestUpsertScoreReplacesSameRound(t *testing.T) {
	var scores []RoundScore
	scores = UpsertScore(scores, RoundScore{RoundNumber: 1, WPM: 40})
	scores = UpsertScore(scores, RoundScore{RoundNumber: 2, WPM: 45})
	scores = UpsertScore(scores, RoundScore{RoundNumber: 1, WPM: 41})
	if len(scores) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(scores))
	}
	if scores[0].WPM != 41 {
		t.Fatalf("expected round 1 replaced, got %v", scores[0].WPM)
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  ab12cd "); got != "AB12CD" {
		t.Fatalf("NormalizeCode = %q", got)
	}
}
