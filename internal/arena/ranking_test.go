package arena

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/typing-arena/internal/domain"
)

func keys[T any](in []T, key func(T) string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, key(v))
	}
	return out
}

func TestOrderAttemptsTieBreakers(t *testing.T) {
	t0 := time.Unix(1000, 0)
	in := []Attempt{
		{Key: "late-tie", WPM: 60, Accuracy: 90, Errors: 2, JoinedAt: t0.Add(time.Second), JoinSeq: 1},
		{Key: "seq-2", WPM: 60, Accuracy: 90, Errors: 2, JoinedAt: t0, JoinSeq: 2},
		{Key: "seq-1", WPM: 60, Accuracy: 90, Errors: 2, JoinedAt: t0, JoinSeq: 1},
		{Key: "fewer-errors", WPM: 60, Accuracy: 90, Errors: 1, JoinedAt: t0.Add(time.Hour)},
		{Key: "more-accurate", WPM: 60, Accuracy: 99, Errors: 9},
		{Key: "fastest", WPM: 61, Accuracy: 10, Errors: 50},
	}
	OrderAttempts(in)
	want := []string{"fastest", "more-accurate", "fewer-errors", "seq-1", "seq-2", "late-tie"}
	if diff := cmp.Diff(want, keys(in, func(a Attempt) string { return a.Key })); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestOrderStandingsTieBreakers(t *testing.T) {
	t0 := time.Unix(1000, 0)
	in := []Standing{
		{Key: "none", JoinedAt: t0},
		{Key: "two-rounds", AverageWPM: 50, AverageAccuracy: 90, RoundsCompleted: 2, JoinedAt: t0.Add(time.Minute)},
		{Key: "one-round", AverageWPM: 50, AverageAccuracy: 90, RoundsCompleted: 1, JoinedAt: t0},
		{Key: "accurate", AverageWPM: 50, AverageAccuracy: 95, RoundsCompleted: 1},
		{Key: "fast", AverageWPM: 70, AverageAccuracy: 60, RoundsCompleted: 1},
	}
	OrderStandings(in)
	want := []string{"fast", "accurate", "two-rounds", "one-round", "none"}
	if diff := cmp.Diff(want, keys(in, func(s Standing) string { return s.Key })); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestStandingFromScores(t *testing.T) {
	scores := []domain.RoundScore{
		{RoundNumber: 1, WPM: 100, Accuracy: 90},
		{RoundNumber: 2, WPM: 50, Accuracy: 95},
		{RoundNumber: 3, WPM: 61, Accuracy: 91.5},
	}
	got := StandingFromScores("ana", time.Time{}, 1, scores)
	want := Standing{
		Key:             "ana",
		AverageWPM:      70.33,
		AverageAccuracy: 92.17,
		HighestWPM:      100,
		LowestWPM:       50,
		RoundsCompleted: 3,
		JoinSeq:         1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("standing (-want +got):\n%s", diff)
	}

	empty := StandingFromScores("ben", time.Time{}, 2, nil)
	if empty.RoundsCompleted != 0 || empty.AverageWPM != 0 || empty.HighestWPM != 0 {
		t.Fatalf("zero-round standing should be all zero: %+v", empty)
	}
}

func TestSummarizeRound(t *testing.T) {
	if got := summarizeRound(nil); got != (roundSummary{}) {
		t.Fatalf("empty round should summarize to zero: %+v", got)
	}
	got := summarizeRound([]domain.RoundResult{
		{WPM: 80, Accuracy: 90},
		{WPM: 40, Accuracy: 99},
		{WPM: 61, Accuracy: 93},
	})
	want := roundSummary{Completed: 3, HighestWPM: 80, LowestWPM: 40, AverageWPM: 60.33, AverageAccuracy: 94}
	if got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}
}

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		nil:                            "",
		ErrInvalidRoundIndex:           CodeInvalidRoundIndex,
		ErrCompetitionAlreadyCompleted: CodeAlreadyCompleted,
		ErrSessionClosed:               CodeUnavailable,
		ErrAlreadyJoined:               CodeAlreadyJoined,
		errSample:                      CodeInternal,
	}
	for err, want := range cases {
		if got := ErrorCode(err); got != want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}

var errSample = &sampleErr{}

type sampleErr struct{}

func (*sampleErr) Error() string { return "sample" }
