package arena

import (
	"math"
	"sort"
	"time"

	"github.com/park285/typing-arena/internal/domain"
)

// Attempt is one participant's current or recorded performance within a single round.
type Attempt struct {
	Key      string
	WPM      float64
	Accuracy float64
	Errors   int
	JoinedAt time.Time
	JoinSeq  int64
}

// Standing is one participant's cross-round aggregate.
type Standing struct {
	Key             string
	AverageWPM      float64
	AverageAccuracy float64
	HighestWPM      float64
	LowestWPM       float64
	RoundsCompleted int
	JoinedAt        time.Time
	JoinSeq         int64
}

// OrderAttempts sorts in place: WPM desc, accuracy desc, errors asc, then join order.
// Live leaderboards and recorded round results share this order.
func OrderAttempts(in []Attempt) {
	sort.SliceStable(in, func(i, j int) bool {
		a, b := in[i], in[j]
		if a.WPM != b.WPM {
			return a.WPM > b.WPM
		}
		if a.Accuracy != b.Accuracy {
			return a.Accuracy > b.Accuracy
		}
		if a.Errors != b.Errors {
			return a.Errors < b.Errors
		}
		return joinedBefore(a.JoinedAt, a.JoinSeq, b.JoinedAt, b.JoinSeq)
	})
}

// OrderStandings sorts in place: average WPM desc, average accuracy desc,
// rounds completed desc, then join order.
func OrderStandings(in []Standing) {
	sort.SliceStable(in, func(i, j int) bool {
		a, b := in[i], in[j]
		if a.AverageWPM != b.AverageWPM {
			return a.AverageWPM > b.AverageWPM
		}
		if a.AverageAccuracy != b.AverageAccuracy {
			return a.AverageAccuracy > b.AverageAccuracy
		}
		if a.RoundsCompleted != b.RoundsCompleted {
			return a.RoundsCompleted > b.RoundsCompleted
		}
		return joinedBefore(a.JoinedAt, a.JoinSeq, b.JoinedAt, b.JoinSeq)
	})
}

func joinedBefore(at time.Time, seq int64, bt time.Time, bseq int64) bool {
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return seq < bseq
}

// StandingFromScores aggregates a score history. A participant without scores
// gets zero averages and sorts below everyone who completed a round.
func StandingFromScores(key string, joinedAt time.Time, joinSeq int64, scores []domain.RoundScore) Standing {
	st := Standing{Key: key, JoinedAt: joinedAt, JoinSeq: joinSeq, RoundsCompleted: len(scores)}
	if len(scores) == 0 {
		return st
	}
	var sumWPM, sumAcc float64
	st.HighestWPM = scores[0].WPM
	st.LowestWPM = scores[0].WPM
	for _, s := range scores {
		sumWPM += s.WPM
		sumAcc += s.Accuracy
		st.HighestWPM = math.Max(st.HighestWPM, s.WPM)
		st.LowestWPM = math.Min(st.LowestWPM, s.WPM)
	}
	n := float64(len(scores))
	st.AverageWPM = round2(sumWPM / n)
	st.AverageAccuracy = round2(sumAcc / n)
	return st
}

type roundSummary struct {
	Completed       int
	HighestWPM      float64
	LowestWPM       float64
	AverageWPM      float64
	AverageAccuracy float64
}

func summarizeRound(results []domain.RoundResult) roundSummary {
	if len(results) == 0 {
		return roundSummary{}
	}
	sum := roundSummary{Completed: len(results), HighestWPM: results[0].WPM, LowestWPM: results[0].WPM}
	var sumWPM, sumAcc float64
	for _, r := range results {
		sumWPM += r.WPM
		sumAcc += r.Accuracy
		sum.HighestWPM = math.Max(sum.HighestWPM, r.WPM)
		sum.LowestWPM = math.Min(sum.LowestWPM, r.WPM)
	}
	n := float64(len(results))
	sum.AverageWPM = round2(sumWPM / n)
	sum.AverageAccuracy = round2(sumAcc / n)
	return sum
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
