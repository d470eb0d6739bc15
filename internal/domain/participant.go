package domain

import "time"

// Participant is the durable record of one name inside one competition.
// TotalWPM and TotalAccuracy hold cross-round averages once the competition is finalized.
type Participant struct {
	ID              string       `json:"id"`
	CompetitionID   string       `json:"competitionId"`
	Name            string       `json:"name"`
	ConnectionID    string       `json:"socketId"`
	JoinedAt        time.Time    `json:"joinedAt"`
	TotalWPM        float64      `json:"totalWpm"`
	TotalAccuracy   float64      `json:"totalAccuracy"`
	RoundsCompleted int          `json:"roundsCompleted"`
	FinalRank       *int         `json:"finalRank,omitempty"`
	RoundScores     []RoundScore `json:"roundScores"`
}

type RoundScore struct {
	RoundNumber int                `json:"roundNumber"`
	WPM         float64            `json:"wpm"`
	Accuracy    float64            `json:"accuracy"`
	Rank        int                `json:"rank"`
	Errors      int                `json:"errors"`
	Backspaces  int                `json:"backspaces"`
	KeyStats    map[string]KeyStat `json:"keyStats,omitempty"`
}

// KeyStat aggregates keystrokes for a single key; TotalLatency is in milliseconds.
type KeyStat struct {
	Count        int     `json:"count"`
	Errors       int     `json:"errors"`
	TotalLatency float64 `json:"totalLatency"`
}

func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	out := *p
	if p.FinalRank != nil {
		r := *p.FinalRank
		out.FinalRank = &r
	}
	out.RoundScores = CloneScores(p.RoundScores)
	return &out
}

// CloneScores deep-copies a score history including key stats.
func CloneScores(in []RoundScore) []RoundScore {
	if in == nil {
		return nil
	}
	out := make([]RoundScore, len(in))
	for i, s := range in {
		if s.KeyStats != nil {
			ks := make(map[string]KeyStat, len(s.KeyStats))
			for k, v := range s.KeyStats {
				ks[k] = v
			}
			s.KeyStats = ks
		}
		out[i] = s
	}
	return out
}

// UpsertScore replaces the entry for the same round number or appends a new one.
func UpsertScore(scores []RoundScore, s RoundScore) []RoundScore {
	for i := range scores {
		if scores[i].RoundNumber == s.RoundNumber {
			scores[i] = s
			return scores
		}
	}
	return append(scores, s)
}
