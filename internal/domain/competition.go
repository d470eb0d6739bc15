package domain

import (
	"strings"
	"time"
)

// CompetitionStatus is the overall lifecycle of a competition. It never regresses.
type CompetitionStatus string

const (
	CompetitionPending   CompetitionStatus = "pending"
	CompetitionOngoing   CompetitionStatus = "ongoing"
	CompetitionCompleted CompetitionStatus = "completed"
)

// RoundStatus is the lifecycle of one round: pending → in-progress → completed.
type RoundStatus string

const (
	RoundPending    RoundStatus = "pending"
	RoundInProgress RoundStatus = "in-progress"
	RoundCompleted  RoundStatus = "completed"
)

// NotStarted is the CurrentRound value of a competition whose first round has not begun.
const NotStarted = -1

type Competition struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Code            string            `json:"code"`
	OrganizerID     string            `json:"organizerId"`
	Organizer       string            `json:"organizer"`
	Description     string            `json:"description,omitempty"`
	Status          CompetitionStatus `json:"status"`
	Rounds          []Round           `json:"rounds"`
	CurrentRound    int               `json:"currentRound"`
	TotalRounds     int               `json:"totalRounds"`
	RoundsCompleted int               `json:"roundsCompleted"`
	FinalRankings   []FinalRanking    `json:"finalRankings"`
	CreatedAt       time.Time         `json:"createdAt"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
}

type Round struct {
	RoundNumber           int           `json:"roundNumber"`
	Text                  string        `json:"text"`
	Language              string        `json:"language"`
	Duration              int           `json:"duration"`
	Status                RoundStatus   `json:"status"`
	StartedAt             *time.Time    `json:"startedAt,omitempty"`
	EndedAt               *time.Time    `json:"endedAt,omitempty"`
	TotalDuration         float64       `json:"totalDuration"`
	ParticipantsCompleted int           `json:"participantsCompleted"`
	HighestWPM            float64       `json:"highestWpm"`
	LowestWPM             float64       `json:"lowestWpm"`
	AverageWPM            float64       `json:"averageWpm"`
	AverageAccuracy       float64       `json:"averageAccuracy"`
	Results               []RoundResult `json:"results"`
}

// RoundResult is one participant's recorded attempt in a completed round.
type RoundResult struct {
	ParticipantName string    `json:"participantName"`
	ParticipantID   string    `json:"participantId"`
	WPM             float64   `json:"wpm"`
	Accuracy        float64   `json:"accuracy"`
	CorrectChars    int       `json:"correctChars"`
	IncorrectChars  int       `json:"incorrectChars"`
	TotalChars      int       `json:"totalChars"`
	Errors          int       `json:"errors"`
	Backspaces      int       `json:"backspaces"`
	Rank            int       `json:"rank"`
	TypingTime      float64   `json:"typingTime"`
	CreatedAt       time.Time `json:"createdAt"`
}

// FinalRanking is one row of the completion snapshot stored on the competition.
type FinalRanking struct {
	Rank                 int     `json:"rank"`
	ParticipantName      string  `json:"participantName"`
	AverageWPM           float64 `json:"averageWpm"`
	AverageAccuracy      float64 `json:"averageAccuracy"`
	TotalRoundsCompleted int     `json:"totalRoundsCompleted"`
	HighestWPM           float64 `json:"highestWpm"`
	LowestWPM            float64 `json:"lowestWpm"`
}

// NormalizeCode upper-cases and trims a join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RoundAt returns the round at a 0-based index, or nil when out of range.
func (c *Competition) RoundAt(idx int) *Round {
	if c == nil || idx < 0 || idx >= len(c.Rounds) {
		return nil
	}
	return &c.Rounds[idx]
}

// ActiveRound returns the round CurrentRound points at when it is in progress.
func (c *Competition) ActiveRound() *Round {
	r := c.RoundAt(c.CurrentRound)
	if r == nil || r.Status != RoundInProgress {
		return nil
	}
	return r
}

// CanStart reports whether the round is still waiting for its start signal.
func (r *Round) CanStart() bool {
	return r != nil && r.Status == RoundPending
}

func (c *Competition) IsLastRound(idx int) bool {
	return c != nil && idx == len(c.Rounds)-1
}

func (c *Competition) IsCompleted() bool {
	return c != nil && c.Status == CompetitionCompleted
}

// HasFinalResults reports whether final rankings were already produced for this competition.
func (c *Competition) HasFinalResults() bool {
	return c != nil && (c.Status == CompetitionCompleted || len(c.FinalRankings) > 0)
}

// NextRoundIndex is the only index a start request may target.
func (c *Competition) NextRoundIndex() int {
	return c.CurrentRound + 1
}

// Clone returns a deep copy so stores and live sessions never share slices.
func (c *Competition) Clone() *Competition {
	if c == nil {
		return nil
	}
	out := *c
	out.StartedAt = cloneTime(c.StartedAt)
	out.CompletedAt = cloneTime(c.CompletedAt)
	if c.Rounds != nil {
		out.Rounds = make([]Round, len(c.Rounds))
		for i := range c.Rounds {
			r := c.Rounds[i]
			r.StartedAt = cloneTime(r.StartedAt)
			r.EndedAt = cloneTime(r.EndedAt)
			if r.Results != nil {
				r.Results = append([]RoundResult(nil), r.Results...)
			}
			out.Rounds[i] = r
		}
	}
	if c.FinalRankings != nil {
		out.FinalRankings = append([]FinalRanking(nil), c.FinalRankings...)
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
