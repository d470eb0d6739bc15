package arenadto

import "time"

// CompetitionSummary is the read API view of a competition.
type CompetitionSummary struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Code            string   `json:"code"`
	Organizer       string   `json:"organizer"`
	Description     string   `json:"description,omitempty"`
	Status          string   `json:"status"`
	RoundCount      int      `json:"roundCount"`
	RoundsCompleted int      `json:"roundsCompleted"`
	CurrentRound    int      `json:"currentRound"`
	Participants    []string `json:"participants"`
}

type RankingsResponse struct {
	CompetitionID string         `json:"competitionId"`
	Name          string         `json:"name"`
	Code          string         `json:"code"`
	Status        string         `json:"status"`
	Rankings      []FinalRanking `json:"rankings"`
	Source        string         `json:"source"`
}

type ParticipantView struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	JoinedAt        time.Time    `json:"joinedAt"`
	TotalWPM        float64      `json:"totalWpm"`
	TotalAccuracy   float64      `json:"totalAccuracy"`
	RoundsCompleted int          `json:"roundsCompleted"`
	FinalRank       *int         `json:"finalRank,omitempty"`
	RoundScores     []RoundScore `json:"roundScores"`
}

type APIError struct {
	Error string `json:"error"`
}
