package arenadto

import "encoding/json"

// Client → server event types.
const (
	EventJoin             = "join"
	EventOrganizerJoin    = "organizerJoin"
	EventStartRound       = "startRound"
	EventEndRound         = "endRound"
	EventShowFinalResults = "showFinalResults"
	EventProgress         = "progress"
)

// Server → client event types.
const (
	EventJoined                 = "joined"
	EventParticipantJoined      = "participantJoined"
	EventParticipantLeft        = "participantLeft"
	EventOrganizerJoined        = "organizerJoined"
	EventRoundStarted           = "roundStarted"
	EventLeaderboard            = "leaderboard"
	EventRoundEnded             = "roundEnded"
	EventFinalResults           = "finalResults"
	EventFinalizePartialFailure = "finalizePartialFailure"
	EventError                  = "error"
)

// Envelope is the inbound frame; Data is decoded according to Type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is the outbound frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type JoinRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type OrganizerJoinRequest struct {
	CompetitionID string `json:"competitionId"`
	Token         string `json:"token"`
}

type StartRoundRequest struct {
	CompetitionID string `json:"competitionId"`
	RoundIndex    int    `json:"roundIndex"`
}

type EndRoundRequest struct {
	CompetitionID string `json:"competitionId"`
}

type ShowFinalResultsRequest struct {
	CompetitionID string `json:"competitionId"`
}

type ProgressRequest struct {
	WPM            float64            `json:"wpm"`
	Accuracy       float64            `json:"accuracy"`
	CorrectChars   int                `json:"correctChars"`
	IncorrectChars int                `json:"incorrectChars"`
	TotalChars     int                `json:"totalChars"`
	Errors         int                `json:"errors"`
	Backspaces     int                `json:"backspaces"`
	KeyStats       map[string]KeyStat `json:"keyStats,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
