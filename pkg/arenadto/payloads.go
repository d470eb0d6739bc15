package arenadto

type KeyStat struct {
	Count        int     `json:"count"`
	Errors       int     `json:"errors"`
	TotalLatency float64 `json:"totalLatency"`
}

type RoundScore struct {
	RoundNumber int     `json:"roundNumber"`
	WPM         float64 `json:"wpm"`
	Accuracy    float64 `json:"accuracy"`
	Rank        int     `json:"rank"`
	Errors      int     `json:"errors"`
	Backspaces  int     `json:"backspaces"`
}

type Joined struct {
	CompetitionID   string       `json:"competitionId"`
	CompetitionName string       `json:"competitionName"`
	ParticipantID   string       `json:"participantId"`
	Name            string       `json:"name"`
	Status          string       `json:"status"`
	TotalRounds     int          `json:"totalRounds"`
	RoundScores     []RoundScore `json:"roundScores"`
}

type ParticipantJoined struct {
	TotalParticipants int `json:"totalParticipants"`
}

type ParticipantLeft struct {
	RemainingCount int `json:"remainingCount"`
}

type OrganizerJoined struct {
	CompetitionID   string   `json:"competitionId"`
	Name            string   `json:"name"`
	Code            string   `json:"code"`
	Status          string   `json:"status"`
	CurrentRound    int      `json:"currentRound"`
	TotalRounds     int      `json:"totalRounds"`
	RoundsCompleted int      `json:"roundsCompleted"`
	Participants    []string `json:"participants"`
}

type RoundStarted struct {
	Text        string `json:"text"`
	Duration    int    `json:"duration"`
	RoundNumber int    `json:"roundNumber"`
}

type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	Name     string  `json:"name"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Errors   int     `json:"errors"`
}

type Leaderboard struct {
	RoundNumber int                `json:"roundNumber"`
	Entries     []LeaderboardEntry `json:"entries"`
}

type RoundResult struct {
	Rank            int     `json:"rank"`
	ParticipantName string  `json:"participantName"`
	WPM             float64 `json:"wpm"`
	Accuracy        float64 `json:"accuracy"`
	CorrectChars    int     `json:"correctChars"`
	IncorrectChars  int     `json:"incorrectChars"`
	TotalChars      int     `json:"totalChars"`
	Errors          int     `json:"errors"`
	Backspaces      int     `json:"backspaces"`
	TypingTime      float64 `json:"typingTime"`
}

type RoundEnded struct {
	RoundNumber int           `json:"roundNumber"`
	Results     []RoundResult `json:"results"`
}

type FinalRanking struct {
	Rank                 int     `json:"rank"`
	ParticipantName      string  `json:"participantName"`
	AverageWPM           float64 `json:"averageWpm"`
	AverageAccuracy      float64 `json:"averageAccuracy"`
	TotalRoundsCompleted int     `json:"totalRoundsCompleted"`
	HighestWPM           float64 `json:"highestWpm"`
	LowestWPM            float64 `json:"lowestWpm"`
}

type FinalResults struct {
	Rankings []FinalRanking `json:"rankings"`
}

type ParticipantFailure struct {
	ParticipantName string `json:"participantName"`
	Error           string `json:"error"`
}

type FinalizePartialFailure struct {
	CompetitionID    string               `json:"competitionId"`
	CompetitionSaved bool                 `json:"competitionSaved"`
	Succeeded        int                  `json:"succeeded"`
	Failures         []ParticipantFailure `json:"failures"`
}
