package arena

import (
	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/pkg/arenadto"
)

func message(kind string, data any) arenadto.Message {
	return arenadto.Message{Type: kind, Data: data}
}

func joinedMessage(c *domain.Competition, p *domain.Participant, scores []domain.RoundScore) arenadto.Message {
	return message(arenadto.EventJoined, arenadto.Joined{
		CompetitionID:   c.ID,
		CompetitionName: c.Name,
		ParticipantID:   p.ID,
		Name:            p.Name,
		Status:          string(c.Status),
		TotalRounds:     len(c.Rounds),
		RoundScores:     RoundScoresDTO(scores),
	})
}

func participantJoinedMessage(total int) arenadto.Message {
	return message(arenadto.EventParticipantJoined, arenadto.ParticipantJoined{TotalParticipants: total})
}

func participantLeftMessage(remaining int) arenadto.Message {
	return message(arenadto.EventParticipantLeft, arenadto.ParticipantLeft{RemainingCount: remaining})
}

func roundStartedMessage(r *domain.Round) arenadto.Message {
	return message(arenadto.EventRoundStarted, arenadto.RoundStarted{
		Text:        r.Text,
		Duration:    r.Duration,
		RoundNumber: r.RoundNumber,
	})
}

func organizerJoinedMessage(c *domain.Competition, participants []string) arenadto.Message {
	return message(arenadto.EventOrganizerJoined, arenadto.OrganizerJoined{
		CompetitionID:   c.ID,
		Name:            c.Name,
		Code:            c.Code,
		Status:          string(c.Status),
		CurrentRound:    c.CurrentRound,
		TotalRounds:     len(c.Rounds),
		RoundsCompleted: c.RoundsCompleted,
		Participants:    participants,
	})
}

func leaderboardMessage(roundNumber int, ranked []Attempt) arenadto.Message {
	entries := make([]arenadto.LeaderboardEntry, 0, len(ranked))
	for i, a := range ranked {
		entries = append(entries, arenadto.LeaderboardEntry{
			Rank:     i + 1,
			Name:     a.Key,
			WPM:      a.WPM,
			Accuracy: a.Accuracy,
			Errors:   a.Errors,
		})
	}
	return message(arenadto.EventLeaderboard, arenadto.Leaderboard{RoundNumber: roundNumber, Entries: entries})
}

func roundEndedMessage(r *domain.Round) arenadto.Message {
	results := make([]arenadto.RoundResult, 0, len(r.Results))
	for _, res := range r.Results {
		results = append(results, arenadto.RoundResult{
			Rank:            res.Rank,
			ParticipantName: res.ParticipantName,
			WPM:             res.WPM,
			Accuracy:        res.Accuracy,
			CorrectChars:    res.CorrectChars,
			IncorrectChars:  res.IncorrectChars,
			TotalChars:      res.TotalChars,
			Errors:          res.Errors,
			Backspaces:      res.Backspaces,
			TypingTime:      res.TypingTime,
		})
	}
	return message(arenadto.EventRoundEnded, arenadto.RoundEnded{RoundNumber: r.RoundNumber, Results: results})
}

func finalResultsMessage(rankings []domain.FinalRanking) arenadto.Message {
	return message(arenadto.EventFinalResults, arenadto.FinalResults{Rankings: FinalRankingsDTO(rankings)})
}

func partialFailureMessage(r *FinalizeReport) arenadto.Message {
	failures := make([]arenadto.ParticipantFailure, 0, len(r.Failures))
	for _, f := range r.Failures {
		failures = append(failures, arenadto.ParticipantFailure{ParticipantName: f.ParticipantName, Error: f.Err.Error()})
	}
	return message(arenadto.EventFinalizePartialFailure, arenadto.FinalizePartialFailure{
		CompetitionID:    r.CompetitionID,
		CompetitionSaved: r.CompetitionSaved,
		Succeeded:        len(r.Succeeded),
		Failures:         failures,
	})
}

// FinalRankingsDTO converts stored rankings to their wire form.
func FinalRankingsDTO(in []domain.FinalRanking) []arenadto.FinalRanking {
	out := make([]arenadto.FinalRanking, 0, len(in))
	for _, r := range in {
		out = append(out, arenadto.FinalRanking{
			Rank:                 r.Rank,
			ParticipantName:      r.ParticipantName,
			AverageWPM:           r.AverageWPM,
			AverageAccuracy:      r.AverageAccuracy,
			TotalRoundsCompleted: r.TotalRoundsCompleted,
			HighestWPM:           r.HighestWPM,
			LowestWPM:            r.LowestWPM,
		})
	}
	return out
}

func RoundScoresDTO(in []domain.RoundScore) []arenadto.RoundScore {
	out := make([]arenadto.RoundScore, 0, len(in))
	for _, s := range in {
		out = append(out, arenadto.RoundScore{
			RoundNumber: s.RoundNumber,
			WPM:         s.WPM,
			Accuracy:    s.Accuracy,
			Rank:        s.Rank,
			Errors:      s.Errors,
			Backspaces:  s.Backspaces,
		})
	}
	return out
}
