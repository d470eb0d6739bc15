package arena

import (
	"context"

	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/pkg/arenadto"
)

// ConnID identifies one realtime connection.
type ConnID string

// Broadcaster delivers events to connections and competition groups.
// Implementations must not block: the engine calls it from inside a competition's actor.
type Broadcaster interface {
	Join(conn ConnID, competitionID string)
	Leave(conn ConnID, competitionID string)
	Broadcast(competitionID string, msg arenadto.Message)
	Send(conn ConnID, msg arenadto.Message)
}

// OrganizerVerifier resolves an organizer credential to the organizer id it belongs to.
type OrganizerVerifier interface {
	VerifyOrganizer(ctx context.Context, token string) (string, error)
}

// RankingsCache keeps finalized rankings for the read API.
type RankingsCache interface {
	PutRankings(ctx context.Context, competitionID string, rankings []domain.FinalRanking) error
}
