package store

import (
	"context"
	"errors"

	"github.com/park285/typing-arena/internal/domain"
)

var (
	ErrNotFound             = errors.New("document not found")
	ErrDuplicateCode        = errors.New("competition code already exists")
	ErrDuplicateParticipant = errors.New("participant already exists in competition")
)

// Gateway is the durable store for competitions and participants.
// Writes are atomic per document; there is no cross-document transaction.
type Gateway interface {
	CreateCompetition(ctx context.Context, c *domain.Competition) error
	FindCompetitionByCode(ctx context.Context, code string) (*domain.Competition, error)
	FindCompetitionByID(ctx context.Context, id string) (*domain.Competition, error)
	UpdateCompetition(ctx context.Context, c *domain.Competition) error

	CreateParticipant(ctx context.Context, p *domain.Participant) error
	FindParticipant(ctx context.Context, competitionID, name string) (*domain.Participant, error)
	UpdateParticipant(ctx context.Context, p *domain.Participant) error
	// DeleteParticipant removes the (competition, name) document only while it is still bound
	// to connectionID, so a document taken over by a reconnect survives.
	DeleteParticipant(ctx context.Context, competitionID, name, connectionID string) (bool, error)
	ListParticipants(ctx context.Context, competitionID string) ([]*domain.Participant, error)
}
