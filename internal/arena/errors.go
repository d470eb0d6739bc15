package arena

import "errors"

var (
	ErrInvalidArgs                 = errors.New("invalid arguments")
	ErrCompetitionNotFound         = errors.New("competition not found")
	ErrCompetitionAlreadyCompleted = errors.New("competition already completed")
	ErrNotAuthorized               = errors.New("not authorized for competition")
	ErrInvalidRoundIndex           = errors.New("invalid round index")
	ErrRoundNotPending             = errors.New("round is not pending")
	ErrRoundInProgress             = errors.New("a round is still in progress")
	ErrSessionClosed               = errors.New("competition session closed")
	ErrAlreadyJoined               = errors.New("connection already joined under another name")
)

// Stable error codes sent to clients in error events.
const (
	CodeInvalidArgs       = "invalid_args"
	CodeNotFound          = "competition_not_found"
	CodeAlreadyCompleted  = "competition_already_completed"
	CodeNotAuthorized     = "not_authorized"
	CodeInvalidRoundIndex = "invalid_round_index"
	CodeRoundNotPending   = "round_not_pending"
	CodeRoundInProgress   = "round_in_progress"
	CodeAlreadyJoined     = "already_joined"
	CodeUnavailable       = "unavailable"
	CodeInternal          = "internal"
)

// ErrorCode maps an engine error to the code reported to the triggering connection.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgs):
		return CodeInvalidArgs
	case errors.Is(err, ErrCompetitionNotFound):
		return CodeNotFound
	case errors.Is(err, ErrCompetitionAlreadyCompleted):
		return CodeAlreadyCompleted
	case errors.Is(err, ErrNotAuthorized):
		return CodeNotAuthorized
	case errors.Is(err, ErrInvalidRoundIndex):
		return CodeInvalidRoundIndex
	case errors.Is(err, ErrRoundNotPending):
		return CodeRoundNotPending
	case errors.Is(err, ErrRoundInProgress):
		return CodeRoundInProgress
	case errors.Is(err, ErrAlreadyJoined):
		return CodeAlreadyJoined
	case errors.Is(err, ErrSessionClosed):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
