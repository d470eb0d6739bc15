package arena

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/internal/store"
)

type JoinResult struct {
	CompetitionID     string
	Participant       *domain.Participant
	TotalParticipants int
	Reconnected       bool
}

// HandleJoin attaches a connection to a competition as the named participant.
// A name that already has a document is treated as a reconnect and keeps its history.
func (e *Engine) HandleJoin(ctx context.Context, conn ConnID, code, name string) (*JoinResult, error) {
	code = domain.NormalizeCode(code)
	name = strings.TrimSpace(name)
	if conn == "" || code == "" || name == "" {
		return nil, ErrInvalidArgs
	}

	sctx, cancel := e.storeCtx(ctx)
	comp, err := e.store.FindCompetitionByCode(sctx, code)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCompetitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find competition: %w", err)
	}
	if comp.IsCompleted() {
		return nil, ErrCompetitionAlreadyCompleted
	}

	s, err := e.registry.GetOrCreate(ctx, comp.ID, func(context.Context, string) (*domain.Competition, error) {
		return comp, nil
	})
	if err != nil {
		return nil, err
	}
	// The live state may be ahead of the document we just read.
	var joinable error
	if err := s.inspect(ctx, func() { joinable = s.canJoin(conn, name) }); err != nil {
		return nil, err
	}
	if joinable != nil {
		return nil, joinable
	}

	p, c, err := e.claimParticipant(ctx, comp.ID, name, conn)
	if err != nil {
		return nil, err
	}

	var res *JoinResult
	var joinErr error
	if err := s.do(ctx, func() { res, joinErr = s.join(conn, p) }); err != nil {
		// on a context error the join may still run, so the claim stays
		if errors.Is(err, ErrSessionClosed) {
			e.releaseClaim(ctx, p, conn, c)
		}
		return nil, err
	}
	if joinErr != nil {
		e.releaseClaim(ctx, p, conn, c)
		return nil, joinErr
	}
	e.rebind(ctx, conn, binding{competitionID: comp.ID})
	e.logger.Info("participant_join",
		zap.String("competition_id", comp.ID),
		zap.String("participant", name),
		zap.String("conn_id", string(conn)),
		zap.Bool("reconnected", res.Reconnected),
		zap.Int("total", res.TotalParticipants),
	)
	return res, nil
}

// claim records what claimParticipant changed so a rejected join can undo it.
type claim struct {
	created  bool
	prevConn string
}

// claimParticipant finds or creates the (competition, name) document and binds it to conn.
func (e *Engine) claimParticipant(ctx context.Context, competitionID, name string, conn ConnID) (*domain.Participant, claim, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	p, err := e.store.FindParticipant(sctx, competitionID, name)
	if errors.Is(err, store.ErrNotFound) {
		fresh := &domain.Participant{
			ID:            e.newID(),
			CompetitionID: competitionID,
			Name:          name,
			ConnectionID:  string(conn),
			JoinedAt:      e.clock.Now(),
			RoundScores:   []domain.RoundScore{},
		}
		err = e.store.CreateParticipant(sctx, fresh)
		if err == nil {
			return fresh, claim{created: true}, nil
		}
		if !errors.Is(err, store.ErrDuplicateParticipant) {
			return nil, claim{}, fmt.Errorf("create participant: %w", err)
		}
		// lost a create race for the same name
		p, err = e.store.FindParticipant(sctx, competitionID, name)
	}
	if err != nil {
		return nil, claim{}, fmt.Errorf("find participant: %w", err)
	}
	c := claim{prevConn: p.ConnectionID}
	p.ConnectionID = string(conn)
	if err := e.store.UpdateParticipant(sctx, p); err != nil {
		return nil, claim{}, fmt.Errorf("rebind participant: %w", err)
	}
	return p, c, nil
}

// releaseClaim undoes claimParticipant for a join the session refused. A document that
// was taken over by another connection meanwhile is left alone.
func (e *Engine) releaseClaim(ctx context.Context, p *domain.Participant, conn ConnID, c claim) {
	sctx, cancel := e.storeCtx(context.WithoutCancel(ctx))
	defer cancel()
	var err error
	if c.created {
		_, err = e.store.DeleteParticipant(sctx, p.CompetitionID, p.Name, string(conn))
	} else {
		var cur *domain.Participant
		cur, err = e.store.FindParticipant(sctx, p.CompetitionID, p.Name)
		if err == nil && cur.ConnectionID == string(conn) {
			cur.ConnectionID = c.prevConn
			err = e.store.UpdateParticipant(sctx, cur)
		}
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("participant_claim_release_error",
			zap.String("competition_id", p.CompetitionID),
			zap.String("participant", p.Name),
			zap.Error(err),
		)
	}
}

// canJoin reports why conn may not join as name right now.
func (s *Session) canJoin(conn ConnID, name string) error {
	if s.comp.IsCompleted() {
		return ErrCompetitionAlreadyCompleted
	}
	if cur := s.runtimes[conn]; cur != nil && cur.name != name {
		return ErrAlreadyJoined
	}
	return nil
}

func (s *Session) join(conn ConnID, p *domain.Participant) (*JoinResult, error) {
	if err := s.canJoin(conn, p.Name); err != nil {
		return nil, err
	}
	rt := &runtime{
		conn:          conn,
		participantID: p.ID,
		name:          p.Name,
		joinedAt:      p.JoinedAt,
		connected:     true,
		scores:        domain.CloneScores(p.RoundScores),
	}
	reconnected := len(p.RoundScores) > 0
	if prev := s.runtimeByName(p.Name); prev != nil {
		// The in-memory runtime is ahead of the document until finalize.
		delete(s.runtimes, prev.conn)
		rt.joinSeq = prev.joinSeq
		rt.scores = prev.scores
		rt.progress, rt.hasProgress, rt.progressAt = prev.progress, prev.hasProgress, prev.progressAt
		if prev.conn != conn {
			s.e.bc.Leave(prev.conn, s.id)
		}
		reconnected = true
	} else {
		s.joinSeq++
		rt.joinSeq = s.joinSeq
	}
	if rt.scores == nil {
		rt.scores = []domain.RoundScore{}
	}
	s.runtimes[conn] = rt

	total := len(s.runtimes)
	s.e.bc.Join(conn, s.id)
	s.e.bc.Send(conn, joinedMessage(s.comp, p, rt.scores))
	s.e.bc.Broadcast(s.id, participantJoinedMessage(total))

	out := p.Clone()
	out.RoundScores = domain.CloneScores(rt.scores)
	return &JoinResult{
		CompetitionID:     s.id,
		Participant:       out,
		TotalParticipants: total,
		Reconnected:       reconnected,
	}, nil
}

// HandleOrganizerJoin grants conn organizer rights over a competition after verifying the token.
func (e *Engine) HandleOrganizerJoin(ctx context.Context, conn ConnID, competitionID, token string) (*domain.Competition, error) {
	competitionID = strings.TrimSpace(competitionID)
	token = strings.TrimSpace(token)
	if conn == "" || competitionID == "" || token == "" {
		return nil, ErrInvalidArgs
	}
	if e.verifier == nil {
		return nil, ErrNotAuthorized
	}
	organizerID, err := e.verifier.VerifyOrganizer(ctx, token)
	if err != nil || organizerID == "" {
		e.logger.Debug("organizer_verify_failed", zap.String("competition_id", competitionID), zap.Error(err))
		return nil, ErrNotAuthorized
	}
	s, err := e.registry.GetOrCreate(ctx, competitionID, e.loadCompetition)
	if err != nil {
		return nil, err
	}

	var snap *domain.Competition
	var joinErr error
	if err := s.do(ctx, func() { snap, joinErr = s.addOrganizer(conn, organizerID) }); err != nil {
		return nil, err
	}
	if joinErr != nil {
		return nil, joinErr
	}
	e.rebind(ctx, conn, binding{competitionID: competitionID, organizer: true})
	e.logger.Info("organizer_join", zap.String("competition_id", competitionID), zap.String("conn_id", string(conn)))
	return snap, nil
}

func (s *Session) addOrganizer(conn ConnID, organizerID string) (*domain.Competition, error) {
	if s.comp.OrganizerID != organizerID {
		return nil, ErrNotAuthorized
	}
	s.organizers[conn] = struct{}{}
	s.e.bc.Join(conn, s.id)
	s.e.bc.Send(conn, organizerJoinedMessage(s.comp, s.participantNames()))
	return s.comp.Clone(), nil
}

// rebind moves conn to a new competition, leaving the previous one as a disconnect would.
func (e *Engine) rebind(ctx context.Context, conn ConnID, b binding) {
	prev, ok := e.bind(conn, b)
	if !ok || prev.competitionID == b.competitionID {
		return
	}
	e.leave(ctx, conn, prev)
}
