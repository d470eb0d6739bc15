package arena

import (
	"context"

	"go.uber.org/zap"
)

// HandleDisconnect releases everything a closed connection held. Callers should pass a
// context that outlives the connection itself.
func (e *Engine) HandleDisconnect(ctx context.Context, conn ConnID) {
	b, ok := e.unbind(conn)
	if !ok {
		return
	}
	e.leave(ctx, conn, b)
}

func (e *Engine) leave(ctx context.Context, conn ConnID, b binding) {
	s, ok := e.registry.Get(b.competitionID)
	if !ok {
		e.bc.Leave(conn, b.competitionID)
		return
	}
	var gone *runtime
	var deleteDoc bool
	if err := s.do(ctx, func() { gone, deleteDoc = s.disconnect(conn) }); err != nil {
		e.logger.Debug("disconnect_skipped", zap.String("competition_id", b.competitionID), zap.Error(err))
		return
	}
	if gone == nil || !deleteDoc {
		return
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	removed, err := e.store.DeleteParticipant(sctx, b.competitionID, gone.name, string(conn))
	if err != nil {
		e.logger.Warn("participant_delete_error",
			zap.String("competition_id", b.competitionID),
			zap.String("participant", gone.name),
			zap.Error(err),
		)
		return
	}
	e.logger.Info("participant_leave",
		zap.String("competition_id", b.competitionID),
		zap.String("participant", gone.name),
		zap.Bool("document_removed", removed),
	)
}

// disconnect drops conn from the session. It returns the removed runtime and whether its
// document should be deleted; completed competitions keep their runtimes.
func (s *Session) disconnect(conn ConnID) (*runtime, bool) {
	s.e.bc.Leave(conn, s.id)
	if s.isOrganizer(conn) {
		delete(s.organizers, conn)
		return nil, false
	}
	rt := s.runtimes[conn]
	if rt == nil {
		return nil, false
	}
	if s.comp.IsCompleted() {
		rt.connected = false
		return nil, false
	}
	delete(s.runtimes, conn)
	s.e.bc.Broadcast(s.id, participantLeftMessage(len(s.runtimes)))
	return rt, !s.comp.HasFinalResults()
}
