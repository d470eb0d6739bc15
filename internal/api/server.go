package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/typing-arena/internal/arena"
	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/internal/obslog"
	"github.com/park285/typing-arena/internal/resultcache"
	"github.com/park285/typing-arena/internal/store"
	"github.com/park285/typing-arena/pkg/arenadto"
)

const (
	defaultTimeout = 5 * time.Second

	sourceCache = "cache"
	sourceLive  = "live"
	sourceStore = "store"
)

// LiveState exposes in-memory competition state for competitions with a loaded session.
type LiveState interface {
	Snapshot(ctx context.Context, competitionID string) (*domain.Competition, error)
}

// RankingsReader reads finalized rankings cached after finalize.
type RankingsReader interface {
	GetRankings(ctx context.Context, competitionID string) (*resultcache.Entry, error)
}

type Options struct {
	Store   store.Gateway
	Live    LiveState
	Cache   RankingsReader
	Logger  *zap.Logger
	Timeout time.Duration
}

// Server is the read-only HTTP API over competitions and results.
type Server struct {
	store   store.Gateway
	live    LiveState
	cache   RankingsReader
	logger  *zap.Logger
	timeout time.Duration
}

func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("api: store is required")
	}
	s := &Server{store: opts.Store, live: opts.Live, cache: opts.Cache, logger: opts.Logger, timeout: opts.Timeout}
	if s.logger == nil {
		s.logger = obslog.L()
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	return s, nil
}

// Handler routes:
//
//	GET /healthz
//	GET /api/competition/{code}
//	GET /api/competition/id/{id}
//	GET /api/competition/id/{id}/rankings
//	GET /api/competition/id/{id}/participants
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	path := strings.Trim(string(ctx.Path()), "/")
	if path == "healthz" {
		s.writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
		return
	}
	rest, ok := strings.CutPrefix(path, "api/competition/")
	if !ok || rest == "" {
		s.writeError(ctx, fasthttp.StatusNotFound, "not_found")
		return
	}

	c, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1:
		s.byCode(c, ctx, parts[0])
	case parts[0] == "id" && len(parts) == 2:
		s.byID(c, ctx, parts[1])
	case parts[0] == "id" && len(parts) == 3 && parts[2] == "rankings":
		s.rankings(c, ctx, parts[1])
	case parts[0] == "id" && len(parts) == 3 && parts[2] == "participants":
		s.participants(c, ctx, parts[1])
	default:
		s.writeError(ctx, fasthttp.StatusNotFound, "not_found")
	}
}

func (s *Server) byCode(c context.Context, ctx *fasthttp.RequestCtx, code string) {
	comp, err := s.store.FindCompetitionByCode(c, domain.NormalizeCode(code))
	if err != nil {
		s.storeError(ctx, err, "competition_by_code")
		return
	}
	comp, _ = s.current(c, comp)
	s.summary(c, ctx, comp)
}

func (s *Server) byID(c context.Context, ctx *fasthttp.RequestCtx, id string) {
	comp, _, err := s.load(c, id)
	if err != nil {
		s.storeError(ctx, err, "competition_by_id")
		return
	}
	s.summary(c, ctx, comp)
}

func (s *Server) summary(c context.Context, ctx *fasthttp.RequestCtx, comp *domain.Competition) {
	ps, err := s.store.ListParticipants(c, comp.ID)
	if err != nil {
		s.storeError(ctx, err, "list_participants")
		return
	}
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name)
	}
	s.writeJSON(ctx, fasthttp.StatusOK, arenadto.CompetitionSummary{
		ID:              comp.ID,
		Name:            comp.Name,
		Code:            comp.Code,
		Organizer:       comp.Organizer,
		Description:     comp.Description,
		Status:          string(comp.Status),
		RoundCount:      len(comp.Rounds),
		RoundsCompleted: comp.RoundsCompleted,
		CurrentRound:    comp.CurrentRound,
		Participants:    names,
	})
}

// rankings prefers the cache: it holds the finalize output even when the competition write failed.
func (s *Server) rankings(c context.Context, ctx *fasthttp.RequestCtx, id string) {
	comp, source, err := s.load(c, id)
	if err != nil {
		s.storeError(ctx, err, "competition_rankings")
		return
	}
	rankings := comp.FinalRankings
	if s.cache != nil {
		entry, cerr := s.cache.GetRankings(c, comp.ID)
		if cerr != nil {
			s.logger.Warn("rankings_cache_read_failed", zap.String("competition_id", comp.ID), zap.Error(cerr))
		} else if entry != nil {
			rankings, source = entry.Rankings, sourceCache
		}
	}
	s.writeJSON(ctx, fasthttp.StatusOK, arenadto.RankingsResponse{
		CompetitionID: comp.ID,
		Name:          comp.Name,
		Code:          comp.Code,
		Status:        string(comp.Status),
		Rankings:      arena.FinalRankingsDTO(rankings),
		Source:        source,
	})
}

func (s *Server) participants(c context.Context, ctx *fasthttp.RequestCtx, id string) {
	if _, _, err := s.load(c, id); err != nil {
		s.storeError(ctx, err, "competition_participants")
		return
	}
	ps, err := s.store.ListParticipants(c, id)
	if err != nil {
		s.storeError(ctx, err, "list_participants")
		return
	}
	out := make([]arenadto.ParticipantView, 0, len(ps))
	for _, p := range ps {
		out = append(out, arenadto.ParticipantView{
			ID:              p.ID,
			Name:            p.Name,
			JoinedAt:        p.JoinedAt,
			TotalWPM:        p.TotalWPM,
			TotalAccuracy:   p.TotalAccuracy,
			RoundsCompleted: p.RoundsCompleted,
			FinalRank:       p.FinalRank,
			RoundScores:     arena.RoundScoresDTO(p.RoundScores),
		})
	}
	s.writeJSON(ctx, fasthttp.StatusOK, out)
}

// load reads a competition, preferring the live session state when one is loaded.
func (s *Server) load(c context.Context, id string) (*domain.Competition, string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, "", store.ErrNotFound
	}
	if s.live != nil {
		if comp, err := s.live.Snapshot(c, id); err == nil {
			return comp, sourceLive, nil
		}
	}
	comp, err := s.store.FindCompetitionByID(c, id)
	if err != nil {
		return nil, "", err
	}
	return comp, sourceStore, nil
}

func (s *Server) current(c context.Context, comp *domain.Competition) (*domain.Competition, string) {
	if s.live != nil {
		if live, err := s.live.Snapshot(c, comp.ID); err == nil {
			return live, sourceLive
		}
	}
	return comp, sourceStore
}

func (s *Server) storeError(ctx *fasthttp.RequestCtx, err error, op string) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(ctx, fasthttp.StatusNotFound, arena.CodeNotFound)
		return
	}
	s.logger.Error("api_store_error", zap.String("op", op), zap.Error(err))
	s.writeError(ctx, fasthttp.StatusInternalServerError, arena.CodeInternal)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, code string) {
	s.writeJSON(ctx, status, arenadto.APIError{Error: code})
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("api_encode_error", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(body)
}

// ListenAndServe runs the API until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler,
		Name:         "typing-arena",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()
	select {
	case <-ctx.Done():
		return srv.Shutdown()
	case err := <-errCh:
		return err
	}
}
