package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/typing-arena/internal/arena"
	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/internal/metrics"
	"github.com/park285/typing-arena/internal/msgcat"
	"github.com/park285/typing-arena/internal/obslog"
	"github.com/park285/typing-arena/pkg/arenadto"
)

const (
	writeTimeout       = 5 * time.Second
	defaultMaxMessage  = 64 << 10
	codeBadRequest     = "bad_request"
	codeUnknownEvent   = "unknown_event"
	closeReasonOverrun = "send queue overflow"
)

// Engine is the subset of *arena.Engine the transport drives.
type Engine interface {
	HandleJoin(ctx context.Context, conn arena.ConnID, code, name string) (*arena.JoinResult, error)
	HandleOrganizerJoin(ctx context.Context, conn arena.ConnID, competitionID, token string) (*domain.Competition, error)
	HandleStartRound(ctx context.Context, conn arena.ConnID, competitionID string, roundIndex int) error
	HandleEndRound(ctx context.Context, conn arena.ConnID, competitionID string) error
	HandleShowFinalResults(ctx context.Context, conn arena.ConnID, competitionID string) (*arena.FinalizeReport, error)
	HandleProgress(ctx context.Context, conn arena.ConnID, snap arena.Snapshot) error
	HandleDisconnect(ctx context.Context, conn arena.ConnID)
}

type ServerOptions struct {
	Engine          Engine
	Hub             *Hub
	Catalog         *msgcat.Catalog
	Metrics         *metrics.Recorder
	Logger          *zap.Logger
	AllowedOrigins  []string
	MaxMessageBytes int64
}

// Server upgrades HTTP requests to WebSocket connections and feeds their events to the engine.
type Server struct {
	engine   Engine
	hub      *Hub
	cat      *msgcat.Catalog
	metrics  *metrics.Recorder
	logger   *zap.Logger
	origins  []string
	maxBytes int64
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("transport: engine is required")
	}
	if opts.Hub == nil {
		return nil, errors.New("transport: hub is required")
	}
	s := &Server{
		engine:   opts.Engine,
		hub:      opts.Hub,
		cat:      opts.Catalog,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		origins:  opts.AllowedOrigins,
		maxBytes: opts.MaxMessageBytes,
	}
	if s.logger == nil {
		s.logger = obslog.L()
	}
	if s.maxBytes <= 0 {
		s.maxBytes = defaultMaxMessage
	}
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("ws_accept_failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}
	conn.SetReadLimit(s.maxBytes)

	id := arena.ConnID(uuid.NewString())
	ctx, cancel := context.WithCancel(r.Context())
	p := s.hub.register(id)
	s.metrics.ConnectionOpened()
	s.logger.Debug("ws_open", zap.String("conn_id", string(id)), zap.String("remote", r.RemoteAddr))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, conn, p)
	}()

	s.readLoop(ctx, conn, id)

	cancel()
	s.hub.unregister(id)
	<-writerDone
	s.engine.HandleDisconnect(context.Background(), id)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.metrics.ConnectionClosed()
	s.logger.Debug("ws_close", zap.String("conn_id", string(id)))
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, p *peer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			_ = conn.Close(websocket.StatusPolicyViolation, closeReasonOverrun)
			cancel()
			return
		case <-p.ready:
			for _, msg := range p.take() {
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err := wsjson.Write(wctx, conn, msg)
				wcancel()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, id arena.ConnID) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.logger.Debug("ws_read_error", zap.String("conn_id", string(id)), zap.Error(err))
			}
			return
		}
		var env arenadto.Envelope
		if typ != websocket.MessageText || json.Unmarshal(data, &env) != nil {
			s.reject(id, codeBadRequest, nil)
			continue
		}
		s.dispatch(ctx, id, env)
	}
}

// dispatch runs one client event. Failures go back to the sending connection only.
func (s *Server) dispatch(ctx context.Context, id arena.ConnID, env arenadto.Envelope) {
	kind := strings.TrimSpace(env.Type)
	switch kind {
	case arenadto.EventJoin:
		var req arenadto.JoinRequest
		if !s.decode(id, env.Data, &req) {
			return
		}
		s.metrics.Event(kind)
		_, err := s.engine.HandleJoin(ctx, id, req.Code, req.Name)
		s.fail(id, err, nil)
	case arenadto.EventOrganizerJoin:
		var req arenadto.OrganizerJoinRequest
		if !s.decode(id, env.Data, &req) {
			return
		}
		s.metrics.Event(kind)
		_, err := s.engine.HandleOrganizerJoin(ctx, id, req.CompetitionID, req.Token)
		s.fail(id, err, nil)
	case arenadto.EventStartRound:
		var req arenadto.StartRoundRequest
		if !s.decode(id, env.Data, &req) {
			return
		}
		s.metrics.Event(kind)
		err := s.engine.HandleStartRound(ctx, id, req.CompetitionID, req.RoundIndex)
		s.fail(id, err, map[string]any{"Round": req.RoundIndex + 1})
	case arenadto.EventEndRound:
		var req arenadto.EndRoundRequest
		if !s.decode(id, env.Data, &req) {
			return
		}
		s.metrics.Event(kind)
		s.fail(id, s.engine.HandleEndRound(ctx, id, req.CompetitionID), nil)
	case arenadto.EventShowFinalResults:
		var req arenadto.ShowFinalResultsRequest
		if !s.decode(id, env.Data, &req) {
			return
		}
		s.metrics.Event(kind)
		_, err := s.engine.HandleShowFinalResults(ctx, id, req.CompetitionID)
		s.fail(id, err, nil)
	case arenadto.EventProgress:
		var req arenadto.ProgressRequest
		if !s.decode(id, env.Data, &req) {
			return
		}
		s.metrics.Event(kind)
		s.fail(id, s.engine.HandleProgress(ctx, id, snapshotFrom(req)), nil)
	default:
		s.reject(id, codeUnknownEvent, map[string]any{"Type": kind})
	}
}

func (s *Server) decode(id arena.ConnID, raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.reject(id, codeBadRequest, nil)
		return false
	}
	return true
}

func (s *Server) fail(id arena.ConnID, err error, data map[string]any) {
	if err == nil {
		return
	}
	code := arena.ErrorCode(err)
	if code == arena.CodeInternal {
		s.logger.Error("event_failed", zap.String("conn_id", string(id)), zap.Error(err))
	}
	s.reject(id, code, data)
}

func (s *Server) reject(id arena.ConnID, code string, data map[string]any) {
	s.metrics.Rejected(code)
	s.hub.Send(id, arenadto.Message{
		Type: arenadto.EventError,
		Data: arenadto.ErrorPayload{Code: code, Message: s.cat.ErrorText(code, data)},
	})
}

func snapshotFrom(req arenadto.ProgressRequest) arena.Snapshot {
	snap := arena.Snapshot{
		WPM:            req.WPM,
		Accuracy:       req.Accuracy,
		CorrectChars:   req.CorrectChars,
		IncorrectChars: req.IncorrectChars,
		TotalChars:     req.TotalChars,
		Errors:         req.Errors,
		Backspaces:     req.Backspaces,
	}
	if len(req.KeyStats) > 0 {
		snap.KeyStats = make(map[string]domain.KeyStat, len(req.KeyStats))
		for k, v := range req.KeyStats {
			snap.KeyStats[k] = domain.KeyStat{Count: v.Count, Errors: v.Errors, TotalLatency: v.TotalLatency}
		}
	}
	return snap
}
