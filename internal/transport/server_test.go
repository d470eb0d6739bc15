package transport

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/typing-arena/internal/arena"
	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/internal/msgcat"
	"github.com/park285/typing-arena/pkg/arenadto"
)

type fakeEngine struct {
	hub *Hub

	mu           sync.Mutex
	joins        []arenadto.JoinRequest
	progress     []arena.Snapshot
	disconnected []arena.ConnID
	startErr     error
}

func (f *fakeEngine) HandleJoin(_ context.Context, conn arena.ConnID, code, name string) (*arena.JoinResult, error) {
	f.mu.Lock()
	f.joins = append(f.joins, arenadto.JoinRequest{Code: code, Name: name})
	f.mu.Unlock()
	if code == "" {
		return nil, arena.ErrInvalidArgs
	}
	f.hub.Join(conn, "comp-1")
	f.hub.Send(conn, arenadto.Message{Type: arenadto.EventJoined})
	return &arena.JoinResult{CompetitionID: "comp-1"}, nil
}

func (f *fakeEngine) HandleOrganizerJoin(context.Context, arena.ConnID, string, string) (*domain.Competition, error) {
	return nil, arena.ErrNotAuthorized
}

func (f *fakeEngine) HandleStartRound(context.Context, arena.ConnID, string, int) error {
	return f.startErr
}

func (f *fakeEngine) HandleEndRound(context.Context, arena.ConnID, string) error { return nil }

func (f *fakeEngine) HandleShowFinalResults(context.Context, arena.ConnID, string) (*arena.FinalizeReport, error) {
	return nil, arena.ErrRoundInProgress
}

func (f *fakeEngine) HandleProgress(_ context.Context, _ arena.ConnID, snap arena.Snapshot) error {
	f.mu.Lock()
	f.progress = append(f.progress, snap)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) HandleDisconnect(_ context.Context, conn arena.ConnID) {
	f.mu.Lock()
	f.disconnected = append(f.disconnected, conn)
	f.mu.Unlock()
}

func (f *fakeEngine) disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.disconnected)
}

func newTestServer(t *testing.T) (*fakeEngine, *websocket.Conn, context.Context) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	hub := NewHub(8, zap.NewNop())
	eng := &fakeEngine{hub: hub, startErr: arena.ErrInvalidRoundIndex}
	srv, err := NewServer(ServerOptions{Engine: eng, Hub: hub, Catalog: cat, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return eng, conn, ctx
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, kind string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := wsjson.Write(ctx, conn, arenadto.Envelope{Type: kind, Data: raw}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

type reply struct {
	Type string                `json:"type"`
	Data arenadto.ErrorPayload `json:"data"`
}

func recv(t *testing.T, ctx context.Context, conn *websocket.Conn) reply {
	t.Helper()
	var r reply
	if err := wsjson.Read(ctx, conn, &r); err != nil {
		t.Fatalf("read: %v", err)
	}
	return r
}

func TestServerDispatchesAndReportsErrors(t *testing.T) {
	eng, conn, ctx := newTestServer(t)

	send(t, ctx, conn, arenadto.EventJoin, arenadto.JoinRequest{Code: "ABC123", Name: "ana"})
	if r := recv(t, ctx, conn); r.Type != arenadto.EventJoined {
		t.Fatalf("expected joined, got %+v", r)
	}

	send(t, ctx, conn, arenadto.EventJoin, arenadto.JoinRequest{Name: "ana"})
	r := recv(t, ctx, conn)
	if r.Type != arenadto.EventError || r.Data.Code != arena.CodeInvalidArgs || r.Data.Message == "" {
		t.Fatalf("expected invalid_args error, got %+v", r)
	}

	send(t, ctx, conn, arenadto.EventStartRound, arenadto.StartRoundRequest{CompetitionID: "comp-1", RoundIndex: 2})
	r = recv(t, ctx, conn)
	if r.Data.Code != arena.CodeInvalidRoundIndex || !strings.Contains(r.Data.Message, "Round 3") {
		t.Fatalf("unexpected start error %+v", r)
	}

	send(t, ctx, conn, arenadto.EventShowFinalResults, arenadto.ShowFinalResultsRequest{CompetitionID: "comp-1"})
	if r := recv(t, ctx, conn); r.Data.Code != arena.CodeRoundInProgress {
		t.Fatalf("unexpected final results error %+v", r)
	}

	send(t, ctx, conn, "dance", struct{}{})
	if r := recv(t, ctx, conn); r.Data.Code != codeUnknownEvent || !strings.Contains(r.Data.Message, "dance") {
		t.Fatalf("unexpected unknown event reply %+v", r)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte("{nope")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := recv(t, ctx, conn); r.Data.Code != codeBadRequest {
		t.Fatalf("malformed frame should be a bad_request, got %+v", r)
	}

	send(t, ctx, conn, arenadto.EventProgress, arenadto.ProgressRequest{
		WPM: 61.5, Accuracy: 97, KeyStats: map[string]arenadto.KeyStat{"a": {Count: 3, TotalLatency: 300}},
	})
	// a round trip after progress guarantees the progress event was handled
	send(t, ctx, conn, arenadto.EventEndRound, arenadto.EndRoundRequest{})
	send(t, ctx, conn, arenadto.EventOrganizerJoin, arenadto.OrganizerJoinRequest{CompetitionID: "comp-1", Token: "x"})
	if r := recv(t, ctx, conn); r.Data.Code != arena.CodeNotAuthorized {
		t.Fatalf("unexpected organizer join reply %+v", r)
	}

	eng.mu.Lock()
	if len(eng.progress) != 1 || eng.progress[0].WPM != 61.5 || eng.progress[0].KeyStats["a"].Count != 3 {
		t.Fatalf("progress not forwarded: %+v", eng.progress)
	}
	eng.mu.Unlock()
}

func TestServerDisconnectNotifiesEngine(t *testing.T) {
	eng, conn, _ := newTestServer(t)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(3 * time.Second)
	for eng.disconnects() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("engine was not told about the disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
