package arenabuilder

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/typing-arena/internal/config"
	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/internal/orgauth"
	"github.com/park285/typing-arena/internal/store"
	"github.com/park285/typing-arena/pkg/arenadto"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		StoreTimeout:    time.Second,
		RetentionTTL:    time.Minute,
		SweepInterval:   time.Minute,
		ResultsCacheTTL: time.Hour,
		SendQueue:       16,
		MaxMessageBytes: 64 << 10,
		DevOrganizerID:  "dev-organizer",
	}
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestBuilderServesJoinAndOrganizer(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	gw := store.NewMemory()
	ctx := context.Background()
	if err := gw.CreateCompetition(ctx, &domain.Competition{
		ID: "comp-1", Name: "Sprint", Code: "ABC123", OrganizerID: "org-1",
		Status: domain.CompetitionPending, CurrentRound: domain.NotStarted, TotalRounds: 1,
		Rounds: []domain.Round{{RoundNumber: 1, Text: "abc", Duration: 30, Status: domain.RoundPending}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	deps, err := NewWithOptions(testConfig(), zap.NewNop(), Options{Store: gw, Redis: rdb})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	t.Cleanup(func() { _ = deps.Close() })
	token, err := orgauth.NewRedis(rdb).Issue(ctx, "org-1", "Dana", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ts := httptest.NewServer(deps.Mux())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	org, _, err := websocket.Dial(dctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial organizer: %v", err)
	}
	defer org.Close(websocket.StatusNormalClosure, "")
	writeEvent(t, dctx, org, arenadto.EventOrganizerJoin, arenadto.OrganizerJoinRequest{CompetitionID: "comp-1", Token: token})
	if f := readFrame(t, dctx, org); f.Type != arenadto.EventOrganizerJoined {
		t.Fatalf("organizer got %+v", f)
	}

	player, _, err := websocket.Dial(dctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial participant: %v", err)
	}
	defer player.Close(websocket.StatusNormalClosure, "")
	writeEvent(t, dctx, player, arenadto.EventJoin, arenadto.JoinRequest{Code: "abc123", Name: "ana"})
	if f := readFrame(t, dctx, player); f.Type != arenadto.EventJoined {
		t.Fatalf("participant got %+v", f)
	}

	f := readFrame(t, dctx, org)
	if f.Type != arenadto.EventParticipantJoined {
		t.Fatalf("organizer expected participantJoined, got %+v", f)
	}
	var pj arenadto.ParticipantJoined
	if err := json.Unmarshal(f.Data, &pj); err != nil || pj.TotalParticipants != 1 {
		t.Fatalf("participantJoined payload %s: %v", f.Data, err)
	}

	if f := readFrame(t, dctx, player); f.Type != arenadto.EventParticipantJoined {
		t.Fatalf("participant expected participantJoined, got %+v", f)
	}

	// a bad token is reported to the sender only
	writeEvent(t, dctx, player, arenadto.EventOrganizerJoin, arenadto.OrganizerJoinRequest{CompetitionID: "comp-1", Token: "nope"})
	f = readFrame(t, dctx, player)
	var e arenadto.ErrorPayload
	if err := json.Unmarshal(f.Data, &e); err != nil || f.Type != arenadto.EventError || e.Code != "not_authorized" {
		t.Fatalf("expected not_authorized error, got %+v", f)
	}
}

func TestBuilderWithoutRedisNeedsNothingElse(t *testing.T) {
	cfg := testConfig()
	cfg.DevOrganizerToken = "dev"
	deps, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := deps.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func writeEvent(t *testing.T, ctx context.Context, c *websocket.Conn, kind string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := wsjson.Write(ctx, c, arenadto.Envelope{Type: kind, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", kind, err)
	}
}

func readFrame(t *testing.T, ctx context.Context, c *websocket.Conn) frame {
	t.Helper()
	var f frame
	if err := wsjson.Read(ctx, c, &f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}
