package arena

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/internal/store"
	"github.com/park285/typing-arena/pkg/arenadto"
)

// delivery is one message seen by the recording broadcaster; group is empty for direct sends.
type delivery struct {
	conn  ConnID
	group string
	msg   arenadto.Message
}

type recordingBroadcaster struct {
	mu         sync.Mutex
	members    map[string]map[ConnID]bool
	deliveries []delivery
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{members: make(map[string]map[ConnID]bool)}
}

func (r *recordingBroadcaster) Join(conn ConnID, competitionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[competitionID] == nil {
		r.members[competitionID] = make(map[ConnID]bool)
	}
	r.members[competitionID][conn] = true
}

func (r *recordingBroadcaster) Leave(conn ConnID, competitionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members[competitionID], conn)
}

func (r *recordingBroadcaster) Broadcast(competitionID string, msg arenadto.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery{group: competitionID, msg: msg})
}

func (r *recordingBroadcaster) Send(conn ConnID, msg arenadto.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery{conn: conn, msg: msg})
}

func (r *recordingBroadcaster) ofType(kind string) []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []delivery
	for _, d := range r.deliveries {
		if d.msg.Type == kind {
			out = append(out, d)
		}
	}
	return out
}

func (r *recordingBroadcaster) isMember(competitionID string, conn ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[competitionID][conn]
}

// fakeStore wraps a real gateway; set a Func field to override one operation.
type fakeStore struct {
	store.Gateway

	UpdateCompetitionFunc func(ctx context.Context, c *domain.Competition) error
	CreateParticipantFunc func(ctx context.Context, p *domain.Participant) error
	UpdateParticipantFunc func(ctx context.Context, p *domain.Participant) error
	DeleteParticipantFunc func(ctx context.Context, competitionID, name, connectionID string) (bool, error)
}

func (f *fakeStore) UpdateCompetition(ctx context.Context, c *domain.Competition) error {
	if f.UpdateCompetitionFunc != nil {
		return f.UpdateCompetitionFunc(ctx, c)
	}
	return f.Gateway.UpdateCompetition(ctx, c)
}

func (f *fakeStore) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	if f.CreateParticipantFunc != nil {
		return f.CreateParticipantFunc(ctx, p)
	}
	return f.Gateway.CreateParticipant(ctx, p)
}

func (f *fakeStore) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	if f.UpdateParticipantFunc != nil {
		return f.UpdateParticipantFunc(ctx, p)
	}
	return f.Gateway.UpdateParticipant(ctx, p)
}

func (f *fakeStore) DeleteParticipant(ctx context.Context, competitionID, name, connectionID string) (bool, error) {
	if f.DeleteParticipantFunc != nil {
		return f.DeleteParticipantFunc(ctx, competitionID, name, connectionID)
	}
	return f.Gateway.DeleteParticipant(ctx, competitionID, name, connectionID)
}

type tokenVerifier map[string]string

func (v tokenVerifier) VerifyOrganizer(_ context.Context, token string) (string, error) {
	id, ok := v[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return id, nil
}

type harness struct {
	t      *testing.T
	engine *Engine
	clock  *clockwork.FakeClock
	bc     *recordingBroadcaster
	store  *fakeStore
	comp   *domain.Competition
}

const (
	testCompetitionID = "comp-1"
	testCode          = "ABC123"
	organizerConn     = ConnID("org-conn")
)

var testStart = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newCompetition(rounds int) *domain.Competition {
	c := &domain.Competition{
		ID:           testCompetitionID,
		Name:         "Friday Sprint",
		Code:         testCode,
		OrganizerID:  "org-1",
		Organizer:    "Dana",
		Status:       domain.CompetitionPending,
		CurrentRound: domain.NotStarted,
		TotalRounds:  rounds,
		CreatedAt:    testStart,
	}
	for i := 0; i < rounds; i++ {
		c.Rounds = append(c.Rounds, domain.Round{
			RoundNumber: i + 1,
			Text:        fmt.Sprintf("the quick brown fox %d", i+1),
			Language:    "en",
			Duration:    30,
			Status:      domain.RoundPending,
		})
	}
	return c
}

func newHarness(t *testing.T, comp *domain.Competition) *harness {
	t.Helper()
	fs := &fakeStore{Gateway: store.NewMemory()}
	if err := fs.CreateCompetition(context.Background(), comp); err != nil {
		t.Fatalf("seed competition: %v", err)
	}
	var seq atomic.Int64
	h := &harness{
		t:     t,
		clock: clockwork.NewFakeClockAt(testStart),
		bc:    newRecordingBroadcaster(),
		store: fs,
		comp:  comp,
	}
	e, err := New(Options{
		Store:       fs,
		Broadcaster: h.bc,
		Verifier:    tokenVerifier{"tok-1": "org-1", "tok-2": "org-2"},
		Clock:       h.clock,
		Logger:      zap.NewNop(),
		NewID:       func() string { return fmt.Sprintf("p-%d", seq.Add(1)) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	h.engine = e
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) organizer() {
	h.t.Helper()
	if _, err := h.engine.HandleOrganizerJoin(h.ctx(), organizerConn, testCompetitionID, "tok-1"); err != nil {
		h.t.Fatalf("HandleOrganizerJoin: %v", err)
	}
}

func (h *harness) join(conn ConnID, name string) *JoinResult {
	h.t.Helper()
	res, err := h.engine.HandleJoin(h.ctx(), conn, testCode, name)
	if err != nil {
		h.t.Fatalf("HandleJoin(%s): %v", name, err)
	}
	// distinct join times keep the order readable in failures
	h.clock.Advance(time.Second)
	return res
}

func (h *harness) start(idx int) {
	h.t.Helper()
	if err := h.engine.HandleStartRound(h.ctx(), organizerConn, testCompetitionID, idx); err != nil {
		h.t.Fatalf("HandleStartRound(%d): %v", idx, err)
	}
	h.settle()
}

func (h *harness) end() {
	h.t.Helper()
	if err := h.engine.HandleEndRound(h.ctx(), organizerConn, testCompetitionID); err != nil {
		h.t.Fatalf("HandleEndRound: %v", err)
	}
	h.settle()
}

// settle waits for the session's queued writes, including the finalize report round trip.
func (h *harness) settle() {
	h.t.Helper()
	s, ok := h.engine.registry.Get(testCompetitionID)
	if !ok {
		return
	}
	if err := s.writes.flush(h.ctx()); err != nil {
		h.t.Fatalf("flush writes: %v", err)
	}
}

func (h *harness) progress(conn ConnID, wpm, accuracy float64, errs int) {
	h.t.Helper()
	snap := Snapshot{WPM: wpm, Accuracy: accuracy, Errors: errs, CorrectChars: int(wpm) * 5, TotalChars: int(wpm)*5 + errs}
	if err := h.engine.HandleProgress(h.ctx(), conn, snap); err != nil {
		h.t.Fatalf("HandleProgress(%s): %v", conn, err)
	}
}

func (h *harness) snapshot() *domain.Competition {
	h.t.Helper()
	c, err := h.engine.Snapshot(h.ctx(), testCompetitionID)
	if err != nil {
		h.t.Fatalf("Snapshot: %v", err)
	}
	return c
}

func (h *harness) participant(name string) *domain.Participant {
	h.t.Helper()
	p, err := h.store.Gateway.FindParticipant(context.Background(), testCompetitionID, name)
	if err != nil {
		h.t.Fatalf("FindParticipant(%s): %v", name, err)
	}
	return p
}

// eventually polls cond until it holds or the deadline passes.
func (h *harness) eventually(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %s", what)
}
