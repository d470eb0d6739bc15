package transport

import (
	"testing"

	"go.uber.org/zap"

	"github.com/park285/typing-arena/pkg/arenadto"
)

func drain(p *peer) []string {
	var out []string
	for _, m := range p.take() {
		out = append(out, m.Type)
	}
	return out
}

func TestHubBroadcastReachesGroupOnly(t *testing.T) {
	h := NewHub(4, zap.NewNop())
	a, b, c := h.register("a"), h.register("b"), h.register("c")
	h.Join("a", "comp-1")
	h.Join("b", "comp-1")
	h.Join("c", "comp-2")

	h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventRoundStarted})
	h.Send("c", arenadto.Message{Type: arenadto.EventError})

	if got := drain(a); len(got) != 1 || got[0] != arenadto.EventRoundStarted {
		t.Fatalf("a got %v", got)
	}
	if got := drain(b); len(got) != 1 {
		t.Fatalf("b got %v", got)
	}
	if got := drain(c); len(got) != 1 || got[0] != arenadto.EventError {
		t.Fatalf("c got %v", got)
	}
	if h.Members("comp-1") != 2 {
		t.Fatalf("members = %d", h.Members("comp-1"))
	}
}

func TestHubLeaveAndUnregister(t *testing.T) {
	h := NewHub(4, zap.NewNop())
	a := h.register("a")
	h.register("b")
	h.Join("a", "comp-1")
	h.Join("b", "comp-1")

	h.Leave("a", "comp-1")
	h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventLeaderboard})
	if got := drain(a); len(got) != 0 {
		t.Fatalf("left connection still received %v", got)
	}

	h.unregister("b")
	if h.Members("comp-1") != 0 {
		t.Fatalf("unregistered connection still grouped")
	}
	// joining after unregister is ignored
	h.Join("b", "comp-1")
	if h.Members("comp-1") != 0 {
		t.Fatalf("unknown connection was added to a group")
	}
}

func TestHubOverflowClosesSlowConnection(t *testing.T) {
	h := NewHub(2, zap.NewNop())
	slow := h.register("slow")
	fast := h.register("fast")
	h.Join("slow", "comp-1")
	h.Join("fast", "comp-1")

	for i := 0; i < 3; i++ {
		h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventRoundEnded})
		drain(fast)
	}

	select {
	case <-slow.done:
	default:
		t.Fatalf("slow connection should be closed after overflow")
	}
	select {
	case <-fast.done:
		t.Fatalf("fast connection must stay open")
	default:
	}
	// further sends to a closed peer are dropped silently
	h.Send("slow", arenadto.Message{Type: arenadto.EventError})
}

func TestHubKeepsOnlyLatestLeaderboard(t *testing.T) {
	h := NewHub(2, zap.NewNop())
	slow := h.register("slow")
	h.Join("slow", "comp-1")

	h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventRoundStarted})
	for i := 1; i <= 65; i++ {
		h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventLeaderboard, Data: arenadto.Leaderboard{RoundNumber: i}})
	}
	select {
	case <-slow.done:
		t.Fatalf("leaderboard bursts must not close the connection")
	default:
	}

	got := slow.take()
	if len(got) != 2 || got[0].Type != arenadto.EventRoundStarted || got[1].Type != arenadto.EventLeaderboard {
		t.Fatalf("unexpected queue %+v", got)
	}
	if board := got[1].Data.(arenadto.Leaderboard); board.RoundNumber != 65 {
		t.Fatalf("queued leaderboard is stale: %d", board.RoundNumber)
	}
}

func TestHubMustDeliverEventDisplacesLeaderboard(t *testing.T) {
	h := NewHub(2, zap.NewNop())
	slow := h.register("slow")
	h.Join("slow", "comp-1")

	h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventLeaderboard})
	h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventParticipantJoined})
	h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventRoundEnded})
	if got := drain(slow); len(got) != 2 || got[0] != arenadto.EventParticipantJoined || got[1] != arenadto.EventRoundEnded {
		t.Fatalf("leaderboard should give way to must-deliver events, got %v", got)
	}

	// a full queue of must-deliver events drops the leaderboard, not the connection
	h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventParticipantJoined})
	h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventParticipantLeft})
	h.Broadcast("comp-1", arenadto.Message{Type: arenadto.EventLeaderboard})
	select {
	case <-slow.done:
		t.Fatalf("a dropped leaderboard must not close the connection")
	default:
	}
	if got := drain(slow); len(got) != 2 || got[1] != arenadto.EventParticipantLeft {
		t.Fatalf("unexpected queue %v", got)
	}
}
