package transport

import (
	"sync"

	"go.uber.org/zap"

	"github.com/park285/typing-arena/internal/arena"
	"github.com/park285/typing-arena/internal/obslog"
	"github.com/park285/typing-arena/pkg/arenadto"
)

const defaultSendQueue = 64

// peer is one registered connection. Its writer takes queued messages after each
// ready signal until done is closed.
type peer struct {
	id    arena.ConnID
	limit int

	mu    sync.Mutex
	queue []arenadto.Message
	ready chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(id arena.ConnID, limit int) *peer {
	return &peer{id: id, limit: limit, ready: make(chan struct{}, 1), done: make(chan struct{})}
}

// supersedes reports whether a newer message of this kind makes older ones worthless.
func supersedes(kind string) bool {
	return kind == arenadto.EventLeaderboard
}

// push queues msg. A leaderboard replaces one still waiting at the tail, and a full queue
// gives up its oldest leaderboard first. It reports false only when a message that must
// be delivered finds no room.
func (p *peer) push(msg arenadto.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	latest := supersedes(msg.Type)
	if n := len(p.queue); latest && n > 0 && p.queue[n-1].Type == msg.Type {
		p.queue[n-1] = msg
		return true
	}
	if len(p.queue) >= p.limit {
		i := p.oldestSuperseded()
		switch {
		case i >= 0:
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
		case latest:
			// nothing to give up; the next leaderboard carries the same standings
			return true
		default:
			return false
		}
	}
	p.queue = append(p.queue, msg)
	select {
	case p.ready <- struct{}{}:
	default:
	}
	return true
}

func (p *peer) oldestSuperseded() int {
	for i, m := range p.queue {
		if supersedes(m.Type) {
			return i
		}
	}
	return -1
}

// take empties the queue.
func (p *peer) take() []arenadto.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.queue
	p.queue = nil
	return out
}

func (p *peer) shut() bool {
	closed := false
	p.closeOnce.Do(func() {
		close(p.done)
		closed = true
	})
	return closed
}

// Hub fans engine events out to connections grouped by competition.
// Enqueue never blocks; a connection that cannot take a must-deliver event is dropped.
type Hub struct {
	mu     sync.RWMutex
	peers  map[arena.ConnID]*peer
	groups map[string]map[arena.ConnID]struct{}

	queue  int
	logger *zap.Logger
}

func NewHub(queue int, logger *zap.Logger) *Hub {
	if queue <= 0 {
		queue = defaultSendQueue
	}
	if logger == nil {
		logger = obslog.L()
	}
	return &Hub{
		peers:  make(map[arena.ConnID]*peer),
		groups: make(map[string]map[arena.ConnID]struct{}),
		queue:  queue,
		logger: logger,
	}
}

func (h *Hub) register(id arena.ConnID) *peer {
	p := newPeer(id, h.queue)
	h.mu.Lock()
	h.peers[id] = p
	h.mu.Unlock()
	return p
}

func (h *Hub) unregister(id arena.ConnID) {
	h.mu.Lock()
	p := h.peers[id]
	delete(h.peers, id)
	for gid, members := range h.groups {
		delete(members, id)
		if len(members) == 0 {
			delete(h.groups, gid)
		}
	}
	h.mu.Unlock()
	if p != nil {
		p.shut()
	}
}

func (h *Hub) Join(conn arena.ConnID, competitionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[conn]; !ok {
		return
	}
	members := h.groups[competitionID]
	if members == nil {
		members = make(map[arena.ConnID]struct{})
		h.groups[competitionID] = members
	}
	members[conn] = struct{}{}
}

func (h *Hub) Leave(conn arena.ConnID, competitionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.groups[competitionID]
	delete(members, conn)
	if len(members) == 0 {
		delete(h.groups, competitionID)
	}
}

func (h *Hub) Broadcast(competitionID string, msg arenadto.Message) {
	h.mu.RLock()
	targets := make([]*peer, 0, len(h.groups[competitionID]))
	for id := range h.groups[competitionID] {
		if p := h.peers[id]; p != nil {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()
	for _, p := range targets {
		h.enqueue(p, msg)
	}
}

func (h *Hub) Send(conn arena.ConnID, msg arenadto.Message) {
	h.mu.RLock()
	p := h.peers[conn]
	h.mu.RUnlock()
	if p != nil {
		h.enqueue(p, msg)
	}
}

// Members reports the connections currently in a competition group.
func (h *Hub) Members(competitionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[competitionID])
}

func (h *Hub) enqueue(p *peer, msg arenadto.Message) {
	select {
	case <-p.done:
		return
	default:
	}
	if p.push(msg) {
		return
	}
	if p.shut() {
		h.logger.Warn("send_queue_overflow", zap.String("conn_id", string(p.id)), zap.String("event", msg.Type))
	}
}
