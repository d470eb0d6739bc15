package arenaclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/typing-arena/pkg/arenadto"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

var ErrNotConnected = errors.New("arena connection not open")

// Frame is one server event with its payload left encoded.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the payload into v.
func (f Frame) Decode(v any) error { return json.Unmarshal(f.Data, v) }

type MessageCallback func(Frame)

type StateCallback func(State)

type callbackEntry struct {
	id       int
	callback MessageCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// Conn is a realtime arena connection. After a drop it redials and replays the last
// join or organizerJoin, so a participant keeps their name and scores.
type Conn struct {
	url string

	conn   *websocket.Conn
	connM  sync.RWMutex
	writeM sync.Mutex

	state  State
	stateM sync.RWMutex

	msgCbs   []callbackEntry
	stateCbs []stateCallbackEntry
	nextCb   int
	cbM      sync.RWMutex

	resume  *arenadto.Envelope
	resumeM sync.Mutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewConn(url string, maxReconnectAttempts int) *Conn {
	return &Conn{
		url:                  url,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

func (c *Conn) Connect(ctx context.Context) error {
	c.stateM.RLock()
	st := c.state
	c.stateM.RUnlock()
	if st == StateConnected || st == StateConnecting {
		return nil
	}
	c.setState(StateConnecting)

	ws, err := c.dial(ctx)
	if err != nil {
		c.setState(StateFailed)
		return err
	}
	if !c.attach(ws) {
		return ErrNotConnected
	}
	return nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	return ws, err
}

// attach adopts ws unless Close has begun. Close takes connM after closing stopCh,
// so wg.Add never races its Wait.
func (c *Conn) attach(ws *websocket.Conn) bool {
	c.connM.Lock()
	if c.isStopping() {
		c.connM.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "close")
		return false
	}
	c.conn = ws
	c.wg.Add(2)
	c.connM.Unlock()
	c.setState(StateConnected)

	ctx, cancel := context.WithCancel(context.Background())
	go c.listen(ctx, cancel, ws)
	go c.pingLoop(ctx, ws)
	return true
}

func (c *Conn) listen(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn) {
	defer c.wg.Done()
	defer cancel()
	for {
		var f Frame
		if err := wsjson.Read(ctx, ws, &f); err != nil {
			if c.isStopping() {
				return
			}
			c.detach(ws)
			c.setState(StateDisconnected)
			c.scheduleReconnect()
			return
		}

		c.cbM.RLock()
		callbacks := make([]callbackEntry, len(c.msgCbs))
		copy(callbacks, c.msgCbs)
		c.cbM.RUnlock()
		for _, entry := range callbacks {
			entry.callback(f)
		}
	}
}

func (c *Conn) pingLoop(ctx context.Context, ws *websocket.Conn) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// listen sees the close and reconnects
				_ = ws.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (c *Conn) scheduleReconnect() {
	if c.maxReconnectAttempts <= 0 {
		c.setState(StateFailed)
		return
	}
	c.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			ws, err := c.dial(context.Background())
			if err != nil {
				continue
			}
			if c.attach(ws) {
				c.replay()
			}
			return
		}
		c.setState(StateFailed)
	}()
}

func (c *Conn) replay() {
	c.resumeM.Lock()
	env := c.resume
	c.resumeM.Unlock()
	if env == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.write(ctx, env)
}

// Send writes one client event. Join and organizerJoin are remembered for replay.
func (c *Conn) Send(ctx context.Context, kind string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	env := &arenadto.Envelope{Type: kind, Data: raw}
	if kind == arenadto.EventJoin || kind == arenadto.EventOrganizerJoin {
		c.resumeM.Lock()
		c.resume = env
		c.resumeM.Unlock()
	}
	return c.write(ctx, env)
}

func (c *Conn) write(ctx context.Context, v any) error {
	c.connM.RLock()
	ws := c.conn
	c.connM.RUnlock()
	if ws == nil {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	c.writeM.Lock()
	defer c.writeM.Unlock()
	return wsjson.Write(ctx, ws, v)
}

func (c *Conn) Join(ctx context.Context, code, name string) error {
	return c.Send(ctx, arenadto.EventJoin, arenadto.JoinRequest{Code: code, Name: name})
}

func (c *Conn) OrganizerJoin(ctx context.Context, competitionID, token string) error {
	return c.Send(ctx, arenadto.EventOrganizerJoin, arenadto.OrganizerJoinRequest{CompetitionID: competitionID, Token: token})
}

func (c *Conn) StartRound(ctx context.Context, competitionID string, roundIndex int) error {
	return c.Send(ctx, arenadto.EventStartRound, arenadto.StartRoundRequest{CompetitionID: competitionID, RoundIndex: roundIndex})
}

func (c *Conn) EndRound(ctx context.Context, competitionID string) error {
	return c.Send(ctx, arenadto.EventEndRound, arenadto.EndRoundRequest{CompetitionID: competitionID})
}

func (c *Conn) ShowFinalResults(ctx context.Context, competitionID string) error {
	return c.Send(ctx, arenadto.EventShowFinalResults, arenadto.ShowFinalResultsRequest{CompetitionID: competitionID})
}

func (c *Conn) Progress(ctx context.Context, p arenadto.ProgressRequest) error {
	return c.Send(ctx, arenadto.EventProgress, p)
}

func (c *Conn) OnMessage(cb MessageCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCb++
	c.msgCbs = append(c.msgCbs, callbackEntry{id: c.nextCb, callback: cb})
	return c.nextCb
}

func (c *Conn) RemoveMessageCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, cb := range c.msgCbs {
		if cb.id == id {
			c.msgCbs = append(c.msgCbs[:i], c.msgCbs[i+1:]...)
			break
		}
	}
}

func (c *Conn) OnStateChange(cb StateCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCb++
	c.stateCbs = append(c.stateCbs, stateCallbackEntry{id: c.nextCb, callback: cb})
	return c.nextCb
}

func (c *Conn) State() State {
	c.stateM.RLock()
	defer c.stateM.RUnlock()
	return c.state
}

func (c *Conn) setState(state State) {
	c.stateM.Lock()
	c.state = state
	c.stateM.Unlock()

	c.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(c.stateCbs))
	copy(callbacks, c.stateCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		entry.callback(state)
	}
}

func (c *Conn) detach(ws *websocket.Conn) {
	c.connM.Lock()
	if c.conn == ws {
		c.conn = nil
	}
	c.connM.Unlock()
	_ = ws.Close(websocket.StatusGoingAway, "reconnect")
}

func (c *Conn) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.connM.Lock()
	ws := c.conn
	c.conn = nil
	c.connM.Unlock()
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		c.setState(StateDisconnected)
		return nil
	}
}

func (c *Conn) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}
