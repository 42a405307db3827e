package socketio

import (
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("socket not connected")

type ClientConfig struct {
	// BaseURL is the http(s) origin of the backend; the socket endpoint is
	// derived from it.
	BaseURL string
	Dialer  *websocket.Dialer
	// RedialWait is the initial delay before an automatic reconnect.
	RedialWait time.Duration
}

// Client is the process-wide session channel: one logical connection at a
// time, parameterized by user identity and the pairing-mode flag. Switching
// modes replaces the connection; requesting the active mode again is a no-op.
type Client struct {
	baseURL    string
	dialer     *websocket.Dialer
	redialWait time.Duration

	mu      sync.Mutex
	ws      *websocket.Conn
	userID  string
	pairing bool
	active  bool
	gen     int

	sendMu sync.Mutex

	subMu  sync.Mutex
	nextID int
	subs   map[string]map[int]func(json.RawMessage)
}

func NewClient(cfg ClientConfig) *Client {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	wait := cfg.RedialWait
	if wait <= 0 {
		wait = time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		dialer:     dialer,
		redialWait: wait,
		subs:       make(map[string]map[int]func(json.RawMessage)),
	}
}

// Connect opens the channel for the given identity and mode. Calling it
// while already connected in the same mode does nothing; a different mode
// tears the current connection down and dials a new one.
func (c *Client) Connect(userID string, pairing bool) error {
	c.mu.Lock()
	if c.active && c.userID == userID && c.pairing == pairing {
		c.mu.Unlock()
		return nil
	}
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}

	ws, err := c.dial(userID, pairing)
	if err != nil {
		c.active = false
		c.mu.Unlock()
		return err
	}
	c.ws = ws
	c.userID = userID
	c.pairing = pairing
	c.active = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	_ = c.write(ws, string(engineMessage)+string(socketConnect))
	go c.readLoop(ws, gen)
	return nil
}

// Disconnect tears down the active connection. Safe to call when none
// exists.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.gen++
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// On registers a handler for a named event and returns its disposer. Every
// subscription must be released through the disposer; handlers for one event
// run in server emit order.
func (c *Client) On(event string, fn func(json.RawMessage)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextID++
	id := c.nextID
	if c.subs[event] == nil {
		c.subs[event] = make(map[int]func(json.RawMessage))
	}
	c.subs[event][id] = fn

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		set := c.subs[event]
		if set == nil {
			return
		}
		delete(set, id)
		if len(set) == 0 {
			delete(c.subs, event)
		}
	}
}

// Emit sends a named event to the server.
func (c *Client) Emit(event string, arg any) error {
	c.mu.Lock()
	ws := c.ws
	active := c.active
	c.mu.Unlock()
	if !active || ws == nil {
		return ErrNotConnected
	}

	pkt, err := buildEventPacket("/", event, arg)
	if err != nil {
		return err
	}
	return c.write(ws, string(engineMessage)+pkt)
}

func (c *Client) dial(userID string, pairing bool) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/socket.io/"
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	q.Set("userId", userID)
	if pairing {
		q.Set("isPairing", "true")
	} else {
		q.Set("isPairing", "false")
	}
	u.RawQuery = q.Encode()

	ws, _, err := c.dialer.Dial(u.String(), nil)
	return ws, err
}

func (c *Client) write(ws *websocket.Conn, msg string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *Client) readLoop(ws *websocket.Conn, gen int) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		c.handleFrame(ws, string(data))
	}
	_ = ws.Close()
	c.reconnect(gen)
}

func (c *Client) handleFrame(ws *websocket.Conn, msg string) {
	if msg == "" {
		return
	}
	switch enginePacketType(msg[0]) {
	case enginePing:
		_ = c.write(ws, string(enginePong))
	case engineMessage:
		payload := msg[1:]
		if payload == "" || socketPacketType(payload[0]) != socketEvent {
			return
		}
		pkt, err := parseEventPacket(payload)
		if err != nil {
			return
		}
		c.dispatch(pkt)
	}
}

func (c *Client) dispatch(pkt eventPacket) {
	c.subMu.Lock()
	set := c.subs[pkt.Event]
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(json.RawMessage), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, set[id])
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(pkt.Payload)
	}
}

// reconnect redials after a dropped connection for as long as the channel is
// still logically connected in the generation that failed. Events missed
// while offline are lost; there is no replay.
func (c *Client) reconnect(failedGen int) {
	wait := c.redialWait
	for {
		c.mu.Lock()
		if !c.active || c.gen != failedGen {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		time.Sleep(wait)
		if wait *= 2; wait > 30*time.Second {
			wait = 30 * time.Second
		}

		c.mu.Lock()
		if !c.active || c.gen != failedGen {
			c.mu.Unlock()
			return
		}
		ws, err := c.dial(c.userID, c.pairing)
		if err != nil {
			c.mu.Unlock()
			continue
		}
		c.ws = ws
		c.gen++
		gen := c.gen
		c.mu.Unlock()

		_ = c.write(ws, string(engineMessage)+string(socketConnect))
		go c.readLoop(ws, gen)
		return
	}
}
