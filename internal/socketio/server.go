package socketio

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"pingme-link/internal/auth"
	"pingme-link/internal/store"
)

const (
	maxPayload   int64         = 1000000
	writeTimeout time.Duration = 10 * time.Second
	pingInterval               = 25 * time.Second
	pingTimeout                = 20 * time.Second
)

type Deps struct {
	Store *store.Store
	// CodeTTL bounds a pairing code's validity; CodeRefresh is how often a
	// pairing connection is pushed a superseding code.
	CodeTTL     time.Duration
	CodeRefresh time.Duration
}

// Server is the backend half of the session channel: it accepts pairing-mode
// and authenticated-mode connections, pushes pairing codes, the online
// roster, message and unlink notifications, and relays typing and call
// signaling between users.
type Server struct {
	store       *store.Store
	codeTTL     time.Duration
	codeRefresh time.Duration

	upgrader websocket.Upgrader

	mu        sync.RWMutex
	roomUsers map[string]map[*conn]struct{}
	bySID     map[string]*conn
}

func NewServer(deps Deps) *Server {
	codeTTL := deps.CodeTTL
	if codeTTL <= 0 {
		codeTTL = 90 * time.Second
	}
	codeRefresh := deps.CodeRefresh
	if codeRefresh <= 0 {
		codeRefresh = 60 * time.Second
	}
	return &Server{
		store:       deps.Store,
		codeTTL:     codeTTL,
		codeRefresh: codeRefresh,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		roomUsers: make(map[string]map[*conn]struct{}),
		bySID:     make(map[string]*conn),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxPayload)

	c := newConn(ws)
	c.userID = r.URL.Query().Get("userId")
	c.pairing = r.URL.Query().Get("isPairing") == "true"

	s.registerConn(c)
	defer s.unregisterConn(c)

	open := map[string]any{
		"sid":          c.sid,
		"upgrades":     []string{},
		"pingInterval": pingInterval.Milliseconds(),
		"pingTimeout":  pingTimeout.Milliseconds(),
		"maxPayload":   maxPayload,
	}
	openBytes, _ := json.Marshal(open)
	_ = c.writeText(string(engineOpen) + string(openBytes))

	go c.pingLoop()
	c.readLoop(func(msg string) {
		s.handleMessage(c, msg)
	})
}

func (s *Server) registerConn(c *conn) {
	s.mu.Lock()
	s.bySID[c.sid] = c
	if c.userID != "" {
		set, ok := s.roomUsers[c.userID]
		if !ok {
			set = make(map[*conn]struct{})
			s.roomUsers[c.userID] = set
		}
		set[c] = struct{}{}
	}
	s.mu.Unlock()

	if c.userID != "" {
		s.broadcastRoster()
	}
	if c.pairing {
		s.issuePairingCode(c)
		go s.refreshPairingCodes(c)
	}
}

func (s *Server) unregisterConn(c *conn) {
	s.mu.Lock()
	delete(s.bySID, c.sid)
	if c.userID != "" {
		set, ok := s.roomUsers[c.userID]
		if ok {
			delete(set, c)
			if len(set) == 0 {
				delete(s.roomUsers, c.userID)
			}
		}
	}
	s.mu.Unlock()

	c.close()
	if c.pairing {
		s.store.DropPairingSession(c.sid)
	}
	if c.userID != "" {
		s.broadcastRoster()
	}
}

// OnlineUserIDs returns the identifiers of users with at least one
// authenticated connection, sorted for stable output.
func (s *Server) OnlineUserIDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.roomUsers))
	for id := range s.roomUsers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (s *Server) broadcastRoster() {
	ids := s.OnlineUserIDs()

	s.mu.RLock()
	conns := make([]*conn, 0)
	for _, set := range s.roomUsers {
		for c := range set {
			conns = append(conns, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range conns {
		_ = c.emit("getOnlineUsers", ids)
	}
}

func (s *Server) issuePairingCode(c *conn) {
	code, err := auth.NewPairingCode()
	if err != nil {
		return
	}
	now := time.Now().UnixMilli()
	s.store.CreatePairingSession(c.sid, code, now, now+s.codeTTL.Milliseconds())
	_ = c.emit("pairing:code", map[string]string{"pairingCode": code})
}

// refreshPairingCodes supersedes the displayed code before it can expire,
// for as long as the pairing connection stays open and unauthorized.
func (s *Server) refreshPairingCodes(c *conn) {
	ticker := time.NewTicker(s.codeRefresh)
	defer ticker.Stop()
	for range ticker.C {
		if c.closed.Load() || c.authorized.Load() {
			return
		}
		s.issuePairingCode(c)
	}
}

// AuthorizePairing consumes the pairing code on behalf of an already
// authenticated user (the phone side of the handshake), mints a one-time
// pairing token and pushes it to the waiting connection.
func (s *Server) AuthorizePairing(code string, userID string) error {
	now := time.Now().UnixMilli()
	sid, err := s.store.ConsumePairingCode(code, now)
	if err != nil {
		return err
	}

	token, err := auth.NewPairingToken()
	if err != nil {
		return err
	}
	s.store.CreatePairingToken(token, userID, now, now+s.codeTTL.Milliseconds())

	s.mu.RLock()
	c := s.bySID[sid]
	s.mu.RUnlock()
	if c == nil {
		return errors.New("pairing connection gone")
	}
	c.authorized.Store(true)
	return c.emit("pairing:authorized", map[string]string{"pairingToken": token})
}

// PushToUser delivers an event to every authenticated connection of a user.
func (s *Server) PushToUser(userID string, event string, payload any) {
	s.mu.RLock()
	set := s.roomUsers[userID]
	conns := make([]*conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if err := c.emit(event, payload); err != nil {
			s.unregisterConn(c)
		}
	}
}

// NotifyDeviceUnlinked tells a user's connections that one of their linked
// devices was removed. The device owning the named identity is expected to
// log itself out.
func (s *Server) NotifyDeviceUnlinked(userID string, deviceID string) {
	s.PushToUser(userID, "device:unlinked", map[string]string{"deviceId": deviceID})
}

func (s *Server) handleMessage(c *conn, msg string) {
	if msg == "" {
		return
	}

	switch enginePacketType(msg[0]) {
	case enginePong:
		c.markPong()
	case engineMessage:
		s.handleSocketPayload(c, msg[1:])
	case engineClose:
		c.close()
	}
}

func (s *Server) handleSocketPayload(c *conn, payload string) {
	if payload == "" {
		return
	}

	switch socketPacketType(payload[0]) {
	case socketConnect:
		if c.connected.Swap(true) {
			return
		}
		ack, err := buildConnectAck("/", c.sid)
		if err == nil {
			_ = c.writeText(string(engineMessage) + ack)
		}
	case socketEvent:
		if !c.connected.Load() {
			return
		}
		pkt, err := parseEventPacket(payload)
		if err != nil {
			return
		}
		s.handleEvent(c, pkt)
	}
}

func (s *Server) handleEvent(c *conn, pkt eventPacket) {
	switch pkt.Event {
	case "markMessagesAsSeen":
		if c.userID == "" {
			return
		}
		var body struct {
			SenderID string `json:"senderId"`
		}
		if pkt.Payload == nil || json.Unmarshal(pkt.Payload, &body) != nil || body.SenderID == "" {
			return
		}
		s.store.MarkMessagesSeen(c.userID, body.SenderID)

	case "typing":
		if c.userID == "" {
			return
		}
		var body struct {
			ReceiverID string `json:"receiverId"`
			IsTyping   bool   `json:"isTyping"`
		}
		if pkt.Payload == nil || json.Unmarshal(pkt.Payload, &body) != nil || body.ReceiverID == "" {
			return
		}
		s.PushToUser(body.ReceiverID, "typing", map[string]any{
			"senderId": c.userID,
			"isTyping": body.IsTyping,
		})

	case "call:incoming", "call:connected", "call:rejected", "call:ended", "call:ice-candidate":
		s.relaySignal(c, pkt)
	}
}

// relaySignal forwards a call signaling envelope to its target user, stamping
// the sender. Payload contents are not interpreted.
func (s *Server) relaySignal(c *conn, pkt eventPacket) {
	if c.userID == "" || pkt.Payload == nil {
		return
	}
	var envelope map[string]json.RawMessage
	if json.Unmarshal(pkt.Payload, &envelope) != nil {
		return
	}
	var to string
	if raw, ok := envelope["to"]; !ok || json.Unmarshal(raw, &to) != nil || to == "" {
		return
	}
	from, _ := json.Marshal(c.userID)
	envelope["from"] = from
	s.PushToUser(to, pkt.Event, envelope)
}

type conn struct {
	ws *websocket.Conn

	sid     string
	userID  string
	pairing bool

	connected  atomic.Bool
	authorized atomic.Bool

	sendMu sync.Mutex

	pingMu       sync.Mutex
	awaitingPong bool
	pingSentAt   time.Time
	nextPingAt   time.Time

	closed atomic.Bool
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:         ws,
		sid:        uuid.NewString(),
		nextPingAt: time.Now().Add(pingInterval),
	}
}

func (c *conn) close() {
	if c.closed.Swap(true) {
		return
	}
	_ = c.ws.Close()
}

func (c *conn) writeText(msg string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *conn) emit(event string, payload any) error {
	pkt, err := buildEventPacket("/", event, payload)
	if err != nil {
		return err
	}
	return c.writeText(string(engineMessage) + pkt)
}

func (c *conn) readLoop(onMessage func(string)) {
	defer c.close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(string(data))
	}
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if c.closed.Load() {
			return
		}
		now := time.Now()
		c.pingMu.Lock()
		awaiting := c.awaitingPong
		pingSentAt := c.pingSentAt
		nextPingAt := c.nextPingAt
		if awaiting && now.Sub(pingSentAt) > pingTimeout {
			c.pingMu.Unlock()
			c.close()
			return
		}
		if !awaiting && !now.Before(nextPingAt) {
			c.awaitingPong = true
			c.pingSentAt = now
			c.nextPingAt = now.Add(pingInterval)
			c.pingMu.Unlock()
			_ = c.writeText(string(enginePing))
			continue
		}
		c.pingMu.Unlock()
	}
}

func (c *conn) markPong() {
	c.pingMu.Lock()
	c.awaitingPong = false
	c.pingMu.Unlock()
}
