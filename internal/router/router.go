package router

import (
	"encoding/json"
	"sort"
	"sync"

	"pingme-link/internal/model"
	"pingme-link/internal/secret"
)

// Channel is the slice of the session channel the router needs.
type Channel interface {
	On(event string, fn func(json.RawMessage)) func()
	Emit(event string, arg any) error
}

// ChatSink is where inbound messages and typing indicators land.
type ChatSink interface {
	Selected() string
	Append(msg model.Message)
	IncrementUnread(conversationID string)
	SetTyping(userID string, typing bool)
}

// CallSink receives call signaling envelopes, keyed by peer. The router
// forwards them regardless of payload validity.
type CallSink interface {
	HandleSignal(sig model.CallSignal)
}

var callEvents = []string{
	"call:incoming",
	"call:connected",
	"call:rejected",
	"call:ended",
	"call:ice-candidate",
}

type Config struct {
	Channel  Channel
	DeviceID string
	Chat     ChatSink
	Calls    CallSink
	// Cipher, when set, decrypts inbound message text before delivery.
	Cipher *secret.Cipher
	// OnRoster observes each roster replacement.
	OnRoster func(online []string)
	// OnUnlinked fires exactly once when the backend unlinks this device.
	OnUnlinked func()
}

// Router owns the authenticated channel's subscriptions and redistributes
// pushes to local consumers for the lifetime of the session.
type Router struct {
	channel    Channel
	deviceID   string
	chat       ChatSink
	calls      CallSink
	cipher     *secret.Cipher
	onRoster   func([]string)
	onUnlinked func()

	mu       sync.Mutex
	online   map[string]struct{}
	offs     []func()
	unlinked bool
}

func New(cfg Config) *Router {
	return &Router{
		channel:    cfg.Channel,
		deviceID:   cfg.DeviceID,
		chat:       cfg.Chat,
		calls:      cfg.Calls,
		cipher:     cfg.Cipher,
		onRoster:   cfg.OnRoster,
		onUnlinked: cfg.OnUnlinked,
		online:     make(map[string]struct{}),
	}
}

// Attach subscribes to every push the session consumes. Call Close on
// logout to release them.
func (r *Router) Attach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offs = append(r.offs,
		r.channel.On("getOnlineUsers", r.handleRoster),
		r.channel.On("newMessage", r.handleMessage),
		r.channel.On("typing", r.handleTyping),
		r.channel.On("device:unlinked", r.handleUnlinked),
	)
	for _, ev := range callEvents {
		ev := ev
		r.offs = append(r.offs, r.channel.On(ev, func(payload json.RawMessage) {
			r.handleCall(ev, payload)
		}))
	}
}

// Close releases every subscription.
func (r *Router) Close() {
	r.mu.Lock()
	offs := r.offs
	r.offs = nil
	r.mu.Unlock()
	for _, off := range offs {
		off()
	}
}

// Online reports the current presence roster, sorted.
func (r *Router) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.online))
	for id := range r.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Router) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.online[userID]
	return ok
}

// handleRoster replaces the online set wholesale; every push is
// authoritative, never a delta.
func (r *Router) handleRoster(payload json.RawMessage) {
	var ids []string
	if payload == nil || json.Unmarshal(payload, &ids) != nil {
		return
	}
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	r.mu.Lock()
	r.online = next
	r.mu.Unlock()

	if r.onRoster != nil {
		r.onRoster(ids)
	}
}

func (r *Router) handleMessage(payload json.RawMessage) {
	var msg model.Message
	if payload == nil || json.Unmarshal(payload, &msg) != nil {
		return
	}
	if r.cipher != nil {
		msg.Text = r.cipher.Decrypt(msg.Text)
	}

	isGroup := msg.GroupID != ""
	conv := msg.ConversationID()

	if conv != "" && conv == r.chat.Selected() {
		r.chat.Append(msg)
		if !isGroup {
			_ = r.channel.Emit("markMessagesAsSeen", map[string]string{"senderId": msg.SenderID})
		}
		return
	}

	// Group messages outside the open conversation carry no unread-count
	// side effect; only direct messages do.
	if !isGroup {
		r.chat.IncrementUnread(msg.SenderID)
	}
}

func (r *Router) handleTyping(payload json.RawMessage) {
	var body struct {
		SenderID string `json:"senderId"`
		IsTyping bool   `json:"isTyping"`
	}
	if payload == nil || json.Unmarshal(payload, &body) != nil || body.SenderID == "" {
		return
	}
	r.chat.SetTyping(body.SenderID, body.IsTyping)
}

// handleUnlinked compares the named device against the local identity; a
// match forces logout exactly once, anything else is ignored.
func (r *Router) handleUnlinked(payload json.RawMessage) {
	var body struct {
		DeviceID string `json:"deviceId"`
	}
	if payload == nil || json.Unmarshal(payload, &body) != nil {
		return
	}
	if body.DeviceID != r.deviceID {
		return
	}

	r.mu.Lock()
	if r.unlinked {
		r.mu.Unlock()
		return
	}
	r.unlinked = true
	r.mu.Unlock()

	if r.onUnlinked != nil {
		r.onUnlinked()
	}
}

func (r *Router) handleCall(event string, payload json.RawMessage) {
	if r.calls == nil {
		return
	}
	var envelope struct {
		From string `json:"from"`
	}
	if payload != nil {
		_ = json.Unmarshal(payload, &envelope)
	}
	r.calls.HandleSignal(model.CallSignal{
		Kind:    event,
		PeerID:  envelope.From,
		Payload: payload,
	})
}

// AcceptCall, RejectCall, EndCall and SendICECandidate are the outbound
// half of the signaling envelope contract.
func (r *Router) AcceptCall(peerID string, payload json.RawMessage) error {
	return r.emitSignal("call:connected", peerID, payload)
}

func (r *Router) RejectCall(peerID string) error {
	return r.emitSignal("call:rejected", peerID, nil)
}

func (r *Router) EndCall(peerID string) error {
	return r.emitSignal("call:ended", peerID, nil)
}

func (r *Router) SendICECandidate(peerID string, candidate json.RawMessage) error {
	return r.emitSignal("call:ice-candidate", peerID, candidate)
}

func (r *Router) emitSignal(event, peerID string, payload json.RawMessage) error {
	body := map[string]any{"to": peerID}
	if payload != nil {
		body["data"] = payload
	}
	return r.channel.Emit(event, body)
}

// MarkSeen tells the backend every message from a sender has been read.
func (r *Router) MarkSeen(senderID string) error {
	return r.channel.Emit("markMessagesAsSeen", map[string]string{"senderId": senderID})
}

// SetTyping reports the local user's typing state to a peer.
func (r *Router) SetTyping(receiverID string, typing bool) error {
	return r.channel.Emit("typing", map[string]any{"receiverId": receiverID, "isTyping": typing})
}
