package model

import "encoding/json"

// Profile is the user record the backend returns on auth check and
// pairing-token exchange.
type Profile struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	Email      string `json:"email,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// DeviceInfo is the descriptor a linking device sends alongside a pairing
// token. It is display metadata for the "linked devices" screen and has no
// bearing on session validity.
type DeviceInfo struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	UserAgent  string `json:"userAgent"`
}

// Device is a linked-device record held by the backend.
type Device struct {
	DeviceID     string `json:"deviceId"`
	UserID       string `json:"userId"`
	DeviceName   string `json:"deviceName"`
	UserAgent    string `json:"userAgent"`
	LinkedAt     int64  `json:"linkedAt"`
	LastActiveAt int64  `json:"lastActiveAt"`
}

// Message is a chat message. Exactly one of ReceiverID or GroupID is set;
// GroupID marks a group-addressed message.
type Message struct {
	ID         string `json:"_id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId,omitempty"`
	GroupID    string `json:"groupId,omitempty"`
	Text       string `json:"text,omitempty"`
	Image      string `json:"image,omitempty"`
	Seen       bool   `json:"seen"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// ConversationID returns the identifier the client groups this message
// under: the group for group messages, the sender otherwise.
func (m Message) ConversationID() string {
	if m.GroupID != "" {
		return m.GroupID
	}
	return m.SenderID
}

// CallSignal is a call signaling envelope routed between peers. Payload is
// forwarded verbatim; only the peer key is read.
type CallSignal struct {
	Kind    string
	PeerID  string
	Payload json.RawMessage
}

// PairingSession is the server-side record behind one displayed code.
type PairingSession struct {
	Code      string
	SID       string
	CreatedAt int64
	ExpiresAt int64
}

// PairingToken is the one-time credential minted when a phone confirms a
// pairing code. Consumed is flipped on first use; reuse must fail.
type PairingToken struct {
	Token     string
	UserID    string
	Consumed  bool
	CreatedAt int64
	ExpiresAt int64
}
