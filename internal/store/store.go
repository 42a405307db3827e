package store

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"pingme-link/internal/model"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrPairingCodeInvalid   = errors.New("pairing code invalid or expired")
	ErrPairingTokenInvalid  = errors.New("pairing token invalid")
	ErrPairingTokenExpired  = errors.New("pairing token expired")
	ErrPairingTokenConsumed = errors.New("pairing token already consumed")
)

type Store struct {
	mu sync.RWMutex

	usersByID map[string]model.Profile

	// pairing sessions are keyed by display code; codeBySID tracks the
	// latest code per connection so a refresh supersedes the previous one.
	pairingByCode map[string]model.PairingSession
	codeBySID     map[string]string

	tokens map[string]model.PairingToken

	devicesByID map[string]model.Device

	messages []model.Message
}

func New() *Store {
	return &Store{
		usersByID:     make(map[string]model.Profile),
		pairingByCode: make(map[string]model.PairingSession),
		codeBySID:     make(map[string]string),
		tokens:        make(map[string]model.PairingToken),
		devicesByID:   make(map[string]model.Device),
	}
}

// SeedUser registers an account. The stub backend has no signup flow; users
// are provisioned up front.
func (s *Store) SeedUser(p model.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByID[p.ID] = p
}

func (s *Store) GetUser(id string) (model.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.usersByID[id]
	return p, ok
}

// ListUsers returns every user except the given one, sorted by id.
func (s *Store) ListUsers(exceptID string) []model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Profile, 0, len(s.usersByID))
	for id, p := range s.usersByID {
		if id == exceptID {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// CreatePairingSession records a fresh code for a pairing connection,
// superseding any code that connection displayed before.
func (s *Store) CreatePairingSession(sid, code string, now, expiresAt int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.codeBySID[sid]; ok {
		delete(s.pairingByCode, prev)
	}
	s.codeBySID[sid] = code
	s.pairingByCode[code] = model.PairingSession{
		Code:      code,
		SID:       sid,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
}

// DropPairingSession removes whatever code a closed connection displayed.
func (s *Store) DropPairingSession(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.codeBySID[sid]; ok {
		delete(s.pairingByCode, code)
		delete(s.codeBySID, sid)
	}
}

// ConsumePairingCode invalidates a displayed code and returns the connection
// that displayed it. Expired or unknown codes fail.
func (s *Store) ConsumePairingCode(code string, now int64) (sid string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.pairingByCode[code]
	if !ok || now > sess.ExpiresAt {
		return "", ErrPairingCodeInvalid
	}
	delete(s.pairingByCode, code)
	delete(s.codeBySID, sess.SID)
	return sess.SID, nil
}

func (s *Store) CreatePairingToken(token, userID string, now, expiresAt int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = model.PairingToken{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
}

// ConsumePairingToken exchanges a token exactly once. Replay fails with
// ErrPairingTokenConsumed.
func (s *Store) ConsumePairingToken(token string, now int64) (userID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return "", ErrPairingTokenInvalid
	}
	if t.Consumed {
		return "", ErrPairingTokenConsumed
	}
	if now > t.ExpiresAt {
		return "", ErrPairingTokenExpired
	}
	t.Consumed = true
	s.tokens[token] = t
	return t.UserID, nil
}

// UpsertDevice links a device to a user, or refreshes an existing link.
func (s *Store) UpsertDevice(userID string, info model.DeviceInfo, now int64) model.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devicesByID[info.DeviceID]
	if !ok {
		d = model.Device{DeviceID: info.DeviceID, LinkedAt: now}
	}
	d.UserID = userID
	d.DeviceName = info.DeviceName
	d.UserAgent = info.UserAgent
	d.LastActiveAt = now
	s.devicesByID[info.DeviceID] = d
	return d
}

func (s *Store) GetDevice(deviceID string) (model.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devicesByID[deviceID]
	return d, ok
}

func (s *Store) TouchDevice(deviceID string, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devicesByID[deviceID]; ok {
		d.LastActiveAt = now
		s.devicesByID[deviceID] = d
	}
}

func (s *Store) ListDevices(userID string) []model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Device, 0)
	for _, d := range s.devicesByID {
		if d.UserID == userID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DeviceID < result[j].DeviceID })
	return result
}

// UnlinkDevice removes a device link. Returns false when the device does not
// belong to the user.
func (s *Store) UnlinkDevice(userID, deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devicesByID[deviceID]
	if !ok || d.UserID != userID {
		return false
	}
	delete(s.devicesByID, deviceID)
	return true
}

// AppendMessage stores a direct message and returns it with server-assigned
// fields filled in.
func (s *Store) AppendMessage(senderID, receiverID, text, image string, now int64) model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := model.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.messages = append(s.messages, msg)
	return msg
}

// MessagesBetween returns the direct conversation between two users in
// append order.
func (s *Store) MessagesBetween(a, b string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Message, 0)
	for _, m := range s.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			result = append(result, m)
		}
	}
	return result
}

// MarkMessagesSeen flags every message from sender to owner as seen.
func (s *Store) MarkMessagesSeen(ownerID, senderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.SenderID == senderID && m.ReceiverID == ownerID && !m.Seen {
			s.messages[i].Seen = true
		}
	}
}
