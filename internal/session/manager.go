package session

import (
	"errors"
	"sync"

	"pingme-link/internal/api"
	"pingme-link/internal/device"
	"pingme-link/internal/model"
)

// Channel is the slice of the session channel the manager drives.
type Channel interface {
	Connect(userID string, pairing bool) error
	Disconnect()
}

// Session is the durable result of a successful bootstrap: the user plus
// the device identity the credential is bound to.
type Session struct {
	User     model.Profile
	DeviceID string
}

// Reasons for a session ending, surfaced so the UI can tell a remote unlink
// apart from an ordinary logout or credential expiry.
const (
	EndReasonLogout       = "logged out"
	EndReasonRemoteUnlink = "this device was unlinked remotely"
	EndReasonExpired      = "session expired"
)

// Manager owns the authenticated session: it bootstraps from a pairing
// token, resumes across restarts, and tears everything down on logout or
// remote unlink.
type Manager struct {
	api     *api.Client
	devices *device.Store
	channel Channel

	mu      sync.Mutex
	current *Session
	onEnd   func(reason string)
}

func NewManager(apiClient *api.Client, devices *device.Store, channel Channel) *Manager {
	return &Manager{api: apiClient, devices: devices, channel: channel}
}

// OnEnd registers the hook invoked whenever the session is destroyed, with
// the reason it ended.
func (m *Manager) OnEnd(fn func(reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = fn
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Bootstrap performs the atomic pairing-token exchange: resolve or create
// the device identity, send it with the token, and on success switch the
// channel to authenticated mode.
func (m *Manager) Bootstrap(pairingToken string) (*Session, error) {
	info, err := m.devices.Describe()
	if err != nil {
		return nil, err
	}

	profile, err := m.api.LoginWithToken(pairingToken, info)
	if err != nil {
		return nil, err
	}

	sess := &Session{User: profile, DeviceID: info.DeviceID}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	// Pairing mode is over; the channel is replaced, not merged. The
	// session itself is durable, so a dial failure here is not fatal:
	// the channel redials on its own.
	m.channel.Disconnect()
	_ = m.channel.Connect(profile.ID, false)
	return sess, nil
}

// Resume rebuilds the session from the persisted credential and device
// identity. A nil session with nil error means unauthenticated.
func (m *Manager) Resume() (*Session, error) {
	deviceID, err := m.devices.Load()
	if err != nil {
		return nil, err
	}

	profile, err := m.api.CheckAuth(deviceID)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			m.end(EndReasonExpired, false)
			return nil, nil
		}
		return nil, err
	}

	sess := &Session{User: profile, DeviceID: deviceID}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	_ = m.channel.Connect(profile.ID, false)
	return sess, nil
}

// Logout ends the session explicitly.
func (m *Manager) Logout() error {
	err := m.api.Logout()
	m.end(EndReasonLogout, true)
	return err
}

// HandleRemoteUnlink ends the session after the backend reported this
// device was unlinked from another device.
func (m *Manager) HandleRemoteUnlink() {
	// The credential is already dead server-side; telling the server to
	// log out is best effort.
	_ = m.api.Logout()
	m.end(EndReasonRemoteUnlink, true)
}

func (m *Manager) end(reason string, disconnect bool) {
	m.mu.Lock()
	had := m.current != nil
	m.current = nil
	onEnd := m.onEnd
	m.mu.Unlock()

	if disconnect {
		m.channel.Disconnect()
	}
	if had && onEnd != nil {
		onEnd(reason)
	}
}
