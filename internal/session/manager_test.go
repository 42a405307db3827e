package session

import (
	"errors"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"pingme-link/internal/api"
	"pingme-link/internal/auth"
	"pingme-link/internal/device"
	"pingme-link/internal/model"
	"pingme-link/internal/server"
	"pingme-link/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeChannel struct {
	mu          sync.Mutex
	connects    []string
	disconnects int
}

func (f *fakeChannel) Connect(userID string, pairing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mode := userID
	if pairing {
		mode = "pairing"
	}
	f.connects = append(f.connects, mode)
	return nil
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeChannel) lastConnect() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.connects) == 0 {
		return ""
	}
	return f.connects[len(f.connects)-1]
}

func newBackend(t *testing.T) (*store.Store, string) {
	t.Helper()
	st := store.New()
	st.SeedUser(model.Profile{ID: "u1", FullName: "Ada", Email: "ada@example.com"})
	engine, _ := server.NewRouter(server.Deps{
		Store:       st,
		TokenConfig: auth.TokenConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "pingme-link"},
	})
	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)
	return st, ts.URL
}

func seedToken(t *testing.T, st *store.Store, userID string) string {
	t.Helper()
	token := "tok_" + userID + "_" + time.Now().Format("150405.000000000")
	now := time.Now().UnixMilli()
	st.CreatePairingToken(token, userID, now, now+int64(time.Hour/time.Millisecond))
	return token
}

func newManager(t *testing.T, url, stateDir string) (*Manager, *fakeChannel) {
	t.Helper()
	apiClient, err := api.New(url)
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	channel := &fakeChannel{}
	return NewManager(apiClient, device.NewStore(stateDir), channel), channel
}

func TestBootstrapEstablishesSession(t *testing.T) {
	st, url := newBackend(t)
	m, channel := newManager(t, url, t.TempDir())

	sess, err := m.Bootstrap(seedToken(t, st, "u1"))
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if sess.User.ID != "u1" || sess.User.FullName != "Ada" {
		t.Fatalf("session user %+v", sess.User)
	}
	if sess.DeviceID == "" {
		t.Fatalf("no device id assigned")
	}
	// The channel is replaced, not merged: the pairing connection goes
	// down before the authenticated one comes up.
	if channel.disconnects != 1 {
		t.Fatalf("disconnects = %d, want 1", channel.disconnects)
	}
	if channel.lastConnect() != "u1" {
		t.Fatalf("last connect %q, want u1", channel.lastConnect())
	}
}

func TestBootstrapKeepsDeviceIdentity(t *testing.T) {
	st, url := newBackend(t)
	stateDir := t.TempDir()

	m1, _ := newManager(t, url, stateDir)
	first, err := m1.Bootstrap(seedToken(t, st, "u1"))
	if err != nil {
		t.Fatalf("first Bootstrap: %v", err)
	}
	if err := m1.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// Pairing again from the same installation reuses the stored id, so
	// the backend sees one device, not an accumulating list.
	m2, _ := newManager(t, url, stateDir)
	second, err := m2.Bootstrap(seedToken(t, st, "u1"))
	if err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Fatalf("device id changed across pairings: %s then %s", first.DeviceID, second.DeviceID)
	}
	devices := st.ListDevices("u1")
	if len(devices) != 1 {
		t.Fatalf("backend has %d devices, want 1", len(devices))
	}
}

func TestBootstrapBadToken(t *testing.T) {
	_, url := newBackend(t)
	m, channel := newManager(t, url, t.TempDir())

	_, err := m.Bootstrap("tok_bogus")
	if !errors.Is(err, api.ErrPairingFailed) {
		t.Fatalf("err = %v, want ErrPairingFailed", err)
	}
	if m.Current() != nil {
		t.Fatalf("failed bootstrap left a session")
	}
	if channel.lastConnect() != "" {
		t.Fatalf("failed bootstrap connected the channel")
	}
}

func TestResumeWithoutStoredIdentity(t *testing.T) {
	_, url := newBackend(t)
	m, _ := newManager(t, url, t.TempDir())

	sess, err := m.Resume()
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if sess != nil {
		t.Fatalf("fresh install resumed a session: %+v", sess)
	}
}

func TestEndFiresOnce(t *testing.T) {
	st, url := newBackend(t)
	m, channel := newManager(t, url, t.TempDir())

	if _, err := m.Bootstrap(seedToken(t, st, "u1")); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	var reasons []string
	m.OnEnd(func(reason string) { reasons = append(reasons, reason) })

	m.HandleRemoteUnlink()
	m.HandleRemoteUnlink()
	if err := m.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if len(reasons) != 1 || reasons[0] != EndReasonRemoteUnlink {
		t.Fatalf("reasons = %v, want one remote-unlink", reasons)
	}
	if channel.disconnects < 2 {
		t.Fatalf("channel not disconnected on unlink")
	}
}
