package pairing

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeChannel records connect requests and lets tests push events.
type fakeChannel struct {
	mu       sync.Mutex
	connects int
	handlers map[string][]func(json.RawMessage)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeChannel) Connect(userID string, pairing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pairing {
		f.connects++
	}
	return nil
}

func (f *fakeChannel) On(event string, fn func(json.RawMessage)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], fn)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, event)
	}
}

func (f *fakeChannel) push(event string, payload string) {
	f.mu.Lock()
	fns := append([]func(json.RawMessage){}, f.handlers[event]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(json.RawMessage(payload))
	}
}

func (f *fakeChannel) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestCoordinator_DisplaysAndRefreshesCode(t *testing.T) {
	ch := newFakeChannel()
	p := New(Config{
		Channel:   ch,
		Bootstrap: func(string) error { return nil },
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	ch.push("pairing:code", `{"pairingCode":"482913"}`)
	if p.Code() != "482913" {
		t.Fatalf("expected code displayed, got %q", p.Code())
	}

	ch.push("pairing:code", `{"pairingCode":"519204"}`)
	if p.Code() != "519204" {
		t.Fatalf("expected refreshed code, got %q", p.Code())
	}
}

func TestCoordinator_RefreshCadence(t *testing.T) {
	ch := newFakeChannel()
	ticks := make(chan time.Time)
	p := New(Config{
		Channel:   ch,
		Bootstrap: func(string) error { return nil },
		Ticks:     ticks,
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 3
	for i := 0; i < n; i++ {
		ticks <- time.Now()
	}
	waitFor(t, func() bool { return ch.connectCount() == n+1 })

	p.Stop()

	// Ticks after teardown must not issue further connect requests.
	select {
	case ticks <- time.Now():
	case <-time.After(100 * time.Millisecond):
	}
	time.Sleep(50 * time.Millisecond)
	if got := ch.connectCount(); got != n+1 {
		t.Fatalf("expected %d connects after stop, got %d", n+1, got)
	}
}

func TestCoordinator_AuthorizationIsOneShot(t *testing.T) {
	ch := newFakeChannel()
	started := make(chan string, 2)
	release := make(chan struct{})
	p := New(Config{
		Channel: ch,
		Bootstrap: func(token string) error {
			started <- token
			<-release
			return nil
		},
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	// Two authorization pushes before the first bootstrap resolves.
	ch.push("pairing:authorized", `{"pairingToken":"tok_first"}`)
	ch.push("pairing:authorized", `{"pairingToken":"tok_second"}`)

	got := <-started
	if got != "tok_first" {
		t.Fatalf("expected first token, got %q", got)
	}
	close(release)

	waitFor(t, func() bool { return !p.Pairing() })
	select {
	case tok := <-started:
		t.Fatalf("second bootstrap was started with %q", tok)
	default:
	}
}

func TestCoordinator_BootstrapFailureReturnsToIdle(t *testing.T) {
	ch := newFakeChannel()
	var gotErr error
	var mu sync.Mutex
	p := New(Config{
		Channel:   ch,
		Bootstrap: func(string) error { return errors.New("token expired") },
		OnError: func(err error) {
			mu.Lock()
			gotErr = err
			mu.Unlock()
		},
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	ch.push("pairing:code", `{"pairingCode":"111111"}`)
	ch.push("pairing:authorized", `{"pairingToken":"tok_bad"}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	})
	if p.Pairing() {
		t.Fatalf("expected coordinator back in idle")
	}
	if p.Code() != "" {
		t.Fatalf("expected code cleared, got %q", p.Code())
	}

	// A human retriggers the flow; the coordinator starts over.
	if err := p.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !p.Pairing() {
		t.Fatalf("expected pairing after restart")
	}
}

func TestCoordinator_SuccessClearsCodeAndFinishes(t *testing.T) {
	ch := newFakeChannel()
	p := New(Config{
		Channel:   ch,
		Bootstrap: func(string) error { return nil },
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	ch.push("pairing:code", `{"pairingCode":"482913"}`)
	ch.push("pairing:authorized", `{"pairingToken":"tok_abc"}`)

	waitFor(t, func() bool { return !p.Pairing() && p.Code() == "" })

	// Codes pushed after completion are ignored.
	ch.push("pairing:code", `{"pairingCode":"999999"}`)
	if p.Code() != "" {
		t.Fatalf("expected no code after completion, got %q", p.Code())
	}
}

func TestCoordinator_StartWhilePairingFails(t *testing.T) {
	ch := newFakeChannel()
	p := New(Config{Channel: ch, Bootstrap: func(string) error { return nil }})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if err := p.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}
