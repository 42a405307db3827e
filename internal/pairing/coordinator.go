package pairing

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Channel is the slice of the session channel the coordinator needs.
type Channel interface {
	Connect(userID string, pairing bool) error
	On(event string, fn func(json.RawMessage)) func()
}

// Bootstrap exchanges a one-time pairing token for a durable session.
type Bootstrap func(pairingToken string) error

var ErrAlreadyStarted = errors.New("pairing already started")

type state int

const (
	stateIdle state = iota
	statePairing
	stateAuthorizing
	stateDone
)

type Config struct {
	Channel   Channel
	Bootstrap Bootstrap
	// RefreshEvery is the cadence at which pairing is proactively
	// re-requested so the displayed code never outlives its validity
	// window. Zero means the 60s default.
	RefreshEvery time.Duration
	// Ticks overrides the refresh timer; tests drive it directly.
	Ticks <-chan time.Time

	// OnCode is called with each displayed code, and with "" when pairing
	// finishes. OnError surfaces a failed bootstrap.
	OnCode  func(code string)
	OnError func(err error)
}

// Coordinator drives the pairing handshake: request a pairing-mode
// connection, display each pushed code, and hand the first authorization
// token to the bootstrapper exactly once.
type Coordinator struct {
	channel      Channel
	bootstrap    Bootstrap
	refreshEvery time.Duration
	ticks        <-chan time.Time
	onCode       func(string)
	onError      func(error)

	mu    sync.Mutex
	st    state
	code  string
	offs  []func()
	stopC chan struct{}
}

func New(cfg Config) *Coordinator {
	refresh := cfg.RefreshEvery
	if refresh <= 0 {
		refresh = 60 * time.Second
	}
	return &Coordinator{
		channel:      cfg.Channel,
		bootstrap:    cfg.Bootstrap,
		refreshEvery: refresh,
		ticks:        cfg.Ticks,
		onCode:       cfg.OnCode,
		onError:      cfg.OnError,
	}
}

// Start moves Idle to Pairing: one pairing-mode connect request now, then
// one per refresh tick until authorization or Stop.
func (p *Coordinator) Start() error {
	p.mu.Lock()
	if p.st == statePairing || p.st == stateAuthorizing {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	// Release anything left over from a previous attempt that ended in a
	// failed bootstrap rather than an explicit Stop.
	if p.stopC != nil {
		close(p.stopC)
	}
	for _, off := range p.offs {
		off()
	}
	p.offs = nil
	p.st = statePairing
	p.code = ""
	p.stopC = make(chan struct{})
	stopC := p.stopC

	p.offs = append(p.offs,
		p.channel.On("pairing:code", p.handleCode),
		p.channel.On("pairing:authorized", p.handleAuthorized),
	)
	p.mu.Unlock()

	if err := p.channel.Connect("", true); err != nil {
		// The refresh loop keeps retrying; a dead backend shows up as a
		// code that never arrives.
		if p.onError != nil {
			p.onError(err)
		}
	}

	go p.refreshLoop(stopC)
	return nil
}

// Stop cancels the refresh timer and releases subscriptions. It does not
// close the channel; connection reuse is allowed.
func (p *Coordinator) Stop() {
	p.mu.Lock()
	if p.stopC != nil {
		close(p.stopC)
		p.stopC = nil
	}
	offs := p.offs
	p.offs = nil
	if p.st == statePairing || p.st == stateAuthorizing {
		p.st = stateIdle
	}
	p.code = ""
	p.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

// Code returns the currently displayed pairing code, empty while waiting.
func (p *Coordinator) Code() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

// Pairing reports whether the coordinator is still in the handshake.
func (p *Coordinator) Pairing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st == statePairing || p.st == stateAuthorizing
}

func (p *Coordinator) refreshLoop(stopC chan struct{}) {
	ticks := p.ticks
	if ticks == nil {
		ticker := time.NewTicker(p.refreshEvery)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-stopC:
			return
		case <-ticks:
			p.mu.Lock()
			pairing := p.st == statePairing
			p.mu.Unlock()
			if !pairing {
				continue
			}
			_ = p.channel.Connect("", true)
		}
	}
}

func (p *Coordinator) handleCode(payload json.RawMessage) {
	var body struct {
		PairingCode string `json:"pairingCode"`
	}
	if payload == nil || json.Unmarshal(payload, &body) != nil || body.PairingCode == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st != statePairing {
		return
	}
	p.code = body.PairingCode
	if p.onCode != nil {
		p.onCode(body.PairingCode)
	}
}

// handleAuthorized is one-shot: the first token wins, later pushes are
// ignored even if they arrive before the bootstrap resolves.
func (p *Coordinator) handleAuthorized(payload json.RawMessage) {
	var body struct {
		PairingToken string `json:"pairingToken"`
	}
	if payload == nil || json.Unmarshal(payload, &body) != nil || body.PairingToken == "" {
		return
	}

	p.mu.Lock()
	if p.st != statePairing {
		p.mu.Unlock()
		return
	}
	p.st = stateAuthorizing
	p.mu.Unlock()

	go p.runBootstrap(body.PairingToken)
}

func (p *Coordinator) runBootstrap(token string) {
	err := p.bootstrap(token)

	p.mu.Lock()
	if p.st != stateAuthorizing {
		// Stopped while the exchange was in flight; the result is
		// disregarded.
		p.mu.Unlock()
		return
	}
	if err != nil {
		p.st = stateIdle
		p.code = ""
		p.mu.Unlock()
		if p.onError != nil {
			p.onError(err)
		}
		return
	}
	p.st = stateDone
	p.code = ""
	p.mu.Unlock()
	if p.onCode != nil {
		p.onCode("")
	}
}
