package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

type Settings struct {
	Name string
	// MaxFailures consecutive failures open the breaker.
	MaxFailures int
	// Timeout is how long the breaker stays open before letting a probe through.
	Timeout time.Duration
}

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type CircuitBreaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	failures    int
	lastFailure time.Time
	state       state
	now         func() time.Time
	mu          sync.Mutex
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.MaxFailures <= 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = time.Minute
	}
	return &CircuitBreaker{
		name:        settings.Name,
		maxFailures: settings.MaxFailures,
		timeout:     settings.Timeout,
		state:       stateClosed,
		now:         time.Now,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Open reports whether calls are currently being rejected.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen && cb.now().Sub(cb.lastFailure) <= cb.timeout
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == stateOpen {
		if cb.now().Sub(cb.lastFailure) > cb.timeout {
			cb.state = stateHalfOpen
		} else {
			cb.mu.Unlock()
			return ErrOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == stateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = stateOpen
		}
		return err
	}

	cb.state = stateClosed
	cb.failures = 0
	return nil
}

// Group lazily creates one breaker per key.
type Group struct {
	settings Settings
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewGroup(settings Settings) *Group {
	return &Group{
		settings: settings,
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (g *Group) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[key]
	if !ok {
		s := g.settings
		s.Name = g.settings.Name + ":" + key
		cb = NewCircuitBreaker(s)
		g.breakers[key] = cb
	}
	return cb
}
