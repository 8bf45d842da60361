package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the number of consecutive failures that opens the breaker
	Threshold uint32
	// Cooldown is how long the breaker stays open before a probe is let through
	Cooldown time.Duration
	// IsFailure decides which errors count against the breaker. Errors it
	// rejects pass through and reset nothing. Nil counts every error.
	IsFailure func(error) bool
	// OnStateChange is called whenever the state changes, with the lock held
	OnStateChange func(name string, from State, to State)
}

// Counts holds the statistics for the circuit breaker
type Counts struct {
	Requests            uint32
	ConsecutiveFailures uint32
	TotalFailures       uint32
	Rejected            uint32
}

// Breaker trips after Threshold consecutive failures. While open every call
// is rejected with ErrCircuitOpen; after Cooldown a single probe runs and its
// outcome closes or reopens the breaker.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu      sync.Mutex
	state   State
	counts  Counts
	openAt  time.Time
	probing bool
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.Threshold == 0 {
		settings.Threshold = 5
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}

	return &Breaker{
		name:     name,
		settings: settings,
		now:      time.Now,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn if the breaker accepts it and records the outcome. A panic in
// fn counts as a failure and is re-raised.
func (b *Breaker) Do(fn func() error) (err error) {
	if err := b.before(); err != nil {
		return err
	}

	panicked := true
	defer func() {
		if panicked {
			b.after(errPanic)
		}
	}()

	err = fn()
	panicked = false
	b.after(err)
	return err
}

var errPanic = errors.New("panic")

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateOpen:
		b.counts.Rejected++
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			b.counts.Rejected++
			return ErrTooManyRequests
		}
		b.probing = true
	}
	b.counts.Requests++
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState()
	failed := err != nil && (err == errPanic || b.settings.IsFailure(err))

	if state == StateHalfOpen {
		b.probing = false
		if failed {
			b.counts.TotalFailures++
			b.setState(StateOpen)
		} else {
			b.setState(StateClosed)
		}
		return
	}

	if !failed {
		if err == nil {
			b.counts.ConsecutiveFailures = 0
		}
		return
	}
	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	if state == StateClosed && b.counts.ConsecutiveFailures >= b.settings.Threshold {
		b.setState(StateOpen)
	}
}

// currentState moves an open breaker to half-open once the cooldown passed
func (b *Breaker) currentState() State {
	if b.state == StateOpen && !b.now().Before(b.openAt.Add(b.settings.Cooldown)) {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.counts.ConsecutiveFailures = 0
	if state == StateOpen {
		b.openAt = b.now()
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
