package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"
	CircuitStateOpen     CircuitState = "open"
	CircuitStateHalfOpen CircuitState = "half_open"
)

// StateChangeFunc observes breaker transitions. It runs outside the breaker lock.
type StateChangeFunc func(name string, from, to CircuitState)

// CircuitBreaker trips after consecutive failures and lets a bounded number of
// probes through once the open timeout has elapsed.
type CircuitBreaker struct {
	mu sync.Mutex

	name          string
	cfg           CircuitBreakerConfig
	onStateChange StateChangeFunc

	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	probesInFlight      int
	probeSuccesses      int
	now                 func() time.Time
}

// NewCircuitBreaker returns nil when the config is disabled; a nil breaker allows everything.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, onStateChange StateChangeFunc) *CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}

	return &CircuitBreaker{
		name:          name,
		cfg:           NormalizeCircuitBreakerConfig(cfg),
		onStateChange: onStateChange,
		state:         CircuitStateClosed,
		now:           time.Now,
	}
}

func (b *CircuitBreaker) Allow() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	from := b.state
	if b.state == CircuitStateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.setState(CircuitStateHalfOpen)
	}

	if b.state == CircuitStateHalfOpen {
		if b.probesInFlight >= b.cfg.HalfOpenMaxReq {
			b.mu.Unlock()
			b.notify(from, CircuitStateHalfOpen)
			return ErrCircuitOpen
		}
		b.probesInFlight++
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return nil
}

func (b *CircuitBreaker) RecordSuccess() {
	if b == nil {
		return
	}

	b.mu.Lock()
	from := b.state
	switch b.state {
	case CircuitStateClosed:
		b.consecutiveFailures = 0
	case CircuitStateHalfOpen:
		if b.probesInFlight > 0 {
			b.probesInFlight--
		}
		b.probeSuccesses++
		if b.probeSuccesses >= b.cfg.HalfOpenMaxReq && b.probesInFlight == 0 {
			b.setState(CircuitStateClosed)
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *CircuitBreaker) RecordFailure() {
	if b == nil {
		return
	}

	b.mu.Lock()
	from := b.state
	switch b.state {
	case CircuitStateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.setState(CircuitStateOpen)
		}
	case CircuitStateHalfOpen:
		b.setState(CircuitStateOpen)
	case CircuitStateOpen:
		b.openedAt = b.now()
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// State reports the effective state; an expired open window reads as half-open.
func (b *CircuitBreaker) State() CircuitState {
	if b == nil {
		return CircuitStateClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateOpen && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		return CircuitStateHalfOpen
	}
	return b.state
}

func (b *CircuitBreaker) setState(next CircuitState) {
	b.state = next
	b.probesInFlight = 0
	b.probeSuccesses = 0
	switch next {
	case CircuitStateOpen:
		b.openedAt = b.now()
	case CircuitStateClosed:
		b.consecutiveFailures = 0
		b.openedAt = time.Time{}
	}
}

func (b *CircuitBreaker) notify(from, to CircuitState) {
	if from == to || b.onStateChange == nil {
		return
	}
	b.onStateChange(b.name, from, to)
}
