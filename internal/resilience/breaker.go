package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen allows a single probe to determine recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker implements a consecutive-failure circuit breaker. It is simpler
// than a rolling-ratio breaker on purpose: the only guarded dependency is
// the vendor script host, where a handful of consecutive failures means the
// host is down or blocked.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	openedAt    time.Time
	openFor     time.Duration
	target      string
	log         zerolog.Logger
}

// NewBreaker constructs a breaker that opens after maxFailures consecutive
// failures and stays open for openFor before sampling again.
func NewBreaker(maxFailures int, openFor time.Duration, target string, log zerolog.Logger) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{maxFailures: maxFailures, openFor: openFor, target: target, log: log}
}

// Allow reports whether a request is permitted in the current state.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open {
		if time.Since(b.openedAt) < b.openFor {
			return false
		}
		b.transition(HalfOpen)
	}
	return true
}

// Report records the outcome of a request.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.failures = 0
		if b.state != Closed {
			b.transition(Closed)
		}
		return
	}
	b.failures++
	if b.state == HalfOpen || b.failures >= b.maxFailures {
		b.transition(Open)
	}
}

func (b *Breaker) transition(next State) {
	prev := b.state
	b.state = next
	if next == Open {
		b.openedAt = time.Now()
		b.failures = 0
	}
	b.log.Warn().
		Str("target", b.target).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("circuit breaker transition")
}
