package escalation

import (
	"errors"
	"sync"
	"time"
)

// ErrDeliveryOpen is returned when the webhook endpoint is considered down
// and delivery attempts are being short-circuited.
var ErrDeliveryOpen = errors.New("notification delivery suspended: endpoint failing")

// breakerState is the delivery breaker state machine position.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// deliveryBreaker trips after consecutive webhook delivery failures so a
// down endpoint does not stall the sweep. While open, Notify calls fail
// fast with ErrDeliveryOpen; the attempt stays recorded on the event and
// is retried on a later sweep. After the cooldown one probe request is let
// through; enough probe successes close the breaker again.
type deliveryBreaker struct {
	mu        sync.Mutex
	state     breakerState
	failures  int
	successes int
	openedAt  time.Time

	failureTrip int
	probeQuorum int
	cooldown    time.Duration
}

func newDeliveryBreaker(failureTrip, probeQuorum int, cooldown time.Duration) *deliveryBreaker {
	if failureTrip < 1 {
		failureTrip = 5
	}
	if probeQuorum < 1 {
		probeQuorum = 2
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &deliveryBreaker{
		state:       breakerClosed,
		failureTrip: failureTrip,
		probeQuorum: probeQuorum,
		cooldown:    cooldown,
	}
}

// allow reports whether a delivery attempt may proceed.
func (b *deliveryBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.openedAt) > b.cooldown {
			b.state = breakerHalfOpen
			b.successes = 0
			return nil
		}
		return ErrDeliveryOpen
	default:
		return nil
	}
}

func (b *deliveryBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.failures = 0
	case breakerHalfOpen:
		b.successes++
		if b.successes >= b.probeQuorum {
			b.state = breakerClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *deliveryBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.failures++
		if b.failures >= b.failureTrip {
			b.state = breakerOpen
			b.openedAt = time.Now()
		}
	case breakerHalfOpen:
		// A failed probe reopens immediately.
		b.state = breakerOpen
		b.openedAt = time.Now()
		b.successes = 0
	}
}

// currentState rolls an expired open state over to half-open before
// reporting, so diagnostics match what allow would decide.
func (b *deliveryBreaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen && time.Since(b.openedAt) > b.cooldown {
		b.state = breakerHalfOpen
		b.successes = 0
	}
	return b.state
}
