package connection

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Dial backoff defaults.
const (
	// DefaultInitialBackoff is the delay after the first failed dial.
	DefaultInitialBackoff = 500 * time.Millisecond

	// DefaultMaxBackoff caps the delay between dial attempts.
	DefaultMaxBackoff = 10 * time.Second

	// BackoffMultiplier is the growth factor between consecutive delays.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of the base delay.
	JitterFactor = 0.25
)

// ErrInvalidBackoff is returned by Backoff.Validate.
var ErrInvalidBackoff = errors.New("invalid backoff")

// Backoff is an exponential delay schedule indexed by the failed attempt.
// Zero fields take the defaults, except Jitter where zero means none.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultBackoff returns the dial schedule 500ms, 1s, 2s, ... 10s with 25%
// jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    DefaultInitialBackoff,
		Max:        DefaultMaxBackoff,
		Multiplier: BackoffMultiplier,
		Jitter:     JitterFactor,
	}
}

// Validate rejects negative durations, a ceiling below the initial delay
// and jitter outside [0, 1].
func (b Backoff) Validate() error {
	if b.Initial < 0 || b.Max < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidBackoff)
	}
	if b.Initial > 0 && b.Max > 0 && b.Max < b.Initial {
		return fmt.Errorf("%w: max %s below initial %s", ErrInvalidBackoff, b.Max, b.Initial)
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		return fmt.Errorf("%w: jitter %g outside [0, 1]", ErrInvalidBackoff, b.Jitter)
	}
	return nil
}

func (b Backoff) withDefaults() Backoff {
	if b.Initial <= 0 {
		b.Initial = DefaultInitialBackoff
	}
	if b.Max <= 0 {
		b.Max = DefaultMaxBackoff
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Multiplier <= 1 {
		b.Multiplier = BackoffMultiplier
	}
	return b
}

// Base returns the delay after failed attempt n (1-based) without jitter.
func (b Backoff) Base(n int) time.Duration {
	b = b.withDefaults()
	d := float64(b.Initial)
	for i := 1; i < n; i++ {
		d *= b.Multiplier
		if d >= float64(b.Max) {
			return b.Max
		}
	}
	return time.Duration(d)
}

// Delay returns Base(n) plus up to Jitter of it at random.
func (b Backoff) Delay(n int) time.Duration {
	base := b.Base(n)
	if b.Jitter <= 0 {
		return base
	}
	return base + time.Duration(float64(base)*b.Jitter*rand.Float64())
}
