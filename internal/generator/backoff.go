package generator

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxAttempts = 6
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
	DefaultMaxJitter   = 300 * time.Millisecond
)

// ThrottleBackOff yields min(MaxDelay, BaseDelay*2^i) plus up to MaxJitter of
// random jitter for the i-th retry. It never stops on its own; the Invoker
// bounds the attempt count.
type ThrottleBackOff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	MaxJitter time.Duration
	Jitter    func(max time.Duration) time.Duration

	attempt int
}

var _ backoff.BackOff = (*ThrottleBackOff)(nil)

func (b *ThrottleBackOff) NextBackOff() time.Duration {
	delay := b.Delay(b.attempt)
	b.attempt++
	return delay
}

func (b *ThrottleBackOff) Reset() {
	b.attempt = 0
}

// Delay returns the wait before retrying after the given 0-indexed attempt.
func (b *ThrottleBackOff) Delay(attempt int) time.Duration {
	delay := b.BaseDelay
	for n := 0; n < attempt && delay < b.MaxDelay; n++ {
		delay *= 2
	}
	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	if b.MaxJitter > 0 {
		jitter := b.Jitter
		if jitter == nil {
			jitter = uniformJitter
		}
		delay += jitter(b.MaxJitter)
	}
	return delay
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
