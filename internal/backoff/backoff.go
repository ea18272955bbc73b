package backoff

import (
	"math/rand"
	"time"
)

const (
	// DefaultInitial is the delay after the first failure.
	DefaultInitial = time.Second
	// DefaultMax caps the delay regardless of how many failures accumulate.
	DefaultMax = 60 * time.Second
)

// Controller computes the delay before the next reconnection attempt. The
// delay doubles per consecutive failure until it reaches Max. Callers reset
// their attempt counter after a successful streaming period so recovery from
// a transient blip stays fast.
type Controller struct {
	Initial time.Duration
	Max     time.Duration
	// Jitter adds up to 10% of the computed delay for attempts after the
	// first. The result never exceeds Max and Next(0) always equals Initial.
	Jitter bool
}

// New returns a Controller with defaults applied for non-positive values.
func New(initial, max time.Duration) *Controller {
	if initial <= 0 {
		initial = DefaultInitial
	}
	if max <= 0 {
		max = DefaultMax
	}
	if max < initial {
		max = initial
	}
	return &Controller{Initial: initial, Max: max}
}

// Next returns the delay for the given consecutive failure count. Attempt 0
// is the first failure.
func (c *Controller) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := c.Initial
	for i := 0; i < attempt && delay < c.Max; i++ {
		delay *= 2
	}
	if delay > c.Max {
		delay = c.Max
	}

	if c.Jitter && attempt > 0 && delay < c.Max {
		delay += time.Duration(rand.Int63n(int64(delay)/10 + 1))
		if delay > c.Max {
			delay = c.Max
		}
	}

	return delay
}
