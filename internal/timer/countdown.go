// Package timer provides the exam countdown clock.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Countdown decrements once per second and signals expiry exactly once.
// Only one countdown runs per instance; Start replaces any running one.
type Countdown struct {
	clock clockwork.Clock
	log   zerolog.Logger

	mu     sync.Mutex
	stop   chan struct{}
	ticker clockwork.Ticker
}

// New creates a Countdown. Pass clockwork.NewRealClock() in production.
func New(clock clockwork.Clock, log zerolog.Logger) *Countdown {
	return &Countdown{
		clock: clock,
		log:   log.With().Str("component", "countdown").Logger(),
	}
}

// Start counts down from seconds. onTick receives the remaining seconds after
// every decrement; onExpire is called once when zero is reached, after which
// the countdown stops itself. A non-positive duration expires on the first tick.
func (c *Countdown) Start(seconds int, onTick func(remaining int), onExpire func()) {
	c.mu.Lock()
	c.cancelLocked()
	stop := make(chan struct{})
	ticker := c.clock.NewTicker(time.Second)
	c.stop = stop
	c.ticker = ticker
	c.mu.Unlock()

	c.log.Debug().Int("seconds", seconds).Msg("Countdown started")

	go c.run(stop, ticker, seconds, onTick, onExpire)
}

// Cancel stops the running countdown. Safe to call repeatedly or when idle.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelLocked() {
		c.log.Debug().Msg("Countdown cancelled")
	}
}

// Running reports whether a countdown is active.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

func (c *Countdown) cancelLocked() bool {
	if c.stop == nil {
		return false
	}
	close(c.stop)
	c.ticker.Stop()
	c.stop = nil
	c.ticker = nil
	return true
}

func (c *Countdown) run(stop chan struct{}, ticker clockwork.Ticker, remaining int, onTick func(int), onExpire func()) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
		}

		// A tick can race a Cancel; the stop signal wins.
		select {
		case <-stop:
			return
		default:
		}

		remaining--
		if remaining < 0 {
			remaining = 0
		}
		if onTick != nil {
			onTick(remaining)
		}
		if remaining > 0 {
			continue
		}

		if !c.finish(stop) {
			return
		}
		c.log.Debug().Msg("Countdown expired")
		if onExpire != nil {
			onExpire()
		}
		return
	}
}

// finish releases the countdown if stop still belongs to the active run.
func (c *Countdown) finish(stop chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != stop {
		return false
	}
	c.cancelLocked()
	return true
}
