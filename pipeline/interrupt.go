package pipeline

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// interruptWindow is how long a first interrupt stays armed waiting for a
// confirming second one.
const interruptWindow = 3 * time.Second

// Interrupt states. A first signal arms the guard; a second signal inside
// the window requests a stop; an armed guard whose window expires returns
// to idle and the run continues unaffected.
type interruptState int

const (
	interruptIdle interruptState = iota
	interruptArmed
	interruptStopped
)

// InterruptGuard debounces termination signals so a single stray Ctrl+C
// cannot abort a long run. The stop request is a flag: the pipeline
// observes it at the top of its batch loop and finishes the in-flight
// batch before saving and exiting.
type InterruptGuard struct {
	mu      sync.Mutex
	state   interruptState
	armedAt time.Time
	window  time.Duration
	onWarn  func(format string, args ...any)
	sigCh   chan os.Signal
}

// NewInterruptGuard starts listening for SIGINT and SIGTERM. onWarn is
// called when the first signal arms the guard (may be nil).
func NewInterruptGuard(onWarn func(format string, args ...any)) *InterruptGuard {
	g := &InterruptGuard{
		window: interruptWindow,
		onWarn: onWarn,
		sigCh:  make(chan os.Signal, 2),
	}
	signal.Notify(g.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go g.listen()
	return g
}

func (g *InterruptGuard) listen() {
	for range g.sigCh {
		g.signal(time.Now())
	}
}

// signal advances the state machine. Split from listen so tests can drive
// it with synthetic timestamps.
func (g *InterruptGuard) signal(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case interruptIdle:
		g.state = interruptArmed
		g.armedAt = now
		if g.onWarn != nil {
			g.onWarn("interrupt received — press Ctrl+C again within %s to stop after the current batch", g.window)
		}
	case interruptArmed:
		if now.Sub(g.armedAt) <= g.window {
			g.state = interruptStopped
			return
		}
		// Window expired: treat as a fresh first signal.
		g.armedAt = now
		if g.onWarn != nil {
			g.onWarn("interrupt received — press Ctrl+C again within %s to stop after the current batch", g.window)
		}
	case interruptStopped:
	}
}

// Stopped reports whether a confirmed stop was requested. An armed guard
// whose window has lapsed reads as idle again.
func (g *InterruptGuard) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == interruptArmed && time.Since(g.armedAt) > g.window {
		g.state = interruptIdle
	}
	return g.state == interruptStopped
}

// Close stops signal delivery. Call when the run finishes.
func (g *InterruptGuard) Close() {
	signal.Stop(g.sigCh)
}
