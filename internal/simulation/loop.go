package simulation

import (
	"context"
	"sync"
	"time"
)

// TurnFunc resolves one turn and reports whether another turn should follow.
type TurnFunc func() bool

// Loop drives the battle either at a fixed turn rate or, when headless, as fast as the
// turns resolve.
type Loop struct {
	interval time.Duration
	turn     TurnFunc
	monitor  *TickMonitor
	now      func() time.Time

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
	cancel context.CancelFunc
}

// LoopOption configures optional Loop behaviour.
type LoopOption func(*Loop)

// WithMonitor records the duration of every turn in monitor.
func WithMonitor(monitor *TickMonitor) LoopOption {
	return func(l *Loop) {
		l.monitor = monitor
	}
}

// WithClock injects the clock used to time turns.
func WithClock(clock func() time.Time) LoopOption {
	return func(l *Loop) {
		if clock != nil {
			l.now = clock
		}
	}
}

// NewLoop configures a loop that targets turnsPerSecond. A non-positive rate runs headless.
func NewLoop(turnsPerSecond float64, turn TurnFunc, opts ...LoopOption) *Loop {
	if turn == nil {
		turn = func() bool { return false }
	}
	l := &Loop{turn: turn, now: time.Now}
	if turnsPerSecond > 0 {
		l.interval = time.Duration(float64(time.Second) / turnsPerSecond)
		if l.interval <= 0 {
			l.interval = time.Millisecond
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Headless reports whether the loop runs without pacing.
func (l *Loop) Headless() bool { return l != nil && l.interval == 0 }

// Start begins resolving turns until the context is cancelled, Stop is invoked or the
// turn function reports the end.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	if !l.Headless() {
		l.ticker = time.NewTicker(l.interval)
	}
	ticker := l.ticker
	l.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if ticker == nil {
			l.runHeadless(ctx)
			return
		}
		defer ticker.Stop()
		last := l.now()
		accumulator := time.Duration(0)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				//1.- Accumulate elapsed time and run whole turns while catching up.
				now := l.now()
				accumulator += now.Sub(last)
				last = now
				for accumulator >= l.interval {
					accumulator -= l.interval
					if !l.step() {
						return
					}
				}
			}
		}
	}()
}

func (l *Loop) runHeadless(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !l.step() {
			return
		}
	}
}

func (l *Loop) step() bool {
	started := l.now()
	more := l.turn()
	l.monitor.Observe(l.now().Sub(started))
	return more
}

// Done is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Wait blocks until the loop exits or ctx is cancelled.
func (l *Loop) Wait(ctx context.Context) error {
	done := l.Done()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Interval exposes the pacing between turns, zero when headless.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
