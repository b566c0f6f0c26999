// Package light provides a traffic light that cycles between red and green
// and notifies waiting vehicles through a blocking message queue.
package light

import (
	"context"
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trafficlight/internal/app/queue"
	"github.com/osa030/trafficlight/internal/domain/phase"
)

// Cycle duration range. Every phase lasts a uniformly drawn whole number of
// milliseconds within [MinCycle, MaxCycle].
const (
	MinCycle = 4000 * time.Millisecond
	MaxCycle = 6000 * time.Millisecond

	DefaultPollInterval = time.Millisecond
)

// ErrStopped is returned to waiters when the light has been stopped.
var ErrStopped = errors.New("traffic light stopped")

// Config holds light configuration.
type Config struct {
	PollInterval time.Duration // Interval between elapsed-time checks (default 1ms)
	Seed         uint64        // Random seed for cycle durations (0 = derive from light ID)
}

// Light is a traffic light with a single background task cycling its phase.
type Light struct {
	mu sync.RWMutex

	id          string
	phase       phase.Phase
	transitions uint64
	onChange    func(old, cur phase.Phase)
	started     bool

	// Phase change messages, consumed by WaitForGreen
	messages *queue.Queue[phase.Phase]

	// Only touched by the cycling goroutine
	rng *rand.Rand

	minCycle     time.Duration
	maxCycle     time.Duration
	pollInterval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle traffic light showing red.
func New(cfg Config) *Light {
	id := uuid.New()

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	// Seed once per light so lights do not share a duration sequence
	seed1, seed2 := cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15
	if cfg.Seed == 0 {
		seed1 = binary.BigEndian.Uint64(id[:8])
		seed2 = binary.BigEndian.Uint64(id[8:])
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Light{
		id:           id.String(),
		phase:        phase.Red,
		messages:     queue.New[phase.Phase](),
		rng:          rand.New(rand.NewPCG(seed1, seed2)),
		minCycle:     MinCycle,
		maxCycle:     MaxCycle,
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// ID returns the light ID.
func (l *Light) ID() string {
	return l.id
}

// Start starts cycling through phases in the background.
// Only the first call has any effect, and a stopped light cannot be restarted.
func (l *Light) Start() {
	l.startOnce.Do(func() {
		l.mu.Lock()
		if l.ctx.Err() != nil {
			l.mu.Unlock()
			return
		}
		l.started = true
		l.mu.Unlock()

		zlog.Debug().Msgf("light: starting: id=%s", l.id)
		go l.cycleThroughPhases()
	})
}

// Stop stops the background task and wakes all waiters with ErrStopped.
// It blocks until the background task has exited.
func (l *Light) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.cancel()
		started := l.started
		l.mu.Unlock()

		l.messages.Close()
		if started {
			<-l.done
		} else {
			close(l.done)
		}
		zlog.Debug().Msgf("light: stopped: id=%s transitions=%d", l.id, l.Transitions())
	})
}

// Done returns a channel that is closed when the light is stopped.
func (l *Light) Done() <-chan struct{} {
	return l.done
}

// CurrentPhase returns the current phase.
// The value may already be stale when the caller acts on it.
func (l *Light) CurrentPhase() phase.Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

// Transitions returns the number of phase changes so far.
func (l *Light) Transitions() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.transitions
}

// OnChange registers a callback invoked from the background task after each
// phase change. Only one callback is supported; later calls replace it.
func (l *Light) OnChange(fn func(old, cur phase.Phase)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

// WaitForGreen blocks until a change to green is received.
// Each phase change message is delivered to exactly one waiter.
// It never returns before Start has been called and the light turned green.
func (l *Light) WaitForGreen(ctx context.Context) error {
	for {
		p, err := l.messages.Receive(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return errors.Mark(errors.Wrap(err, "wait for green"), ErrStopped)
			}
			return errors.Wrap(err, "wait for green")
		}
		if p == phase.Green {
			return nil
		}
	}
}

// cycleThroughPhases toggles the phase each time the drawn cycle duration
// elapses and publishes the new phase. Runs until the light is stopped.
func (l *Light) cycleThroughPhases() {
	defer close(l.done)

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	cycle := l.drawCycle()
	lastUpdate := time.Now()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(lastUpdate)
			if elapsed < cycle {
				continue
			}

			old, cur := l.toggle()
			l.messages.Send(cur)
			zlog.Debug().Msgf("light: phase changed: id=%s phase=%s cycle=%v elapsed=%v",
				l.id, cur, cycle, elapsed)

			l.mu.RLock()
			cb := l.onChange
			l.mu.RUnlock()
			if cb != nil {
				cb(old, cur)
			}

			cycle = l.drawCycle()
			lastUpdate = time.Now()
		}
	}
}

// toggle flips the current phase and returns the old and new phases.
func (l *Light) toggle() (phase.Phase, phase.Phase) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.phase
	l.phase = old.Next()
	l.transitions++
	return old, l.phase
}

// drawCycle returns a uniformly random cycle duration in whole milliseconds.
func (l *Light) drawCycle() time.Duration {
	span := int64((l.maxCycle - l.minCycle) / time.Millisecond)
	if span <= 0 {
		return l.minCycle
	}
	return l.minCycle + time.Duration(l.rng.Int64N(span+1))*time.Millisecond
}
