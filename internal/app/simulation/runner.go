// Package simulation runs traffic lights with vehicles waiting to cross.
package simulation

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/trafficlight/internal/app/light"
	"github.com/osa030/trafficlight/internal/app/queue"
	"github.com/osa030/trafficlight/internal/domain/phase"
)

// Errors
var (
	ErrAlreadyRun = errors.New("simulation already run")
)

// Signal is a traffic light that vehicles can wait on.
type Signal interface {
	ID() string
	Start()
	Stop()
	CurrentPhase() phase.Phase
	Transitions() uint64
	OnChange(fn func(old, cur phase.Phase))
	WaitForGreen(ctx context.Context) error
}

// Config holds simulation configuration.
type Config struct {
	Lights           int           // Number of independent lights
	VehiclesPerLight int           // Vehicles waiting at each light
	CrossingTime     time.Duration // Upper bound of the random pause after a vehicle crosses
	Light            light.Config  // Configuration shared by all lights
}

// LightStats holds per-light statistics.
type LightStats struct {
	ID          string
	Phase       phase.Phase
	Transitions uint64
	Crossings   uint64
}

// Runner runs a simulation.
type Runner struct {
	mu sync.Mutex

	config    Config
	signals   []Signal
	crossings []uint64
	ran       bool

	done chan struct{}
}

// NewRunner creates a runner with cfg.Lights lights.
func NewRunner(cfg Config) (*Runner, error) {
	return newRunner(cfg, func(c light.Config) Signal {
		return light.New(c)
	})
}

func newRunner(cfg Config, newSignal func(light.Config) Signal) (*Runner, error) {
	if cfg.Lights < 1 {
		return nil, errors.Newf("at least one light is required (got %d)", cfg.Lights)
	}
	if cfg.VehiclesPerLight < 0 {
		return nil, errors.Newf("vehicles per light must not be negative (got %d)", cfg.VehiclesPerLight)
	}
	if cfg.CrossingTime < 0 {
		return nil, errors.Newf("crossing time must not be negative (got %v)", cfg.CrossingTime)
	}

	r := &Runner{
		config:    cfg,
		signals:   make([]Signal, 0, cfg.Lights),
		crossings: make([]uint64, cfg.Lights),
		done:      make(chan struct{}),
	}
	for i := 0; i < cfg.Lights; i++ {
		lightCfg := cfg.Light
		if lightCfg.Seed != 0 {
			// Keep lights apart while staying reproducible
			lightCfg.Seed += uint64(i)
		}
		r.signals = append(r.signals, newSignal(lightCfg))
	}
	return r, nil
}

// Run starts every light and its vehicles and blocks until ctx is done.
// All lights are stopped before Run returns. A runner can only be run once.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return ErrAlreadyRun
	}
	r.ran = true
	r.mu.Unlock()

	defer close(r.done)
	defer r.stopAll()

	for _, s := range r.signals {
		id := s.ID()
		s.OnChange(func(old, cur phase.Phase) {
			zlog.Info().Msgf("simulation: light changed: light=%s %s -> %s", id, old, cur)
		})
		s.Start()
	}
	zlog.Info().Msgf("simulation: started: lights=%d vehicles_per_light=%d",
		len(r.signals), r.config.VehiclesPerLight)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	for i, s := range r.signals {
		for v := 0; v < r.config.VehiclesPerLight; v++ {
			g.Go(func() error {
				return r.drive(gctx, i, v, s)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "simulation failed")
	}

	zlog.Info().Msg("simulation: stopped")
	return nil
}

// Done returns a channel that is closed when Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Stats returns a snapshot of per-light statistics.
func (r *Runner) Stats() []LightStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]LightStats, 0, len(r.signals))
	for i, s := range r.signals {
		stats = append(stats, LightStats{
			ID:          s.ID(),
			Phase:       s.CurrentPhase(),
			Transitions: s.Transitions(),
			Crossings:   r.crossings[i],
		})
	}
	return stats
}

// drive runs one vehicle: wait for green, cross, pause, repeat.
func (r *Runner) drive(ctx context.Context, lightIdx, vehicle int, s Signal) error {
	for {
		if err := s.WaitForGreen(ctx); err != nil {
			if errors.Is(err, queue.ErrCanceled) || errors.Is(err, light.ErrStopped) {
				return nil
			}
			return errors.Wrapf(err, "vehicle %d at light %s", vehicle, s.ID())
		}

		r.mu.Lock()
		r.crossings[lightIdx]++
		r.mu.Unlock()
		zlog.Debug().Msgf("simulation: vehicle crossed: light=%s vehicle=%d", s.ID(), vehicle)

		if r.config.CrossingTime <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(rand.N(r.config.CrossingTime)):
		}
	}
}

func (r *Runner) stopAll() {
	for _, s := range r.signals {
		s.Stop()
	}
}
