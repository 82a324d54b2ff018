// Package pipeline assembles the per-unit processing chain: an event source
// feeding a router, which drives the alert engine, crying monitor and push
// dispatcher of one monitored incubator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nicuwatch/nicuwatch/internal/alerter"
	"github.com/nicuwatch/nicuwatch/internal/collector"
	"github.com/nicuwatch/nicuwatch/internal/config"
	"github.com/nicuwatch/nicuwatch/internal/notifier"
	"github.com/nicuwatch/nicuwatch/internal/router"
	"github.com/nicuwatch/nicuwatch/internal/types"
	"github.com/rs/zerolog"
)

const (
	bootstrapTitle       = "System Online"
	bootstrapDescription = "All monitoring systems are functioning normally"

	// the bootstrap record predates startup so live alerts always sort above it
	bootstrapAge = 5 * time.Minute
)

// Option customises a Pipeline.
type Option func(*options)

type options struct {
	now    func() time.Time
	source collector.Source
}

// WithClock replaces time.Now for every time-dependent component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSource overrides the source built from the unit configuration.
func WithSource(src collector.Source) Option {
	return func(o *options) { o.source = src }
}

// Pipeline is one monitored unit.
type Pipeline struct {
	name        string
	description string
	group       string
	now         func() time.Time
	logger      zerolog.Logger

	engine     *alerter.Engine
	crying     *alerter.CryingMonitor
	display    *router.Display
	router     *router.Router
	dispatcher *notifier.Dispatcher
	source     collector.Source

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// Status summarises a unit for the status endpoints
type Status struct {
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Group        string           `json:"group"`
	Source       string           `json:"source"`
	Connected    bool             `json:"connected"`
	ActiveAlerts int              `json:"active_alerts"`
	TotalAlerts  int              `json:"total_alerts"`
	Handled      int64            `json:"events_handled"`
	Dropped      int64            `json:"events_dropped"`
	CryingState  string           `json:"crying_state"`
	Health       collector.Health `json:"source_health"`
}

// New wires a pipeline for the unit called name.
func New(name string, unit config.UnitConfig, push config.PushConfig, pusher notifier.Pusher, logger zerolog.Logger, opts ...Option) (*Pipeline, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	group := unit.Group
	if group == "" {
		group = name
	}
	logger = logger.With().Str("unit", name).Logger()

	dispatcher, err := notifier.NewDispatcher(pusher, notifier.Options{
		Unit:       name,
		Cooldown:   push.Cooldown,
		CacheSize:  push.CooldownCacheSize,
		RatePerSec: push.RatePerSec,
		Burst:      push.Burst,
		Timeout:    push.Timeout,
		Now:        o.now,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("unit %s: dispatcher: %w", name, err)
	}

	engine, err := alerter.NewEngine(dispatcher, alerter.Options{
		Unit:          name,
		Group:         group,
		SeenCacheSize: unit.SeenCacheSize,
		Now:           o.now,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("unit %s: alert engine: %w", name, err)
	}

	src := o.source
	if src == nil {
		src, err = collector.New(unit.Source, logger)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", name, err)
		}
	}

	crying := alerter.NewCryingMonitor(engine, o.now, logger)
	display := router.NewDisplay(o.now)

	return &Pipeline{
		name:        name,
		description: unit.Description,
		group:       group,
		now:         o.now,
		logger:      logger.With().Str("component", "pipeline").Logger(),
		engine:      engine,
		crying:      crying,
		display:     display,
		router:      router.New(name, engine, crying, display, logger),
		dispatcher:  dispatcher,
		source:      src,
	}, nil
}

// Start inserts the acknowledged "System Online" alert and runs the source in
// the background. Calling Start twice is an error.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("pipeline already started")
	}

	online := p.engine.InsertAt(types.KindInfo, bootstrapTitle, bootstrapDescription, p.now().Add(-bootstrapAge))
	p.engine.Acknowledge(online.ID)

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = time.Now()

	go func() {
		defer close(p.done)
		if err := p.source.Run(ctx, p.router); err != nil {
			p.logger.Error().Err(err).Str("source", p.source.Name()).Msg("Event source stopped with error")
		}
	}()

	p.logger.Info().
		Str("source", p.source.Name()).
		Str("group", p.group).
		Msg("Pipeline started")
	return nil
}

// Stop cancels the source, waits for it to return, then waits for in-flight
// pushes until ctx expires.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("unit %s: waiting for source: %w", p.name, ctx.Err())
	}

	if err := p.dispatcher.Wait(ctx); err != nil {
		return fmt.Errorf("unit %s: waiting for pushes: %w", p.name, err)
	}
	p.logger.Info().Msg("Pipeline stopped")
	return nil
}

// Name returns the unit name
func (p *Pipeline) Name() string { return p.name }

// Group returns the push group of the unit
func (p *Pipeline) Group() string { return p.group }

// Alerts returns the alert engine
func (p *Pipeline) Alerts() *alerter.Engine { return p.engine }

// Router returns the event router
func (p *Pipeline) Router() *router.Router { return p.router }

// Telemetry returns the current display state
func (p *Pipeline) Telemetry() router.Snapshot { return p.display.Snapshot() }

// Trigger delivers ev to the router regardless of the source connection,
// for manual and simulated triggers.
func (p *Pipeline) Trigger(ev router.Event) { p.router.Inject(ev) }

// InsertAlert adds a manual alert and sweeps the outbox so it is pushed
// under the same push-once rule as router-created alerts.
func (p *Pipeline) InsertAlert(kind types.Kind, title, description string) types.Alert {
	alert := p.engine.Insert(kind, title, description)
	p.engine.Sweep()
	return alert
}

// Status returns a summary of the unit
func (p *Pipeline) Status() Status {
	active, total := p.engine.Counts()
	handled, dropped := p.router.Stats()
	return Status{
		Name:         p.name,
		Description:  p.description,
		Group:        p.group,
		Source:       p.source.Name(),
		Connected:    p.router.Connected(),
		ActiveAlerts: active,
		TotalAlerts:  total,
		Handled:      handled,
		Dropped:      dropped,
		CryingState:  p.crying.State(),
		Health:       p.source.Health(),
	}
}
