package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/nicuwatch/nicuwatch/internal/config"
	"github.com/nicuwatch/nicuwatch/internal/router"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var simulatedEmergencies = []string{
	"SpO₂ dropped below 88%",
	"Heart rate exceeded safe range",
	"Temperature out of range",
	"Apnea event detected",
	"Humidity sensor anomaly",
	"Bed instability detected",
}

// Simulator produces synthetic emergency and crying events on a schedule.
type Simulator struct {
	emergencyEvery time.Duration
	cryingEvery    time.Duration
	logger         zerolog.Logger
	health         *healthTracker

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulator creates a simulated event source
func NewSimulator(cfg config.SimulateConfig, logger zerolog.Logger) *Simulator {
	if cfg.EmergencyEvery <= 0 {
		cfg.EmergencyEvery = 6 * time.Second
	}
	if cfg.CryingEvery <= 0 {
		cfg.CryingEvery = 4 * time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		emergencyEvery: cfg.EmergencyEvery,
		cryingEvery:    cfg.CryingEvery,
		logger:         logger.With().Str("component", "simulator").Logger(),
		health:         newHealthTracker("simulate"),
		rnd:            rand.New(rand.NewSource(seed)),
	}
}

// Name returns the source type
func (s *Simulator) Name() string { return "simulate" }

// Health returns the current health status
func (s *Simulator) Health() Health { return s.health.snapshot() }

// Run schedules the generators and blocks until ctx is cancelled. Once the
// scheduler is stopped no further samples are emitted.
func (s *Simulator) Run(ctx context.Context, sink Sink) error {
	c := cron.New()
	if _, err := c.AddFunc(every(s.emergencyEvery), func() {
		s.emit(sink, router.EventEmergency, s.nextEmergency())
	}); err != nil {
		return fmt.Errorf("schedule emergency generator: %w", err)
	}
	if _, err := c.AddFunc(every(s.cryingEvery), func() {
		s.emit(sink, router.EventCrying, s.nextCrying())
	}); err != nil {
		return fmt.Errorf("schedule crying generator: %w", err)
	}

	s.health.connected()
	sink.SetConnected(true)
	c.Start()
	s.logger.Info().
		Dur("emergency_every", s.emergencyEvery).
		Dur("crying_every", s.cryingEvery).
		Msg("Simulation started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.health.failed(nil, false)
	sink.SetConnected(false)
	s.logger.Info().Msg("Simulation stopped")
	return nil
}

func (s *Simulator) emit(sink Sink, name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	s.health.event()
	sink.Handle(router.Event{Name: name, Payload: data})
}

func (s *Simulator) nextEmergency() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return simulatedEmergencies[s.rnd.Intn(len(simulatedEmergencies))]
}

// nextCrying returns a high sample (70-99) one time in five, otherwise 0-59.
func (s *Simulator) nextCrying() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rnd.Float64() < 0.2 {
		return 70 + s.rnd.Intn(30)
	}
	return s.rnd.Intn(60)
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
