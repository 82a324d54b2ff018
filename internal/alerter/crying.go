package alerter

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nicuwatch/nicuwatch/internal/types"
	"github.com/rs/zerolog"
)

const (
	// CryingThreshold is the intensity (0-100) a sample must exceed to alert.
	CryingThreshold = 70.0
	// CryingCooldown is the minimum gap between two crying alerts.
	CryingCooldown = 60 * time.Second
)

// Crying monitor states.
const (
	StateBelowThreshold = "below-threshold"
	StateCooldownActive = "cooldown-active"
)

// WarningCreator creates warning alerts.
type WarningCreator interface {
	CreateWarningAlert(description string) types.Alert
}

// CryingMonitor raises a warning when crying intensity crosses the threshold,
// at most once per cooldown window. The window starts when an alert fires.
type CryingMonitor struct {
	alerts WarningCreator
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	lastAlertAt time.Time
}

// NewCryingMonitor creates a crying monitor that raises alerts on alerts.
func NewCryingMonitor(alerts WarningCreator, now func() time.Time, logger zerolog.Logger) *CryingMonitor {
	if now == nil {
		now = time.Now
	}
	return &CryingMonitor{
		alerts: alerts,
		logger: logger.With().Str("component", "crying-monitor").Logger(),
		now:    now,
	}
}

// Observe processes one intensity sample and returns the alert it raised, if any.
func (m *CryingMonitor) Observe(intensity float64) (types.Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !(intensity > CryingThreshold) || now.Sub(m.lastAlertAt) <= CryingCooldown {
		return types.Alert{}, false
	}

	m.lastAlertAt = now
	m.logger.Warn().Float64("intensity", intensity).Msg("High crying intensity")
	alert := m.alerts.CreateWarningAlert(
		fmt.Sprintf("High intensity crying detected (%d%%)", int(math.Round(intensity))),
	)
	return alert, true
}

// State returns the monitor's current state.
func (m *CryingMonitor) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastAlertAt.IsZero() && m.now().Sub(m.lastAlertAt) <= CryingCooldown {
		return StateCooldownActive
	}
	return StateBelowThreshold
}
