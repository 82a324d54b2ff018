package router

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/nicuwatch/nicuwatch/internal/metrics"
	"github.com/nicuwatch/nicuwatch/internal/types"
	"github.com/rs/zerolog"
)

// Inbound event names.
const (
	EventSensorData  = "sensor_data"
	EventBedPosition = "bed_position"
	EventEmergency   = "emergency_alert"
	EventCrying      = "crying_intensity"
)

// Event is one named message from an event source.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"data"`
}

// AlertManager is the part of the alert engine the router drives.
type AlertManager interface {
	CreateEmergencyAlerts(messages []string) []types.Alert
	Sweep() int
}

// IntensityObserver consumes crying-intensity samples.
type IntensityObserver interface {
	Observe(intensity float64) (types.Alert, bool)
}

// Router translates inbound events into display updates and alert operations.
// Events are handled one at a time.
type Router struct {
	unit    string
	alerts  AlertManager
	crying  IntensityObserver
	display *Display
	logger  zerolog.Logger

	mu        sync.Mutex
	connected atomic.Bool
	handled   atomic.Int64
	dropped   atomic.Int64

	connMu       sync.Mutex
	onConnChange []func(bool)
}

// New creates a router for one monitored unit. It starts disconnected.
func New(unit string, alerts AlertManager, crying IntensityObserver, display *Display, logger zerolog.Logger) *Router {
	return &Router{
		unit:    unit,
		alerts:  alerts,
		crying:  crying,
		display: display,
		logger:  logger.With().Str("component", "router").Logger(),
	}
}

// OnConnectionChange registers fn to be called whenever the connection state changes.
func (r *Router) OnConnectionChange(fn func(connected bool)) {
	r.connMu.Lock()
	r.onConnChange = append(r.onConnChange, fn)
	r.connMu.Unlock()
}

// SetConnected records the source's connection state. While disconnected new
// events are dropped; alert and dedup state is kept.
func (r *Router) SetConnected(connected bool) {
	if r.connected.Swap(connected) == connected {
		return
	}
	if connected {
		r.logger.Info().Msg("Event source connected")
		metrics.SourceConnected.WithLabelValues(r.unit).Set(1)
	} else {
		r.logger.Warn().Msg("Event source disconnected")
		metrics.SourceConnected.WithLabelValues(r.unit).Set(0)
	}

	r.connMu.Lock()
	callbacks := append([]func(bool){}, r.onConnChange...)
	r.connMu.Unlock()
	for _, fn := range callbacks {
		fn(connected)
	}
}

// Connected reports whether events are currently being forwarded.
func (r *Router) Connected() bool {
	return r.connected.Load()
}

// Handle processes an event from the connected source.
func (r *Router) Handle(ev Event) {
	if !r.connected.Load() {
		r.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues(r.unit, ev.Name).Inc()
		r.logger.Debug().Str("event", ev.Name).Msg("Source disconnected, dropping event")
		return
	}
	r.dispatch(ev)
}

// Inject processes an event from a manual trigger, regardless of the source's
// connection state.
func (r *Router) Inject(ev Event) {
	r.dispatch(ev)
}

// Stats returns the number of handled and dropped events.
func (r *Router) Stats() (handled, dropped int64) {
	return r.handled.Load(), r.dropped.Load()
}

func (r *Router) dispatch(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Name {
	case EventSensorData:
		r.display.setSensors(DecodeSensorReading(ev.Payload))

	case EventBedPosition:
		r.display.setBed(DecodeBedPosition(ev.Payload))

	case EventEmergency:
		message, severity := DecodeEmergency(ev.Payload)
		r.logger.Info().
			Str("message", message).
			Str("severity", severity).
			Msg("Emergency condition received")
		r.alerts.CreateEmergencyAlerts([]string{message})
		r.display.setAdvisory(message, severity)

	case EventCrying:
		intensity := DecodeIntensity(ev.Payload)
		r.display.setCrying(intensity)
		r.crying.Observe(intensity)

	default:
		r.logger.Debug().Str("event", ev.Name).Msg("Ignoring unknown event")
		return
	}

	r.handled.Add(1)
	metrics.EventsReceived.WithLabelValues(r.unit, ev.Name).Inc()

	if n := r.alerts.Sweep(); n > 0 {
		r.logger.Debug().Int("pushed", n).Msg("Sweep pushed pending alerts")
	}
}
