package router

import (
	"sync"
	"time"
)

// AdvisoryTTL is how long an emergency advisory stays visible.
const AdvisoryTTL = 4500 * time.Millisecond

// Vector3 is a three-axis reading.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SensorReading is the latest vital-sign reading.
type SensorReading struct {
	HeartRate   float64   `json:"heart_rate"`
	OxygenLevel float64   `json:"oxygen_level"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Gyroscope   Vector3   `json:"gyroscope"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BedPosition is the latest bed telemetry.
type BedPosition struct {
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Angles      Vector3   `json:"angles"`
	Stable      bool      `json:"stable"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Advisory is a short-lived notice raised alongside an emergency event.
type Advisory struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Tone    string    `json:"tone"`
	At      time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of the display state.
type Snapshot struct {
	Sensors         SensorReading `json:"sensors"`
	Bed             BedPosition   `json:"bed"`
	CryingIntensity float64       `json:"crying_intensity"`
	Advisory        *Advisory     `json:"advisory,omitempty"`
}

// Display holds pass-through telemetry for the UI. It has no alert side effects.
type Display struct {
	now func() time.Time

	mu       sync.RWMutex
	sensors  SensorReading
	bed      BedPosition
	crying   float64
	advisory *Advisory
}

// NewDisplay creates an empty display state.
func NewDisplay(now func() time.Time) *Display {
	if now == nil {
		now = time.Now
	}
	return &Display{
		now: now,
		bed: BedPosition{
			Label:       defaultBedLabel,
			Description: defaultBedDescription,
			Stable:      true,
		},
	}
}

func (d *Display) setSensors(r SensorReading) {
	d.mu.Lock()
	r.UpdatedAt = d.now()
	d.sensors = r
	d.mu.Unlock()
}

func (d *Display) setBed(b BedPosition) {
	d.mu.Lock()
	b.UpdatedAt = d.now()
	d.bed = b
	d.mu.Unlock()
}

func (d *Display) setCrying(v float64) {
	d.mu.Lock()
	d.crying = v
	d.mu.Unlock()
}

func (d *Display) setAdvisory(message, severity string) {
	a := &Advisory{Title: "System Notice", Message: message, Tone: "info"}
	if severity == "warning" {
		a.Title, a.Tone = "Crying Detected", "danger"
	}
	d.mu.Lock()
	a.At = d.now()
	d.advisory = a
	d.mu.Unlock()
}

// Snapshot returns the current display state. Expired advisories are omitted.
func (d *Display) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Snapshot{
		Sensors:         d.sensors,
		Bed:             d.bed,
		CryingIntensity: d.crying,
	}
	if d.advisory != nil && d.now().Sub(d.advisory.At) < AdvisoryTTL {
		a := *d.advisory
		s.Advisory = &a
	}
	return s
}
