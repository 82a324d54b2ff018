package router

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nicuwatch/nicuwatch/internal/alerter"
	"github.com/nicuwatch/nicuwatch/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSender struct {
	mu    sync.Mutex
	count int
}

func (s *countingSender) Send(title, message string, priority int, group string) bool {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return true
}

func (s *countingSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

type harness struct {
	router  *Router
	engine  *alerter.Engine
	display *Display
	sender  *countingSender
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{sender: &countingSender{}, now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }

	engine, err := alerter.NewEngine(h.sender, alerter.Options{Unit: "nicu-1", Now: clock}, zerolog.Nop())
	require.NoError(t, err)
	h.engine = engine
	h.display = NewDisplay(clock)
	h.router = New("nicu-1", engine, alerter.NewCryingMonitor(engine, clock, zerolog.Nop()), h.display, zerolog.Nop())
	h.router.SetConnected(true)
	return h
}

func event(name, payload string) Event {
	return Event{Name: name, Payload: json.RawMessage(payload)}
}

func TestRouter_SensorDataIsDisplayOnly(t *testing.T) {
	h := newHarness(t)

	h.router.Handle(event(EventSensorData, `{"bpm":142.5,"spo2":97,"temperature":36.8,"humidity":55,"x":0.1,"y":-0.2,"z":9.8}`))

	s := h.display.Snapshot().Sensors
	assert.Equal(t, 142.5, s.HeartRate)
	assert.Equal(t, 97.0, s.OxygenLevel)
	assert.Equal(t, 36.8, s.Temperature)
	assert.Equal(t, 55.0, s.Humidity)
	assert.Equal(t, Vector3{X: 0.1, Y: -0.2, Z: 9.8}, s.Gyroscope)
	assert.Equal(t, h.now, s.UpdatedAt)

	_, total := h.engine.Counts()
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, h.sender.Count())
}

func TestRouter_MalformedSensorDataCoercedToZero(t *testing.T) {
	h := newHarness(t)

	h.router.Handle(event(EventSensorData, `{"bpm":"NaN","spo2":null,"temperature":"36.5","x":{"nested":1}}`))
	s := h.display.Snapshot().Sensors
	assert.Equal(t, 0.0, s.HeartRate)
	assert.Equal(t, 0.0, s.OxygenLevel)
	assert.Equal(t, 36.5, s.Temperature)
	assert.Equal(t, 0.0, s.Humidity)
	assert.Equal(t, 0.0, s.Gyroscope.X)

	h.router.Handle(event(EventSensorData, `not json`))
	assert.Equal(t, SensorReading{UpdatedAt: h.now}, h.display.Snapshot().Sensors)
}

func TestRouter_BedPositionDefaults(t *testing.T) {
	h := newHarness(t)

	h.router.Handle(event(EventBedPosition, `{"x":5,"stable":false}`))
	b := h.display.Snapshot().Bed
	assert.Equal(t, "Neutral", b.Label)
	assert.Equal(t, "Flat, centered position", b.Description)
	assert.Equal(t, 5.0, b.Angles.X)
	assert.False(t, b.Stable)

	h.router.Handle(event(EventBedPosition, `{"label":"Motion","description":"rock for 5 min"}`))
	b = h.display.Snapshot().Bed
	assert.Equal(t, "Motion", b.Label)
	assert.True(t, b.Stable)
}

func TestRouter_EmergencyPayloadShapes(t *testing.T) {
	h := newHarness(t)

	h.router.Handle(event(EventEmergency, `"SpO₂ dropped below 88%"`))
	h.router.Handle(event(EventEmergency, `{"message":"Baby calm, heartbeat stopped.","severity":"info"}`))
	// null falls back to the default text
	h.router.Handle(event(EventEmergency, `null`))
	h.router.Handle(event(EventEmergency, `{"severity":"warning"}`))

	msg, sev := DecodeEmergency(json.RawMessage(`null`))
	assert.Equal(t, "Emergency alert", msg)
	assert.Empty(t, sev)

	alerts := h.engine.ListAlerts()
	require.Len(t, alerts, 3)
	descriptions := []string{alerts[0].Description, alerts[1].Description, alerts[2].Description}
	assert.ElementsMatch(t, []string{"SpO₂ dropped below 88%", "Baby calm, heartbeat stopped.", "Emergency alert"}, descriptions)
	for _, a := range alerts {
		assert.Equal(t, types.KindEmergency, a.Kind)
	}

	adv := h.display.Snapshot().Advisory
	require.NotNil(t, adv)
	assert.Equal(t, "Crying Detected", adv.Title)
	assert.Equal(t, "danger", adv.Tone)

	h.now = h.now.Add(AdvisoryTTL)
	assert.Nil(t, h.display.Snapshot().Advisory)
}

func TestRouter_RepeatedEmergencyTextIsDeduped(t *testing.T) {
	h := newHarness(t)

	h.router.Handle(event(EventEmergency, `"Apnea event detected"`))
	h.now = h.now.Add(time.Hour)
	h.router.Handle(event(EventEmergency, `"Apnea event detected"`))

	_, total := h.engine.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, h.sender.Count())
}

func TestRouter_CryingIntensity(t *testing.T) {
	h := newHarness(t)

	h.router.Handle(event(EventCrying, `40`))
	assert.Equal(t, 40.0, h.display.Snapshot().CryingIntensity)

	h.router.Handle(event(EventCrying, `{"intensity":"88"}`))
	assert.Equal(t, 88.0, h.display.Snapshot().CryingIntensity)

	h.router.Handle(event(EventCrying, `"loud"`))
	assert.Equal(t, 0.0, h.display.Snapshot().CryingIntensity)

	alerts := h.engine.ListAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, types.KindWarning, alerts[0].Kind)
	assert.Equal(t, "High intensity crying detected (88%)", alerts[0].Description)
}

func TestRouter_DisconnectDropsEventsKeepsState(t *testing.T) {
	h := newHarness(t)

	var transitions []bool
	h.router.OnConnectionChange(func(c bool) { transitions = append(transitions, c) })

	h.router.Handle(event(EventEmergency, `"Heart rate exceeded safe range"`))
	h.router.SetConnected(false)
	h.router.SetConnected(false)
	h.router.Handle(event(EventEmergency, `"Temperature out of range"`))

	_, total := h.engine.Counts()
	assert.Equal(t, 1, total)
	handled, dropped := h.router.Stats()
	assert.Equal(t, int64(1), handled)
	assert.Equal(t, int64(1), dropped)

	h.router.SetConnected(true)
	h.router.Handle(event(EventEmergency, `"Heart rate exceeded safe range"`))
	h.router.Handle(event(EventEmergency, `"Temperature out of range"`))

	_, total = h.engine.Counts()
	assert.Equal(t, 2, total, "dedup state survives reconnect")
	assert.Equal(t, []bool{false, true}, transitions)
}

func TestRouter_InjectBypassesConnectionState(t *testing.T) {
	h := newHarness(t)
	h.router.SetConnected(false)

	h.router.Inject(event(EventEmergency, `"Bed instability detected"`))
	_, total := h.engine.Counts()
	assert.Equal(t, 1, total)
}

func TestRouter_SweepsAfterEachEvent(t *testing.T) {
	h := newHarness(t)

	h.engine.Insert(types.KindWarning, "Manual", "check bed")
	assert.Equal(t, 0, h.sender.Count())

	h.router.Handle(event(EventSensorData, `{"bpm":150}`))
	assert.Equal(t, 1, h.sender.Count())
}

func TestRouter_UnknownEventIgnored(t *testing.T) {
	h := newHarness(t)
	h.router.Handle(event("camera_frame", `{"image":"..."}`))

	handled, _ := h.router.Stats()
	assert.Equal(t, int64(0), handled)
}
