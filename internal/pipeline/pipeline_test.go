package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nicuwatch/nicuwatch/internal/collector"
	"github.com/nicuwatch/nicuwatch/internal/config"
	"github.com/nicuwatch/nicuwatch/internal/notifier"
	"github.com/nicuwatch/nicuwatch/internal/router"
	"github.com/nicuwatch/nicuwatch/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualSource hands its sink to the test and blocks until cancelled.
type manualSource struct {
	sinks chan collector.Sink
}

func newManualSource() *manualSource {
	return &manualSource{sinks: make(chan collector.Sink, 1)}
}

func (s *manualSource) Name() string { return "manual" }

func (s *manualSource) Health() collector.Health { return collector.Health{Source: "manual"} }

func (s *manualSource) Run(ctx context.Context, sink collector.Sink) error {
	s.sinks <- sink
	<-ctx.Done()
	sink.SetConnected(false)
	return nil
}

type recordingPusher struct {
	mu     sync.Mutex
	pushes []notifier.Push
}

func (p *recordingPusher) Push(_ context.Context, push notifier.Push) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push)
	return nil
}

func (p *recordingPusher) Pushes() []notifier.Push {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notifier.Push(nil), p.pushes...)
}

func newTestPipeline(t *testing.T) (*Pipeline, *manualSource, *recordingPusher) {
	t.Helper()
	src := newManualSource()
	pusher := &recordingPusher{}
	p, err := New("nicu-1",
		config.UnitConfig{Description: "Incubator 1", Group: "NICU-1"},
		config.PushConfig{},
		pusher, zerolog.Nop(), WithSource(src))
	require.NoError(t, err)
	return p, src, pusher
}

func emergency(t *testing.T, msg string) router.Event {
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return router.Event{Name: router.EventEmergency, Payload: data}
}

func stop(t *testing.T, p *Pipeline) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
}

func TestPipeline_StartBootstrapsAcknowledgedAlert(t *testing.T) {
	p, src, pusher := newTestPipeline(t)
	require.NoError(t, p.Start(context.Background()))
	<-src.sinks

	alerts := p.Alerts().ListAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "System Online", alerts[0].Title)
	assert.Equal(t, types.KindInfo, alerts[0].Kind)
	assert.True(t, alerts[0].Acknowledged)

	assert.Error(t, p.Start(context.Background()))

	stop(t, p)
	assert.Empty(t, pusher.Pushes(), "acknowledged bootstrap alert is never pushed")
}

func TestPipeline_EventsFlowToPushes(t *testing.T) {
	p, src, pusher := newTestPipeline(t)
	require.NoError(t, p.Start(context.Background()))
	sink := <-src.sinks

	// dropped while disconnected
	sink.Handle(emergency(t, "Apnea event detected"))
	assert.Equal(t, 1, len(p.Alerts().ListAlerts()))

	sink.SetConnected(true)
	assert.True(t, p.Status().Connected)

	sink.Handle(emergency(t, "Apnea event detected"))
	sink.Handle(emergency(t, "Apnea event detected"))
	sink.Handle(router.Event{Name: router.EventCrying, Payload: json.RawMessage(`{"intensity":88}`)})

	stop(t, p)

	pushes := pusher.Pushes()
	require.Len(t, pushes, 2)
	titles := []string{pushes[0].Title, pushes[1].Title}
	assert.ElementsMatch(t, []string{"Medical Alert", "Crying Detected"}, titles)
	for _, push := range pushes {
		assert.Equal(t, "NICU-1", push.Group)
		assert.Equal(t, 2, push.Priority)
	}

	status := p.Status()
	assert.False(t, status.Connected)
	assert.Equal(t, 2, status.ActiveAlerts)
	assert.Equal(t, 3, status.TotalAlerts)
	assert.Equal(t, int64(3), status.Handled)
	assert.Equal(t, int64(1), status.Dropped)
	assert.Equal(t, "manual", status.Source)
}

func TestPipeline_TriggerBypassesConnection(t *testing.T) {
	p, src, pusher := newTestPipeline(t)
	require.NoError(t, p.Start(context.Background()))
	<-src.sinks

	p.Trigger(emergency(t, "Bed instability detected"))
	top, ok := p.Alerts().TopActiveAlert()
	require.True(t, ok)
	assert.Equal(t, "Bed instability detected", top.Description)

	stop(t, p)
	require.Len(t, pusher.Pushes(), 1)
}

func TestPipeline_InsertAlertIsPushedOnce(t *testing.T) {
	p, src, pusher := newTestPipeline(t)
	require.NoError(t, p.Start(context.Background()))
	<-src.sinks

	alert := p.InsertAlert(types.KindInfo, "Manual check", "Nurse round completed")
	assert.Equal(t, types.PriorityLow, alert.Priority)
	p.Alerts().Sweep()

	stop(t, p)
	pushes := pusher.Pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, "Manual check", pushes[0].Title)
	assert.Equal(t, 1, pushes[0].Priority)
}

func TestPipeline_BootstrapSortsBelowLiveAlerts(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	src := newManualSource()
	p, err := New("nicu-1", config.UnitConfig{Group: "NICU-1"}, config.PushConfig{},
		&recordingPusher{}, zerolog.Nop(), WithSource(src), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	<-src.sinks

	// same instant as startup
	p.Trigger(emergency(t, "Apnea event detected"))

	alerts := p.Alerts().ListAlerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, "Apnea event detected", alerts[0].Description)
	assert.Equal(t, "System Online", alerts[1].Title)
	assert.Equal(t, fixed.Add(-5*time.Minute), alerts[1].CreatedAt)

	stop(t, p)
}

func TestPipeline_StopBeforeStart(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	assert.NoError(t, p.Stop(context.Background()))
}

func TestPipeline_UnknownSourceType(t *testing.T) {
	_, err := New("nicu-9", config.UnitConfig{Source: config.SourceConfig{Type: "serial"}},
		config.PushConfig{}, &recordingPusher{}, zerolog.Nop())
	assert.ErrorIs(t, err, collector.ErrUnknownSource)
}

func TestPipeline_GroupDefaultsToName(t *testing.T) {
	p, err := New("nicu-2", config.UnitConfig{}, config.PushConfig{}, &recordingPusher{}, zerolog.Nop(),
		WithSource(newManualSource()))
	require.NoError(t, err)
	assert.Equal(t, "nicu-2", p.Group())
	assert.Equal(t, "nicu-2", p.Name())
}
