package alerter

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nicuwatch/nicuwatch/internal/metrics"
	"github.com/nicuwatch/nicuwatch/internal/types"
	"github.com/rs/zerolog"
)

// MaxAlerts caps the alert collection; the oldest are discarded first.
const MaxAlerts = 200

const (
	TitleMedicalAlert = "Medical Alert"
	TitleCrying       = "Crying Detected"
)

// Sender hands a notification to the push dispatcher.
type Sender interface {
	Send(title, message string, priority int, group string) bool
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Unit          string
	Group         string
	SeenCacheSize int
	Now           func() time.Time
	NewID         func() string
}

// Engine owns the alert collection of one monitored unit and is its only mutator.
//
// Every created alert is queued in an outbox. Pushes only happen by taking
// alerts off the outbox under the push-once rule: emergency and warning
// creation push the head of their batch straight away, Sweep pushes the rest.
type Engine struct {
	sender Sender
	logger zerolog.Logger
	unit   string
	group  string
	now    func() time.Time
	newID  func() string

	mu     sync.Mutex
	alerts []types.Alert // CreatedAt descending
	seen   *SeenSet      // emergency message texts
	pushed *SeenSet      // alert IDs handed to the sender
	outbox []string
}

// NewEngine creates a new alert engine
func NewEngine(sender Sender, opts Options, logger zerolog.Logger) (*Engine, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	seen, err := NewSeenSet(opts.SeenCacheSize)
	if err != nil {
		return nil, err
	}
	pushed, err := NewSeenSet(opts.SeenCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		sender: sender,
		logger: logger.With().Str("component", "alerter").Logger(),
		unit:   opts.Unit,
		group:  opts.Group,
		now:    opts.Now,
		newID:  opts.NewID,
		seen:   seen,
		pushed: pushed,
	}, nil
}

// CreateEmergencyAlerts creates one emergency alert per message never seen
// before and pushes the first of them. It returns the new alerts.
func (e *Engine) CreateEmergencyAlerts(messages []string) []types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var created []types.Alert
	for _, msg := range messages {
		if !e.seen.Add(emergencyKey(msg)) {
			e.logger.Debug().Str("message", msg).Msg("Emergency message already seen, skipping")
			continue
		}
		created = append(created, e.newAlert(types.KindEmergency, TitleMedicalAlert, msg, now))
	}
	if len(created) == 0 {
		return nil
	}

	e.insertLocked(created)
	e.dispatchLocked(created[0])
	return created
}

// CreateWarningAlert creates a crying warning and pushes it.
func (e *Engine) CreateWarningAlert(description string) types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert := e.newAlert(types.KindWarning, TitleCrying, description, e.now())
	e.insertLocked([]types.Alert{alert})
	e.dispatchLocked(alert)
	return alert
}

// CreateInfoAlert creates an informational alert. It is not pushed until the next Sweep.
func (e *Engine) CreateInfoAlert(title, description string) types.Alert {
	return e.Insert(types.KindInfo, title, description)
}

// Insert adds an alert through a side channel (manual or simulated entry).
// It is pushed by the next Sweep.
func (e *Engine) Insert(kind types.Kind, title, description string) types.Alert {
	return e.InsertAt(kind, title, description, e.now())
}

// InsertAt is Insert with an explicit creation time.
func (e *Engine) InsertAt(kind types.Kind, title, description string, createdAt time.Time) types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert := e.newAlert(kind, title, description, createdAt)
	e.insertLocked([]types.Alert{alert})
	return alert
}

// Sweep pushes every queued alert that is still present, unacknowledged and
// not yet pushed. It returns the number of pushes requested.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, id := range e.outbox {
		if e.pushed.Contains(id) {
			continue
		}
		idx := e.indexLocked(id)
		if idx < 0 || e.alerts[idx].Acknowledged {
			continue
		}
		e.dispatchLocked(e.alerts[idx])
		n++
	}
	e.outbox = e.outbox[:0]
	return n
}

// Acknowledge marks an alert acknowledged. It reports whether anything changed.
func (e *Engine) Acknowledge(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 || e.alerts[idx].Acknowledged {
		return false
	}
	e.alerts[idx].Acknowledged = true
	e.logger.Info().Str("alert_id", id).Msg("Alert acknowledged")
	return true
}

// Dismiss removes an alert permanently. It reports whether anything was removed.
func (e *Engine) Dismiss(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return false
	}
	e.alerts = append(e.alerts[:idx], e.alerts[idx+1:]...)
	e.logger.Info().Str("alert_id", id).Msg("Alert dismissed")
	return true
}

// AcknowledgeAll acknowledges every alert and returns how many changed.
func (e *Engine) AcknowledgeAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for i := range e.alerts {
		if !e.alerts[i].Acknowledged {
			e.alerts[i].Acknowledged = true
			n++
		}
	}
	return n
}

// ClearActive removes every unacknowledged alert and returns how many were removed.
func (e *Engine) ClearActive() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.alerts[:0]
	for _, a := range e.alerts {
		if a.Acknowledged {
			kept = append(kept, a)
		}
	}
	n := len(e.alerts) - len(kept)
	e.alerts = kept
	return n
}

// TopActiveAlert returns the most severe unacknowledged alert, the newest on ties.
func (e *Engine) TopActiveAlert() (types.Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var top types.Alert
	found := false
	for _, a := range e.alerts {
		if a.Acknowledged {
			continue
		}
		if !found {
			top, found = a, true
			continue
		}
		rank, topRank := types.SeverityRank(a.Kind), types.SeverityRank(top.Kind)
		if rank > topRank || (rank == topRank && a.CreatedAt.After(top.CreatedAt)) {
			top = a
		}
	}
	return top, found
}

// ListAlerts returns a copy of the alerts, newest first.
func (e *Engine) ListAlerts() []types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.Alert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// GetAlert returns the alert with the given id.
func (e *Engine) GetAlert(id string) (types.Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return types.Alert{}, false
	}
	return e.alerts[idx], true
}

// Counts returns the number of unacknowledged alerts and the total.
func (e *Engine) Counts() (active, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range e.alerts {
		if !a.Acknowledged {
			active++
		}
	}
	return active, len(e.alerts)
}

func (e *Engine) newAlert(kind types.Kind, title, description string, now time.Time) types.Alert {
	return types.Alert{
		ID:          e.newID(),
		Kind:        kind,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		Priority:    types.PriorityFor(kind),
	}
}

// insertLocked prepends created, restores CreatedAt-descending order and
// truncates to MaxAlerts.
func (e *Engine) insertLocked(created []types.Alert) {
	next := make([]types.Alert, 0, len(created)+len(e.alerts))
	next = append(next, created...)
	next = append(next, e.alerts...)
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].CreatedAt.After(next[j].CreatedAt)
	})
	if len(next) > MaxAlerts {
		e.logger.Debug().Int("pruned", len(next)-MaxAlerts).Msg("Pruning oldest alerts")
		next = next[:MaxAlerts]
	}
	e.alerts = next

	for _, a := range created {
		e.outbox = append(e.outbox, a.ID)
		metrics.AlertsCreated.WithLabelValues(e.unit, string(a.Kind)).Inc()
		e.logger.Info().
			Str("alert_id", a.ID).
			Str("kind", string(a.Kind)).
			Str("title", a.Title).
			Str("description", a.Description).
			Msg("Alert created")
	}
}

// dispatchLocked is the only place alerts reach the sender.
func (e *Engine) dispatchLocked(a types.Alert) {
	if !e.pushed.Add(a.ID) {
		return
	}
	sent := e.sender.Send(a.Title, a.Description, types.PushPriority(a.Kind), e.group)
	e.logger.Debug().
		Str("alert_id", a.ID).
		Bool("sent", sent).
		Msg("Alert handed to dispatcher")
}

func (e *Engine) indexLocked(id string) int {
	for i := range e.alerts {
		if e.alerts[i].ID == id {
			return i
		}
	}
	return -1
}
