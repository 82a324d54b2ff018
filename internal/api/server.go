package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nicuwatch/nicuwatch/internal/logging"
	"github.com/nicuwatch/nicuwatch/internal/pipeline"
	"github.com/nicuwatch/nicuwatch/internal/router"
	"github.com/nicuwatch/nicuwatch/internal/types"
	"github.com/nicuwatch/nicuwatch/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const defaultLogLimit = 200

// Server provides the HTTP consumer API
type Server struct {
	units     map[string]*pipeline.Pipeline
	order     []string
	logger    zerolog.Logger
	port      string
	logBuffer *logging.Buffer
	httpSrv   *http.Server
}

// NewServer creates a new API server for the given units
func NewServer(units []*pipeline.Pipeline, logger zerolog.Logger, port string) *Server {
	s := &Server{
		units:  make(map[string]*pipeline.Pipeline, len(units)),
		logger: logger.With().Str("component", "api").Logger(),
		port:   port,
	}
	for _, p := range units {
		s.units[p.Name()] = p
		s.order = append(s.order, p.Name())
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetLogBuffer sets the buffer served by /api/logs
func (s *Server) SetLogBuffer(lb *logging.Buffer) {
	s.logBuffer = lb
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/units", s.handleUnits)
	mux.HandleFunc("GET /api/units/{unit}/alerts", s.withUnit(s.handleListAlerts))
	mux.HandleFunc("POST /api/units/{unit}/alerts", s.withUnit(s.handleCreateAlert))
	mux.HandleFunc("GET /api/units/{unit}/alerts/top", s.withUnit(s.handleTopAlert))
	mux.HandleFunc("POST /api/units/{unit}/alerts/ack-all", s.withUnit(s.handleAckAll))
	mux.HandleFunc("POST /api/units/{unit}/alerts/clear-active", s.withUnit(s.handleClearActive))
	mux.HandleFunc("GET /api/units/{unit}/alerts/{id}", s.withUnit(s.handleGetAlert))
	mux.HandleFunc("POST /api/units/{unit}/alerts/{id}/ack", s.withUnit(s.handleAckAlert))
	mux.HandleFunc("DELETE /api/units/{unit}/alerts/{id}", s.withUnit(s.handleDismissAlert))
	mux.HandleFunc("GET /api/units/{unit}/telemetry", s.withUnit(s.handleTelemetry))
	mux.HandleFunc("POST /api/units/{unit}/events", s.withUnit(s.handleEvent))

	return mux
}

// Start listens on the configured port and serves until Shutdown.
func (s *Server) Start() error {
	addr := ":" + s.port
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves the API on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().
		Str("address", ln.Addr().String()).
		Msg("Starting API server")

	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

type unitHandler func(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline)

func (s *Server) withUnit(h unitHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.units[r.PathValue("unit")]
		if !ok {
			http.Error(w, "Unit not found", http.StatusNotFound)
			return
		}
		h(w, r, p)
	}
}

// handleHealth returns service health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus returns build info and a per-unit summary
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	units := make([]pipeline.Status, 0, len(s.order))
	active := 0
	for _, name := range s.order {
		st := s.units[name].Status()
		active += st.ActiveAlerts
		units = append(units, st)
	}

	info := version.Get()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_alerts": active,
		"time":          time.Now().UTC().Format(time.RFC3339),
		"uptime":        info.Uptime,
		"version":       info.Version,
		"commit":        info.Commit,
		"build_date":    info.BuildDate,
		"units":         units,
	})
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	units := make([]pipeline.Status, 0, len(s.order))
	for _, name := range s.order {
		units = append(units, s.units[name].Status())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"units": units,
		"count": len(units),
	})
}

// handleLogs returns recent log entries, ?limit=N&level=warn
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries := []logging.Entry{}
	if s.logBuffer != nil {
		entries = s.logBuffer.Recent(limit, r.URL.Query().Get("level"))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	alerts := p.Alerts().ListAlerts()
	active, total := p.Alerts().Counts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"active": active,
		"total":  total,
	})
}

func (s *Server) handleTopAlert(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	top, ok := p.Alerts().TopActiveAlert()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"alert": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alert": top})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	alert, ok := p.Alerts().GetAlert(r.PathValue("id"))
	if !ok {
		http.Error(w, "Alert not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type createAlertRequest struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	kind, ok := types.ParseKind(req.Kind)
	if !ok {
		http.Error(w, "kind must be 'emergency', 'warning' or 'info'", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	alert := p.InsertAlert(kind, req.Title, req.Description)
	s.logger.Info().
		Str("unit", p.Name()).
		Str("alert_id", alert.ID).
		Str("kind", string(kind)).
		Msg("Manual alert inserted")
	writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	id := r.PathValue("id")
	if _, ok := p.Alerts().GetAlert(id); !ok {
		http.Error(w, "Alert not found", http.StatusNotFound)
		return
	}
	// acknowledging twice is a no-op, not an error
	p.Alerts().Acknowledge(id)
	alert, _ := p.Alerts().GetAlert(id)
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	if !p.Alerts().Dismiss(r.PathValue("id")) {
		http.Error(w, "Alert not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAckAll(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	n := p.Alerts().AcknowledgeAll()
	writeJSON(w, http.StatusOK, map[string]int{"acknowledged": n})
}

func (s *Server) handleClearActive(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	n := p.Alerts().ClearActive()
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	st := p.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"telemetry":    p.Telemetry(),
		"connected":    st.Connected,
		"crying_state": st.CryingState,
		"source":       st.Health,
	})
}

var knownEvents = map[string]bool{
	router.EventSensorData:  true,
	router.EventBedPosition: true,
	router.EventEmergency:   true,
	router.EventCrying:      true,
}

// handleEvent delivers a manual trigger to the unit's router
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	var ev router.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if !knownEvents[ev.Name] {
		http.Error(w, "Unknown event", http.StatusBadRequest)
		return
	}

	p.Trigger(ev)
	s.logger.Debug().Str("unit", p.Name()).Str("event", ev.Name).Msg("Manual event triggered")

	active, total := p.Alerts().Counts()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"event":  ev.Name,
		"active": active,
		"total":  total,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
