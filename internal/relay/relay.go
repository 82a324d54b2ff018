// Package relay fronts the Alertzy push provider. It accepts the pipeline's
// JSON pushes, attaches the account key from the environment and forwards
// them as a form post, so the key never leaves this process.
package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nicuwatch/nicuwatch/internal/config"
	"github.com/rs/zerolog"
)

// DefaultPriority is used when a push omits its priority.
const DefaultPriority = 1

// Handler serves /api/alertzy and /api/health
type Handler struct {
	client      *resty.Client
	upstreamURL string
	keyEnv      string
	listen      string
	logger      zerolog.Logger
	lookupEnv   func(string) string
}

type pushRequest struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority *int   `json:"priority"`
	Group    string `json:"group"`
}

type upstreamReply struct {
	Response string `json:"response"`
}

// NewHandler creates a relay handler from cfg
func NewHandler(cfg config.RelayConfig, logger zerolog.Logger) *Handler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handler{
		client:      resty.New().SetTimeout(timeout),
		upstreamURL: cfg.UpstreamURL,
		keyEnv:      cfg.AccountKeyEnv,
		listen:      cfg.Listen,
		logger:      logger.With().Str("component", "relay").Logger(),
		lookupEnv:   os.Getenv,
	}
}

// Routes returns the relay's HTTP routes
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("POST /api/alertzy", h.handleAlertzy)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"port":   h.listen,
		"hasKey": h.lookupEnv(h.keyEnv) != "",
	})
}

func (h *Handler) handleAlertzy(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if r.Body != nil {
		// an empty or malformed body forwards a push with only the defaults
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	priority := DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	form := map[string]string{
		"accountKey": h.lookupEnv(h.keyEnv),
		"priority":   strconv.Itoa(priority),
	}
	if req.Title != "" {
		form["title"] = req.Title
	}
	if req.Message != "" {
		form["message"] = req.Message
	}
	if req.Group != "" {
		form["group"] = req.Group
	}

	resp, err := h.client.R().
		SetContext(r.Context()).
		SetFormData(form).
		Post(h.upstreamURL)
	if err != nil {
		h.logger.Error().Err(err).Str("title", req.Title).Msg("Upstream push failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":    false,
			"error": fmt.Sprintf("upstream request: %v", err),
		})
		return
	}

	data := json.RawMessage(`{}`)
	if json.Valid(resp.Body()) && len(resp.Body()) > 0 {
		data = resp.Body()
	}
	var reply upstreamReply
	_ = json.Unmarshal(data, &reply)

	if !resp.IsSuccess() || reply.Response == "fail" {
		h.logger.Warn().
			Int("status", resp.StatusCode()).
			RawJSON("reply", data).
			Str("title", req.Title).
			Msg("Upstream rejected push")
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"ok":    false,
			"error": data,
		})
		return
	}

	h.logger.Debug().Str("title", req.Title).Str("group", req.Group).Msg("Push relayed")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"data": data,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
