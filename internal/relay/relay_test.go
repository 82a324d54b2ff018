package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/nicuwatch/nicuwatch/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	mu     sync.Mutex
	forms  []url.Values
	status int
	body   string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	u.mu.Lock()
	u.forms = append(u.forms, r.PostForm)
	u.mu.Unlock()
	w.WriteHeader(u.status)
	w.Write([]byte(u.body))
}

func (u *upstream) Forms() []url.Values {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]url.Values(nil), u.forms...)
}

func newRelay(t *testing.T, up *upstream) http.Handler {
	t.Helper()
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	h := NewHandler(config.RelayConfig{
		Listen:        ":3001",
		UpstreamURL:   srv.URL,
		AccountKeyEnv: "ALERTZY_KEY",
	}, zerolog.Nop())
	h.lookupEnv = func(name string) string {
		if name == "ALERTZY_KEY" {
			return "secret-key"
		}
		return ""
	}
	return h.Routes()
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/alertzy", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestRelayForwardsFormWithKey(t *testing.T) {
	up := &upstream{status: http.StatusOK, body: `{"response":"success"}`}
	h := newRelay(t, up)

	rec, out := post(t, h, `{"title":"Medical Alert","message":"Apnea event detected","priority":2,"group":"NICU-1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, map[string]interface{}{"response": "success"}, out["data"])

	forms := up.Forms()
	require.Len(t, forms, 1)
	assert.Equal(t, "secret-key", forms[0].Get("accountKey"))
	assert.Equal(t, "Medical Alert", forms[0].Get("title"))
	assert.Equal(t, "Apnea event detected", forms[0].Get("message"))
	assert.Equal(t, "NICU-1", forms[0].Get("group"))
	assert.Equal(t, "2", forms[0].Get("priority"))
}

func TestRelayDefaultsPriorityAndOmitsEmptyFields(t *testing.T) {
	up := &upstream{status: http.StatusOK, body: `{"response":"success"}`}
	h := newRelay(t, up)

	rec, _ := post(t, h, `{"title":"System Notice"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	form := up.Forms()[0]
	assert.Equal(t, "1", form.Get("priority"))
	assert.NotContains(t, form, "message")
	assert.NotContains(t, form, "group")
}

func TestRelayUpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"fail response", http.StatusOK, `{"response":"fail","error":"invalid key"}`},
		{"non-2xx", http.StatusBadGateway, `bad gateway`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRelay(t, &upstream{status: tt.status, body: tt.body})
			rec, out := post(t, h, `{"title":"x"}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, out["ok"])
			assert.NotNil(t, out["error"])
		})
	}
}

func TestRelayTransportError(t *testing.T) {
	h := NewHandler(config.RelayConfig{UpstreamURL: "http://127.0.0.1:1/send", AccountKeyEnv: "ALERTZY_KEY"}, zerolog.Nop())
	rec, out := post(t, h.Routes(), `{"title":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, out["ok"])
	assert.IsType(t, "", out["error"])
}

func TestRelayHealth(t *testing.T) {
	h := newRelay(t, &upstream{status: http.StatusOK})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"port":":3001","hasKey":true}`, rec.Body.String())
}
