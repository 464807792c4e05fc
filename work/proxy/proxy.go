package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"streamhub/work/buffer"
	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/middleware"
	"streamhub/work/utils"
)

// DefaultPrefix is where the proxy endpoints are mounted.
const DefaultPrefix = "/proxy"

// Proxy relays HLS manifests, media segments and decryption keys from third-party
// origins. Manifests are rewritten so every reference they contain comes back through
// the proxy; segments and keys are relayed byte for byte.
type Proxy struct {
	Config  *config.Config
	Client  *client.Client
	Buffers *buffer.BufferPool
	Prefix  string
}

// New creates a Proxy mounted at DefaultPrefix.
func New(cfg *config.Config, c *client.Client, buffers *buffer.BufferPool) *Proxy {
	if buffers == nil {
		buffers = buffer.NewBufferPool(buffer.DefaultChunkSize)
	}
	return &Proxy{
		Config:  cfg,
		Client:  c,
		Buffers: buffers,
		Prefix:  DefaultPrefix,
	}
}

// State is the lifecycle position of one proxy request. Requests are never retried;
// players own retry and backoff.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateRewriting
	StateStreaming
	StateCompleted
	StateAborted
	StateUpstreamError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateRewriting:
		return "rewriting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateUpstreamError:
		return "upstream_error"
	default:
		return "unknown"
	}
}

// terminal reports whether s ends a request.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateUpstreamError
}

// tracker follows one request through its states for logging and metrics.
type tracker struct {
	kind   string
	target string
	state  State
	start  time.Time
	bytes  int64
}

func (p *Proxy) track(kind, target string) *tracker {
	return &tracker{kind: kind, target: utils.LogURL(p.Config, target), state: StateIdle, start: time.Now()}
}

// to moves the request to s. Transitions out of a terminal state are ignored.
func (t *tracker) to(s State) {
	if t.state.terminal() {
		return
	}
	logger.Debug("{proxy/proxy - to} %s %s: %s -> %s", t.kind, t.target, t.state, s)
	t.state = s
	if s.terminal() {
		metrics.ProxyRequests.WithLabelValues(t.kind, s.String()).Inc()
		metrics.BytesTransferred.WithLabelValues(t.kind).Add(float64(t.bytes))
		logger.Debug("{proxy/proxy - to} %s %s finished as %s after %v, %d bytes", t.kind, t.target, s, time.Since(t.start).Round(time.Millisecond), t.bytes)
	}
}

// errorBody is the machine-readable failure players receive.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// writeError writes a JSON error with permissive CORS so cross-origin players can read it.
func writeError(w http.ResponseWriter, httpStatus int, code, message string, status int) {
	middleware.SetCORSHeaders(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(errorBody{Error: code, Message: message, Status: status})
}

// invalidRequest answers a request with a missing or unusable url parameter.
func invalidRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "invalid_request", message, http.StatusBadRequest)
}

// fail maps a fetch error onto the wire taxonomy and finishes the tracker. Client
// cancellation writes nothing; nobody is listening.
func (p *Proxy) fail(w http.ResponseWriter, t *tracker, err error) {
	var statusErr *client.StatusError

	switch {
	case errors.Is(err, context.Canceled):
		t.to(StateAborted)
	case errors.As(err, &statusErr):
		t.to(StateUpstreamError)
		logger.Warn("{proxy/proxy - fail} %s %s: upstream status %d", t.kind, t.target, statusErr.StatusCode)
		writeError(w, http.StatusInternalServerError, "upstream_error", statusErr.Error(), statusErr.StatusCode)
	case client.IsTimeout(err):
		t.to(StateUpstreamError)
		logger.Warn("{proxy/proxy - fail} %s %s: %v", t.kind, t.target, err)
		writeError(w, http.StatusGatewayTimeout, "upstream_timeout", "upstream did not respond in time", http.StatusGatewayTimeout)
	case errors.Is(err, client.ErrSourceMalformedResponse):
		t.to(StateUpstreamError)
		logger.Warn("{proxy/proxy - fail} %s %s: %v", t.kind, t.target, err)
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error(), http.StatusBadGateway)
	default:
		t.to(StateUpstreamError)
		logger.Error("{proxy/proxy - fail} %s %s: %v", t.kind, t.target, err)
		writeError(w, http.StatusInternalServerError, "upstream_error", err.Error(), http.StatusInternalServerError)
	}
}

// targetURL extracts and validates the url query parameter.
func targetURL(r *http.Request) (string, bool) {
	target := r.URL.Query().Get("url")
	if target == "" || !utils.IsHTTPURL(target) {
		return "", false
	}
	return target, true
}

// preflight answers OPTIONS requests. It reports whether the request was handled.
func preflight(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	middleware.SetCORSHeaders(w.Header())
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
	return true
}

// originRequest builds the upstream request for target with Origin and Referer set to
// the target's own origin; many media hosts reject requests without them.
func (p *Proxy) originRequest(target string) client.Request {
	origin := utils.OriginOf(target)
	req := client.Request{
		Kind:   client.KindMedia,
		URL:    target,
		Origin: origin,
	}
	if origin != "" {
		req.Referer = origin + "/"
	}
	return req
}
