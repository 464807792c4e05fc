package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"streamhub/work/logger"
	"streamhub/work/middleware"
	"streamhub/work/search"
)

// errorResponse is the JSON error body of the API endpoints.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("{handlers - writeJSON} failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// parseQuery reads q plus the adult, nofilter and nocache switches.
func parseQuery(r *http.Request) search.Query {
	values := r.URL.Query()
	return search.Query{
		Text:          strings.TrimSpace(values.Get("q")),
		IncludeAdult:  flag(values.Get("adult")),
		DisableFilter: flag(values.Get("nofilter")),
		NoCache:       flag(values.Get("nocache")),
	}
}

func flag(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// HandleSearch serves GET /search?q= with the merged result set.
func HandleSearch(agg *search.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := parseQuery(r)
		if q.Text == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "missing q parameter")
			return
		}

		result, err := agg.Search(r.Context(), q)
		if err != nil {
			logger.Error("{handlers - HandleSearch} search for %q failed: %v", q.Text, err)
			writeError(w, http.StatusInternalServerError, "search_failed", err.Error())
			return
		}
		if r.Context().Err() != nil {
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleSearchStream serves GET /search/stream?q= as Server-Sent Events, one
// "data: <json>" message per event.
func HandleSearchStream(agg *search.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := parseQuery(r)
		if q.Text == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "missing q parameter")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot flush")
			return
		}

		started := false
		sink := search.NewSink(func(ev search.Event) error {
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if !started {
				h := w.Header()
				h.Set("Content-Type", "text/event-stream")
				h.Set("Cache-Control", "no-cache")
				h.Set("Connection", "keep-alive")
				h.Set("X-Accel-Buffering", "no")
				middleware.SetCORSHeaders(h)
				w.WriteHeader(http.StatusOK)
				started = true
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})

		// stop writing as soon as the client is gone; the search itself is cancelled
		// through the same request context
		done := make(chan struct{})
		go func() {
			select {
			case <-r.Context().Done():
				sink.Close()
			case <-done:
			}
		}()

		err := agg.Stream(r.Context(), q, sink)
		close(done)
		sink.Close()

		if err != nil && !started && r.Context().Err() == nil {
			logger.Error("{handlers - HandleSearchStream} stream for %q failed: %v", q.Text, err)
			writeError(w, http.StatusInternalServerError, "search_failed", err.Error())
		}
	}
}

// HandleClearSearchCache serves DELETE /search/cache.
func HandleClearSearchCache(agg *search.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agg.ClearCache()
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleHealth serves GET /healthz.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
