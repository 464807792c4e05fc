package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"streamhub/work/client"
	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/middleware"
)

// maxKeySize bounds key bodies; AES-128 keys are 16 bytes.
const maxKeySize = 64 << 10

// ServeSegment handles GET /proxy/segment?url=. The inbound Range header is forwarded
// verbatim and the body is relayed chunk by chunk.
func (p *Proxy) ServeSegment(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}

	target, ok := targetURL(r)
	if !ok {
		invalidRequest(w, "missing or invalid url parameter")
		return
	}

	t := p.track("segment", target)
	t.to(StateFetching)

	req := p.originRequest(target)
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header = http.Header{"Range": []string{rng}}
	}

	// no overall timeout: segments may be large; the transport bounds time to first byte
	resp, err := p.Client.Fetch(r.Context(), req)
	if err != nil {
		p.fail(w, t, err)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header, "Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Last-Modified", "ETag")
	if w.Header().Get("Accept-Ranges") == "" {
		w.Header().Set("Accept-Ranges", "bytes")
	}
	middleware.SetCORSHeaders(w.Header())

	p.relay(w, r, resp.Body, resp.StatusCode, t)
}

// ServeKey handles GET /proxy/key?url=. Keys are fetched whole, never ranged, and
// marked uncacheable.
func (p *Proxy) ServeKey(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}

	target, ok := targetURL(r)
	if !ok {
		invalidRequest(w, "missing or invalid url parameter")
		return
	}

	t := p.track("key", target)
	t.to(StateFetching)

	req := p.originRequest(target)
	req.Timeout = p.Config.SegmentTimeout
	resp, err := p.Client.Fetch(r.Context(), req)
	if err != nil {
		p.fail(w, t, err)
		return
	}
	defer resp.Body.Close()

	t.to(StateStreaming)
	key, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySize))
	if err != nil {
		p.fail(w, t, classifyBodyError(r, err))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	middleware.SetCORSHeaders(w.Header())
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(key)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	n, err := w.Write(key)
	t.bytes = int64(n)
	if err != nil {
		t.to(StateAborted)
		return
	}
	t.to(StateCompleted)
}

// relay writes status and copies body to w using pooled chunks, flushing after each one.
// A client that goes away ends the relay quietly. An upstream failure after headers were
// sent aborts the response so the client sees a broken transfer instead of a short one.
func (p *Proxy) relay(w http.ResponseWriter, r *http.Request, body io.Reader, status int, t *tracker) {
	t.to(StateStreaming)
	metrics.ActiveStreams.WithLabelValues(t.kind).Inc()
	defer metrics.ActiveStreams.WithLabelValues(t.kind).Dec()

	w.WriteHeader(status)
	flusher, _ := w.(http.Flusher)

	buf := p.Buffers.Get()
	defer p.Buffers.Put(buf)
	chunk := buf.B

	for {
		n, readErr := body.Read(chunk)
		if n > 0 {
			written, writeErr := w.Write(chunk[:n])
			t.bytes += int64(written)
			if writeErr != nil {
				logger.Debug("{proxy/stream - relay} client went away from %s: %v", t.target, writeErr)
				t.to(StateAborted)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		if readErr == io.EOF {
			t.to(StateCompleted)
			return
		}
		if readErr != nil {
			if r.Context().Err() != nil {
				t.to(StateAborted)
				return
			}
			logger.Warn("{proxy/stream - relay} upstream read failed for %s after %d bytes: %v", t.target, t.bytes, readErr)
			t.to(StateUpstreamError)
			panic(http.ErrAbortHandler)
		}
	}
}

// classifyBodyError maps a failure while reading an upstream body before any response
// bytes were written.
func classifyBodyError(r *http.Request, err error) error {
	if r.Context().Err() != nil {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", client.ErrUpstreamTimeout, err)
	}
	return err
}

// copyHeaders copies the named headers from src to dst when present.
func copyHeaders(dst, src http.Header, names ...string) {
	for _, name := range names {
		if v := src.Get(name); v != "" {
			dst.Set(name, v)
		}
	}
}
