package proxy

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"streamhub/work/client"
	"streamhub/work/hls"
	"streamhub/work/logger"
	"streamhub/work/middleware"
)

// maxManifestSize bounds manifests read into memory for rewriting.
var maxManifestSize int64 = 8 << 20

var manifestTypes = map[string]bool{
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"audio/mpegurl":                 true,
	"audio/x-mpegurl":               true,
}

// isManifestType reports whether a Content-Type header names an HLS playlist.
func isManifestType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return manifestTypes[strings.ToLower(mt)]
}

// ServeManifest handles GET /proxy/m3u8?url=. Playlists are fetched whole, rewritten and
// served uncached; anything else the origin returns is streamed through untouched.
func (p *Proxy) ServeManifest(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}

	target, ok := targetURL(r)
	if !ok {
		invalidRequest(w, "missing or invalid url parameter")
		return
	}

	t := p.track("manifest", target)
	t.to(StateFetching)

	req := p.originRequest(target)
	req.Timeout = p.Config.ManifestTimeout
	resp, err := p.Client.Fetch(r.Context(), req)
	if err != nil {
		p.fail(w, t, err)
		return
	}
	defer resp.Body.Close()

	body := bufio.NewReader(resp.Body)
	isManifest := isManifestType(resp.Header.Get("Content-Type"))
	if !isManifest && strings.HasSuffix(strings.ToLower(resp.Request.URL.Path), ".m3u8") {
		// some origins label playlists as text/plain or octet-stream
		head, _ := body.Peek(len("#EXTM3U"))
		isManifest = string(head) == "#EXTM3U"
	}

	if !isManifest {
		logger.Debug("{proxy/manifest - ServeManifest} %s is %q, passing through", t.target, resp.Header.Get("Content-Type"))
		copyHeaders(w.Header(), resp.Header, "Content-Type", "Content-Length")
		middleware.SetCORSHeaders(w.Header())
		w.Header().Set("Cache-Control", "no-cache")
		p.relay(w, r, body, resp.StatusCode, t)
		return
	}

	t.to(StateRewriting)
	raw, err := io.ReadAll(io.LimitReader(body, maxManifestSize+1))
	if err != nil {
		p.fail(w, t, classifyBodyError(r, err))
		return
	}
	if int64(len(raw)) > maxManifestSize {
		p.fail(w, t, fmt.Errorf("%w: manifest larger than %d bytes", client.ErrSourceMalformedResponse, maxManifestSize))
		return
	}

	rewritten := hls.Rewrite(string(raw), hls.BaseURL(resp.Request.URL), hls.EndpointsFor(r, p.Prefix))

	middleware.SetCORSHeaders(w.Header())
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	n, err := io.WriteString(w, rewritten)
	t.bytes = int64(n)
	if err != nil {
		t.to(StateAborted)
		return
	}

	t.to(StateCompleted)
}
