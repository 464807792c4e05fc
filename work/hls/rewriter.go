package hls

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/grafana/regexp"
)

// uriAttrRegex captures the quoted URI attribute of a tag line.
var uriAttrRegex = regexp.MustCompile(`URI="([^"]*)"`)

// Endpoints are the absolute proxy URLs rewritten references point at.
type Endpoints struct {
	Manifest string
	Segment  string
	Key      string
}

// NewEndpoints derives the three endpoints from a proxy base such as
// "https://host/proxy".
func NewEndpoints(proxyBase string) Endpoints {
	base := strings.TrimRight(proxyBase, "/")
	return Endpoints{
		Manifest: base + "/m3u8",
		Segment:  base + "/segment",
		Key:      base + "/key",
	}
}

// Wrap embeds target as the url query parameter of endpoint.
func Wrap(endpoint, target string) string {
	return endpoint + "?url=" + url.QueryEscape(target)
}

// EndpointsFor builds endpoints for the proxy mounted at prefix, as seen by the client
// of r. The host comes from X-Forwarded-Host or Host; the scheme from X-Forwarded-Proto,
// then the Referer's scheme, then https.
func EndpointsFor(r *http.Request, prefix string) Endpoints {
	host := firstValue(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}

	scheme := strings.ToLower(firstValue(r.Header.Get("X-Forwarded-Proto")))
	if scheme != "http" && scheme != "https" {
		scheme = "https"
		if ref, err := url.Parse(r.Header.Get("Referer")); err == nil && (ref.Scheme == "http" || ref.Scheme == "https") {
			scheme = ref.Scheme
		}
	}

	return NewEndpoints(scheme + "://" + host + "/" + strings.Trim(prefix, "/"))
}

func firstValue(header string) string {
	v, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(v)
}

// BaseURL returns the directory of final, the post-redirect manifest URL. Relative
// references in the manifest resolve against it.
func BaseURL(final *url.URL) *url.URL {
	base := *final
	base.RawQuery = ""
	base.Fragment = ""
	base.RawFragment = ""
	if i := strings.LastIndex(base.Path, "/"); i >= 0 {
		base.Path = base.Path[:i+1]
	} else {
		base.Path = "/"
	}
	base.RawPath = ""
	return &base
}

// state is the rewriter's position relative to a variant stream reference.
type state int

const (
	expectDirective  state = iota // next URI line is a media segment
	expectVariantURI              // previous tag was EXT-X-STREAM-INF; next URI line is a playlist
)

// target selects the endpoint a reference is routed to.
type target int

const (
	toSegment target = iota
	toKey
	toManifest
)

// tagTargets lists tags whose URI attribute is rewritten, and where it goes.
var tagTargets = map[string]target{
	"#EXT-X-MAP":                toSegment,
	"#EXT-X-PART":               toSegment,
	"#EXT-X-PRELOAD-HINT":       toSegment,
	"#EXT-X-KEY":                toKey,
	"#EXT-X-SESSION-KEY":        toKey,
	"#EXT-X-MEDIA":              toManifest,
	"#EXT-X-I-FRAME-STREAM-INF": toManifest,
	"#EXT-X-RENDITION-REPORT":   toManifest,
}

// rewriter walks manifest lines one at a time.
type rewriter struct {
	base  *url.URL
	ep    Endpoints
	state state
}

// Rewrite replaces every fetchable reference in content with a proxy URL carrying the
// absolute original. Unrecognised lines pass through unchanged. Pure and deterministic.
func Rewrite(content string, base *url.URL, ep Endpoints) string {
	rw := &rewriter{base: base, ep: ep}

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = rw.step(line)
	}
	return strings.Join(lines, "\n")
}

// step consumes one line and returns its rewritten form.
func (rw *rewriter) step(line string) string {
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == "":
		return line

	case strings.HasPrefix(trimmed, "#"):
		return rw.directive(line, trimmed)

	default:
		t := toSegment
		if rw.state == expectVariantURI {
			t = toManifest
		}
		rw.state = expectDirective

		abs, ok := rw.resolve(trimmed)
		if !ok {
			return line
		}
		return rw.wrap(t, abs)
	}
}

// directive handles tag and comment lines. Comments between a stream-info tag and its
// URI keep the pending variant state.
func (rw *rewriter) directive(line, trimmed string) string {
	tag, _, _ := strings.Cut(trimmed, ":")
	tag = strings.ToUpper(tag)

	if tag == "#EXT-X-STREAM-INF" {
		rw.state = expectVariantURI
		return line
	}

	t, ok := tagTargets[tag]
	if !ok {
		return line
	}

	return uriAttrRegex.ReplaceAllStringFunc(line, func(attr string) string {
		raw := uriAttrRegex.FindStringSubmatch(attr)[1]
		if t == toKey && isInlineKey(raw) {
			return attr
		}
		abs, ok := rw.resolve(raw)
		if !ok {
			return attr
		}
		return `URI="` + rw.wrap(t, abs) + `"`
	})
}

// isInlineKey reports key URIs that are not fetched over HTTP.
func isInlineKey(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "skd:")
}

// resolve turns ref into an absolute URL against the base.
func (rw *rewriter) resolve(ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.IsAbs() {
		return u.String(), true
	}
	if rw.base == nil {
		return "", false
	}
	return rw.base.ResolveReference(u).String(), true
}

func (rw *rewriter) wrap(t target, abs string) string {
	switch t {
	case toKey:
		return Wrap(rw.ep.Key, abs)
	case toManifest:
		return Wrap(rw.ep.Manifest, abs)
	default:
		return Wrap(rw.ep.Segment, abs)
	}
}
