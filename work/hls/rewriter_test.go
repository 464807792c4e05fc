package hls

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const proxyBase = "https://proxy.example/proxy"

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRewrite(t *testing.T) {
	ep := NewEndpoints(proxyBase)

	tests := []struct {
		name  string
		base  string
		input string
		want  string
	}{
		{
			name:  "relative segment",
			base:  "https://cdn.example/path/",
			input: "seg001.ts",
			want:  proxyBase + "/segment?url=https%3A%2F%2Fcdn.example%2Fpath%2Fseg001.ts",
		},
		{
			name:  "absolute segment",
			base:  "https://cdn.example/path/",
			input: "https://other.example/a.ts?t=1",
			want:  proxyBase + "/segment?url=https%3A%2F%2Fother.example%2Fa.ts%3Ft%3D1",
		},
		{
			name:  "root relative segment",
			base:  "https://cdn.example/path/",
			input: "/live/seg.ts",
			want:  proxyBase + "/segment?url=https%3A%2F%2Fcdn.example%2Flive%2Fseg.ts",
		},
		{
			name:  "encryption key",
			base:  "https://cdn.example/path/",
			input: `#EXT-X-KEY:METHOD=AES-128,URI="key.bin",IV=0x1`,
			want:  `#EXT-X-KEY:METHOD=AES-128,URI="` + proxyBase + `/key?url=https%3A%2F%2Fcdn.example%2Fpath%2Fkey.bin",IV=0x1`,
		},
		{
			name:  "session key",
			base:  "https://cdn.example/path/",
			input: `#EXT-X-SESSION-KEY:METHOD=AES-128,URI="k"`,
			want:  `#EXT-X-SESSION-KEY:METHOD=AES-128,URI="` + proxyBase + `/key?url=https%3A%2F%2Fcdn.example%2Fpath%2Fk"`,
		},
		{
			name:  "inline keys pass through",
			base:  "https://cdn.example/path/",
			input: "#EXT-X-KEY:METHOD=SAMPLE-AES,URI=\"skd://abc\"\n#EXT-X-KEY:METHOD=AES-128,URI=\"data:text/plain;base64,AAAA\"",
			want:  "#EXT-X-KEY:METHOD=SAMPLE-AES,URI=\"skd://abc\"\n#EXT-X-KEY:METHOD=AES-128,URI=\"data:text/plain;base64,AAAA\"",
		},
		{
			name:  "init segment map",
			base:  "https://cdn.example/path/",
			input: `#EXT-X-MAP:URI="init.mp4",BYTERANGE="720@0"`,
			want:  `#EXT-X-MAP:URI="` + proxyBase + `/segment?url=https%3A%2F%2Fcdn.example%2Fpath%2Finit.mp4",BYTERANGE="720@0"`,
		},
		{
			name: "variant playlists go to the manifest endpoint",
			base: "https://cdn.example/master/",
			input: "#EXTM3U\n" +
				"#EXT-X-STREAM-INF:BANDWIDTH=1000000\n" +
				"720p/index.m3u8\n" +
				"#EXT-X-STREAM-INF:BANDWIDTH=500000\n" +
				"\n" +
				"480p/index.m3u8\n",
			want: "#EXTM3U\n" +
				"#EXT-X-STREAM-INF:BANDWIDTH=1000000\n" +
				proxyBase + "/m3u8?url=https%3A%2F%2Fcdn.example%2Fmaster%2F720p%2Findex.m3u8\n" +
				"#EXT-X-STREAM-INF:BANDWIDTH=500000\n" +
				"\n" +
				proxyBase + "/m3u8?url=https%3A%2F%2Fcdn.example%2Fmaster%2F480p%2Findex.m3u8\n",
		},
		{
			name:  "alternate renditions",
			base:  "https://cdn.example/",
			input: `#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aac",NAME="en",URI="audio/en.m3u8"`,
			want:  `#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aac",NAME="en",URI="` + proxyBase + `/m3u8?url=https%3A%2F%2Fcdn.example%2Faudio%2Fen.m3u8"`,
		},
		{
			name: "unknown tags and blanks unchanged",
			base: "https://cdn.example/",
			input: "#EXTM3U\n#EXT-X-TARGETDURATION:6\n\n# a comment\n#EXT-X-ENDLIST",
			want:  "#EXTM3U\n#EXT-X-TARGETDURATION:6\n\n# a comment\n#EXT-X-ENDLIST",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rewrite(tt.input, mustURL(t, tt.base), ep))
		})
	}
}

func TestRewriteMediaPlaylist(t *testing.T) {
	input := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXT-X-TARGETDURATION:6",
		`#EXT-X-KEY:METHOD=AES-128,URI="https://keys.example/k1"`,
		"#EXTINF:6.0,",
		"seg1.ts",
		"#EXTINF:6.0,",
		"seg2.ts",
		"#EXT-X-ENDLIST",
		"",
	}, "\n")

	out := Rewrite(input, mustURL(t, "https://cdn.example/vod/"), NewEndpoints(proxyBase))
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 10)
	assert.Equal(t, `#EXT-X-KEY:METHOD=AES-128,URI="`+proxyBase+`/key?url=https%3A%2F%2Fkeys.example%2Fk1"`, lines[3])
	assert.Equal(t, proxyBase+"/segment?url=https%3A%2F%2Fcdn.example%2Fvod%2Fseg1.ts", lines[5])
	assert.Equal(t, proxyBase+"/segment?url=https%3A%2F%2Fcdn.example%2Fvod%2Fseg2.ts", lines[7])
	assert.Equal(t, "", lines[9])
}

func TestRewriteTwiceDoesNotBreak(t *testing.T) {
	ep := NewEndpoints(proxyBase)
	base := mustURL(t, "https://cdn.example/path/")

	once := Rewrite("seg001.ts", base, ep)
	twice := Rewrite(once, base, ep)

	assert.Equal(t, proxyBase+"/segment?url="+url.QueryEscape(once), twice)
}

func TestVariantStateResetsAfterURI(t *testing.T) {
	rw := &rewriter{base: mustURL(t, "https://cdn.example/"), ep: NewEndpoints(proxyBase)}

	rw.step("#EXT-X-STREAM-INF:BANDWIDTH=1")
	assert.Equal(t, expectVariantURI, rw.state)
	rw.step("# note")
	assert.Equal(t, expectVariantURI, rw.state)

	assert.Contains(t, rw.step("v.m3u8"), "/m3u8?url=")
	assert.Equal(t, expectDirective, rw.state)
	assert.Contains(t, rw.step("s.ts"), "/segment?url=")
}

func TestBaseURL(t *testing.T) {
	tests := map[string]string{
		"https://cdn.example/path/index.m3u8?token=1": "https://cdn.example/path/",
		"https://cdn.example/index.m3u8":              "https://cdn.example/",
		"https://cdn.example":                         "https://cdn.example/",
		"https://cdn.example/a/b/":                    "https://cdn.example/a/b/",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseURL(mustURL(t, in)).String(), in)
	}
}

func TestEndpointsFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/proxy/m3u8?url=x", nil)
	r.Host = "media.example:8080"
	assert.Equal(t, "https://media.example:8080/proxy/segment", EndpointsFor(r, "/proxy").Segment)

	r.Header.Set("Referer", "http://media.example:8080/player")
	assert.Equal(t, "http://media.example:8080/proxy/m3u8", EndpointsFor(r, "/proxy").Manifest)

	r.Header.Set("X-Forwarded-Proto", "https, http")
	r.Header.Set("X-Forwarded-Host", "public.example")
	assert.Equal(t, "https://public.example/proxy/key", EndpointsFor(r, "proxy/").Key)
}
