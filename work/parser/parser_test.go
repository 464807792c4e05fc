package parser

import (
	"bufio"
	"strings"
	"testing"

	"streamhub/work/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannelListFormats(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		format Format
		want   []types.Channel
	}{
		{
			name:   "json channels object",
			input:  `{"channels":[{"name":"News","url":"http://tv.example/news.m3u8","logo":"n.png","group":"Info","tvg-id":"news.1"}]}`,
			format: FormatJSON,
			want:   []types.Channel{{Name: "News", URL: "http://tv.example/news.m3u8", Logo: "n.png", Group: "Info", TvgID: "news.1"}},
		},
		{
			name:   "json name map sorted by name",
			input:  `{"b":"http://tv.example/b","a":"http://tv.example/a","bad":42}`,
			format: FormatJSON,
			want:   []types.Channel{{Name: "a", URL: "http://tv.example/a"}, {Name: "b", URL: "http://tv.example/b"}},
		},
		{
			name: "m3u with attributes",
			input: "#EXTM3U x-tvg-url=\"http://epg.example\"\n" +
				"#EXTINF:-1 tvg-id=\"one.tv\" tvg-logo=\"http://l.example/1.png\" group-title=\"Sports HD\",Channel One, Live\n" +
				"http://tv.example/1.m3u8\n" +
				"#EXTINF:-1,Second\n" +
				"#EXTGRP:Movies\n" +
				"http://tv.example/2.ts\n",
			format: FormatM3U,
			want: []types.Channel{
				{Name: "Channel One, Live", URL: "http://tv.example/1.m3u8", Logo: "http://l.example/1.png", Group: "Sports HD", TvgID: "one.tv"},
				{Name: "Second", URL: "http://tv.example/2.ts", Group: "Movies"},
			},
		},
		{
			name: "plain lines with genre groups",
			input: "News,#genre#\n" +
				"CCTV-1,http://tv.example/1.m3u8?a=b\n" +
				"Local=http://tv.example/local\n" +
				"\n" +
				"garbage line\n" +
				"http://tv.example/bare\n",
			format: FormatPlain,
			want: []types.Channel{
				{Name: "CCTV-1", URL: "http://tv.example/1.m3u8?a=b", Group: "News"},
				{Name: "Local", URL: "http://tv.example/local", Group: "News"},
				{Name: "http://tv.example/bare", URL: "http://tv.example/bare", Group: "News"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, format, err := ParseChannelList([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChannelListSniffsContentNotExtension(t *testing.T) {
	// a .m3u body that is really JSON is parsed as JSON
	_, format, err := ParseChannelList([]byte("  \n{\"channels\":[{\"name\":\"x\",\"url\":\"http://a.example/x\"}]}"))
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)

	// BOM before #EXTM3U
	_, format, err = ParseChannelList([]byte("\xef\xbb\xbf#EXTM3U\n#EXTINF:-1,A\nhttp://a.example/a\n"))
	require.NoError(t, err)
	assert.Equal(t, FormatM3U, format)
}

func TestParseChannelListErrors(t *testing.T) {
	_, _, err := ParseChannelList([]byte(`{"channels": [`))
	assert.Error(t, err)

	_, _, err = ParseChannelList([]byte("#EXTM3U\n"))
	assert.ErrorIs(t, err, ErrNoChannels)

	_, _, err = ParseChannelList(nil)
	assert.ErrorIs(t, err, ErrNoChannels)

	long := strings.Repeat("x", maxLineSize+1)
	for name, list := range map[string]string{
		"m3u":   "#EXTM3U\n#EXTINF:-1,One\nhttp://tv.example/1\n#EXTINF:-1," + long + "\nhttp://tv.example/2\n",
		"plain": "One,http://tv.example/1\nTwo," + long + "\n",
	} {
		t.Run("line too long "+name, func(t *testing.T) {
			channels, _, err := ParseChannelList([]byte(list))
			assert.ErrorIs(t, err, bufio.ErrTooLong)
			assert.Nil(t, channels)
		})
	}
}

func TestParseEXTINF(t *testing.T) {
	attrs := ParseEXTINF(`#EXTINF:-1 tvg-name="Name With Spaces" group-title="A, B",Display`)
	assert.Equal(t, "-1", attrs["duration"])
	assert.Equal(t, "Name With Spaces", attrs["tvg-name"])
	assert.Equal(t, "A, B", attrs["group-title"])
	assert.Equal(t, "Display", attrs["name"])
}

func TestClassifyPlaylist(t *testing.T) {
	master := "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=500000,RESOLUTION=640x360\n" +
		"low.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1280x720\n" +
		"high.m3u8\n"
	info, err := ClassifyPlaylist(strings.NewReader(master))
	require.NoError(t, err)
	assert.Equal(t, KindMaster, info.Kind)
	require.Len(t, info.Variants, 2)
	assert.Equal(t, uint32(2000000), info.Variants[0].Bandwidth)
	assert.Equal(t, "high.m3u8", info.Variants[0].URI)

	media := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXTINF:6.0,\nseg0.ts\n#EXTINF:6.0,\nseg1.ts\n#EXT-X-ENDLIST\n"
	info, err = ClassifyPlaylist(strings.NewReader(media))
	require.NoError(t, err)
	assert.Equal(t, KindMedia, info.Kind)
	assert.Equal(t, 2, info.Segments)
	assert.False(t, info.Live)

	info, err = ClassifyPlaylist(strings.NewReader("\x47\x40\x00\x10 transport stream"))
	require.NoError(t, err)
	assert.Equal(t, KindDirect, info.Kind)
}
