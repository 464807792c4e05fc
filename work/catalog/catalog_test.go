package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *client.Client {
	return client.New(&config.Config{UserAgent: "test", SegmentTimeout: 5 * time.Second, SourceRateLimit: 1000})
}

func TestParseEpisodes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []types.Episode
	}{
		{"empty", "", nil},
		{
			"prefers m3u8 group",
			"EP1$https://a.example/1.html#EP2$https://a.example/2.html$$$EP1$https://b.example/1.m3u8#EP2$https://b.example/2.m3u8",
			[]types.Episode{{Name: "EP1", URL: "https://b.example/1.m3u8"}, {Name: "EP2", URL: "https://b.example/2.m3u8"}},
		},
		{
			"bare urls get numbered",
			"https://a.example/1.mp4#https://a.example/2.mp4",
			[]types.Episode{{Name: "Episode 1", URL: "https://a.example/1.mp4"}, {Name: "Episode 2", URL: "https://a.example/2.mp4"}},
		},
		{"non http entries dropped", "EP1$ftp://x#EP2$", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEpisodes(tt.in))
		})
	}
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "http://a.example/api?ac=videolist&wd=the+wire", SearchURL("http://a.example/api", "the wire"))
	assert.Equal(t, "http://a.example/api?x=1&ac=videolist&wd=q", SearchURL("http://a.example/api?x=1", "q"))
}

func TestCMSSearch(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("wd")
		gotUA = r.UserAgent()
		w.Write([]byte(`{"code":1,"list":[
			{"vod_id":42,"vod_name":" Show ","vod_pic":"p.jpg","vod_year":2021,"type_name":"Drama","vod_play_url":"E1$https://cdn.example/1.m3u8","vod_time":"2024-01-01"},
			{"vod_id":"43","vod_name":"NoEpisodes","vod_play_url":""},
			{"vod_id":"44","vod_name":"NoYear","vod_year":"","vod_play_url":"https://cdn.example/x.m3u8"}
		]}`))
	}))
	defer srv.Close()

	src := types.CatalogSource{Key: "a", Name: "Source A", API: srv.URL, UserAgent: "cms-agent"}
	items, err := NewCMS(testClient()).Search(context.Background(), src, "show")
	require.NoError(t, err)

	assert.Equal(t, "show", gotQuery)
	assert.Equal(t, "cms-agent", gotUA)
	require.Len(t, items, 2)
	assert.Equal(t, "42", items[0].ID)
	assert.Equal(t, "Show", items[0].Title)
	assert.Equal(t, "2021", items[0].Year)
	assert.Equal(t, "a", items[0].SourceKey)
	assert.Equal(t, "Source A", items[0].SourceName)
	assert.Equal(t, "unknown", items[1].Year)
}

func TestCMSSearchMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewCMS(testClient()).Search(context.Background(), types.CatalogSource{Key: "a", API: srv.URL}, "q")
	assert.ErrorIs(t, err, client.ErrSourceMalformedResponse)
}

func TestSupplementalSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "q", r.URL.Query().Get("q"))
		w.Write([]byte(`{"results":[{"id":"1","title":"A"},{"id":"2","title":""},{"id":"3","title":"C","source":"other","year":"1999"}]}`))
	}))
	defer srv.Close()

	assert.Nil(t, NewSupplemental(testClient(), nil))

	s := NewSupplemental(testClient(), &config.SupplementalSource{Key: "extra", URL: srv.URL})
	items, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "extra", items[0].SourceKey)
	assert.Equal(t, "extra", items[0].SourceName)
	assert.Equal(t, "unknown", items[0].Year)
	assert.Equal(t, "other", items[1].SourceKey)
}
