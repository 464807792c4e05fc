package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"streamhub/work/client"
	"streamhub/work/types"
)

// flexString accepts JSON strings and numbers; catalog APIs disagree on vod_id and vod_year.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// cmsResponse is the videolist payload shared by the common catalog CMS family.
type cmsResponse struct {
	Code int       `json:"code"`
	Msg  string    `json:"msg"`
	List []cmsItem `json:"list"`
}

type cmsItem struct {
	ID       flexString `json:"vod_id"`
	Name     string     `json:"vod_name"`
	Pic      string     `json:"vod_pic"`
	Year     flexString `json:"vod_year"`
	TypeName string     `json:"type_name"`
	PlayURL  string     `json:"vod_play_url"`
	Remarks  string     `json:"vod_remarks"`
	Score    flexString `json:"vod_score"`
	Time     string     `json:"vod_time"`
}

// CMS queries catalog sources that speak the videolist API.
type CMS struct {
	Client *client.Client
}

// NewCMS creates a CMS provider on top of c.
func NewCMS(c *client.Client) *CMS {
	return &CMS{Client: c}
}

// SearchURL builds the videolist query URL for source.
func SearchURL(api, query string) string {
	sep := "?"
	if strings.Contains(api, "?") {
		sep = "&"
	}
	return api + sep + "ac=videolist&wd=" + url.QueryEscape(query)
}

// Search runs query against one source. The caller owns the timeout via ctx.
func (p *CMS) Search(ctx context.Context, source types.CatalogSource, query string) ([]types.SearchResultItem, error) {
	resp, err := client.GetJSON[cmsResponse](ctx, p.Client, client.Request{
		Kind:      client.KindSource,
		URL:       SearchURL(source.API, query),
		UserAgent: source.UserAgent,
		LimitKey:  source.Key,
	})
	if err != nil {
		return nil, err
	}

	items := make([]types.SearchResultItem, 0, len(resp.List))
	for _, raw := range resp.List {
		episodes := ParseEpisodes(raw.PlayURL)
		if len(episodes) == 0 {
			continue
		}
		items = append(items, normalize(raw, episodes, source))
	}
	return items, nil
}

func normalize(raw cmsItem, episodes []types.Episode, source types.CatalogSource) types.SearchResultItem {
	year := strings.TrimSpace(string(raw.Year))
	if year == "" || year == "0" {
		year = "unknown"
	}

	return types.SearchResultItem{
		ID:         string(raw.ID),
		Title:      strings.TrimSpace(raw.Name),
		Poster:     raw.Pic,
		Year:       year,
		Category:   raw.TypeName,
		Episodes:   episodes,
		SourceKey:  source.Key,
		SourceName: source.Name,
		Remarks:    raw.Remarks,
		Score:      string(raw.Score),
		UpdatedAt:  raw.Time,
	}
}

// ParseEpisodes decodes a vod_play_url value. Play groups are separated by "$$$",
// episodes within a group by "#", and each episode is "name$url" or a bare url.
// The first group carrying m3u8 links wins; otherwise the first non-empty group.
func ParseEpisodes(playURL string) []types.Episode {
	if strings.TrimSpace(playURL) == "" {
		return nil
	}

	groups := strings.Split(playURL, "$$$")
	chosen := ""
	for _, g := range groups {
		if strings.Contains(g, ".m3u8") {
			chosen = g
			break
		}
	}
	if chosen == "" {
		for _, g := range groups {
			if strings.TrimSpace(g) != "" {
				chosen = g
				break
			}
		}
	}

	var episodes []types.Episode
	for _, entry := range strings.Split(chosen, "#") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, link, found := strings.Cut(entry, "$")
		if !found {
			name, link = "", entry
		}
		link = strings.TrimSpace(link)
		if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
			continue
		}
		if name == "" {
			name = "Episode " + strconv.Itoa(len(episodes)+1)
		}
		episodes = append(episodes, types.Episode{Name: name, URL: link})
	}
	return episodes
}
