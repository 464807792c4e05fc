package catalog

import (
	"context"
	"net/url"
	"strings"

	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/types"
)

// supplementalResponse is the shape returned by the supplemental search API.
type supplementalResponse struct {
	Results []types.SearchResultItem `json:"results"`
}

// Supplemental queries the low-priority source that already returns normalized items.
type Supplemental struct {
	Client *client.Client
	Source config.SupplementalSource
}

// NewSupplemental returns nil when src is nil, meaning no supplemental source is configured.
func NewSupplemental(c *client.Client, src *config.SupplementalSource) *Supplemental {
	if src == nil {
		return nil
	}
	return &Supplemental{Client: c, Source: *src}
}

// Key identifies the supplemental source in logs and events.
func (s *Supplemental) Key() string { return s.Source.Key }

// Name is the display name, falling back to the key.
func (s *Supplemental) Name() string {
	if s.Source.Name != "" {
		return s.Source.Name
	}
	return s.Source.Key
}

// Search queries the supplemental API. Items missing a source tag get this source's.
func (s *Supplemental) Search(ctx context.Context, query string) ([]types.SearchResultItem, error) {
	sep := "?"
	if strings.Contains(s.Source.URL, "?") {
		sep = "&"
	}

	resp, err := client.GetJSON[supplementalResponse](ctx, s.Client, client.Request{
		Kind:     client.KindSource,
		URL:      s.Source.URL + sep + "q=" + url.QueryEscape(query),
		LimitKey: s.Source.Key,
	})
	if err != nil {
		return nil, err
	}

	items := resp.Results[:0]
	for _, item := range resp.Results {
		if item.Title == "" {
			continue
		}
		if item.SourceKey == "" {
			item.SourceKey = s.Key()
		}
		if item.SourceName == "" {
			item.SourceName = s.Name()
		}
		if item.Year == "" {
			item.Year = "unknown"
		}
		items = append(items, item)
	}
	return items, nil
}
