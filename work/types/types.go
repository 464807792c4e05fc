package types

import (
	"context"
	"time"
)

// CatalogSource identifies one upstream video catalog API. Sources are owned by the
// configuration store; the engine only ever reads an immutable snapshot of them for
// the lifetime of a single search.
type CatalogSource struct {
	Key       string `json:"key"`                 // Unique, stable identifier used to tag results and events
	Name      string `json:"name"`                // Human-readable display name
	API       string `json:"api"`                 // Base API endpoint queried with ?ac=videolist&wd=<query>
	Detail    string `json:"detail,omitempty"`    // Optional site root used for detail pages
	UserAgent string `json:"userAgent,omitempty"` // Optional per-source User-Agent override
	Adult     bool   `json:"adult,omitempty"`     // Marks adult content; skipped unless explicitly requested
	Disabled  bool   `json:"disabled,omitempty"`  // Disabled sources are never queried
}

// Episode is one playable entry of a title.
type Episode struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SearchResultItem is one matched title, normalized to a common shape regardless of
// which upstream API family produced it.
type SearchResultItem struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Poster     string    `json:"poster"`
	Year       string    `json:"year"` // "unknown" when the upstream omits it
	Category   string    `json:"category,omitempty"`
	Episodes   []Episode `json:"episodes"`
	SourceKey  string    `json:"source"`
	SourceName string    `json:"sourceName"`
	Remarks    string    `json:"remarks,omitempty"`
	Score      string    `json:"score,omitempty"`
	UpdatedAt  string    `json:"updatedAt,omitempty"`
}

// LiveSource is a configured playlist origin for live TV.
type LiveSource struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	UserAgent    string `json:"userAgent,omitempty"`
	Disabled     bool   `json:"disabled,omitempty"`
	ChannelCount int    `json:"channelCount"`
}

// Channel is one live channel entry parsed from a channel list.
type Channel struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Logo     string `json:"logo,omitempty"`
	Group    string `json:"group,omitempty"`
	TvgID    string `json:"tvgId,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// ChannelList is an immutable snapshot of one live source's parsed channels.
type ChannelList struct {
	SourceKey string    `json:"source"`
	Channels  []Channel `json:"channels"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// SourceProvider is the read side of the configuration store consumed by search.
type SourceProvider interface {
	ListEnabledSources(ctx context.Context) ([]CatalogSource, error)
}

// LiveSourceStore is the configuration collaborator consumed by the channel cache.
type LiveSourceStore interface {
	GetLiveSource(ctx context.Context, key string) (LiveSource, bool, error)
	PersistChannelList(ctx context.Context, sourceKey string, channels []Channel) error
	PersistChannelCount(ctx context.Context, sourceKey string, count int) error
}

// Notifier is an injected capability for pushing state changes to whatever presence
// layer the host application runs. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, topic string, payload any)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, topic string, payload any)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, topic string, payload any) {
	f(ctx, topic, payload)
}
