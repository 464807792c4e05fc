package channels

import (
	"context"
	"fmt"
	"io"

	"streamhub/work/client"
	"streamhub/work/parser"
	"streamhub/work/types"
)

// maxPrecheckBody bounds how much of a stream is read to classify it.
const maxPrecheckBody = 1 << 20

// PrecheckResult describes what a channel URL serves right now.
type PrecheckResult struct {
	Channel     types.Channel       `json:"channel"`
	ContentType string              `json:"contentType,omitempty"`
	Playlist    parser.PlaylistInfo `json:"playlist"`
}

// Precheck looks the channel up in the cached list and probes its stream URL before a
// player is pointed at it. It never refreshes the list.
func (c *Cache) Precheck(ctx context.Context, key, channelName string) (PrecheckResult, error) {
	list, ok := c.Get(key)
	if !ok {
		return PrecheckResult{}, fmt.Errorf("%w: %s", ErrUnknownSource, key)
	}

	var (
		channel types.Channel
		found   bool
	)
	for _, ch := range list.Channels {
		if ch.Name == channelName {
			channel, found = ch, true
			break
		}
	}
	if !found {
		return PrecheckResult{}, fmt.Errorf("%w: %s/%s", ErrUnknownChannel, key, channelName)
	}

	var userAgent string
	if source, ok, err := c.store.GetLiveSource(ctx, key); err == nil && ok {
		userAgent = source.UserAgent
	}

	resp, err := c.client.Fetch(ctx, client.Request{
		Kind:      client.KindMedia,
		URL:       channel.URL,
		Timeout:   c.cfg.ManifestTimeout,
		UserAgent: userAgent,
	})
	if err != nil {
		return PrecheckResult{}, err
	}
	defer resp.Body.Close()

	info, err := parser.ClassifyPlaylist(io.LimitReader(resp.Body, maxPrecheckBody))
	if err != nil {
		return PrecheckResult{}, err
	}

	return PrecheckResult{
		Channel:     channel,
		ContentType: resp.Header.Get("Content-Type"),
		Playlist:    info,
	}, nil
}
