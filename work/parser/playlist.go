package parser

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/grafov/m3u8"
)

// PlaylistKind classifies what a stream URL serves.
type PlaylistKind string

const (
	KindMaster PlaylistKind = "master"
	KindMedia  PlaylistKind = "media"
	KindDirect PlaylistKind = "direct" // not an HLS playlist, e.g. a raw TS or MP4 stream
)

// Variant is one rendition of a master playlist.
type Variant struct {
	URI        string `json:"uri"`
	Bandwidth  uint32 `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
}

// PlaylistInfo summarises a decoded playlist.
type PlaylistInfo struct {
	Kind     PlaylistKind `json:"kind"`
	Variants []Variant    `json:"variants,omitempty"`
	Segments int          `json:"segments,omitempty"`
	Live     bool         `json:"live"`
	Duration float64      `json:"targetDuration,omitempty"`
}

// ClassifyPlaylist decodes r with grafov/m3u8. Content that is not a playlist yields
// KindDirect rather than an error, since many live channels are plain transport streams.
func ClassifyPlaylist(r io.Reader) (PlaylistInfo, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len("#EXTM3U"))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return PlaylistInfo{}, fmt.Errorf("failed to read stream: %w", err)
	}
	if string(head) != "#EXTM3U" {
		return PlaylistInfo{Kind: KindDirect, Live: true}, nil
	}

	playlist, listType, err := m3u8.DecodeFrom(br, false)
	if err != nil {
		return PlaylistInfo{}, fmt.Errorf("failed to decode playlist: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		info := PlaylistInfo{Kind: KindMaster, Live: true}
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			info.Variants = append(info.Variants, Variant{
				URI:        v.URI,
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
			})
		}
		sort.SliceStable(info.Variants, func(i, j int) bool {
			return info.Variants[i].Bandwidth > info.Variants[j].Bandwidth
		})
		return info, nil

	case m3u8.MEDIA:
		media := playlist.(*m3u8.MediaPlaylist)
		segments := 0
		for _, seg := range media.Segments {
			if seg != nil {
				segments++
			}
		}
		return PlaylistInfo{
			Kind:     KindMedia,
			Segments: segments,
			Live:     !media.Closed,
			Duration: media.TargetDuration,
		}, nil
	}

	return PlaylistInfo{}, fmt.Errorf("unsupported playlist type %v", listType)
}
