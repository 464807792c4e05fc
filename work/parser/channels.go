package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"streamhub/work/types"
	"streamhub/work/utils"

	"github.com/grafana/regexp"
)

// Format is the detected shape of a channel list.
type Format string

const (
	FormatJSON  Format = "json"
	FormatM3U   Format = "m3u"
	FormatPlain Format = "plain"
)

// ErrNoChannels is returned when a list parses but yields no playable entries.
var ErrNoChannels = errors.New("no channels found")

// extinfAttrRegex captures key="value" pairs of an #EXTINF line; values may contain spaces.
var extinfAttrRegex = regexp.MustCompile(`([A-Za-z0-9_-]+)="([^"]*)"`)

// ParseChannelList detects the list format by content, never by file name, and parses
// it. Detection order is JSON object, then #EXTM3U tagged list, then plain lines.
func ParseChannelList(data []byte) ([]types.Channel, Format, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))

	var (
		channels []types.Channel
		format   Format
		err      error
	)

	switch {
	case len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['):
		format = FormatJSON
		channels, err = parseJSON(trimmed)
	case bytes.HasPrefix(trimmed, []byte("#EXTM3U")):
		format = FormatM3U
		channels, err = parseM3U(trimmed)
	default:
		format = FormatPlain
		channels, err = parsePlain(trimmed)
	}

	if err != nil {
		return nil, format, err
	}
	if len(channels) == 0 {
		return nil, format, ErrNoChannels
	}
	return channels, format, nil
}

// jsonChannel accepts the field spellings seen in exported channel lists.
type jsonChannel struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Logo   string `json:"logo"`
	Group  string `json:"group"`
	TvgID  string `json:"tvgId"`
	TvgID2 string `json:"tvg-id"`
}

// parseJSON handles {"channels":[...]}, a bare array of channels, or a {"name":"url"} map.
func parseJSON(data []byte) ([]types.Channel, error) {
	if data[0] == '[' {
		var list []jsonChannel
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("invalid channel list JSON: %w", err)
		}
		return fromJSON(list), nil
	}

	var wrapped struct {
		Channels []jsonChannel `json:"channels"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Channels) > 0 {
		return fromJSON(wrapped.Channels), nil
	}

	var byName map[string]json.RawMessage
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, fmt.Errorf("invalid channel list JSON: %w", err)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var channels []types.Channel
	for _, name := range names {
		var link string
		if err := json.Unmarshal(byName[name], &link); err != nil {
			continue
		}
		if ch, ok := newChannel(name, link); ok {
			channels = append(channels, ch)
		}
	}
	return channels, nil
}

func fromJSON(list []jsonChannel) []types.Channel {
	channels := make([]types.Channel, 0, len(list))
	for _, jc := range list {
		ch, ok := newChannel(jc.Name, jc.URL)
		if !ok {
			continue
		}
		ch.Logo = jc.Logo
		ch.Group = jc.Group
		ch.TvgID = jc.TvgID
		if ch.TvgID == "" {
			ch.TvgID = jc.TvgID2
		}
		channels = append(channels, ch)
	}
	return channels
}

// maxLineSize bounds one line of a tagged or plain channel list.
const maxLineSize = 1024 * 1024

func newLineScanner(data []byte) *bufio.Scanner {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return scanner
}

// parseM3U walks #EXTINF entries; the first URL line after an #EXTINF completes it.
func parseM3U(data []byte) ([]types.Channel, error) {
	var (
		channels []types.Channel
		pending  map[string]string
		group    string
	)

	scanner := newLineScanner(data)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXTINF:"):
			pending = ParseEXTINF(line)
			group = ""
		case strings.HasPrefix(line, "#EXTGRP:"):
			group = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
		case strings.HasPrefix(line, "#"):
			continue
		case pending != nil:
			attrs := pending
			pending = nil

			name := attrs["name"]
			if name == "" {
				name = attrs["tvg-name"]
			}
			ch, ok := newChannel(name, line)
			if !ok {
				continue
			}
			ch.Logo = attrs["tvg-logo"]
			ch.TvgID = attrs["tvg-id"]
			ch.Group = attrs["group-title"]
			if ch.Group == "" {
				ch.Group = group
			}
			channels = append(channels, ch)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read channel list: %w", err)
	}
	return channels, nil
}

// ParseEXTINF splits an #EXTINF line into its attributes, plus "duration" and "name"
// (the display title after the first unquoted comma; titles may contain commas).
func ParseEXTINF(line string) map[string]string {
	attrs := make(map[string]string)
	line = strings.TrimPrefix(line, "#EXTINF:")

	comma := -1
	inQuotes := false
	for i := 0; i < len(line) && comma < 0; i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				comma = i
			}
		}
	}

	attrPart := line
	if comma >= 0 {
		attrPart = line[:comma]
		attrs["name"] = strings.TrimSpace(line[comma+1:])
	}

	if fields := strings.Fields(attrPart); len(fields) > 0 && !strings.Contains(fields[0], "=") {
		attrs["duration"] = fields[0]
	}
	for _, m := range extinfAttrRegex.FindAllStringSubmatch(attrPart, -1) {
		attrs[strings.ToLower(m[1])] = m[2]
	}
	return attrs
}

// parsePlain handles "name,url" and "name=url" lines. A "Group,#genre#" line sets the
// group for the lines that follow it.
func parsePlain(data []byte) ([]types.Channel, error) {
	var (
		channels []types.Channel
		group    string
	)

	scanner := newLineScanner(data)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		name, link, ok := splitPlain(line)
		if !ok {
			continue
		}
		if strings.EqualFold(link, "#genre#") {
			group = name
			continue
		}

		ch, ok := newChannel(name, link)
		if !ok {
			continue
		}
		ch.Group = group
		channels = append(channels, ch)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read channel list: %w", err)
	}
	return channels, nil
}

// splitPlain cuts a plain line at the first separator that precedes the URL.
func splitPlain(line string) (name, link string, ok bool) {
	idx := strings.Index(line, "://")
	head := line
	if idx >= 0 {
		head = line[:idx]
	}

	sep := strings.LastIndexAny(head, ",=")
	if sep < 0 {
		if utils.IsHTTPURL(line) {
			return "", line, true
		}
		return "", "", false
	}
	return strings.TrimSpace(line[:sep]), strings.TrimSpace(line[sep+1:]), true
}

// newChannel validates the URL and defaults the name to the URL.
func newChannel(name, link string) (types.Channel, bool) {
	link = strings.TrimSpace(link)
	if link == "" || !strings.Contains(link, "://") {
		return types.Channel{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = link
	}
	return types.Channel{Name: name, URL: link}, true
}
