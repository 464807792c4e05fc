package utils

import (
	"net/url"
	"strings"

	"streamhub/work/config"
)

// LogURL returns either the original URL or an obfuscated version for logging
func LogURL(cfg *config.Config, rawURL string) string {
	if cfg != nil && cfg.ObfuscateUrls {
		return ObfuscateURL(rawURL)
	}
	return rawURL
}

// ObfuscateURL keeps scheme and host and masks everything that may carry credentials
// or tokens (path, query, fragment).
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}

	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "***OBFUSCATED***"
	}

	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}

	return result
}

// OriginOf returns scheme://host of rawURL, or "" when it cannot be parsed.
// Media origins commonly check Origin/Referer against their own host.
func OriginOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// IsHTTPURL reports whether s is an absolute http(s) URL.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
