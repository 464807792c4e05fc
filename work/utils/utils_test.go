package utils

import (
	"testing"

	"streamhub/work/config"

	"github.com/stretchr/testify/assert"
)

func TestObfuscateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"https://cdn.example/path/index.m3u8?token=abc", "https://cdn.example/***?***"},
		{"http://cdn.example/", "http://cdn.example"},
		{"not a url", "***OBFUSCATED***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObfuscateURL(tt.in), tt.in)
	}
}

func TestLogURL(t *testing.T) {
	raw := "https://cdn.example/secret.ts"
	assert.Equal(t, raw, LogURL(nil, raw))
	assert.Equal(t, raw, LogURL(&config.Config{}, raw))
	assert.Equal(t, "https://cdn.example/***", LogURL(&config.Config{ObfuscateUrls: true}, raw))
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "https://cdn.example:8443", OriginOf("https://cdn.example:8443/a/b.m3u8"))
	assert.Equal(t, "", OriginOf("/relative/path"))
}

func TestIsHTTPURL(t *testing.T) {
	assert.True(t, IsHTTPURL("http://a.example/x"))
	assert.True(t, IsHTTPURL(" https://a.example "))
	assert.False(t, IsHTTPURL("ftp://a.example/x"))
	assert.False(t, IsHTTPURL("a.example/x"))
}
