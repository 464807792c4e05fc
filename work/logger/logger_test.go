package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New("WARN")
	l.out.SetOutput(&buf)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warn("shown %d", 3)
	l.Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 3")
	assert.Contains(t, out, "[ERROR] shown 4")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLogLevel("debug"))
	assert.Equal(t, WARN, ParseLogLevel("warning"))
	assert.Equal(t, INFO, ParseLogLevel("nonsense"))
}

func TestConfigureWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamhub.log")
	Configure(Options{Level: "DEBUG", File: path, MaxSizeMB: 1})
	t.Cleanup(func() {
		Close()
		SetOutput(os.Stdout)
		SetLogLevel("INFO")
	})

	Debug("{logger - test} written to %s", "file")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "{logger - test} written to file")
	assert.Equal(t, "DEBUG", GetLogLevel())
}
