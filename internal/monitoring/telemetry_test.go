package monitoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lampstand/companion-gateway/internal/config"
)

func TestTrackerAppendsEvents(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "chat.jsonl")
	tracker, err := NewTracker(config.TelemetryConfig{Enabled: true, LogPath: logPath})
	require.NoError(t, err)

	tracker.RecordChat(&ChatEvent{
		RequestID:      "req-1",
		Timestamp:      time.Now().UTC(),
		UserID:         "user-1",
		Model:          "gpt-4o-mini",
		ResponseChars:  42,
		ContentEmitted: true,
		StatusCode:     200,
		Success:        true,
	})
	tracker.RecordChat(&ChatEvent{RequestID: "req-2", StatusCode: 429})

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	first := gjson.Parse(lines[0])
	assert.Equal(t, "req-1", first.Get("request_id").String())
	assert.Equal(t, "user-1", first.Get("user_id").String())
	assert.True(t, first.Get("content_emitted").Bool())

	second := gjson.Parse(lines[1])
	assert.Equal(t, int64(429), second.Get("status_code").Int())

	assert.Equal(t, 2, tracker.Count())
}

func TestTrackerDisabledWritesNothing(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "chat.jsonl")
	tracker, err := NewTracker(config.TelemetryConfig{Enabled: false, LogPath: logPath})
	require.NoError(t, err)

	tracker.RecordChat(&ChatEvent{RequestID: "req-1"})

	_, statErr := os.Stat(logPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, 0, tracker.Count())
}

func TestTrackerNoEscape(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "chat.jsonl")
	tracker, err := NewTracker(config.TelemetryConfig{Enabled: true, LogPath: logPath})
	require.NoError(t, err)

	tracker.RecordChat(&ChatEvent{RequestID: "req-1", Error: "unexpected <EOF> & friends"})

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "unexpected <EOF> & friends")
}
