// Package monitoring records per-request chat telemetry as JSONL
// (one JSON object per line), appended immediately after each request
// so the log is usable in real time.
package monitoring

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lampstand/companion-gateway/internal/config"
	"github.com/lampstand/companion-gateway/internal/utils"
)

// ChatEvent captures one chat request through the gateway.
type ChatEvent struct {
	RequestID          string    `json:"request_id"`
	Timestamp          time.Time `json:"timestamp"`
	UserID             string    `json:"user_id,omitempty"`
	ConversationID     string    `json:"conversation_id,omitempty"`
	Model              string    `json:"model"`
	PromptTokens       int       `json:"prompt_tokens"`
	ResponseChars      int       `json:"response_chars"`
	ResponseTokens     int       `json:"response_tokens"`
	MemoryCount        int       `json:"memory_count"`
	QuotaUsed          int       `json:"quota_used"`
	QuotaLimit         int       `json:"quota_limit"`
	ContentEmitted     bool      `json:"content_emitted"`
	ExtractionQueued   bool      `json:"extraction_queued"`
	StatusCode         int       `json:"status_code"`
	Success            bool      `json:"success"`
	Error              string    `json:"error,omitempty"`
	TimeToFirstTokenMs int64     `json:"time_to_first_token_ms"`
	TotalLatencyMs     int64     `json:"total_latency_ms"`
}

// Tracker appends chat events to a JSONL file and optionally mirrors a
// one-line summary to stdout.
type Tracker struct {
	config  config.TelemetryConfig
	logPath string
	count   int
	mu      sync.Mutex
}

// NewTracker creates a telemetry tracker. The log directory is created and
// the file touched up front so permission problems surface at startup, not
// on the first request.
func NewTracker(cfg config.TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}

	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	t.logPath = cfg.LogPath
	if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
		if f, err := os.Create(cfg.LogPath); err == nil {
			_ = f.Close()
		}
	}
	return t, nil
}

// RecordChat records one chat event.
func (t *Tracker) RecordChat(event *ChatEvent) {
	if !t.config.Enabled || event == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		reqID := event.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		log.Info().
			Str("request_id", reqID).
			Int("prompt_tokens", event.PromptTokens).
			Int("response_tokens", event.ResponseTokens).
			Bool("success", event.Success).
			Int64("total_ms", event.TotalLatencyMs).
			Msg("telemetry")
	}

	if t.logPath != "" {
		if err := appendJSONL(t.logPath, event); err != nil {
			log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write chat event")
		} else {
			t.count++
		}
	}
}

// Count returns the number of events written to file.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// appendJSONL appends a single JSON object as a line to the file. Marshals
// without HTML escaping so logged text stays readable.
func appendJSONL(path string, event any) error {
	data, err := utils.MarshalNoEscape(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}
