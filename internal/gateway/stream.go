package gateway

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lampstand/companion-gateway/internal/config"
	"github.com/lampstand/companion-gateway/internal/utils"
)

var doneSentinel = []byte("[DONE]")

// streamSession re-frames one provider SSE stream into the gateway's wire
// format. Provider events are not guaranteed to align with read boundaries,
// so bytes accumulate in a carry-over buffer and only complete lines are
// processed. Whatever partial line remains when the body ends is discarded.
type streamSession struct {
	buffer            []byte
	answer            strings.Builder
	hasEmittedContent bool
	firstTokenAt      time.Time
	clientGone        bool
}

func newStreamSession() *streamSession {
	return &streamSession{buffer: make([]byte, 0, config.DefaultBufferSize)}
}

// run pumps the upstream body until exhaustion. A non-nil return means the
// stream broke after it started; content emitted before the break already
// reached the client and stays recorded in the session.
func (s *streamSession) run(w http.ResponseWriter, reader io.Reader) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		flusher = nil
		log.Warn().Msg("response writer does not support flushing, deltas will be buffered")
	}

	buf := make([]byte, config.DefaultBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			s.consume(w, flusher, buf[:n])
		}
		if s.clientGone {
			return io.ErrClosedPipe
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// consume appends a chunk to the carry-over buffer and processes every
// complete line in it.
func (s *streamSession) consume(w http.ResponseWriter, flusher http.Flusher, chunk []byte) {
	s.buffer = append(s.buffer, chunk...)
	for {
		idx := bytes.IndexByte(s.buffer, '\n')
		if idx < 0 {
			return
		}
		line := s.buffer[:idx]
		s.buffer = s.buffer[idx+1:]
		s.handleLine(w, flusher, line)
		if s.clientGone {
			return
		}
	}
}

// handleLine classifies one complete line. Blank lines, the [DONE] sentinel
// and non-data lines are dropped; malformed payloads are logged and skipped
// rather than aborting the stream.
func (s *streamSession) handleLine(w http.ResponseWriter, flusher http.Flusher, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
		return
	}

	payload := bytes.TrimSpace(line[len("data:"):])
	if len(payload) == 0 || bytes.Equal(payload, doneSentinel) {
		return
	}

	if !gjson.ValidBytes(payload) {
		log.Debug().Str("payload", utils.Truncate(string(payload), config.MaxErrorBodyLogLen)).Msg("Skipping malformed stream event")
		return
	}

	delta := gjson.GetBytes(payload, "choices.0.delta.content").String()
	if delta == "" {
		return
	}

	s.answer.WriteString(delta)
	s.hasEmittedContent = true
	if s.firstTokenAt.IsZero() {
		s.firstTokenAt = time.Now()
	}

	s.emit(w, flusher, delta)
}

// emit writes one downstream frame and flushes it so time-to-first-token
// stays low.
func (s *streamSession) emit(w http.ResponseWriter, flusher http.Flusher, delta string) {
	frame, err := sjson.SetBytes([]byte(`{}`), "content", delta)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to encode stream frame")
		return
	}

	if _, err := w.Write([]byte("data: ")); err != nil {
		s.clientGone = true
		return
	}
	if _, err := w.Write(frame); err != nil {
		s.clientGone = true
		return
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		s.clientGone = true
		return
	}
	if flusher != nil {
		flusher.Flush()
	}
}

// Answer returns the accumulated response text.
func (s *streamSession) Answer() string {
	return s.answer.String()
}

// TimeToFirstToken returns milliseconds from start to the first emitted
// delta, or zero when nothing streamed.
func (s *streamSession) TimeToFirstToken(start time.Time) int64 {
	if s.firstTokenAt.IsZero() {
		return 0
	}
	return s.firstTokenAt.Sub(start).Milliseconds()
}
