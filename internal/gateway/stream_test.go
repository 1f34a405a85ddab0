package gateway

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader returns each chunk from one Read call, simulating provider
// events arriving split across network reads.
type chunkedReader struct {
	chunks []string
	pos    int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.chunks) {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[c.pos])
	c.pos++
	return n, nil
}

func runSession(t *testing.T, chunks ...string) (*streamSession, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	session := newStreamSession()
	require.NoError(t, session.run(rec, &chunkedReader{chunks: chunks}))
	return session, rec
}

func TestStreamSessionSplitEvent(t *testing.T) {
	session, rec := runSession(t,
		`data: {"choices":[{"delta":{"content":"Hel`,
		"lo\"}}]}\n\n",
		"data: [DONE]\n\n",
	)

	assert.Equal(t, "data: {\"content\":\"Hello\"}\n\n", rec.Body.String())
	assert.Equal(t, "Hello", session.Answer())
	assert.True(t, session.hasEmittedContent)
}

func TestStreamSessionMultipleDeltas(t *testing.T) {
	session, rec := runSession(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"Grace \"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"and peace.\"}}]}\n\n",
		"data: [DONE]\n\n",
	)

	assert.Equal(t, "Grace and peace.", session.Answer())
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "data: "))
}

func TestStreamSessionIgnoresNoise(t *testing.T) {
	session, rec := runSession(t,
		"\n",
		": keepalive comment\n",
		"event: ping\n",
		"data: \n",
		"data: [DONE]\n\n",
	)

	assert.Empty(t, rec.Body.String())
	assert.False(t, session.hasEmittedContent)
	assert.Empty(t, session.Answer())
}

func TestStreamSessionSkipsMalformedLine(t *testing.T) {
	session, _ := runSession(t,
		"data: {broken\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"fine\"}}]}\n\n",
	)

	assert.Equal(t, "fine", session.Answer())
}

func TestStreamSessionDiscardsTrailingPartialLine(t *testing.T) {
	session, rec := runSession(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"done\"}}]}\n\n",
		`data: {"choices":[{"delta":{"content":"never terminated`,
	)

	assert.Equal(t, "done", session.Answer())
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "data: "))
}

func TestStreamSessionCRLFFrames(t *testing.T) {
	session, _ := runSession(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"win\"}}]}\r\n\r\n",
	)

	assert.Equal(t, "win", session.Answer())
}

func TestStreamSessionEscapesFrameContent(t *testing.T) {
	_, rec := runSession(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"line\\nbreak \\\"quoted\\\"\"}}]}\n\n",
	)

	// Downstream frame must stay one SSE data line regardless of delta text.
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: {\"content\":"))
	assert.Equal(t, "\n\n", body[len(body)-2:])
	assert.Equal(t, 1, strings.Count(body, "\n\n"))
}
