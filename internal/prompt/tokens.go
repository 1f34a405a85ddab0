package prompt

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lampstand/companion-gateway/internal/config"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// EstimateTokens estimates the token count of s for telemetry. Uses the
// cl100k_base encoding when available, falling back to the chars/4 heuristic
// when the encoding cannot be loaded (e.g. offline).
func EstimateTokens(s string) int {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})
	if encoder == nil {
		return len(s) / config.TokenEstimateRatio
	}
	return len(encoder.Encode(s, nil, nil))
}
