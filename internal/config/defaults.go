// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token.
// Used for rough token counting when exact counts aren't available.
const TokenEstimateRatio = 4

// =============================================================================
// QUOTA
// =============================================================================

// DefaultDailyMessageLimit is the free-tier daily message allowance.
const DefaultDailyMessageLimit = 10

// =============================================================================
// MEMORY
// =============================================================================

// MaxMemoryContentLen is the maximum length of a stored memory record.
const MaxMemoryContentLen = 200

// MemoryDedupPrefixLen is how many leading characters of a candidate memory
// are matched against existing records to detect near-duplicates.
const MemoryDedupPrefixLen = 30

// MaxMemoriesPerUser caps how many records are loaded for prompt synthesis.
const MaxMemoriesPerUser = 20

// MaxExtractionItems caps how many facts one extraction pass may return.
const MaxExtractionItems = 5

// DefaultMemoryConfidence is used when the model omits or mangles confidence.
const DefaultMemoryConfidence = 0.8

// =============================================================================
// UPSTREAM COMPLETIONS
// =============================================================================

// Generation-length tiers keyed by the responseLength preference.
const (
	MaxTokensConcise  = 400
	MaxTokensBalanced = 800
	MaxTokensDetailed = 1500
)

// MaxTokensExtraction bounds the second-pass extraction completion.
const MaxTokensExtraction = 500

// ExtractionTimeout bounds the detached extraction round-trip.
const ExtractionTimeout = 60 * time.Second

// UpstreamHeaderTimeout bounds how long the primary completion may take to
// start responding. The stream itself is not bounded once headers arrive.
const UpstreamHeaderTimeout = 30 * time.Second

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultBufferSize is the standard I/O buffer size for stream reads.
const DefaultBufferSize = 4096

// MaxRequestBodySize is the maximum allowed request body (1MB).
const MaxRequestBodySize = 1 * 1024 * 1024

// MaxErrorBodyLogLen limits error response body in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// DefaultServerWriteTimeout for the HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 30 * time.Second

// DefaultShutdownTimeout is how long shutdown waits for in-flight requests
// and detached background work before giving up.
const DefaultShutdownTimeout = 30 * time.Second

// DefaultPort is the gateway listen port.
const DefaultPort = 8787
