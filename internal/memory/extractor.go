// Package memory extracts durable user facts from finished conversations
// and persists them to the context store.
//
// Everything here runs detached from the request path. Failures are logged
// and swallowed: the user already received their answer, and memory is a
// soft-accumulating side index rather than a precondition for anything.
package memory

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/lampstand/companion-gateway/internal/config"
	"github.com/lampstand/companion-gateway/internal/contextstore"
	"github.com/lampstand/companion-gateway/internal/upstream"
	"github.com/lampstand/companion-gateway/internal/utils"
)

// Extractor runs the post-conversation extraction round-trip.
type Extractor struct {
	completer upstream.Completer
	store     contextstore.Store
}

// NewExtractor creates an Extractor.
func NewExtractor(completer upstream.Completer, store contextstore.Store) *Extractor {
	return &Extractor{completer: completer, store: store}
}

// Extract asks the completion model for structured facts from one exchange
// and persists the survivors. It never returns an error; all failures are
// logged and dropped.
func (e *Extractor) Extract(ctx context.Context, userID, conversationID, question, answer string) {
	system, user := buildExtractionPrompts(question, answer)

	raw, err := e.completer.Complete(ctx, system, user, config.MaxTokensExtraction)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Memory extraction completion failed")
		return
	}

	candidates := parseCandidates(raw)
	if len(candidates) == 0 {
		log.Debug().Str("user_id", userID).Msg("Memory extraction produced no candidates")
		return
	}

	inserted := 0
	for _, cand := range candidates {
		ok, err := e.persist(ctx, userID, conversationID, cand)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Memory insert failed")
			continue
		}
		if ok {
			inserted++
		}
	}

	log.Info().
		Str("user_id", userID).
		Int("candidates", len(candidates)).
		Int("inserted", inserted).
		Msg("Memory extraction complete")
}

// candidate is one raw extraction item before validation.
type candidate struct {
	MemoryType string
	Content    string
	Confidence float64
	HasConf    bool
}

// parseCandidates decodes the model output into validated candidates.
// Malformed output yields zero candidates, never an error.
func parseCandidates(raw string) []candidate {
	trimmed := stripFences(raw)

	parsed := gjson.Parse(trimmed)
	if !parsed.IsArray() {
		log.Warn().Str("body", utils.Truncate(trimmed, config.MaxErrorBodyLogLen)).Msg("Extraction output is not a JSON array")
		return nil
	}

	var out []candidate
	for _, item := range parsed.Array() {
		if len(out) >= config.MaxExtractionItems {
			break
		}
		memType := item.Get("memory_type").String()
		content := strings.TrimSpace(item.Get("content").String())
		if !contextstore.ValidMemoryType(memType) {
			continue
		}
		if content == "" || utf8.RuneCountInString(content) > config.MaxMemoryContentLen {
			continue
		}
		conf := item.Get("confidence")
		out = append(out, candidate{
			MemoryType: memType,
			Content:    content,
			Confidence: conf.Float(),
			HasConf:    conf.Exists() && conf.Type == gjson.Number,
		})
	}
	return out
}

// persist dedups one candidate against existing records and inserts it.
// Returns false when the candidate was skipped as already known.
func (e *Extractor) persist(ctx context.Context, userID, conversationID string, cand candidate) (bool, error) {
	// Slice by runes, not bytes: a byte cut can split a multibyte character
	// and produce a needle that never matches the record it duplicates.
	prefix := cand.Content
	if runes := []rune(prefix); len(runes) > config.MemoryDedupPrefixLen {
		prefix = string(runes[:config.MemoryDedupPrefixLen])
	}

	known, err := e.store.HasSimilarMemory(ctx, userID, contextstore.MemoryType(cand.MemoryType), prefix)
	if err != nil {
		return false, err
	}
	if known {
		log.Debug().Str("user_id", userID).Str("memory_type", cand.MemoryType).Msg("Skipping duplicate memory")
		return false, nil
	}

	confidence := config.DefaultMemoryConfidence
	if cand.HasConf {
		confidence = clamp01(cand.Confidence)
	}

	rec := contextstore.MemoryRecord{
		ID:                   ulid.Make().String(),
		UserID:               userID,
		MemoryType:           contextstore.MemoryType(cand.MemoryType),
		Content:              cand.Content,
		Confidence:           confidence,
		SourceConversationID: conversationID,
		IsActive:             true,
	}
	if err := e.store.InsertMemory(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// stripFences removes a markdown code fence if the model wrapped its output
// in one despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
