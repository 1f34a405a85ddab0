package memory

import (
	"fmt"
	"strings"

	"github.com/lampstand/companion-gateway/internal/config"
)

const extractionSystemPrompt = `You extract durable personal facts from a conversation between a user and a faith companion.

Return a JSON array of objects with keys "memory_type", "content", "confidence".

Rules:
- Only include facts the USER explicitly stated or strongly implied about themselves. Never include the companion's advice, scripture references, or generic topic mentions.
- "memory_type" must be one of: life_event, relationship, struggle, preference, achievement, belief, context.
- "content" is a short third-person statement, at most 200 characters.
- "confidence" is a number between 0 and 1.
- Include at most %d items. Return [] if nothing qualifies.
- Return ONLY the JSON array, no prose and no code fences.`

func buildExtractionPrompts(question, answer string) (system, user string) {
	system = fmt.Sprintf(extractionSystemPrompt, config.MaxExtractionItems)

	var b strings.Builder
	b.WriteString("USER MESSAGE:\n")
	b.WriteString(question)
	b.WriteString("\n\nCOMPANION RESPONSE:\n")
	b.WriteString(answer)
	return system, b.String()
}
