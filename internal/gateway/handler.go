package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lampstand/companion-gateway/internal/config"
	"github.com/lampstand/companion-gateway/internal/contextstore"
	"github.com/lampstand/companion-gateway/internal/monitoring"
	"github.com/lampstand/companion-gateway/internal/prompt"
	"github.com/lampstand/companion-gateway/internal/upstream"
)

// chatRequest is the inbound request body.
type chatRequest struct {
	Question            string                      `json:"question"`
	ConversationHistory []historyTurn               `json:"conversationHistory"`
	Preferences         *chatPreferences            `json:"preferences"`
	UserProfile         *chatProfile                `json:"userProfile"`
	IntakeProfile       *contextstore.IntakeProfile `json:"intakeProfile"`
	ConversationID      string                      `json:"conversationId"`
}

type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatPreferences uses pointer booleans so an absent field falls back to the
// default rather than to false.
type chatPreferences struct {
	ResponseLength             string `json:"responseLength"`
	IncludeScriptureReferences *bool  `json:"includeScriptureReferences"`
	AskClarifyingQuestions     *bool  `json:"askClarifyingQuestions"`
}

type chatProfile struct {
	Name  string `json:"name"`
	About string `json:"about"`
}

// handleChat is the chat endpoint. Auth and quota run before any prompt
// work or upstream cost; the increment is deferred until the stream has
// actually produced content.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r)
	startTime := time.Now()

	event := &monitoring.ChatEvent{
		RequestID: requestID,
		Timestamp: startTime.UTC(),
		Model:     g.upstream.Model(),
	}
	streaming := false
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("request_id", requestID).Interface("panic", rec).Msg("Chat handler panicked")
			if !streaming {
				writeErrorDetails(w, "internal error", fmt.Sprintf("%v", rec), http.StatusInternalServerError)
			}
			event.StatusCode = http.StatusInternalServerError
			event.Error = fmt.Sprintf("panic: %v", rec)
		}
		event.TotalLatencyMs = time.Since(startTime).Milliseconds()
		g.tracker.RecordChat(event)
	}()

	if r.Method != http.MethodPost {
		event.StatusCode = http.StatusMethodNotAllowed
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token, ok := bearerToken(r)
	if !ok {
		event.StatusCode = http.StatusUnauthorized
		writeError(w, "missing or invalid authorization header", http.StatusUnauthorized)
		return
	}

	userID, err := g.store.ResolveUser(r.Context(), token)
	if err != nil {
		if !errors.Is(err, contextstore.ErrUnauthenticated) {
			log.Warn().Err(err).Str("request_id", requestID).Msg("Identity resolution failed")
		}
		event.StatusCode = http.StatusUnauthorized
		writeError(w, "invalid or expired credential", http.StatusUnauthorized)
		return
	}
	event.UserID = userID

	quota, err := g.store.CheckQuota(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Str("user_id", userID).Msg("Quota check failed")
		event.StatusCode = http.StatusInternalServerError
		writeErrorCode(w, "unable to verify message limit", "LIMIT_CHECK_ERROR", http.StatusInternalServerError)
		return
	}
	event.QuotaUsed = quota.Used
	event.QuotaLimit = quota.Limit
	if !quota.Allowed {
		event.StatusCode = http.StatusTooManyRequests
		writeErrorCode(w,
			"You've reached your daily message limit. Upgrade to premium for unlimited conversations.",
			"MESSAGE_LIMIT_REACHED", http.StatusTooManyRequests)
		return
	}

	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		event.StatusCode = http.StatusBadRequest
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		event.StatusCode = http.StatusBadRequest
		writeError(w, "question is required", http.StatusBadRequest)
		return
	}
	event.ConversationID = req.ConversationID

	input := g.buildPromptInput(r, requestID, userID, &req)
	systemPrompt := prompt.Synthesize(input)
	event.PromptTokens = prompt.EstimateTokens(systemPrompt)
	event.MemoryCount = len(input.Memories)

	body, err := g.upstream.StreamChat(r.Context(), upstream.ChatParams{
		System:    systemPrompt,
		History:   historyMessages(req.ConversationHistory),
		Question:  question,
		MaxTokens: prompt.MaxTokensFor(input.Preferences.ResponseLength),
	})
	if err != nil {
		event.StatusCode = http.StatusInternalServerError
		event.Error = err.Error()

		var statusErr *upstream.StatusError
		switch {
		case errors.Is(err, upstream.ErrNoAPIKey):
			log.Error().Str("request_id", requestID).Msg("Upstream credential not configured")
			writeError(w, "service is not configured", http.StatusInternalServerError)
		case errors.As(err, &statusErr):
			log.Error().Int("status", statusErr.StatusCode).Str("request_id", requestID).Msg("Upstream rejected completion request")
			writeErrorDetails(w, "upstream request failed", statusErr.Body, http.StatusInternalServerError)
		default:
			log.Error().Err(err).Str("request_id", requestID).Msg("Upstream connection failed")
			writeErrorDetails(w, "upstream request failed", err.Error(), http.StatusInternalServerError)
		}
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	streaming = true
	event.StatusCode = http.StatusOK

	session := newStreamSession()
	streamErr := session.run(w, body)

	answer := session.Answer()
	event.ContentEmitted = session.hasEmittedContent
	event.ResponseChars = len(answer)
	event.ResponseTokens = prompt.EstimateTokens(answer)
	event.TimeToFirstTokenMs = session.TimeToFirstToken(startTime)
	event.Success = streamErr == nil
	if streamErr != nil {
		log.Warn().Err(streamErr).Str("request_id", requestID).Msg("Stream terminated early")
		event.Error = streamErr.Error()
	}

	// Partial answers count: once any token reached the client, the message
	// is billed and mined for memories even if the stream broke later.
	if session.hasEmittedContent {
		// The request context is canceled when the client disconnects, which
		// is exactly the partial-stream case that still has to be committed.
		commitCtx := context.WithoutCancel(r.Context())
		if err := g.store.IncrementQuota(commitCtx, userID); err != nil {
			log.Error().Err(err).Str("request_id", requestID).Str("user_id", userID).Msg("Usage commit failed")
		}

		conversationID := req.ConversationID
		scheduled := g.runner.Go("memory-extraction", config.ExtractionTimeout, func(ctx context.Context) {
			g.extractor.Extract(ctx, userID, conversationID, question, answer)
		})
		event.ExtractionQueued = scheduled
		if !scheduled {
			log.Warn().Str("request_id", requestID).Msg("Memory extraction skipped, runner shutting down")
		}
	}
}

// buildPromptInput assembles the synthesizer input from the request body and
// the context store. Store failures degrade to omitted sections, never to a
// failed request.
func (g *Gateway) buildPromptInput(r *http.Request, requestID, userID string, req *chatRequest) *prompt.Input {
	input := &prompt.Input{Preferences: normalizePreferences(req.Preferences)}

	if req.UserProfile != nil {
		input.Profile = prompt.UserProfile{Name: req.UserProfile.Name, About: req.UserProfile.About}
	}

	if req.IntakeProfile != nil && !req.IntakeProfile.Empty() {
		input.Intake = req.IntakeProfile
	} else {
		intake, err := g.store.GetIntakeProfile(r.Context(), userID)
		if err != nil {
			log.Warn().Err(err).Str("request_id", requestID).Msg("Intake profile lookup failed")
		} else {
			input.Intake = intake
		}
	}

	memories, err := g.store.ListMemories(r.Context(), userID, config.MaxMemoriesPerUser)
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("Memory lookup failed")
	} else {
		input.Memories = memories
	}
	return input
}

// normalizePreferences applies defaults for absent fields and rejects
// unknown length values.
func normalizePreferences(p *chatPreferences) prompt.Preferences {
	prefs := prompt.DefaultPreferences()
	if p == nil {
		return prefs
	}
	switch p.ResponseLength {
	case prompt.LengthConcise, prompt.LengthBalanced, prompt.LengthDetailed:
		prefs.ResponseLength = p.ResponseLength
	}
	if p.IncludeScriptureReferences != nil {
		prefs.IncludeScriptureReferences = *p.IncludeScriptureReferences
	}
	if p.AskClarifyingQuestions != nil {
		prefs.AskClarifyingQuestions = *p.AskClarifyingQuestions
	}
	return prefs
}

// historyMessages converts caller history, dropping turns with roles the
// provider would reject.
func historyMessages(history []historyTurn) []upstream.Message {
	out := make([]upstream.Message, 0, len(history))
	for _, turn := range history {
		if turn.Role != "user" && turn.Role != "assistant" {
			continue
		}
		out = append(out, upstream.Message{Role: turn.Role, Content: turn.Content})
	}
	return out
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return token, token != ""
}
