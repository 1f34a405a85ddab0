// Package contextstore persists user context for the gateway: identity,
// daily usage counters, subscription status, intake profiles, and long-term
// memory records.
//
// FILES:
//   - types.go:  Store interface, record types, sentinel errors
//   - sqlite.go: local SQLite backend
//   - rest.go:   service-key REST backend
package contextstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthenticated is returned when a bearer token resolves to no user.
var ErrUnauthenticated = errors.New("invalid or expired credential")

// MemoryType classifies a durable fact about a user.
type MemoryType string

const (
	MemoryLifeEvent    MemoryType = "life_event"
	MemoryRelationship MemoryType = "relationship"
	MemoryStruggle     MemoryType = "struggle"
	MemoryPreference   MemoryType = "preference"
	MemoryAchievement  MemoryType = "achievement"
	MemoryBelief       MemoryType = "belief"
	MemoryContext      MemoryType = "context"
)

// ValidMemoryType reports whether s is one of the seven enumerated kinds.
func ValidMemoryType(s string) bool {
	switch MemoryType(s) {
	case MemoryLifeEvent, MemoryRelationship, MemoryStruggle, MemoryPreference,
		MemoryAchievement, MemoryBelief, MemoryContext:
		return true
	}
	return false
}

// MemoryRecord is a durable fact extracted from past conversations.
// Records are never mutated after insert; superseding facts are inserted anew.
type MemoryRecord struct {
	ID                   string     `json:"id,omitempty"`
	UserID               string     `json:"user_id"`
	MemoryType           MemoryType `json:"memory_type"`
	Content              string     `json:"content"`
	Confidence           float64    `json:"confidence"`
	SourceConversationID string     `json:"source_conversation_id,omitempty"`
	IsActive             bool       `json:"is_active"`
	CreatedAt            time.Time  `json:"created_at,omitempty"`
}

// IntakeProfile is a one-time survey snapshot describing the user's life
// situation. Pointer fields are nil when the survey left them unanswered.
type IntakeProfile struct {
	RelationshipStatus string   `json:"relationship_status,omitempty"` // single|engaged|married
	HasChildren        *bool    `json:"has_children,omitempty"`
	CareerStage        string   `json:"career_stage,omitempty"`
	SpiritualStruggles []string `json:"spiritual_struggles,omitempty"`
}

// Empty reports whether no intake field is populated.
func (p *IntakeProfile) Empty() bool {
	return p == nil || (p.RelationshipStatus == "" && p.HasChildren == nil &&
		p.CareerStage == "" && len(p.SpiritualStruggles) == 0)
}

// QuotaStatus is the result of a quota check.
type QuotaStatus struct {
	Allowed   bool `json:"allowed"`
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Unlimited bool `json:"unlimited"` // premium subscription or active trial
}

// Store is the gateway's contract with the durable context store.
//
// CheckQuota and IncrementQuota are deliberately two separate operations:
// the check happens before any upstream cost, the increment only after a
// generation produced content. The check-then-act window between them is a
// known, accepted race for concurrent requests from one user.
type Store interface {
	// ResolveUser maps a bearer credential to a user ID.
	// Returns ErrUnauthenticated when the credential is unknown.
	ResolveUser(ctx context.Context, token string) (string, error)

	// CheckQuota reports whether the user may send another message today.
	CheckQuota(ctx context.Context, userID string) (QuotaStatus, error)

	// IncrementQuota adds one to the user's daily message counter.
	IncrementQuota(ctx context.Context, userID string) error

	// GetIntakeProfile returns the user's intake survey snapshot, or nil
	// when the user never completed one.
	GetIntakeProfile(ctx context.Context, userID string) (*IntakeProfile, error)

	// ListMemories returns up to limit active records for the user, ordered
	// by descending confidence then descending recency.
	ListMemories(ctx context.Context, userID string, limit int) ([]MemoryRecord, error)

	// HasSimilarMemory reports whether any active record of the same user and
	// type contains a case-insensitive match of prefix.
	HasSimilarMemory(ctx context.Context, userID string, memType MemoryType, prefix string) (bool, error)

	// InsertMemory persists a new record.
	InsertMemory(ctx context.Context, rec MemoryRecord) error
}
