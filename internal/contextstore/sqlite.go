package contextstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	dailyLimit int
	entropy    *rand.Rand
	now        func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// dailyLimit is the free-tier message allowance per UTC day.
func NewSQLiteStore(dbPath string, dailyLimit int) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:         db,
		dailyLimit: dailyLimit,
		entropy:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS api_tokens (
		token      TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tokens_user ON api_tokens(user_id);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id             TEXT PRIMARY KEY,
		name                TEXT,
		about               TEXT,
		relationship_status TEXT,
		has_children        INTEGER,
		career_stage        TEXT,
		spiritual_struggles TEXT,
		is_premium          INTEGER NOT NULL DEFAULT 0,
		trial_ends_at       TEXT
	);

	CREATE TABLE IF NOT EXISTS usage_counters (
		user_id TEXT NOT NULL,
		day     TEXT NOT NULL,
		count   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, day)
	);

	CREATE TABLE IF NOT EXISTS user_memories (
		id                     TEXT PRIMARY KEY,
		user_id                TEXT NOT NULL,
		memory_type            TEXT NOT NULL,
		content                TEXT NOT NULL,
		confidence             REAL NOT NULL DEFAULT 0.8,
		source_conversation_id TEXT,
		is_active              INTEGER NOT NULL DEFAULT 1,
		created_at             TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user_type ON user_memories(user_id, memory_type, is_active);
	CREATE INDEX IF NOT EXISTS idx_memories_rank ON user_memories(user_id, confidence DESC, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) day() string {
	return s.now().UTC().Format("2006-01-02")
}

// ResolveUser maps a bearer token to a user ID.
func (s *SQLiteStore) ResolveUser(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM api_tokens WHERE token = ?`, token).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}
	return userID, nil
}

// CheckQuota reads today's counter and the subscription flags.
func (s *SQLiteStore) CheckQuota(ctx context.Context, userID string) (QuotaStatus, error) {
	var isPremium int
	var trialEndsAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT is_premium, trial_ends_at FROM profiles WHERE user_id = ?`, userID).
		Scan(&isPremium, &trialEndsAt)
	if err != nil && err != sql.ErrNoRows {
		return QuotaStatus{}, fmt.Errorf("check quota: %w", err)
	}

	unlimited := isPremium == 1
	if !unlimited && trialEndsAt.Valid {
		if t, perr := time.Parse(time.RFC3339, trialEndsAt.String); perr == nil && t.After(s.now()) {
			unlimited = true
		}
	}

	var used int
	err = s.db.QueryRowContext(ctx,
		`SELECT count FROM usage_counters WHERE user_id = ? AND day = ?`, userID, s.day()).
		Scan(&used)
	if err != nil && err != sql.ErrNoRows {
		return QuotaStatus{}, fmt.Errorf("check quota: %w", err)
	}

	return QuotaStatus{
		Allowed:   unlimited || used < s.dailyLimit,
		Used:      used,
		Limit:     s.dailyLimit,
		Unlimited: unlimited,
	}, nil
}

// IncrementQuota bumps today's counter with an atomic upsert.
func (s *SQLiteStore) IncrementQuota(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (user_id, day, count) VALUES (?, ?, 1)
		ON CONFLICT (user_id, day) DO UPDATE SET count = count + 1`,
		userID, s.day())
	if err != nil {
		return fmt.Errorf("increment quota: %w", err)
	}
	return nil
}

// GetIntakeProfile returns the stored intake survey snapshot, nil if absent.
func (s *SQLiteStore) GetIntakeProfile(ctx context.Context, userID string) (*IntakeProfile, error) {
	var rel, career sql.NullString
	var hasChildren sql.NullInt64
	var struggles sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT relationship_status, has_children, career_stage, spiritual_struggles
		FROM profiles WHERE user_id = ?`, userID).
		Scan(&rel, &hasChildren, &career, &struggles)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get intake profile: %w", err)
	}

	p := &IntakeProfile{
		RelationshipStatus: rel.String,
		CareerStage:        career.String,
	}
	if hasChildren.Valid {
		v := hasChildren.Int64 == 1
		p.HasChildren = &v
	}
	if struggles.Valid && struggles.String != "" {
		_ = json.Unmarshal([]byte(struggles.String), &p.SpiritualStruggles)
	}
	if p.Empty() {
		return nil, nil
	}
	return p, nil
}

// ListMemories returns active records ordered by confidence desc, recency desc.
func (s *SQLiteStore) ListMemories(ctx context.Context, userID string, limit int) ([]MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_type, content, confidence, COALESCE(source_conversation_id, ''), created_at
		FROM user_memories
		WHERE user_id = ? AND is_active = 1
		ORDER BY confidence DESC, created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []MemoryRecord
	for rows.Next() {
		rec := MemoryRecord{UserID: userID, IsActive: true}
		var memType, createdAt string
		if err := rows.Scan(&rec.ID, &memType, &rec.Content, &rec.Confidence, &rec.SourceConversationID, &createdAt); err != nil {
			return nil, fmt.Errorf("list memories: %w", err)
		}
		rec.MemoryType = MemoryType(memType)
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HasSimilarMemory checks for an existing active record whose content contains
// the candidate prefix, case-insensitively.
func (s *SQLiteStore) HasSimilarMemory(ctx context.Context, userID string, memType MemoryType, prefix string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM user_memories
		WHERE user_id = ? AND memory_type = ? AND is_active = 1
		  AND instr(lower(content), lower(?)) > 0`,
		userID, string(memType), strings.ToLower(prefix)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("similar memory lookup: %w", err)
	}
	return n > 0, nil
}

// InsertMemory persists a new record. IDs are assigned here when empty.
func (s *SQLiteStore) InsertMemory(ctx context.Context, rec MemoryRecord) error {
	id := rec.ID
	if id == "" {
		id = s.newID()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_memories (id, user_id, memory_type, content, confidence, source_conversation_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?)`,
		id, rec.UserID, string(rec.MemoryType), rec.Content, rec.Confidence,
		rec.SourceConversationID, boolToInt(rec.IsActive), createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// =============================================================================
// Provisioning helpers (used by ops tooling and tests)
// =============================================================================

// CreateToken registers a bearer token for a user.
func (s *SQLiteStore) CreateToken(ctx context.Context, token, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (token, user_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET user_id = excluded.user_id`,
		token, userID, s.now().UTC().Format(time.RFC3339))
	return err
}

// UpsertProfile writes a user's profile and intake snapshot.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, userID, name, about string, intake *IntakeProfile, premium bool) error {
	var rel, career, struggles string
	var hasChildren any
	if intake != nil {
		rel = intake.RelationshipStatus
		career = intake.CareerStage
		if intake.HasChildren != nil {
			hasChildren = boolToInt(*intake.HasChildren)
		}
		if len(intake.SpiritualStruggles) > 0 {
			b, _ := json.Marshal(intake.SpiritualStruggles)
			struggles = string(b)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, name, about, relationship_status, has_children, career_stage, spiritual_struggles, is_premium)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''), ?)
		ON CONFLICT (user_id) DO UPDATE SET
			name = excluded.name,
			about = excluded.about,
			relationship_status = excluded.relationship_status,
			has_children = excluded.has_children,
			career_stage = excluded.career_stage,
			spiritual_struggles = excluded.spiritual_struggles,
			is_premium = excluded.is_premium`,
		userID, name, about, rel, hasChildren, career, struggles, boolToInt(premium))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
