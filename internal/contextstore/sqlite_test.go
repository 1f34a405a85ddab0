package contextstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), 3)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolveUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.CreateToken(ctx, "tok-abc", "user-1"); err != nil {
		t.Fatalf("create token: %v", err)
	}

	id, err := s.ResolveUser(ctx, "tok-abc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "user-1" {
		t.Errorf("got %q, want user-1", id)
	}

	if _, err := s.ResolveUser(ctx, "tok-unknown"); err != ErrUnauthenticated {
		t.Errorf("unknown token: got %v, want ErrUnauthenticated", err)
	}
}

func TestQuotaCountingAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st, err := s.CheckQuota(ctx, "user-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !st.Allowed || st.Used != 0 || st.Limit != 3 {
		t.Errorf("fresh user: got %+v", st)
	}

	for i := 0; i < 3; i++ {
		if err := s.IncrementQuota(ctx, "user-1"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	st, err = s.CheckQuota(ctx, "user-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if st.Allowed {
		t.Errorf("exhausted user still allowed: %+v", st)
	}
	if st.Used != 3 {
		t.Errorf("used = %d, want 3", st.Used)
	}
}

func TestQuotaRollsOverPerDay(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return day }

	for i := 0; i < 3; i++ {
		if err := s.IncrementQuota(ctx, "user-1"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if st, _ := s.CheckQuota(ctx, "user-1"); st.Allowed {
		t.Fatal("expected quota exhausted")
	}

	s.now = func() time.Time { return day.Add(24 * time.Hour) }
	st, err := s.CheckQuota(ctx, "user-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !st.Allowed || st.Used != 0 {
		t.Errorf("next day: got %+v, want fresh counter", st)
	}
}

func TestPremiumAndTrialBypassLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.UpsertProfile(ctx, "premium-user", "", "", nil, true); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i := 0; i < 10; i++ {
		_ = s.IncrementQuota(ctx, "premium-user")
	}
	st, err := s.CheckQuota(ctx, "premium-user")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !st.Allowed || !st.Unlimited {
		t.Errorf("premium user: got %+v", st)
	}

	// Active trial also bypasses.
	if err := s.UpsertProfile(ctx, "trial-user", "", "", nil, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	ends := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	if _, err := s.db.Exec(`UPDATE profiles SET trial_ends_at = ? WHERE user_id = ?`, ends, "trial-user"); err != nil {
		t.Fatalf("set trial: %v", err)
	}
	for i := 0; i < 10; i++ {
		_ = s.IncrementQuota(ctx, "trial-user")
	}
	st, _ = s.CheckQuota(ctx, "trial-user")
	if !st.Unlimited {
		t.Errorf("trial user: got %+v", st)
	}
}

func TestMemoryOrderingAndCap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	insert := func(content string, confidence float64, at time.Time) {
		err := s.InsertMemory(ctx, MemoryRecord{
			UserID:     "user-1",
			MemoryType: MemoryContext,
			Content:    content,
			Confidence: confidence,
			IsActive:   true,
			CreatedAt:  at,
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	insert("old low", 0.5, base)
	insert("new low", 0.5, base.Add(time.Hour))
	insert("high", 0.9, base)

	got, err := s.ListMemories(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (cap)", len(got))
	}
	if got[0].Content != "high" {
		t.Errorf("first = %q, want highest confidence", got[0].Content)
	}
	if got[1].Content != "new low" {
		t.Errorf("second = %q, want most recent of equal confidence", got[1].Content)
	}
}

func TestHasSimilarMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.InsertMemory(ctx, MemoryRecord{
		UserID:     "user-1",
		MemoryType: MemoryRelationship,
		Content:    "Wife's name is Sarah and she is patient",
		Confidence: 0.9,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	found, err := s.HasSimilarMemory(ctx, "user-1", MemoryRelationship, "wife's name is sarah")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found {
		t.Error("expected case-insensitive prefix overlap to match")
	}

	// Different type does not collide.
	found, _ = s.HasSimilarMemory(ctx, "user-1", MemoryStruggle, "wife's name is sarah")
	if found {
		t.Error("overlap must be scoped to memory_type")
	}

	// Inactive records are ignored.
	err = s.InsertMemory(ctx, MemoryRecord{
		UserID:     "user-1",
		MemoryType: MemoryBelief,
		Content:    "Finds hope in the Psalms",
		IsActive:   false,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	found, _ = s.HasSimilarMemory(ctx, "user-1", MemoryBelief, "finds hope in the psalms")
	if found {
		t.Error("inactive records must not block insertion")
	}
}

func TestGetIntakeProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if p, err := s.GetIntakeProfile(ctx, "nobody"); err != nil || p != nil {
		t.Fatalf("absent profile: got %v, %v", p, err)
	}

	hasKids := true
	in := &IntakeProfile{
		RelationshipStatus: "married",
		HasChildren:        &hasKids,
		CareerStage:        "early_career",
		SpiritualStruggles: []string{"doubt", "anxiety"},
	}
	if err := s.UpsertProfile(ctx, "user-1", "Dan", "", in, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	p, err := s.GetIntakeProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p == nil || p.RelationshipStatus != "married" || p.HasChildren == nil || !*p.HasChildren {
		t.Errorf("got %+v", p)
	}
	if len(p.SpiritualStruggles) != 2 {
		t.Errorf("struggles = %v", p.SpiritualStruggles)
	}
}
