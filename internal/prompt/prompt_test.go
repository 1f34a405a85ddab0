package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lampstand/companion-gateway/internal/config"
	"github.com/lampstand/companion-gateway/internal/contextstore"
)

func baseInput() *Input {
	return &Input{Preferences: DefaultPreferences()}
}

func TestSynthesize_Deterministic(t *testing.T) {
	hasKids := true
	in := &Input{
		Preferences: DefaultPreferences(),
		Profile:     UserProfile{Name: "Miriam", About: "new believer"},
		Intake: &contextstore.IntakeProfile{
			RelationshipStatus: "married",
			HasChildren:        &hasKids,
			CareerStage:        "early_career",
			SpiritualStruggles: []string{"anxiety", "prayer_consistency"},
		},
		Memories: []contextstore.MemoryRecord{
			{MemoryType: contextstore.MemoryStruggle, Content: "Worries about job security"},
			{MemoryType: contextstore.MemoryLifeEvent, Content: "Recently moved cities"},
		},
	}

	first := Synthesize(in)
	second := Synthesize(in)
	assert.Equal(t, first, second, "identical inputs must yield byte-identical output")
}

func TestSynthesize_MinimalInputOmitsOptionalSections(t *testing.T) {
	out := Synthesize(baseInput())

	assert.Contains(t, out, "biblically grounded companion")
	assert.NotContains(t, out, "ABOUT THIS PERSON")
	assert.NotContains(t, out, "THEIR LIFE SITUATION")
	assert.NotContains(t, out, "WHAT YOU REMEMBER")
	assert.Contains(t, out, "DEPTH CONTROL")
	assert.Contains(t, out, "SCRIPTURE CITATIONS")
	assert.Contains(t, out, "CLARIFYING QUESTIONS")
	assert.Contains(t, out, "FINAL DIRECTIVE")
}

func TestSynthesize_StrugglesChangeOnlyStrugglesSection(t *testing.T) {
	mk := func(struggles []string) *Input {
		return &Input{
			Preferences: DefaultPreferences(),
			Intake: &contextstore.IntakeProfile{
				RelationshipStatus: "single",
				SpiritualStruggles: struggles,
			},
		}
	}

	without := Synthesize(mk(nil))
	with := Synthesize(mk([]string{"doubt", "grief"}))

	assert.Contains(t, with, "doubt about faith, grief and loss")
	assert.NotContains(t, without, "spiritual struggle")

	// Everything outside the struggles sentence is unchanged, including order.
	for _, marker := range []string{"DEPTH CONTROL", "SCRIPTURE CITATIONS", "FINAL DIRECTIVE"} {
		assert.Contains(t, without, marker)
		assert.Contains(t, with, marker)
	}
	assert.Less(t, strings.Index(with, "THEIR LIFE SITUATION"), strings.Index(with, "DEPTH CONTROL"))
	assert.Less(t, strings.Index(with, "DEPTH CONTROL"), strings.Index(with, "SCRIPTURE CITATIONS"))
}

func TestSynthesize_RelationshipTemplates(t *testing.T) {
	hasKids := true
	noKids := false
	cases := []struct {
		name    string
		status  string
		kids    *bool
		wantSub string
	}{
		{"married with children", "married", &hasKids, "married with children"},
		{"married without children", "married", &noKids, "without children at home"},
		{"married children unknown", "married", nil, "without children at home"},
		{"single", "single", nil, "waiting room for marriage"},
		{"engaged", "engaged", nil, "engaged to be married"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := &Input{
				Preferences: DefaultPreferences(),
				Intake: &contextstore.IntakeProfile{
					RelationshipStatus: tc.status,
					HasChildren:        tc.kids,
				},
			}
			assert.Contains(t, Synthesize(in), tc.wantSub)
		})
	}
}

func TestSynthesize_CitationPolicyRejectsRanges(t *testing.T) {
	in := baseInput()
	in.Preferences.IncludeScriptureReferences = true
	out := Synthesize(in)

	assert.Contains(t, out, "exactly ONE verse")
	assert.Contains(t, out, `WRONG: "Galatians 5:22-23"`)
	assert.Contains(t, out, `WRONG: "John 3:16-17"`)

	in.Preferences.IncludeScriptureReferences = false
	sparse := Synthesize(in)
	assert.Contains(t, sparse, "Cite sparingly")
	assert.NotContains(t, sparse, "WRONG:")
	// Still single-verse-only.
	assert.Contains(t, sparse, "never a range")
}

func TestSynthesize_ClarifyingPolicyToggle(t *testing.T) {
	in := baseInput()
	in.Preferences.AskClarifyingQuestions = false
	out := Synthesize(in)
	assert.NotContains(t, out, "CLARIFYING QUESTIONS")
}

func TestSynthesize_MemoryRecapGroupsInFirstSeenOrder(t *testing.T) {
	in := baseInput()
	in.Memories = []contextstore.MemoryRecord{
		{MemoryType: contextstore.MemoryBelief, Content: "Finds hope in the Psalms"},
		{MemoryType: contextstore.MemoryLifeEvent, Content: "Started a new job in March"},
		{MemoryType: contextstore.MemoryBelief, Content: "Values expository preaching"},
	}

	out := Synthesize(in)
	require.Contains(t, out, "Beliefs:")
	require.Contains(t, out, "Life events:")
	assert.Less(t, strings.Index(out, "Beliefs:"), strings.Index(out, "Life events:"),
		"categories must keep first-seen order")
	assert.Contains(t, out, "- Finds hope in the Psalms")
	assert.Contains(t, out, "- Values expository preaching")
}

func TestMaxTokensFor_Tiers(t *testing.T) {
	concise := MaxTokensFor(LengthConcise)
	balanced := MaxTokensFor(LengthBalanced)
	detailed := MaxTokensFor(LengthDetailed)

	assert.Less(t, concise, balanced)
	assert.Less(t, balanced, detailed)
	assert.Equal(t, balanced, MaxTokensFor("bogus"), "unknown values fall back to balanced")
	assert.Equal(t, config.MaxTokensConcise, concise)
}

func TestEstimateTokens_NonZero(t *testing.T) {
	n := EstimateTokens("In the beginning God created the heavens and the earth.")
	assert.Greater(t, n, 0)
}
