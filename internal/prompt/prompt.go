// Package prompt assembles the layered system instruction document for the
// companion model.
//
// DESIGN: Assembly is an ordered list of predicate+renderer pairs evaluated
// once per request, not nested string concatenation. Section order is fixed;
// each section is independently optional based on data presence. Synthesize is
// a pure function of its inputs, so identical inputs always produce
// byte-identical output.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lampstand/companion-gateway/internal/config"
	"github.com/lampstand/companion-gateway/internal/contextstore"
)

// Response length preferences.
const (
	LengthConcise  = "concise"
	LengthBalanced = "balanced"
	LengthDetailed = "detailed"
)

// Preferences are the caller-supplied behavioral switches, already normalized
// to their defaults (balanced, references on, clarifying questions on).
type Preferences struct {
	ResponseLength             string
	IncludeScriptureReferences bool
	AskClarifyingQuestions     bool
}

// DefaultPreferences returns the documented defaults.
func DefaultPreferences() Preferences {
	return Preferences{
		ResponseLength:             LengthBalanced,
		IncludeScriptureReferences: true,
		AskClarifyingQuestions:     true,
	}
}

// UserProfile is free-text identity context supplied by the caller.
type UserProfile struct {
	Name  string
	About string
}

// Input carries everything the synthesizer consumes.
type Input struct {
	Preferences Preferences
	Profile     UserProfile
	Intake      *contextstore.IntakeProfile
	Memories    []contextstore.MemoryRecord
}

// MaxTokensFor maps the response-length preference to the upstream
// generation-length parameter. Unknown values get the balanced tier.
func MaxTokensFor(length string) int {
	switch length {
	case LengthConcise:
		return config.MaxTokensConcise
	case LengthDetailed:
		return config.MaxTokensDetailed
	default:
		return config.MaxTokensBalanced
	}
}

type section struct {
	name    string
	applies func(*Input) bool
	render  func(*Input) string
}

func always(*Input) bool { return true }

var sections = []section{
	{"persona", always, func(*Input) string { return personaHeader }},
	{"identity", hasIdentity, renderIdentity},
	{"life_situation", hasIntake, renderLifeSituation},
	{"memory_recap", hasMemories, renderMemoryRecap},
	{"depth_policy", always, func(*Input) string { return depthPolicy }},
	{"length_directive", always, renderLengthDirective},
	{"citation_policy", always, renderCitationPolicy},
	{"clarifying_policy", func(in *Input) bool { return in.Preferences.AskClarifyingQuestions },
		func(*Input) string { return clarifyingPolicy }},
	{"closing", always, func(*Input) string { return closingGuidance }},
}

// Synthesize builds the system prompt document. Malformed or absent optional
// inputs degrade to omitted sections, never to an error.
func Synthesize(in *Input) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s.applies(in) {
			parts = append(parts, s.render(in))
		}
	}
	return strings.Join(parts, "\n\n")
}

// =============================================================================
// Section predicates and renderers
// =============================================================================

func hasIdentity(in *Input) bool {
	return strings.TrimSpace(in.Profile.Name) != "" || strings.TrimSpace(in.Profile.About) != ""
}

func renderIdentity(in *Input) string {
	var b strings.Builder
	b.WriteString("ABOUT THIS PERSON\n")
	if name := strings.TrimSpace(in.Profile.Name); name != "" {
		fmt.Fprintf(&b, "Their name is %s. Address them by name naturally, the way a trusted mentor would, without overusing it.\n", name)
	}
	if about := strings.TrimSpace(in.Profile.About); about != "" {
		fmt.Fprintf(&b, "In their own words: %s\n", about)
	}
	b.WriteString("Speak to them directly and personally, never about \"users\" in the abstract.")
	return b.String()
}

func hasIntake(in *Input) bool {
	return !in.Intake.Empty()
}

func renderLifeSituation(in *Input) string {
	var b strings.Builder
	b.WriteString("THEIR LIFE SITUATION\n")

	switch in.Intake.RelationshipStatus {
	case "married":
		if in.Intake.HasChildren != nil && *in.Intake.HasChildren {
			b.WriteString(marriedWithChildrenTemplate)
		} else {
			b.WriteString(marriedTemplate)
		}
	case "single":
		b.WriteString(singleTemplate)
	case "engaged":
		b.WriteString(engagedTemplate)
	}

	if tmpl, ok := careerStageTemplates[in.Intake.CareerStage]; ok {
		b.WriteString("\n")
		b.WriteString(tmpl)
	}

	if len(in.Intake.SpiritualStruggles) > 0 {
		labels := make([]string, 0, len(in.Intake.SpiritualStruggles))
		for _, code := range in.Intake.SpiritualStruggles {
			labels = append(labels, struggleLabel(code))
		}
		fmt.Fprintf(&b, "\nIn their intake survey they named these areas of spiritual struggle: %s. "+
			"Hold these gently. Do not bring them up unprompted in every answer, but let them inform "+
			"the scripture and encouragement you choose when the conversation touches them.",
			strings.Join(labels, ", "))
	}

	return strings.TrimRight(b.String(), "\n")
}

func struggleLabel(code string) string {
	if label, ok := struggleLabels[code]; ok {
		return label
	}
	return strings.ReplaceAll(code, "_", " ")
}

func hasMemories(in *Input) bool {
	return len(in.Memories) > 0
}

func renderMemoryRecap(in *Input) string {
	// Group by type, preserving first-seen order of categories.
	order := make([]contextstore.MemoryType, 0, 7)
	groups := make(map[contextstore.MemoryType][]string)
	for _, m := range in.Memories {
		if _, seen := groups[m.MemoryType]; !seen {
			order = append(order, m.MemoryType)
		}
		groups[m.MemoryType] = append(groups[m.MemoryType], m.Content)
	}

	var b strings.Builder
	b.WriteString("WHAT YOU REMEMBER ABOUT THEM\n")
	b.WriteString("From earlier conversations you know the following. Reference these naturally when relevant, ")
	b.WriteString("as a friend who remembers would. Never recite this list back, and never claim to remember something not on it.\n")
	for _, t := range order {
		fmt.Fprintf(&b, "\n%s:\n", memoryTypeLabel(t))
		for _, content := range groups[t] {
			fmt.Fprintf(&b, "- %s\n", content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func memoryTypeLabel(t contextstore.MemoryType) string {
	if label, ok := memoryTypeLabels[t]; ok {
		return label
	}
	return string(t)
}

func renderLengthDirective(in *Input) string {
	if d, ok := lengthDirectives[in.Preferences.ResponseLength]; ok {
		return d
	}
	return lengthDirectives[LengthBalanced]
}

func renderCitationPolicy(in *Input) string {
	if in.Preferences.IncludeScriptureReferences {
		return citationPolicyFull
	}
	return citationPolicySparse
}

// StruggleCodes returns the known struggle codes in sorted order, for
// validation surfaces and docs.
func StruggleCodes() []string {
	codes := make([]string, 0, len(struggleLabels))
	for c := range struggleLabels {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
