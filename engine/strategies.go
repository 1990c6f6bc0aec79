package engine

import (
	"regexp"
	"strings"

	"progresskit/core"
)

// DistributionStrategy allocates a base XP amount across the detected
// targets of one journal entry. Keys in the result map are "kind:id".
// Strategies never mutate state; negative or zero base XP divides like any
// other amount.
type DistributionStrategy interface {
	Name() string
	Distribute(entry core.JournalEntry, targets core.DetectedTargets, baseXP float64) map[string]float64
}

// Strategy names accepted by configuration.
const (
	StrategyEqual        = "equal"
	StrategyWeighted     = "weighted"
	StrategyProportional = "proportional"
)

// StrategyByName resolves a configured strategy name. ok is false for
// unknown names.
func StrategyByName(name string) (DistributionStrategy, bool) {
	switch name {
	case StrategyEqual:
		return EqualSplit{}, true
	case StrategyWeighted:
		return ConfidenceWeighted{}, true
	case StrategyProportional:
		return MentionProportional{}, true
	}
	return nil, false
}

// EqualSplit gives every detected target the same share of the base XP.
type EqualSplit struct{}

func (EqualSplit) Name() string { return StrategyEqual }

func (EqualSplit) Distribute(_ core.JournalEntry, targets core.DetectedTargets, baseXP float64) map[string]float64 {
	n := len(targets.Themes) + len(targets.Skills)
	if n == 0 {
		return map[string]float64{}
	}
	share := baseXP / float64(n)
	out := make(map[string]float64, n)
	for _, t := range targets.Themes {
		out[core.TargetKey(core.KindTheme, t.ID)] = share
	}
	for _, s := range targets.Skills {
		out[core.TargetKey(core.KindSkill, s.ID)] = share
	}
	return out
}

// ConfidenceWeighted splits base XP in proportion to each target's
// detection confidence (1.0 when the detector did not score it). Negative
// weights divide normally; a zero total weight yields nothing.
type ConfidenceWeighted struct{}

func (ConfidenceWeighted) Name() string { return StrategyWeighted }

func (ConfidenceWeighted) Distribute(_ core.JournalEntry, targets core.DetectedTargets, baseXP float64) map[string]float64 {
	var total float64
	for _, t := range targets.Themes {
		total += t.Weight()
	}
	for _, s := range targets.Skills {
		total += s.Weight()
	}
	if total == 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(targets.Themes)+len(targets.Skills))
	for _, t := range targets.Themes {
		out[core.TargetKey(core.KindTheme, t.ID)] = baseXP * t.Weight() / total
	}
	for _, s := range targets.Skills {
		out[core.TargetKey(core.KindSkill, s.ID)] = baseXP * s.Weight() / total
	}
	return out
}

// MentionProportional splits base XP by how often each target's name is
// mentioned in the entry content (case-insensitive, word-boundary
// matching). Targets that are never mentioned, or have no name, get no
// entry at all rather than a zero share.
type MentionProportional struct{}

func (MentionProportional) Name() string { return StrategyProportional }

func (MentionProportional) Distribute(entry core.JournalEntry, targets core.DetectedTargets, baseXP float64) map[string]float64 {
	content := strings.ToLower(entry.Content)

	counts := map[string]int{}
	total := 0
	count := func(kind core.TargetKind, d core.DetectedTarget) {
		if d.Name == "" {
			return
		}
		c := countMentions(content, d.Name)
		if c == 0 {
			return
		}
		counts[core.TargetKey(kind, d.ID)] = c
		total += c
	}
	for _, t := range targets.Themes {
		count(core.KindTheme, t)
	}
	for _, s := range targets.Skills {
		count(core.KindSkill, s)
	}
	if total == 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(counts))
	for key, c := range counts {
		out[key] = baseXP * float64(c) / float64(total)
	}
	return out
}

// countMentions counts word-boundary occurrences of name in the already
// lower-cased content.
func countMentions(content, name string) int {
	pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(name)) + `\b`)
	if err != nil {
		return 0
	}
	return len(pattern.FindAllStringIndex(content, -1))
}
