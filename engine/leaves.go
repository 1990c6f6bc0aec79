package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"progresskit/core"
)

// Leaf condition type tags understood by the default evaluator set.
const (
	TagJournalStreak   = "journal_streak"
	TagThemeLevel      = "theme_level"
	TagThemeXP         = "theme_xp"
	TagSkillLevel      = "skill_level"
	TagTotalXP         = "total_xp"
	TagQuestsCompleted = "quests_completed"
	TagQuestCompleted  = "quest_completed"
	TagSkillRank       = "skill_rank"
	TagJournalEntries  = "journal_entries"
	TagActiveDays      = "active_days"
)

// LeafEvaluator answers one concrete fact about a user. Implementations
// validate their required payload fields before touching state; a missing
// field is a core.MissingFieldError, not a false result.
type LeafEvaluator interface {
	Tag() string
	Evaluate(ctx context.Context, state StateReader, user core.UserID, cond core.ConditionNode) (bool, error)
}

// EvaluatorSet is the finite set of leaf evaluators available to a
// condition evaluator. It is immutable after construction and passed
// explicitly, never registered globally.
type EvaluatorSet struct {
	leaves map[string]LeafEvaluator
}

// NewEvaluatorSet builds a set from explicit evaluators. Later duplicates
// of a tag win.
func NewEvaluatorSet(evals ...LeafEvaluator) *EvaluatorSet {
	s := &EvaluatorSet{leaves: make(map[string]LeafEvaluator, len(evals))}
	for _, e := range evals {
		s.leaves[e.Tag()] = e
	}
	return s
}

// DefaultEvaluators returns the full built-in evaluator set.
func DefaultEvaluators() *EvaluatorSet {
	return NewEvaluatorSet(
		streakEvaluator{},
		targetLevelEvaluator{tag: TagThemeLevel, kind: core.KindTheme, nameField: "theme"},
		targetLevelEvaluator{tag: TagSkillLevel, kind: core.KindSkill, nameField: "skill"},
		themeXPEvaluator{},
		totalXPEvaluator{},
		questsCompletedEvaluator{},
		questCompletedEvaluator{},
		skillRankEvaluator{},
		entryCountEvaluator{},
		activeDaysEvaluator{},
	)
}

// Leaf returns the evaluator registered for tag. Tags are case-sensitive
// exact matches.
func (s *EvaluatorSet) Leaf(tag string) (LeafEvaluator, bool) {
	e, ok := s.leaves[tag]
	return e, ok
}

// Tags returns the registered tags in sorted order.
func (s *EvaluatorSet) Tags() []string {
	tags := make([]string, 0, len(s.leaves))
	for t := range s.leaves {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// distinctDays reduces entries to their distinct UTC calendar dates,
// sorted ascending.
func distinctDays(entries []core.JournalEntry) []time.Time {
	seen := make(map[time.Time]struct{}, len(entries))
	for _, e := range entries {
		y, m, d := e.CreatedAt.UTC().Date()
		seen[time.Date(y, m, d, 0, 0, 0, 0, time.UTC)] = struct{}{}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// streakEvaluator checks the longest run of consecutive journaling days.
type streakEvaluator struct{}

func (streakEvaluator) Tag() string { return TagJournalStreak }

func (streakEvaluator) Evaluate(ctx context.Context, state StateReader, user core.UserID, cond core.ConditionNode) (bool, error) {
	required, err := cond.Int("days")
	if err != nil {
		return false, err
	}
	entries, err := state.ListEntries(ctx, user)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}
	days := distinctDays(entries)
	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
	}
	return longest >= required, nil
}

// targetLevelEvaluator checks the level of one named theme or skill.
type targetLevelEvaluator struct {
	tag       string
	kind      core.TargetKind
	nameField string
}

func (e targetLevelEvaluator) Tag() string { return e.tag }

func (e targetLevelEvaluator) Evaluate(ctx context.Context, state StateReader, user core.UserID, cond core.ConditionNode) (bool, error) {
	name, err := cond.String(e.nameField)
	if err != nil {
		return false, err
	}
	required, err := cond.Int("level")
	if err != nil {
		return false, err
	}
	tgt, err := state.GetTarget(ctx, user, e.kind, name)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tgt.Level >= required, nil
}

// themeXPEvaluator checks the accumulated XP of one named theme.
type themeXPEvaluator struct{}

func (themeXPEvaluator) Tag() string { return TagThemeXP }

func (themeXPEvaluator) Evaluate(ctx context.Context, state StateReader, user core.UserID, cond core.ConditionNode) (bool, error) {
	name, err := cond.String("theme")
	if err != nil {
		return false, err
	}
	required, err := cond.Float("xp")
	if err != nil {
		return false, err
	}
	tgt, err := state.GetTarget(ctx, user, core.KindTheme, name)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tgt.XP >= required, nil
}

// totalXPEvaluator sums XP across all themes. A user with no themes at all
// fails the check regardless of threshold; legitimately-zero XP on existing
// themes still compares.
type totalXPEvaluator struct{}

func (totalXPEvaluator) Tag() string { return TagTotalXP }

func (totalXPEvaluator) Evaluate(ctx context.Context, state StateReader, user core.UserID, cond core.ConditionNode) (bool, error) {
	required, err := cond.Float("amount")
	if err != nil {
		return false, err
	}
	themes, err := state.ListTargets(ctx, user, core.KindTheme)
	if err != nil {
		return false, err
	}
	if len(themes) == 0 {
		return false, nil
	}
	var total float64
	for _, t := range themes {
		total += t.XP
	}
	return total >= required, nil
}

// questsCompletedEvaluator counts completed quests, distinguishing "no
// quest records at all" from "quests exist but none completed".
type questsCompletedEvaluator struct{}

func (questsCompletedEvaluator) Tag() string { return TagQuestsCompleted }

func (questsCompletedEvaluator) Evaluate(ctx context.Context, state StateReader, user core.UserID, cond core.ConditionNode) (bool, error) {
	required, err := cond.Int("count")
	if err != nil {
		return false, err
	}
	completed, err := state.CountQuests(ctx, user, core.QuestCompleted)
	if err != nil {
		return false, err
	}
	if completed == 0 {
		total, err := state.CountQuests(ctx, user, "")
		if err != nil {
			return false, err
		}
		if total == 0 {
			return false, nil
		}
	}
	return completed >= required, nil
}

// questCompletedEvaluator checks a single quest by id.
type questCompletedEvaluator struct{}

func (questCompletedEvaluator) Tag() string { return TagQuestCompleted }

func (questCompletedEvaluator) Evaluate(ctx context.Context, state StateReader, user core.UserID, cond core.ConditionNode) (bool, error) {
	questID, err := cond.String("quest_id")
	if err != nil {
		return false, err
	}
	quest, err := state.GetQuest(ctx, user, questID)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return quest.Status == core.QuestCompleted, nil
}

// skillRankEvaluator checks whether any skill has reached the required
// proficiency tier. An unrecognized required rank is false, not an error.
type skillRankEvaluator struct{}

func (skillRankEvaluator) Tag() string { return TagSkillRank }

func (skillRankEvaluator) Evaluate(ctx context.Context, state StateReader, user core.UserID, cond core.ConditionNode) (bool, error) {
	rank, err := cond.String("rank")
	if err != nil {
		return false, err
	}
	required, ok := core.SkillRankOrdinal(core.SkillRank(rank))
	if !ok {
		return false, nil
	}
	skills, err := state.ListTargets(ctx, user, core.KindSkill)
	if err != nil {
		return false, err
	}
	for _, s := range skills {
		if ord, ok := core.SkillRankOrdinal(s.Rank()); ok && ord >= required {
			return true, nil
		}
	}
	return false, nil
}

// entryCountEvaluator checks the raw journal entry count. Zero entries is
// false even when the required count is zero.
type entryCountEvaluator struct{}

func (entryCountEvaluator) Tag() string { return TagJournalEntries }

func (entryCountEvaluator) Evaluate(ctx context.Context, state StateReader, user core.UserID, cond core.ConditionNode) (bool, error) {
	required, err := cond.Int("count")
	if err != nil {
		return false, err
	}
	entries, err := state.ListEntries(ctx, user)
	if err != nil {
		return false, err
	}
	return len(entries) > 0 && len(entries) >= required, nil
}

// activeDaysEvaluator counts distinct calendar dates with an entry, with no
// consecutiveness requirement.
type activeDaysEvaluator struct{}

func (activeDaysEvaluator) Tag() string { return TagActiveDays }

func (activeDaysEvaluator) Evaluate(ctx context.Context, state StateReader, user core.UserID, cond core.ConditionNode) (bool, error) {
	required, err := cond.Int("days")
	if err != nil {
		return false, err
	}
	entries, err := state.ListEntries(ctx, user)
	if err != nil {
		return false, err
	}
	return len(distinctDays(entries)) >= required, nil
}
