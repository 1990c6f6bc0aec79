package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a user in the progression domain.
type UserID string

// TargetKind discriminates the two kinds of progression targets.
type TargetKind string

const (
	KindTheme TargetKind = "theme"
	KindSkill TargetKind = "skill"
)

// SourceJournal is the XP source key for journal-driven awards.
const SourceJournal = "journal"

// ErrNotFound is returned by storage adapters for absent records.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a uniqueness constraint would be
// violated, e.g. a second grant of the same title to one user.
var ErrAlreadyExists = errors.New("already exists")

// TitleRank is the ordinal rank of a title, F (lowest) through S.
type TitleRank string

const (
	RankF TitleRank = "F"
	RankE TitleRank = "E"
	RankD TitleRank = "D"
	RankC TitleRank = "C"
	RankB TitleRank = "B"
	RankA TitleRank = "A"
	RankS TitleRank = "S"
)

// SkillRank is a named proficiency tier with a fixed strict total order.
type SkillRank string

const (
	RankBeginner     SkillRank = "Beginner"
	RankAmateur      SkillRank = "Amateur"
	RankIntermediate SkillRank = "Intermediate"
	RankAdvanced     SkillRank = "Advanced"
	RankExpert       SkillRank = "Expert"
	RankMaster       SkillRank = "Master"
)

var skillRankOrder = map[SkillRank]int{
	RankBeginner:     0,
	RankAmateur:      1,
	RankIntermediate: 2,
	RankAdvanced:     3,
	RankExpert:       4,
	RankMaster:       5,
}

// SkillRankOrdinal returns the position of r in the rank order.
// ok is false for unrecognized ranks.
func SkillRankOrdinal(r SkillRank) (int, bool) {
	ord, ok := skillRankOrder[r]
	return ord, ok
}

// SkillRankForLevel maps a skill level to its proficiency tier.
func SkillRankForLevel(level int) SkillRank {
	switch {
	case level >= 40:
		return RankMaster
	case level >= 30:
		return RankExpert
	case level >= 20:
		return RankAdvanced
	case level >= 10:
		return RankIntermediate
	case level >= 5:
		return RankAmateur
	default:
		return RankBeginner
	}
}

// EffectScope limits which targets a title effect can apply to.
type EffectScope string

const (
	ScopeTheme EffectScope = "theme"
	ScopeSkill EffectScope = "skill"
	ScopeAll   EffectScope = "all"
)

// EffectXPMultiplier is the only effect type the engine consumes.
const EffectXPMultiplier = "xp_multiplier"

// TitleEffect describes the passive bonus a title carries.
type TitleEffect struct {
	Type   string      `json:"type" yaml:"type"`
	Scope  EffectScope `json:"scope,omitempty" yaml:"scope,omitempty"`
	Target string      `json:"target,omitempty" yaml:"target,omitempty"`
	Value  float64     `json:"value,omitempty" yaml:"value,omitempty"`
}

// ValueOrDefault returns the multiplier value, defaulting to 1.0 when unset.
func (e TitleEffect) ValueOrDefault() float64 {
	if e.Value == 0 {
		return 1.0
	}
	return e.Value
}

// TitleDefinition is an externally authored, unlockable achievement.
type TitleDefinition struct {
	ID              string        `json:"id" yaml:"id"`
	Name            string        `json:"name" yaml:"name"`
	Rank            TitleRank     `json:"rank" yaml:"rank"`
	Category        string        `json:"category,omitempty" yaml:"category,omitempty"`
	Hidden          bool          `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Effect          TitleEffect   `json:"effect,omitempty" yaml:"effect,omitempty"`
	UnlockCondition ConditionNode `json:"unlock_condition,omitempty" yaml:"unlock_condition,omitempty"`
}

// UserTitleGrant records ownership of a title by a user.
// A user owns at most one grant per title id.
type UserTitleGrant struct {
	ID         string     `json:"id"`
	UserID     UserID     `json:"user_id"`
	TitleID    string     `json:"title_id"`
	AcquiredAt time.Time  `json:"acquired_at"`
	Equipped   bool       `json:"equipped"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the grant has lapsed at the given instant.
func (g UserTitleGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// ProgressionTarget is a theme or skill owned by a user. XP accumulates
// additively; the per-source breakdown is never reset or overwritten
// wholesale.
type ProgressionTarget struct {
	Kind       TargetKind         `json:"kind"`
	ID         string             `json:"id"`
	UserID     UserID             `json:"user_id"`
	Name       string             `json:"name"`
	XP         float64            `json:"xp"`
	Level      int                `json:"level"`
	XPBySource map[string]float64 `json:"xp_by_source,omitempty"`
}

// NewTarget constructs a target, rejecting kinds outside theme/skill.
func NewTarget(kind TargetKind, id string, user UserID, name string) (ProgressionTarget, error) {
	if kind != KindTheme && kind != KindSkill {
		return ProgressionTarget{}, fmt.Errorf("invalid target kind %q", kind)
	}
	return ProgressionTarget{
		Kind:       kind,
		ID:         id,
		UserID:     user,
		Name:       name,
		Level:      LevelForXP(0),
		XPBySource: map[string]float64{},
	}, nil
}

// AddXP accumulates amount into the target under the given source key and
// applies the target's own leveling rule. Negative amounts are applied as-is.
func (t *ProgressionTarget) AddXP(amount float64, source string) {
	t.XP += amount
	if t.XPBySource == nil {
		t.XPBySource = map[string]float64{}
	}
	t.XPBySource[source] += amount
	t.Level = LevelForXP(t.XP)
}

// Rank derives the proficiency tier from the target's level. Only
// meaningful for skills.
func (t ProgressionTarget) Rank() SkillRank {
	return SkillRankForLevel(t.Level)
}

// Clone returns a deep copy of the target.
func (t ProgressionTarget) Clone() ProgressionTarget {
	cp := t
	cp.XPBySource = make(map[string]float64, len(t.XPBySource))
	for k, v := range t.XPBySource {
		cp.XPBySource[k] = v
	}
	return cp
}

// LevelForXP computes a level from accumulated XP using a sublinear curve:
// level = floor(sqrt(xp)/10) + 1, at least 1.
func LevelForXP(xp float64) int {
	if xp <= 0 {
		return 1
	}
	lvl := int(math.Floor(math.Sqrt(xp)/10.0)) + 1
	if lvl < 1 {
		return 1
	}
	return lvl
}

// XPAward is one computed allocation from a processed journal event.
// The amount is post-multiplier and may be zero or negative.
type XPAward struct {
	Kind     TargetKind `json:"kind"`
	TargetID string     `json:"target_id"`
	Name     string     `json:"name"`
	Amount   float64    `json:"amount"`
}

// JournalEntry is one journal record as seen by the engine.
type JournalEntry struct {
	ID        string    `json:"id"`
	UserID    UserID    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestStatus enumerates quest record states.
type QuestStatus string

const (
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
	QuestAbandoned QuestStatus = "abandoned"
)

// Quest is a quest record scoped to a user.
type Quest struct {
	ID     string      `json:"id"`
	UserID UserID      `json:"user_id"`
	Name   string      `json:"name,omitempty"`
	Status QuestStatus `json:"status"`
}

// DetectedTarget is one theme or skill the categorization step found in an
// entry. Confidence is nil when the detector did not score the match.
type DetectedTarget struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Weight returns the detection confidence, defaulting to 1.0 when unset.
func (d DetectedTarget) Weight() float64 {
	if d.Confidence == nil {
		return 1.0
	}
	return *d.Confidence
}

// DetectedTargets is the per-entry detection result handed to the engine.
type DetectedTargets struct {
	Themes []DetectedTarget `json:"themes"`
	Skills []DetectedTarget `json:"skills"`
}

// Empty reports whether no targets were detected.
func (d DetectedTargets) Empty() bool {
	return len(d.Themes) == 0 && len(d.Skills) == 0
}

// TargetKey builds the "kind:id" key used by distribution strategies.
func TargetKey(kind TargetKind, id string) string {
	return string(kind) + ":" + id
}

// ParseTargetKey splits a "kind:id" strategy key. ok is false when the key
// is malformed or names an unknown kind.
func ParseTargetKey(key string) (TargetKind, string, bool) {
	kind, id, found := strings.Cut(key, ":")
	if !found || id == "" {
		return "", "", false
	}
	switch TargetKind(kind) {
	case KindTheme, KindSkill:
		return TargetKind(kind), id, true
	}
	return "", "", false
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}
