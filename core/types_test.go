package core

import (
	"testing"
	"time"
)

func TestNewTargetRejectsUnknownKind(t *testing.T) {
	if _, err := NewTarget("badge", "t1", "alice", "Education"); err == nil {
		t.Fatal("expected invalid kind error")
	}
	tgt, err := NewTarget(KindTheme, "t1", "alice", "Education")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if tgt.Level != 1 {
		t.Fatalf("fresh target should start at level 1, got %d", tgt.Level)
	}
}

func TestAddXPAccumulatesBreakdown(t *testing.T) {
	tgt, _ := NewTarget(KindSkill, "s1", "alice", "Writing")
	tgt.XPBySource["quest"] = 12

	tgt.AddXP(30, SourceJournal)
	tgt.AddXP(20, SourceJournal)

	if tgt.XP != 50 {
		t.Fatalf("xp = %v, want 50", tgt.XP)
	}
	if tgt.XPBySource[SourceJournal] != 50 {
		t.Fatalf("journal breakdown = %v, want 50", tgt.XPBySource[SourceJournal])
	}
	// other sources are preserved untouched
	if tgt.XPBySource["quest"] != 12 {
		t.Fatalf("quest breakdown = %v, want 12", tgt.XPBySource["quest"])
	}
}

func TestLevelForXP(t *testing.T) {
	if LevelForXP(0) != 1 || LevelForXP(-5) != 1 {
		t.Fatal("non-positive xp should be level 1")
	}
	if LevelForXP(100) != 2 {
		t.Fatalf("LevelForXP(100) = %d, want 2", LevelForXP(100))
	}
	if LevelForXP(10_000) != 11 {
		t.Fatalf("LevelForXP(10000) = %d, want 11", LevelForXP(10_000))
	}
}

func TestSkillRankOrder(t *testing.T) {
	b, _ := SkillRankOrdinal(RankBeginner)
	m, _ := SkillRankOrdinal(RankMaster)
	if b >= m {
		t.Fatal("Beginner should order below Master")
	}
	if _, ok := SkillRankOrdinal(SkillRank("Grandmaster")); ok {
		t.Fatal("unrecognized rank should not resolve")
	}
	// case-sensitive
	if _, ok := SkillRankOrdinal(SkillRank("master")); ok {
		t.Fatal("rank match should be case-sensitive")
	}
}

func TestSkillRankForLevel(t *testing.T) {
	cases := []struct {
		level int
		want  SkillRank
	}{
		{1, RankBeginner}, {4, RankBeginner}, {5, RankAmateur},
		{10, RankIntermediate}, {20, RankAdvanced}, {30, RankExpert}, {45, RankMaster},
	}
	for _, c := range cases {
		if got := SkillRankForLevel(c.level); got != c.want {
			t.Fatalf("SkillRankForLevel(%d) = %s, want %s", c.level, got, c.want)
		}
	}
}

func TestEffectValueDefault(t *testing.T) {
	e := TitleEffect{Type: EffectXPMultiplier, Scope: ScopeAll, Target: "all"}
	if e.ValueOrDefault() != 1.0 {
		t.Fatal("absent value should default to 1.0")
	}
	e.Value = 1.25
	if e.ValueOrDefault() != 1.25 {
		t.Fatal("explicit value should be returned")
	}
}

func TestParseTargetKey(t *testing.T) {
	kind, id, ok := ParseTargetKey("theme:t1")
	if !ok || kind != KindTheme || id != "t1" {
		t.Fatalf("got %v %v %v", kind, id, ok)
	}
	if _, _, ok := ParseTargetKey("badge:x"); ok {
		t.Fatal("unknown kind should not parse")
	}
	if _, _, ok := ParseTargetKey("noseparator"); ok {
		t.Fatal("malformed key should not parse")
	}
	if _, _, ok := ParseTargetKey("theme:"); ok {
		t.Fatal("empty id should not parse")
	}
}

func TestDetectedTargetWeight(t *testing.T) {
	d := DetectedTarget{ID: "t1", Name: "Education"}
	if d.Weight() != 1.0 {
		t.Fatal("missing confidence should weigh 1.0")
	}
	c := -0.5
	d.Confidence = &c
	if d.Weight() != -0.5 {
		t.Fatal("negative confidence is permitted and returned as-is")
	}
}

func TestGrantExpired(t *testing.T) {
	now := time.Now()
	g := UserTitleGrant{}
	if g.Expired(now) {
		t.Fatal("grant without expiry never expires")
	}
	past := now.Add(-time.Hour)
	g.ExpiresAt = &past
	if !g.Expired(now) {
		t.Fatal("grant past its expiry should be expired")
	}
}

func TestNormalizeUserID(t *testing.T) {
	id, err := NormalizeUserID(" Alice ")
	if err != nil || id != "alice" {
		t.Fatalf("got %v %v", id, err)
	}
	if _, err := NormalizeUserID("   "); err == nil {
		t.Fatal("expected empty error")
	}
}
