package engine

import (
	"context"
	"errors"
	"testing"

	mem "progresskit/adapters/memory"
	"progresskit/core"
)

func newEval() *ConditionEvaluator {
	return NewConditionEvaluator(DefaultEvaluators(), nil)
}

func TestEmptyCompounds(t *testing.T) {
	store := mem.New()
	eval := newEval()
	ctx := context.Background()

	ok, err := eval.Evaluate(ctx, store, "alice", core.And())
	if err != nil || !ok {
		t.Fatalf("empty and should be vacuously true; ok=%v err=%v", ok, err)
	}
	ok, err = eval.Evaluate(ctx, store, "alice", core.Or())
	if err != nil || ok {
		t.Fatalf("empty or should be false; ok=%v err=%v", ok, err)
	}
}

func TestUnrecognizedLeafInsideAnd(t *testing.T) {
	store := mem.New()
	eval := newEval()

	node := core.And(core.Leaf("nonexistent", map[string]any{"x": 1}))
	ok, err := eval.Evaluate(context.Background(), store, "alice", node)
	if err != nil {
		t.Fatalf("unrecognized tag must not raise: %v", err)
	}
	if ok {
		t.Fatal("unrecognized tag should evaluate false")
	}
}

func TestTagMatchingIsStrict(t *testing.T) {
	store := mem.New()
	seedEntries(store, "alice", 0, 1, 2)
	eval := newEval()
	ctx := context.Background()

	// exact tag passes
	ok, err := eval.Evaluate(ctx, store, "alice", core.Leaf(TagJournalEntries, map[string]any{"count": 1}))
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	// case mismatch and padded tags are unrecognized, hence false
	for _, tag := range []string{"Journal_Entries", " journal_entries", "journal_entries "} {
		ok, err := eval.Evaluate(ctx, store, "alice", core.Leaf(tag, map[string]any{"count": 1}))
		if err != nil || ok {
			t.Fatalf("tag %q should be unrecognized; ok=%v err=%v", tag, ok, err)
		}
	}
}

func TestMissingStructuralFieldIsFatal(t *testing.T) {
	store := mem.New()
	eval := newEval()
	ctx := context.Background()

	var msf *core.MissingStructuralFieldError
	for _, node := range []core.ConditionNode{
		{Type: core.TagAnd, Fields: map[string]any{}},
		{Type: core.TagOr, Fields: map[string]any{}},
		{Type: core.TagNot, Fields: map[string]any{}},
	} {
		_, err := eval.Evaluate(ctx, store, "alice", node)
		if !errors.As(err, &msf) {
			t.Fatalf("node %q: want MissingStructuralFieldError, got %v", node.Type, err)
		}
	}
}

func TestLeafErrorPropagatesThroughCompound(t *testing.T) {
	store := mem.New()
	eval := newEval()

	node := core.And(core.Leaf(TagJournalStreak, nil)) // missing "days"
	_, err := eval.Evaluate(context.Background(), store, "alice", node)
	var mf *core.MissingFieldError
	if !errors.As(err, &mf) {
		t.Fatalf("want MissingFieldError out of the compound, got %v", err)
	}
}

func TestDeMorgan(t *testing.T) {
	store := mem.New()
	seedEntries(store, "alice", 0, 1)
	seedTarget(t, store, "alice", core.KindTheme, "t1", "Education", 50)
	eval := newEval()
	ctx := context.Background()

	p := core.Leaf(TagJournalEntries, map[string]any{"count": 1})  // true
	q := core.Leaf(TagThemeLevel, map[string]any{"theme": "Education", "level": 99}) // false

	for _, pair := range [][2]core.ConditionNode{{p, q}, {p, p}, {q, q}} {
		a, b := pair[0], pair[1]

		lhs, err := eval.Evaluate(ctx, store, "alice", core.Not(core.And(a, b)))
		if err != nil {
			t.Fatal(err)
		}
		rhs, err := eval.Evaluate(ctx, store, "alice", core.Or(core.Not(a), core.Not(b)))
		if err != nil {
			t.Fatal(err)
		}
		if lhs != rhs {
			t.Fatalf("De Morgan violated: not(and)=%v or(not,not)=%v", lhs, rhs)
		}

		ab, err := eval.Evaluate(ctx, store, "alice", core.And(a, b))
		if err != nil {
			t.Fatal(err)
		}
		ba, err := eval.Evaluate(ctx, store, "alice", core.And(b, a))
		if err != nil {
			t.Fatal(err)
		}
		if ab != ba {
			t.Fatalf("and should be commutative: %v vs %v", ab, ba)
		}
	}
}

func TestNestedTree(t *testing.T) {
	store := mem.New()
	seedEntries(store, "alice", 0, 1, 2)
	seedTarget(t, store, "alice", core.KindSkill, "s1", "Writing", 3_000) // level 6, Amateur
	eval := newEval()

	node := core.And(
		core.Leaf(TagJournalStreak, map[string]any{"days": 3}),
		core.Or(
			core.Leaf(TagSkillRank, map[string]any{"rank": "Master"}),
			core.Not(core.Leaf(TagQuestCompleted, map[string]any{"quest_id": "q1"})),
		),
	)
	ok, err := eval.Evaluate(context.Background(), store, "alice", node)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want true", ok, err)
	}
}
