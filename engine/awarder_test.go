package engine

import (
	"context"
	"testing"

	mem "progresskit/adapters/memory"
	"progresskit/core"
)

func newAwarder(store *mem.Store) (*TitleAwarder, *EventBus) {
	bus := NewEventBus(DispatchSync)
	return NewTitleAwarder(store, bus, nil, nil), bus
}

func putStreakTitle(store *mem.Store, id string, rank core.TitleRank, days int) {
	store.PutTitle(core.TitleDefinition{
		ID:   id,
		Name: id,
		Rank: rank,
		UnlockCondition: core.Leaf(TagJournalStreak, map[string]any{
			"days": days,
		}),
	})
}

func TestCheckUnlocksGrantsAndAutoEquips(t *testing.T) {
	store := mem.New()
	seedEntries(store, "alice", 0, 1, 2)
	putStreakTitle(store, "habitual", core.RankD, 3)   // satisfied
	putStreakTitle(store, "relentless", core.RankB, 30) // not satisfied
	awarder, bus := newAwarder(store)

	var events []core.Event
	bus.Subscribe(core.EventTitleUnlocked, func(_ context.Context, e core.Event) {
		events = append(events, e)
	})

	created, err := awarder.CheckUnlocks(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 || created[0].TitleID != "habitual" {
		t.Fatalf("created = %+v", created)
	}
	if !created[0].Equipped {
		t.Fatal("first-ever title must auto-equip")
	}
	if len(events) != 1 {
		t.Fatalf("want one unlock event, got %d", len(events))
	}
	ev := events[0]
	if ev.UserID != "alice" || ev.TitleID != "habitual" || ev.TitleName != "habitual" || ev.TitleRank != core.RankD || ev.GrantID != created[0].ID {
		t.Fatalf("event = %+v", ev)
	}
}

func TestCheckUnlocksIsIdempotent(t *testing.T) {
	store := mem.New()
	seedEntries(store, "alice", 0, 1)
	putStreakTitle(store, "habitual", core.RankD, 2)
	awarder, _ := newAwarder(store)

	first, err := awarder.CheckUnlocks(context.Background(), "alice")
	if err != nil || len(first) != 1 {
		t.Fatalf("first = %+v err = %v", first, err)
	}
	second, err := awarder.CheckUnlocks(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("second call must grant nothing, got %+v", second)
	}
}

func TestSubsequentGrantsNotEquipped(t *testing.T) {
	store := mem.New()
	seedEntries(store, "alice", 0, 1, 2, 3, 4)
	putStreakTitle(store, "starter", core.RankF, 2)
	putStreakTitle(store, "keeper", core.RankD, 5)
	awarder, _ := newAwarder(store)

	created, err := awarder.CheckUnlocks(context.Background(), "alice")
	if err != nil || len(created) != 2 {
		t.Fatalf("created = %+v err = %v", created, err)
	}
	if !created[0].Equipped {
		t.Fatal("first grant should auto-equip")
	}
	if created[1].Equipped {
		t.Fatal("second grant should default to unequipped")
	}
}

func TestEmptyConditionNeverUnlocks(t *testing.T) {
	store := mem.New()
	seedEntries(store, "alice", 0)
	store.PutTitle(core.TitleDefinition{ID: "secret", Name: "Secret", Rank: core.RankS})
	awarder, _ := newAwarder(store)

	created, err := awarder.CheckUnlocks(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 0 {
		t.Fatalf("empty unlock condition must never grant, got %+v", created)
	}
}

func TestMalformedConditionSkipsDefinition(t *testing.T) {
	store := mem.New()
	seedEntries(store, "alice", 0, 1)
	// missing required "days" field: evaluation fails, definition is skipped
	store.PutTitle(core.TitleDefinition{
		ID: "broken", Name: "Broken", Rank: core.RankC,
		UnlockCondition: core.Leaf(TagJournalStreak, map[string]any{}),
	})
	// the rest of the batch still evaluates
	putStreakTitle(store, "habitual", core.RankD, 2)
	awarder, _ := newAwarder(store)

	created, err := awarder.CheckUnlocks(context.Background(), "alice")
	if err != nil {
		t.Fatalf("a malformed definition must not abort the batch: %v", err)
	}
	if len(created) != 1 || created[0].TitleID != "habitual" {
		t.Fatalf("created = %+v", created)
	}
}

func TestUnrecognizedConditionTagIsQuietlyFalse(t *testing.T) {
	store := mem.New()
	store.PutTitle(core.TitleDefinition{
		ID: "mystery", Name: "Mystery", Rank: core.RankA,
		UnlockCondition: core.Leaf("nonexistent", map[string]any{"value": 1}),
	})
	awarder, _ := newAwarder(store)

	created, err := awarder.CheckUnlocks(context.Background(), "alice")
	if err != nil || len(created) != 0 {
		t.Fatalf("created = %+v err = %v", created, err)
	}
}

func TestManualGrant(t *testing.T) {
	store := mem.New()
	store.PutTitle(core.TitleDefinition{ID: "patron", Name: "Patron", Rank: core.RankA})
	awarder, bus := newAwarder(store)

	var events []core.Event
	bus.Subscribe(core.EventTitleUnlocked, func(_ context.Context, e core.Event) {
		events = append(events, e)
	})

	g, err := awarder.Grant(context.Background(), "alice", "patron")
	if err != nil {
		t.Fatal(err)
	}
	if !g.Equipped {
		t.Fatal("first manual grant should auto-equip")
	}

	// granting again is a no-op returning the existing grant
	again, err := awarder.Grant(context.Background(), "alice", "patron")
	if err != nil || again.ID != g.ID {
		t.Fatalf("again = %+v err = %v", again, err)
	}
	if len(events) != 1 {
		t.Fatalf("repeat grant must not publish, got %d events", len(events))
	}
}

func TestManualGrantEquipOverride(t *testing.T) {
	store := mem.New()
	store.PutTitle(core.TitleDefinition{ID: "patron", Name: "Patron", Rank: core.RankA})
	awarder, _ := newAwarder(store)

	g, err := awarder.Grant(context.Background(), "alice", "patron", WithEquipped(false))
	if err != nil {
		t.Fatal(err)
	}
	if g.Equipped {
		t.Fatal("override should win over the first-title rule")
	}
}

func TestManualGrantMissingTitleUsesSentinel(t *testing.T) {
	store := mem.New()
	awarder, bus := newAwarder(store)

	var events []core.Event
	bus.Subscribe(core.EventTitleUnlocked, func(_ context.Context, e core.Event) {
		events = append(events, e)
	})

	if _, err := awarder.Grant(context.Background(), "alice", "ghost"); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("want one event, got %d", len(events))
	}
	if events[0].TitleName != "Unknown Title" || events[0].TitleRank != core.RankF {
		t.Fatalf("sentinel not applied: %+v", events[0])
	}
}
