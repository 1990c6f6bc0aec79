package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"progresskit/core"
)

func TestStorePersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	tgt, err := core.NewTarget(core.KindTheme, "t1", "alice", "Education")
	if err != nil {
		t.Fatalf("new target: %v", err)
	}
	if err := store.PutTarget(tgt); err != nil {
		t.Fatalf("put target: %v", err)
	}
	updated, err := store.AddXP(ctx, "alice", core.KindTheme, "t1", 150, core.SourceJournal)
	if err != nil || updated.XP != 150 {
		t.Fatalf("add xp: target=%+v err=%v", updated, err)
	}
	if err := store.PutTitle(core.TitleDefinition{ID: "scholar", Name: "Scholar", Rank: core.RankB}); err != nil {
		t.Fatalf("put title: %v", err)
	}
	if err := store.CreateGrant(ctx, core.UserTitleGrant{ID: "g1", UserID: "alice", TitleID: "scholar", Equipped: true}); err != nil {
		t.Fatalf("create grant: %v", err)
	}

	// ensure file written
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s", path)
	}

	// reload
	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	got, err := reloaded.GetTargetByID(ctx, "alice", core.KindTheme, "t1")
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	if got.XP != 150 || got.Level != 2 {
		t.Fatalf("expected xp 150 level 2, got %+v", got)
	}
	if got.XPBySource[core.SourceJournal] != 150 {
		t.Fatalf("expected source breakdown to survive reload, got %+v", got.XPBySource)
	}

	def, err := reloaded.GetTitle(ctx, "scholar")
	if err != nil || def.Rank != core.RankB {
		t.Fatalf("get title: def=%+v err=%v", def, err)
	}
	equipped, err := reloaded.ListEquippedGrants(ctx, "alice")
	if err != nil || len(equipped) != 1 || equipped[0].TitleID != "scholar" {
		t.Fatalf("equipped grants: %+v err=%v", equipped, err)
	}
}

func TestStoreDuplicateGrant(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	g := core.UserTitleGrant{ID: "g1", UserID: "bob", TitleID: "pioneer"}
	if err := store.CreateGrant(ctx, g); err != nil {
		t.Fatalf("create grant: %v", err)
	}
	g.ID = "g2"
	if err := store.CreateGrant(ctx, g); err != core.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}
