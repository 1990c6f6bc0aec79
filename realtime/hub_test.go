package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"progresskit/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)

	ev := core.NewXPAwarded("bob", 10, core.SourceJournal, core.KindTheme, "t1")
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.UserID != "bob" || received.Type != core.EventXPAwarded {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestHubSubscribeUserFilters(t *testing.T) {
	h := NewHub()
	id, ch := h.SubscribeUser("alice", 2)
	defer h.Unsubscribe(id)

	h.Broadcast(context.Background(), core.NewXPAwarded("bob", 5, core.SourceJournal, core.KindTheme, "t1"))
	h.Broadcast(context.Background(), core.NewTitleUnlocked("alice", "g1", "scholar", "Scholar", core.RankB))

	received := <-ch
	if received.UserID != "alice" || received.Type != core.EventTitleUnlocked {
		t.Fatalf("unexpected event: %+v", received)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event: %+v", ev)
	default:
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewTitleUnlocked("alice", "g1", "scholar", "Scholar", core.RankB)
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.TitleID != "scholar" || out.TitleRank != core.RankB {
		t.Fatalf("unexpected event: %+v", out)
	}
}
