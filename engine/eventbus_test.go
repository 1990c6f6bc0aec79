package engine

import (
	"context"
	"testing"
	"time"

	"progresskit/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewXPAwarded("u", 5, core.SourceJournal, core.KindTheme, "t1"))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync, WithWorkers(2), WithQueueSize(64))
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventTitleUnlocked, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewTitleUnlocked("u", "g1", "t1", "Scholar", core.RankC))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	cancel := bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { count++ })
	cancel()
	bus.Publish(context.Background(), core.NewXPAwarded("u", 5, core.SourceJournal, core.KindSkill, "s1"))
	if count != 0 {
		t.Fatalf("want 0 got %d", count)
	}
}
