package leaderboard

import (
	"context"
	"sync"

	"progresskit/core"
)

// Tracker accumulates per-user XP totals from awarded events and mirrors
// them into a Board. Wire it to an event bus with a subscription on
// core.EventXPAwarded.
type Tracker struct {
	board  Board
	mu     sync.Mutex
	totals map[core.UserID]float64
}

func NewTracker(board Board) *Tracker {
	return &Tracker{board: board, totals: map[core.UserID]float64{}}
}

// OnEvent applies an xp.awarded event. Other event types are ignored.
// The signature matches engine.EventBus handlers.
func (t *Tracker) OnEvent(_ context.Context, ev core.Event) {
	if ev.Type != core.EventXPAwarded {
		return
	}
	t.mu.Lock()
	t.totals[ev.UserID] += ev.Amount
	total := t.totals[ev.UserID]
	t.mu.Unlock()
	t.board.Update(ev.UserID, total)
}

// Total returns the accumulated XP seen for a user.
func (t *Tracker) Total(user core.UserID) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals[user]
}
