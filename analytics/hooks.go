package analytics

import (
	"context"
	"sync"
	"time"

	"progresskit/core"
)

// Hook receives progression events for KPI aggregation. The signature
// matches engine.EventBus handlers.
type Hook interface {
	OnEvent(ctx context.Context, e core.Event)
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DAU tracks daily active users, counting anyone who earned XP that day.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(_ context.Context, e core.Event) {
	if e.Type != core.EventXPAwarded {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := day(e.Time)
	m := d.days[key]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[key] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// XPMetrics aggregates awarded XP by day and by target kind.
type XPMetrics struct {
	mu     sync.Mutex
	byDay  map[string]float64
	byKind map[core.TargetKind]float64
}

func NewXPMetrics() *XPMetrics {
	return &XPMetrics{
		byDay:  map[string]float64{},
		byKind: map[core.TargetKind]float64{},
	}
}

func (m *XPMetrics) OnEvent(_ context.Context, e core.Event) {
	if e.Type != core.EventXPAwarded {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDay[day(e.Time)] += e.Amount
	m.byKind[e.TargetKind] += e.Amount
}

func (m *XPMetrics) ByDay(day string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byDay[day]
}

func (m *XPMetrics) ByKind(kind core.TargetKind) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKind[kind]
}

// TitleMetrics counts unlocked titles by rank and tracks unique holders.
type TitleMetrics struct {
	mu      sync.Mutex
	byRank  map[core.TitleRank]int
	holders map[string]map[core.UserID]struct{}
}

func NewTitleMetrics() *TitleMetrics {
	return &TitleMetrics{
		byRank:  map[core.TitleRank]int{},
		holders: map[string]map[core.UserID]struct{}{},
	}
}

func (m *TitleMetrics) OnEvent(_ context.Context, e core.Event) {
	if e.Type != core.EventTitleUnlocked {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRank[e.TitleRank]++
	h := m.holders[e.TitleID]
	if h == nil {
		h = map[core.UserID]struct{}{}
		m.holders[e.TitleID] = h
	}
	h[e.UserID] = struct{}{}
}

func (m *TitleMetrics) CountByRank(rank core.TitleRank) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byRank[rank]
}

func (m *TitleMetrics) Holders(titleID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.holders[titleID])
}
