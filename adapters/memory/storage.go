package memory

import (
	"context"
	"sync"

	"progresskit/core"
)

// Store is a concurrent in-memory Storage implementation, suitable for
// tests and demos. Reads return deep copies.
type Store struct {
	users sync.Map // map[core.UserID]*userRecord

	titleMu sync.RWMutex
	titles  map[string]core.TitleDefinition
	// preserves definition order for deterministic unlock checks
	titleOrder []string
}

type userRecord struct {
	mu      sync.Mutex
	targets map[core.TargetKind]map[string]core.ProgressionTarget
	entries []core.JournalEntry
	quests  map[string]core.Quest
	grants  map[string]core.UserTitleGrant // keyed by title id
}

func New() *Store {
	return &Store{titles: map[string]core.TitleDefinition{}}
}

func (s *Store) getOrCreate(user core.UserID) *userRecord {
	if v, ok := s.users.Load(user); ok {
		return v.(*userRecord)
	}
	rec := &userRecord{
		targets: map[core.TargetKind]map[string]core.ProgressionTarget{
			core.KindTheme: {},
			core.KindSkill: {},
		},
		quests: map[string]core.Quest{},
		grants: map[string]core.UserTitleGrant{},
	}
	actual, _ := s.users.LoadOrStore(user, rec)
	return actual.(*userRecord)
}

// PutTarget seeds or replaces a progression target.
func (s *Store) PutTarget(target core.ProgressionTarget) {
	rec := s.getOrCreate(target.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.targets[target.Kind][target.ID] = target.Clone()
}

// AddEntry seeds a journal entry.
func (s *Store) AddEntry(entry core.JournalEntry) {
	rec := s.getOrCreate(entry.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.entries = append(rec.entries, entry)
}

// PutQuest seeds or replaces a quest record.
func (s *Store) PutQuest(quest core.Quest) {
	rec := s.getOrCreate(quest.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.quests[quest.ID] = quest
}

// PutTitle seeds or replaces a title definition.
func (s *Store) PutTitle(def core.TitleDefinition) {
	s.titleMu.Lock()
	defer s.titleMu.Unlock()
	if _, exists := s.titles[def.ID]; !exists {
		s.titleOrder = append(s.titleOrder, def.ID)
	}
	s.titles[def.ID] = def
}

func (s *Store) GetTarget(_ context.Context, user core.UserID, kind core.TargetKind, name string) (core.ProgressionTarget, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, t := range rec.targets[kind] {
		if t.Name == name {
			return t.Clone(), nil
		}
	}
	return core.ProgressionTarget{}, core.ErrNotFound
}

func (s *Store) GetTargetByID(_ context.Context, user core.UserID, kind core.TargetKind, id string) (core.ProgressionTarget, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if t, ok := rec.targets[kind][id]; ok {
		return t.Clone(), nil
	}
	return core.ProgressionTarget{}, core.ErrNotFound
}

func (s *Store) ListTargets(_ context.Context, user core.UserID, kind core.TargetKind) ([]core.ProgressionTarget, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]core.ProgressionTarget, 0, len(rec.targets[kind]))
	for _, t := range rec.targets[kind] {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (s *Store) AddXP(_ context.Context, user core.UserID, kind core.TargetKind, id string, amount float64, source string) (core.ProgressionTarget, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	t, ok := rec.targets[kind][id]
	if !ok {
		return core.ProgressionTarget{}, core.ErrNotFound
	}
	t.AddXP(amount, source)
	rec.targets[kind][id] = t
	return t.Clone(), nil
}

func (s *Store) ListEntries(_ context.Context, user core.UserID) ([]core.JournalEntry, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]core.JournalEntry, len(rec.entries))
	copy(out, rec.entries)
	return out, nil
}

func (s *Store) CountQuests(_ context.Context, user core.UserID, status core.QuestStatus) (int, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if status == "" {
		return len(rec.quests), nil
	}
	n := 0
	for _, q := range rec.quests {
		if q.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetQuest(_ context.Context, user core.UserID, id string) (core.Quest, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if q, ok := rec.quests[id]; ok {
		return q, nil
	}
	return core.Quest{}, core.ErrNotFound
}

func (s *Store) ListTitles(_ context.Context) ([]core.TitleDefinition, error) {
	s.titleMu.RLock()
	defer s.titleMu.RUnlock()
	out := make([]core.TitleDefinition, 0, len(s.titleOrder))
	for _, id := range s.titleOrder {
		out = append(out, s.titles[id])
	}
	return out, nil
}

func (s *Store) GetTitle(_ context.Context, id string) (core.TitleDefinition, error) {
	s.titleMu.RLock()
	defer s.titleMu.RUnlock()
	if def, ok := s.titles[id]; ok {
		return def, nil
	}
	return core.TitleDefinition{}, core.ErrNotFound
}

func (s *Store) ListGrants(_ context.Context, user core.UserID) ([]core.UserTitleGrant, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]core.UserTitleGrant, 0, len(rec.grants))
	for _, g := range rec.grants {
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) ListEquippedGrants(_ context.Context, user core.UserID) ([]core.UserTitleGrant, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var out []core.UserTitleGrant
	for _, g := range rec.grants {
		if g.Equipped {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) CreateGrant(_ context.Context, grant core.UserTitleGrant) error {
	rec := s.getOrCreate(grant.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, exists := rec.grants[grant.TitleID]; exists {
		return core.ErrAlreadyExists
	}
	rec.grants[grant.TitleID] = grant
	return nil
}

func (s *Store) SetEquipped(_ context.Context, user core.UserID, titleID string, equipped bool) error {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	g, ok := rec.grants[titleID]
	if !ok {
		return core.ErrNotFound
	}
	g.Equipped = equipped
	rec.grants[titleID] = g
	return nil
}
