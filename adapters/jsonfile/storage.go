package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"progresskit/core"
	"progresskit/engine"
)

var _ engine.Storage = (*Store)(nil)

// Store persists entire progression state to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	users  map[core.UserID]*userState
	titles []core.TitleDefinition
}

type userState struct {
	Targets []core.ProgressionTarget `json:"targets"`
	Entries []core.JournalEntry      `json:"entries"`
	Quests  []core.Quest             `json:"quests"`
	Grants  []core.UserTitleGrant    `json:"grants"`
}

type fileState struct {
	Titles []core.TitleDefinition     `json:"titles"`
	Users  map[core.UserID]*userState `json:"users"`
}

func New(path string) (*Store, error) {
	s := &Store{path: path, users: map[core.UserID]*userState{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw fileState
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.titles = raw.Titles
	for k, v := range raw.Users {
		s.users[k] = v
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := fileState{Titles: s.titles, Users: s.users}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) get(user core.UserID) *userState {
	if st, ok := s.users[user]; ok {
		return st
	}
	st := &userState{}
	s.users[user] = st
	return st
}

// PutTarget seeds or replaces a progression target and persists.
func (s *Store) PutTarget(target core.ProgressionTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(target.UserID)
	for i, t := range st.Targets {
		if t.Kind == target.Kind && t.ID == target.ID {
			st.Targets[i] = target.Clone()
			return s.persist()
		}
	}
	st.Targets = append(st.Targets, target.Clone())
	return s.persist()
}

// AddEntry seeds a journal entry and persists.
func (s *Store) AddEntry(entry core.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(entry.UserID)
	st.Entries = append(st.Entries, entry)
	return s.persist()
}

// PutQuest seeds or replaces a quest record and persists.
func (s *Store) PutQuest(quest core.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(quest.UserID)
	for i, q := range st.Quests {
		if q.ID == quest.ID {
			st.Quests[i] = quest
			return s.persist()
		}
	}
	st.Quests = append(st.Quests, quest)
	return s.persist()
}

// PutTitle seeds or replaces a title definition and persists.
func (s *Store) PutTitle(def core.TitleDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.titles {
		if t.ID == def.ID {
			s.titles[i] = def
			return s.persist()
		}
	}
	s.titles = append(s.titles, def)
	return s.persist()
}

func (s *Store) GetTarget(_ context.Context, user core.UserID, kind core.TargetKind, name string) (core.ProgressionTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.get(user).Targets {
		if t.Kind == kind && t.Name == name {
			return t.Clone(), nil
		}
	}
	return core.ProgressionTarget{}, core.ErrNotFound
}

func (s *Store) GetTargetByID(_ context.Context, user core.UserID, kind core.TargetKind, id string) (core.ProgressionTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.get(user).Targets {
		if t.Kind == kind && t.ID == id {
			return t.Clone(), nil
		}
	}
	return core.ProgressionTarget{}, core.ErrNotFound
}

func (s *Store) ListTargets(_ context.Context, user core.UserID, kind core.TargetKind) ([]core.ProgressionTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ProgressionTarget
	for _, t := range s.get(user).Targets {
		if t.Kind == kind {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *Store) AddXP(_ context.Context, user core.UserID, kind core.TargetKind, id string, amount float64, source string) (core.ProgressionTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(user)
	for i := range st.Targets {
		t := &st.Targets[i]
		if t.Kind == kind && t.ID == id {
			t.AddXP(amount, source)
			if err := s.persist(); err != nil {
				return core.ProgressionTarget{}, err
			}
			return t.Clone(), nil
		}
	}
	return core.ProgressionTarget{}, core.ErrNotFound
}

func (s *Store) ListEntries(_ context.Context, user core.UserID) ([]core.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(user)
	out := make([]core.JournalEntry, len(st.Entries))
	copy(out, st.Entries)
	return out, nil
}

func (s *Store) CountQuests(_ context.Context, user core.UserID, status core.QuestStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(user)
	if status == "" {
		return len(st.Quests), nil
	}
	n := 0
	for _, q := range st.Quests {
		if q.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetQuest(_ context.Context, user core.UserID, id string) (core.Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.get(user).Quests {
		if q.ID == id {
			return q, nil
		}
	}
	return core.Quest{}, core.ErrNotFound
}

func (s *Store) ListTitles(_ context.Context) ([]core.TitleDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.TitleDefinition, len(s.titles))
	copy(out, s.titles)
	return out, nil
}

func (s *Store) GetTitle(_ context.Context, id string) (core.TitleDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.titles {
		if t.ID == id {
			return t, nil
		}
	}
	return core.TitleDefinition{}, core.ErrNotFound
}

func (s *Store) ListGrants(_ context.Context, user core.UserID) ([]core.UserTitleGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(user)
	out := make([]core.UserTitleGrant, len(st.Grants))
	copy(out, st.Grants)
	return out, nil
}

func (s *Store) ListEquippedGrants(_ context.Context, user core.UserID) ([]core.UserTitleGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.UserTitleGrant
	for _, g := range s.get(user).Grants {
		if g.Equipped {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) CreateGrant(_ context.Context, grant core.UserTitleGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(grant.UserID)
	for _, g := range st.Grants {
		if g.TitleID == grant.TitleID {
			return core.ErrAlreadyExists
		}
	}
	st.Grants = append(st.Grants, grant)
	return s.persist()
}

func (s *Store) SetEquipped(_ context.Context, user core.UserID, titleID string, equipped bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(user)
	for i := range st.Grants {
		if st.Grants[i].TitleID == titleID {
			st.Grants[i].Equipped = equipped
			return s.persist()
		}
	}
	return core.ErrNotFound
}
