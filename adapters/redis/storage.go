package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"progresskit/core"
	"progresskit/engine"

	"github.com/redis/go-redis/v9"
)

var _ engine.Storage = (*Store)(nil)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements the engine.Storage interface using Redis as the backend.
// Data structure:
// - user:{user_id}:target:{kind}:{id} -> JSON blob of ProgressionTarget
// - user:{user_id}:entries -> list of JSON journal entries
// - user:{user_id}:quests -> hash of quest id -> JSON quest
// - user:{user_id}:grants -> hash of title id -> JSON grant
// - titles -> hash of title id -> JSON definition
// - titles:order -> list of title ids in insertion order
type Store struct {
	client *redis.Client
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func targetKey(userID core.UserID, kind core.TargetKind, id string) string {
	return fmt.Sprintf("user:%s:target:%s:%s", userID, kind, id)
}

func targetPattern(userID core.UserID, kind core.TargetKind) string {
	return fmt.Sprintf("user:%s:target:%s:*", userID, kind)
}

func entriesKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:entries", userID)
}

func questsKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:quests", userID)
}

func grantsKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:grants", userID)
}

const (
	titlesKey     = "titles"
	titleOrderKey = "titles:order"
)

// Lua script for atomic XP accumulation. Decodes the stored target,
// applies the delta to the total and the per-source breakdown, recomputes
// the level with the same sqrt curve as core.LevelForXP, and writes the
// blob back in one step.
var addXPScript = redis.NewScript(`
	local key = KEYS[1]
	local delta = tonumber(ARGV[1])
	local source = ARGV[2]
	local raw = redis.call('GET', key)
	if not raw then
		return redis.error_reply('target not found')
	end
	local t = cjson.decode(raw)
	t['xp'] = (t['xp'] or 0) + delta
	local by = t['xp_by_source']
	if type(by) ~= 'table' then
		by = {}
	end
	by[source] = (by[source] or 0) + delta
	t['xp_by_source'] = by
	if t['xp'] <= 0 then
		t['level'] = 1
	else
		t['level'] = math.floor(math.sqrt(t['xp']) / 10) + 1
	end
	raw = cjson.encode(t)
	redis.call('SET', key, raw)
	return raw
`)

// PutTarget seeds or replaces a progression target.
func (s *Store) PutTarget(ctx context.Context, target core.ProgressionTarget) error {
	b, err := json.Marshal(target)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, targetKey(target.UserID, target.Kind, target.ID), b, 0).Err()
}

// AddEntry appends a journal entry.
func (s *Store) AddEntry(ctx context.Context, entry core.JournalEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, entriesKey(entry.UserID), b).Err()
}

// PutQuest seeds or replaces a quest record.
func (s *Store) PutQuest(ctx context.Context, quest core.Quest) error {
	b, err := json.Marshal(quest)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, questsKey(quest.UserID), quest.ID, b).Err()
}

// PutTitle seeds or replaces a title definition, preserving first-seen order.
func (s *Store) PutTitle(ctx context.Context, def core.TitleDefinition) error {
	b, err := json.Marshal(def)
	if err != nil {
		return err
	}
	existed, err := s.client.HExists(ctx, titlesKey, def.ID).Result()
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, titlesKey, def.ID, b).Err(); err != nil {
		return err
	}
	if !existed {
		return s.client.RPush(ctx, titleOrderKey, def.ID).Err()
	}
	return nil
}

func (s *Store) GetTarget(ctx context.Context, userID core.UserID, kind core.TargetKind, name string) (core.ProgressionTarget, error) {
	targets, err := s.ListTargets(ctx, userID, kind)
	if err != nil {
		return core.ProgressionTarget{}, err
	}
	for _, t := range targets {
		if t.Name == name {
			return t, nil
		}
	}
	return core.ProgressionTarget{}, core.ErrNotFound
}

func (s *Store) GetTargetByID(ctx context.Context, userID core.UserID, kind core.TargetKind, id string) (core.ProgressionTarget, error) {
	data, err := s.client.Get(ctx, targetKey(userID, kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ProgressionTarget{}, core.ErrNotFound
		}
		return core.ProgressionTarget{}, fmt.Errorf("failed to get target: %w", err)
	}
	var t core.ProgressionTarget
	if err := json.Unmarshal(data, &t); err != nil {
		return core.ProgressionTarget{}, err
	}
	return t, nil
}

func (s *Store) ListTargets(ctx context.Context, userID core.UserID, kind core.TargetKind) ([]core.ProgressionTarget, error) {
	keys, err := s.client.Keys(ctx, targetPattern(userID, kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list target keys: %w", err)
	}
	var out []core.ProgressionTarget
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue // key expired between KEYS and GET
		}
		var t core.ProgressionTarget
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// AddXP atomically applies an XP delta to a stored target.
func (s *Store) AddXP(ctx context.Context, userID core.UserID, kind core.TargetKind, id string, amount float64, source string) (core.ProgressionTarget, error) {
	key := targetKey(userID, kind, id)
	result, err := addXPScript.Run(ctx, s.client, []string{key}, amount, source).Result()
	if err != nil {
		if strings.Contains(err.Error(), "target not found") {
			return core.ProgressionTarget{}, core.ErrNotFound
		}
		return core.ProgressionTarget{}, fmt.Errorf("failed to add xp: %w", err)
	}
	raw, ok := result.(string)
	if !ok {
		return core.ProgressionTarget{}, errors.New("unexpected result type from Redis script")
	}
	var t core.ProgressionTarget
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return core.ProgressionTarget{}, err
	}
	return t, nil
}

func (s *Store) ListEntries(ctx context.Context, userID core.UserID) ([]core.JournalEntry, error) {
	raws, err := s.client.LRange(ctx, entriesKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	out := make([]core.JournalEntry, 0, len(raws))
	for _, raw := range raws {
		var e core.JournalEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) CountQuests(ctx context.Context, userID core.UserID, status core.QuestStatus) (int, error) {
	raws, err := s.client.HVals(ctx, questsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count quests: %w", err)
	}
	if status == "" {
		return len(raws), nil
	}
	n := 0
	for _, raw := range raws {
		var q core.Quest
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			continue
		}
		if q.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetQuest(ctx context.Context, userID core.UserID, id string) (core.Quest, error) {
	data, err := s.client.HGet(ctx, questsKey(userID), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Quest{}, core.ErrNotFound
		}
		return core.Quest{}, fmt.Errorf("failed to get quest: %w", err)
	}
	var q core.Quest
	if err := json.Unmarshal(data, &q); err != nil {
		return core.Quest{}, err
	}
	return q, nil
}

func (s *Store) ListTitles(ctx context.Context) ([]core.TitleDefinition, error) {
	ids, err := s.client.LRange(ctx, titleOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list title order: %w", err)
	}
	out := make([]core.TitleDefinition, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.HGet(ctx, titlesKey, id).Bytes()
		if err != nil {
			continue
		}
		var def core.TitleDefinition
		if err := json.Unmarshal(data, &def); err != nil {
			continue
		}
		out = append(out, def)
	}
	return out, nil
}

func (s *Store) GetTitle(ctx context.Context, id string) (core.TitleDefinition, error) {
	data, err := s.client.HGet(ctx, titlesKey, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.TitleDefinition{}, core.ErrNotFound
		}
		return core.TitleDefinition{}, fmt.Errorf("failed to get title: %w", err)
	}
	var def core.TitleDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return core.TitleDefinition{}, err
	}
	return def, nil
}

func (s *Store) ListGrants(ctx context.Context, userID core.UserID) ([]core.UserTitleGrant, error) {
	raws, err := s.client.HVals(ctx, grantsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	out := make([]core.UserTitleGrant, 0, len(raws))
	for _, raw := range raws {
		var g core.UserTitleGrant
		if err := json.Unmarshal([]byte(raw), &g); err != nil {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) ListEquippedGrants(ctx context.Context, userID core.UserID) ([]core.UserTitleGrant, error) {
	grants, err := s.ListGrants(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []core.UserTitleGrant
	for _, g := range grants {
		if g.Equipped {
			out = append(out, g)
		}
	}
	return out, nil
}

// CreateGrant stores a grant keyed by title id. HSETNX keeps the
// operation atomic so a user can never hold the same title twice.
func (s *Store) CreateGrant(ctx context.Context, grant core.UserTitleGrant) error {
	b, err := json.Marshal(grant)
	if err != nil {
		return err
	}
	created, err := s.client.HSetNX(ctx, grantsKey(grant.UserID), grant.TitleID, b).Result()
	if err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}
	if !created {
		return core.ErrAlreadyExists
	}
	return nil
}

func (s *Store) SetEquipped(ctx context.Context, userID core.UserID, titleID string, equipped bool) error {
	key := grantsKey(userID)
	data, err := s.client.HGet(ctx, key, titleID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ErrNotFound
		}
		return fmt.Errorf("failed to get grant: %w", err)
	}
	var g core.UserTitleGrant
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	g.Equipped = equipped
	b, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, key, titleID, b).Err()
}
