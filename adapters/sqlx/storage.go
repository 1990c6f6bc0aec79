// Package sqlx provides a SQL-backed Storage implementation on top of
// jmoiron/sqlx. Postgres and MySQL are supported.
package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"progresskit/core"
	"progresskit/engine"
)

var _ engine.Storage = (*Store)(nil)

// Driver selects the SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration
type Config struct {
	Driver          Driver        `json:"driver"`
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// DefaultConfig returns sensible defaults for SQL configuration
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements the engine.Storage interface over a relational database.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens a database connection with the provided configuration.
func New(config Config) (*Store, error) {
	db, err := sqlx.Open(string(config.Driver), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewWithDB(db, config.Driver), nil
}

// NewWithDB wraps an existing sqlx handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Schema returns the DDL statements for the store's tables. Callers run
// these through their own migration tooling.
func Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS progression_targets (
			user_id    VARCHAR(128) NOT NULL,
			kind       VARCHAR(16)  NOT NULL,
			target_id  VARCHAR(128) NOT NULL,
			name       VARCHAR(255) NOT NULL,
			xp         DOUBLE PRECISION NOT NULL DEFAULT 0,
			level      INT NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id, kind, target_id)
		)`,
		`CREATE TABLE IF NOT EXISTS target_xp_sources (
			user_id    VARCHAR(128) NOT NULL,
			kind       VARCHAR(16)  NOT NULL,
			target_id  VARCHAR(128) NOT NULL,
			source     VARCHAR(64)  NOT NULL,
			xp         DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, kind, target_id, source)
		)`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			id         VARCHAR(128) PRIMARY KEY,
			user_id    VARCHAR(128) NOT NULL,
			content    TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS quests (
			id      VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			name    VARCHAR(255) NOT NULL DEFAULT '',
			status  VARCHAR(32)  NOT NULL,
			PRIMARY KEY (user_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS titles (
			id               VARCHAR(128) PRIMARY KEY,
			name             VARCHAR(255) NOT NULL,
			title_rank       VARCHAR(4)   NOT NULL,
			category         VARCHAR(64)  NOT NULL DEFAULT '',
			hidden           BOOLEAN      NOT NULL DEFAULT FALSE,
			effect           TEXT,
			unlock_condition TEXT,
			position         INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS title_grants (
			id          VARCHAR(128) PRIMARY KEY,
			user_id     VARCHAR(128) NOT NULL,
			title_id    VARCHAR(128) NOT NULL,
			acquired_at TIMESTAMP NOT NULL,
			equipped    BOOLEAN   NOT NULL DEFAULT FALSE,
			expires_at  TIMESTAMP NULL,
			UNIQUE (user_id, title_id)
		)`,
	}
}

type targetRow struct {
	UserID core.UserID     `db:"user_id"`
	Kind   core.TargetKind `db:"kind"`
	ID     string          `db:"target_id"`
	Name   string          `db:"name"`
	XP     float64         `db:"xp"`
	Level  int             `db:"level"`
}

type sourceRow struct {
	Source string  `db:"source"`
	XP     float64 `db:"xp"`
}

type titleRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Rank      core.TitleRank `db:"title_rank"`
	Category  string         `db:"category"`
	Hidden    bool           `db:"hidden"`
	Effect    []byte         `db:"effect"`
	Condition []byte         `db:"unlock_condition"`
}

type grantRow struct {
	ID         string       `db:"id"`
	UserID     core.UserID  `db:"user_id"`
	TitleID    string       `db:"title_id"`
	AcquiredAt sql.NullTime `db:"acquired_at"`
	Equipped   bool         `db:"equipped"`
	ExpiresAt  sql.NullTime `db:"expires_at"`
}

func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

func (s *Store) targetFromRow(ctx context.Context, q sqlx.QueryerContext, row targetRow) (core.ProgressionTarget, error) {
	t := core.ProgressionTarget{
		Kind:       row.Kind,
		ID:         row.ID,
		UserID:     row.UserID,
		Name:       row.Name,
		XP:         row.XP,
		Level:      row.Level,
		XPBySource: map[string]float64{},
	}
	var sources []sourceRow
	err := sqlx.SelectContext(ctx, q, &sources,
		s.rebind(`SELECT source, xp FROM target_xp_sources WHERE user_id = ? AND kind = ? AND target_id = ?`),
		row.UserID, row.Kind, row.ID)
	if err != nil {
		return core.ProgressionTarget{}, fmt.Errorf("failed to load xp sources: %w", err)
	}
	for _, src := range sources {
		t.XPBySource[src.Source] = src.XP
	}
	return t, nil
}

// PutTarget seeds or replaces a progression target.
func (s *Store) PutTarget(ctx context.Context, target core.ProgressionTarget) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.GetContext(ctx, &exists,
		s.rebind(`SELECT EXISTS (SELECT 1 FROM progression_targets WHERE user_id = ? AND kind = ? AND target_id = ?)`),
		target.UserID, target.Kind, target.ID)
	if err != nil {
		return fmt.Errorf("failed to check target: %w", err)
	}
	if exists {
		_, err = tx.ExecContext(ctx,
			s.rebind(`UPDATE progression_targets SET name = ?, xp = ?, level = ? WHERE user_id = ? AND kind = ? AND target_id = ?`),
			target.Name, target.XP, target.Level, target.UserID, target.Kind, target.ID)
	} else {
		_, err = tx.ExecContext(ctx,
			s.rebind(`INSERT INTO progression_targets (user_id, kind, target_id, name, xp, level) VALUES (?, ?, ?, ?, ?, ?)`),
			target.UserID, target.Kind, target.ID, target.Name, target.XP, target.Level)
	}
	if err != nil {
		return fmt.Errorf("failed to store target: %w", err)
	}
	return tx.Commit()
}

// AddEntry appends a journal entry.
func (s *Store) AddEntry(ctx context.Context, entry core.JournalEntry) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO journal_entries (id, user_id, content, created_at) VALUES (?, ?, ?, ?)`),
		entry.ID, entry.UserID, entry.Content, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}
	return nil
}

// PutQuest seeds or replaces a quest record.
func (s *Store) PutQuest(ctx context.Context, quest core.Quest) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.GetContext(ctx, &exists,
		s.rebind(`SELECT EXISTS (SELECT 1 FROM quests WHERE user_id = ? AND id = ?)`),
		quest.UserID, quest.ID)
	if err != nil {
		return fmt.Errorf("failed to check quest: %w", err)
	}
	if exists {
		_, err = tx.ExecContext(ctx,
			s.rebind(`UPDATE quests SET name = ?, status = ? WHERE user_id = ? AND id = ?`),
			quest.Name, quest.Status, quest.UserID, quest.ID)
	} else {
		_, err = tx.ExecContext(ctx,
			s.rebind(`INSERT INTO quests (id, user_id, name, status) VALUES (?, ?, ?, ?)`),
			quest.ID, quest.UserID, quest.Name, quest.Status)
	}
	if err != nil {
		return fmt.Errorf("failed to store quest: %w", err)
	}
	return tx.Commit()
}

// PutTitle seeds or replaces a title definition, preserving first-seen order.
func (s *Store) PutTitle(ctx context.Context, def core.TitleDefinition) error {
	effect, err := json.Marshal(def.Effect)
	if err != nil {
		return err
	}
	cond, err := json.Marshal(def.UnlockCondition)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.GetContext(ctx, &exists,
		s.rebind(`SELECT EXISTS (SELECT 1 FROM titles WHERE id = ?)`), def.ID)
	if err != nil {
		return fmt.Errorf("failed to check title: %w", err)
	}
	if exists {
		_, err = tx.ExecContext(ctx,
			s.rebind(`UPDATE titles SET name = ?, title_rank = ?, category = ?, hidden = ?, effect = ?, unlock_condition = ? WHERE id = ?`),
			def.Name, def.Rank, def.Category, def.Hidden, effect, cond, def.ID)
	} else {
		_, err = tx.ExecContext(ctx,
			s.rebind(`INSERT INTO titles (id, name, title_rank, category, hidden, effect, unlock_condition, position)
				SELECT ?, ?, ?, ?, ?, ?, ?, COALESCE(MAX(position), 0) + 1 FROM titles`),
			def.ID, def.Name, def.Rank, def.Category, def.Hidden, effect, cond)
	}
	if err != nil {
		return fmt.Errorf("failed to store title: %w", err)
	}
	return tx.Commit()
}

func (s *Store) GetTarget(ctx context.Context, userID core.UserID, kind core.TargetKind, name string) (core.ProgressionTarget, error) {
	var row targetRow
	err := s.db.GetContext(ctx, &row,
		s.rebind(`SELECT user_id, kind, target_id, name, xp, level FROM progression_targets WHERE user_id = ? AND kind = ? AND name = ?`),
		userID, kind, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ProgressionTarget{}, core.ErrNotFound
		}
		return core.ProgressionTarget{}, fmt.Errorf("failed to get target: %w", err)
	}
	return s.targetFromRow(ctx, s.db, row)
}

func (s *Store) GetTargetByID(ctx context.Context, userID core.UserID, kind core.TargetKind, id string) (core.ProgressionTarget, error) {
	var row targetRow
	err := s.db.GetContext(ctx, &row,
		s.rebind(`SELECT user_id, kind, target_id, name, xp, level FROM progression_targets WHERE user_id = ? AND kind = ? AND target_id = ?`),
		userID, kind, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ProgressionTarget{}, core.ErrNotFound
		}
		return core.ProgressionTarget{}, fmt.Errorf("failed to get target: %w", err)
	}
	return s.targetFromRow(ctx, s.db, row)
}

func (s *Store) ListTargets(ctx context.Context, userID core.UserID, kind core.TargetKind) ([]core.ProgressionTarget, error) {
	var rows []targetRow
	err := s.db.SelectContext(ctx, &rows,
		s.rebind(`SELECT user_id, kind, target_id, name, xp, level FROM progression_targets WHERE user_id = ? AND kind = ? ORDER BY target_id`),
		userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	out := make([]core.ProgressionTarget, 0, len(rows))
	for _, row := range rows {
		t, err := s.targetFromRow(ctx, s.db, row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// AddXP applies an XP delta inside a transaction, keeping the total, the
// level, and the per-source breakdown consistent.
func (s *Store) AddXP(ctx context.Context, userID core.UserID, kind core.TargetKind, id string, amount float64, source string) (core.ProgressionTarget, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.ProgressionTarget{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var row targetRow
	err = tx.GetContext(ctx, &row,
		s.rebind(`SELECT user_id, kind, target_id, name, xp, level FROM progression_targets WHERE user_id = ? AND kind = ? AND target_id = ? FOR UPDATE`),
		userID, kind, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ProgressionTarget{}, core.ErrNotFound
		}
		return core.ProgressionTarget{}, fmt.Errorf("failed to get target: %w", err)
	}

	row.XP += amount
	row.Level = core.LevelForXP(row.XP)

	_, err = tx.ExecContext(ctx,
		s.rebind(`UPDATE progression_targets SET xp = ?, level = ? WHERE user_id = ? AND kind = ? AND target_id = ?`),
		row.XP, row.Level, userID, kind, id)
	if err != nil {
		return core.ProgressionTarget{}, fmt.Errorf("failed to update target: %w", err)
	}

	var current float64
	err = tx.GetContext(ctx, &current,
		s.rebind(`SELECT xp FROM target_xp_sources WHERE user_id = ? AND kind = ? AND target_id = ? AND source = ?`),
		userID, kind, id, source)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			s.rebind(`INSERT INTO target_xp_sources (user_id, kind, target_id, source, xp) VALUES (?, ?, ?, ?, ?)`),
			userID, kind, id, source, amount)
	case err == nil:
		_, err = tx.ExecContext(ctx,
			s.rebind(`UPDATE target_xp_sources SET xp = ? WHERE user_id = ? AND kind = ? AND target_id = ? AND source = ?`),
			current+amount, userID, kind, id, source)
	}
	if err != nil {
		return core.ProgressionTarget{}, fmt.Errorf("failed to update xp source: %w", err)
	}

	t, err := s.targetFromRow(ctx, tx, row)
	if err != nil {
		return core.ProgressionTarget{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.ProgressionTarget{}, err
	}
	return t, nil
}

func (s *Store) ListEntries(ctx context.Context, userID core.UserID) ([]core.JournalEntry, error) {
	rows := []struct {
		ID        string       `db:"id"`
		UserID    core.UserID  `db:"user_id"`
		Content   string       `db:"content"`
		CreatedAt sql.NullTime `db:"created_at"`
	}{}
	err := s.db.SelectContext(ctx, &rows,
		s.rebind(`SELECT id, user_id, content, created_at FROM journal_entries WHERE user_id = ? ORDER BY created_at`),
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	out := make([]core.JournalEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.JournalEntry{ID: r.ID, UserID: r.UserID, Content: r.Content, CreatedAt: r.CreatedAt.Time})
	}
	return out, nil
}

func (s *Store) CountQuests(ctx context.Context, userID core.UserID, status core.QuestStatus) (int, error) {
	var n int
	var err error
	if status == "" {
		err = s.db.GetContext(ctx, &n,
			s.rebind(`SELECT COUNT(*) FROM quests WHERE user_id = ?`), userID)
	} else {
		err = s.db.GetContext(ctx, &n,
			s.rebind(`SELECT COUNT(*) FROM quests WHERE user_id = ? AND status = ?`), userID, status)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count quests: %w", err)
	}
	return n, nil
}

func (s *Store) GetQuest(ctx context.Context, userID core.UserID, id string) (core.Quest, error) {
	var row struct {
		ID     string           `db:"id"`
		UserID core.UserID      `db:"user_id"`
		Name   string           `db:"name"`
		Status core.QuestStatus `db:"status"`
	}
	err := s.db.GetContext(ctx, &row,
		s.rebind(`SELECT id, user_id, name, status FROM quests WHERE user_id = ? AND id = ?`),
		userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Quest{}, core.ErrNotFound
		}
		return core.Quest{}, fmt.Errorf("failed to get quest: %w", err)
	}
	return core.Quest{ID: row.ID, UserID: row.UserID, Name: row.Name, Status: row.Status}, nil
}

func titleFromRow(row titleRow) (core.TitleDefinition, error) {
	def := core.TitleDefinition{
		ID:       row.ID,
		Name:     row.Name,
		Rank:     row.Rank,
		Category: row.Category,
		Hidden:   row.Hidden,
	}
	if len(row.Effect) > 0 {
		if err := json.Unmarshal(row.Effect, &def.Effect); err != nil {
			return core.TitleDefinition{}, fmt.Errorf("failed to decode effect for title %s: %w", row.ID, err)
		}
	}
	if len(row.Condition) > 0 {
		if err := json.Unmarshal(row.Condition, &def.UnlockCondition); err != nil {
			return core.TitleDefinition{}, fmt.Errorf("failed to decode condition for title %s: %w", row.ID, err)
		}
	}
	return def, nil
}

func (s *Store) ListTitles(ctx context.Context) ([]core.TitleDefinition, error) {
	var rows []titleRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, title_rank, category, hidden, effect, unlock_condition FROM titles ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list titles: %w", err)
	}
	out := make([]core.TitleDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := titleFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (s *Store) GetTitle(ctx context.Context, id string) (core.TitleDefinition, error) {
	var row titleRow
	err := s.db.GetContext(ctx, &row,
		s.rebind(`SELECT id, name, title_rank, category, hidden, effect, unlock_condition FROM titles WHERE id = ?`),
		id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.TitleDefinition{}, core.ErrNotFound
		}
		return core.TitleDefinition{}, fmt.Errorf("failed to get title: %w", err)
	}
	return titleFromRow(row)
}

func grantFromRow(row grantRow) core.UserTitleGrant {
	g := core.UserTitleGrant{
		ID:         row.ID,
		UserID:     row.UserID,
		TitleID:    row.TitleID,
		AcquiredAt: row.AcquiredAt.Time,
		Equipped:   row.Equipped,
	}
	if row.ExpiresAt.Valid {
		t := row.ExpiresAt.Time
		g.ExpiresAt = &t
	}
	return g
}

func (s *Store) ListGrants(ctx context.Context, userID core.UserID) ([]core.UserTitleGrant, error) {
	var rows []grantRow
	err := s.db.SelectContext(ctx, &rows,
		s.rebind(`SELECT id, user_id, title_id, acquired_at, equipped, expires_at FROM title_grants WHERE user_id = ?`),
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	out := make([]core.UserTitleGrant, 0, len(rows))
	for _, row := range rows {
		out = append(out, grantFromRow(row))
	}
	return out, nil
}

func (s *Store) ListEquippedGrants(ctx context.Context, userID core.UserID) ([]core.UserTitleGrant, error) {
	var rows []grantRow
	err := s.db.SelectContext(ctx, &rows,
		s.rebind(`SELECT id, user_id, title_id, acquired_at, equipped, expires_at FROM title_grants WHERE user_id = ? AND equipped = ?`),
		userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipped grants: %w", err)
	}
	out := make([]core.UserTitleGrant, 0, len(rows))
	for _, row := range rows {
		out = append(out, grantFromRow(row))
	}
	return out, nil
}

func (s *Store) CreateGrant(ctx context.Context, grant core.UserTitleGrant) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.GetContext(ctx, &exists,
		s.rebind(`SELECT EXISTS (SELECT 1 FROM title_grants WHERE user_id = ? AND title_id = ?)`),
		grant.UserID, grant.TitleID)
	if err != nil {
		return fmt.Errorf("failed to check grant: %w", err)
	}
	if exists {
		return core.ErrAlreadyExists
	}

	var expires any
	if grant.ExpiresAt != nil {
		expires = *grant.ExpiresAt
	}
	_, err = tx.ExecContext(ctx,
		s.rebind(`INSERT INTO title_grants (id, user_id, title_id, acquired_at, equipped, expires_at) VALUES (?, ?, ?, ?, ?, ?)`),
		grant.ID, grant.UserID, grant.TitleID, grant.AcquiredAt, grant.Equipped, expires)
	if err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SetEquipped(ctx context.Context, userID core.UserID, titleID string, equipped bool) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE title_grants SET equipped = ? WHERE user_id = ? AND title_id = ?`),
		equipped, userID, titleID)
	if err != nil {
		return fmt.Errorf("failed to set equipped: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}
