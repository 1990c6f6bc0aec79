package sqlx_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	storage "progresskit/adapters/sqlx"
	"progresskit/core"
)

func newMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, "postgres"), storage.DriverPostgres)
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

func TestSQLMock_AddXP_NewSource(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	user := core.UserID("u1")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, kind, target_id, name, xp, level FROM progression_targets`).
		WithArgs(user, core.KindTheme, "t1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "kind", "target_id", "name", "xp", "level"}).
			AddRow("u1", "theme", "t1", "Education", 90.0, 1))
	mock.ExpectExec(`UPDATE progression_targets SET xp`).
		WithArgs(150.0, 2, user, core.KindTheme, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT xp FROM target_xp_sources`).
		WithArgs(user, core.KindTheme, "t1", core.SourceJournal).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO target_xp_sources`).
		WithArgs(user, core.KindTheme, "t1", core.SourceJournal, 60.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT source, xp FROM target_xp_sources`).
		WithArgs(user, core.KindTheme, "t1").
		WillReturnRows(sqlmock.NewRows([]string{"source", "xp"}).AddRow("journal", 60.0))
	mock.ExpectCommit()

	updated, err := store.AddXP(ctx, user, core.KindTheme, "t1", 60, core.SourceJournal)
	require.NoError(t, err)
	require.Equal(t, 150.0, updated.XP)
	require.Equal(t, 2, updated.Level)
	require.Equal(t, 60.0, updated.XPBySource[core.SourceJournal])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AddXP_MissingTarget(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, kind, target_id, name, xp, level FROM progression_targets`).
		WithArgs(core.UserID("u1"), core.KindSkill, "missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.AddXP(context.Background(), "u1", core.KindSkill, "missing", 10, core.SourceJournal)
	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_CreateGrant_Insert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	grant := core.UserTitleGrant{
		ID:         "g1",
		UserID:     "u1",
		TitleID:    "scholar",
		AcquiredAt: time.Now().UTC(),
		Equipped:   true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(grant.UserID, grant.TitleID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO title_grants`).
		WithArgs(grant.ID, grant.UserID, grant.TitleID, sqlmock.AnyArg(), true, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.CreateGrant(ctx, grant))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_CreateGrant_Duplicate(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(core.UserID("u1"), "scholar").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.CreateGrant(context.Background(), core.UserTitleGrant{ID: "g2", UserID: "u1", TitleID: "scholar"})
	require.ErrorIs(t, err, core.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetTitle(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, name, title_rank, category, hidden, effect, unlock_condition FROM titles`).
		WithArgs("scholar").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "title_rank", "category", "hidden", "effect", "unlock_condition"}).
			AddRow("scholar", "Scholar", "B", "journaling", false,
				[]byte(`{"type":"xp_multiplier","scope":"theme","target":"Education","value":1.2}`),
				[]byte(`{"type":"theme_level","theme":"Education","level":5}`)))

	def, err := store.GetTitle(context.Background(), "scholar")
	require.NoError(t, err)
	require.Equal(t, core.RankB, def.Rank)
	require.Equal(t, core.EffectXPMultiplier, def.Effect.Type)
	require.Equal(t, 1.2, def.Effect.Value)
	require.Equal(t, "theme_level", def.UnlockCondition.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SetEquipped_NotFound(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE title_grants SET equipped`).
		WithArgs(true, core.UserID("u1"), "unowned").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetEquipped(context.Background(), "u1", "unowned", true)
	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_CountQuests(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM quests WHERE user_id = \$1 AND status`).
		WithArgs(core.UserID("u1"), core.QuestCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.CountQuests(context.Background(), "u1", core.QuestCompleted)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
