package registry

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	// A second connection would see its own empty in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(context.Background(), db, DialectSQLite)
	require.NoError(t, err)
	return store
}

func seedIdentity(t *testing.T, store *SQLStore, pluginID string) *PluginIdentity {
	t.Helper()

	identity := &PluginIdentity{
		PluginID:  pluginID,
		Author:    "tester",
		SecretKey: SecretDigest(pluginID, "s3cr3t"),
	}
	require.NoError(t, store.CreateIdentity(context.Background(), identity))
	require.NotZero(t, identity.ID)
	return identity
}

func seedRelease(t *testing.T, store *SQLStore, identity *PluginIdentity, version string, onShelf int) *PluginRelease {
	t.Helper()

	release := &PluginRelease{
		File:       ArchiveFileName(identity.PluginID, version),
		Name:       "Demo",
		Version:    version,
		PluginID:   identity.PluginID,
		UploadTime: "2026-08-29 12:00:00",
		OnShelf:    onShelf,
		PluginInfo: identity.ID,
	}
	require.NoError(t, store.CreateRelease(context.Background(), release))
	require.NotZero(t, release.ID)
	return release
}

func TestNewSQLStoreRejectsUnknownDialect(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLStore(context.Background(), db, Dialect("oracle"))
	assert.ErrorContains(t, err, "unsupported dialect")
}

func TestIdentityRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seeded := seedIdentity(t, store, "demo-plugin")

	got, err := store.GetIdentity(ctx, "demo-plugin")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Equal(t, "tester", got.Author)
	assert.Equal(t, seeded.SecretKey, got.SecretKey)
	assert.Zero(t, got.DownloadNum)
}

func TestGetIdentityNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetIdentity(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateIdentityDuplicate(t *testing.T) {
	store := newTestStore(t)
	seedIdentity(t, store, "demo-plugin")

	err := store.CreateIdentity(context.Background(), &PluginIdentity{
		PluginID:  "demo-plugin",
		SecretKey: "digest",
	})
	assert.Error(t, err)
}

func TestUpdateIdentityAuthorLeavesSecretAlone(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seeded := seedIdentity(t, store, "demo-plugin")

	require.NoError(t, store.UpdateIdentityAuthor(ctx, "demo-plugin", "new-author"))

	got, err := store.GetIdentity(ctx, "demo-plugin")
	require.NoError(t, err)
	assert.Equal(t, "new-author", got.Author)
	assert.Equal(t, seeded.SecretKey, got.SecretKey)
}

func TestDeleteIdentityCascadesReleases(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	identity := seedIdentity(t, store, "demo-plugin")
	seedRelease(t, store, identity, "1.0.0", 0)
	seedRelease(t, store, identity, "1.1.0", 1)

	require.NoError(t, store.DeleteIdentity(ctx, "demo-plugin"))

	_, err := store.GetIdentity(ctx, "demo-plugin")
	assert.ErrorIs(t, err, ErrNotFound)

	releases, err := store.ListOnShelf(ctx)
	require.NoError(t, err)
	assert.Empty(t, releases)

	_, err = store.GetOnShelfRelease(ctx, "demo-plugin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIdentityAbsentIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.DeleteIdentity(context.Background(), "nope"))
}

func TestGetOnShelfRelease(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	identity := seedIdentity(t, store, "demo-plugin")
	seedRelease(t, store, identity, "1.0.0", 0)
	current := seedRelease(t, store, identity, "1.1.0", 1)

	got, err := store.GetOnShelfRelease(ctx, "demo-plugin")
	require.NoError(t, err)
	assert.Equal(t, current.ID, got.ID)
	assert.Equal(t, "1.1.0", got.Version)
	assert.Equal(t, 1, got.OnShelf)
}

func TestListOnShelfSkipsRetired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := seedIdentity(t, store, "plugin-a")
	b := seedIdentity(t, store, "plugin-b")
	seedRelease(t, store, a, "1.0.0", 1)
	seedRelease(t, store, b, "0.9.0", 0)

	releases, err := store.ListOnShelf(ctx)
	require.NoError(t, err)
	require.Len(t, releases, 1)
	assert.Equal(t, "plugin-a", releases[0].PluginID)
}

func TestUnshelveAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	identity := seedIdentity(t, store, "demo-plugin")
	seedRelease(t, store, identity, "1.0.0", 1)
	seedRelease(t, store, identity, "1.1.0", 1)

	require.NoError(t, store.UnshelveAll(ctx, "demo-plugin"))

	releases, err := store.ListOnShelf(ctx)
	require.NoError(t, err)
	assert.Empty(t, releases)
}

func TestDeleteRelease(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	identity := seedIdentity(t, store, "demo-plugin")
	seedRelease(t, store, identity, "1.0.0", 1)

	require.NoError(t, store.DeleteRelease(ctx, "demo-plugin", "1.0.0"))
	// Absent rows are fine too.
	require.NoError(t, store.DeleteRelease(ctx, "demo-plugin", "1.0.0"))

	releases, err := store.ListOnShelf(ctx)
	require.NoError(t, err)
	assert.Empty(t, releases)
}

func TestCreateReleaseDuplicateVersion(t *testing.T) {
	store := newTestStore(t)
	identity := seedIdentity(t, store, "demo-plugin")
	seedRelease(t, store, identity, "1.0.0", 1)

	err := store.CreateRelease(context.Background(), &PluginRelease{
		File:       ArchiveFileName("demo-plugin", "1.0.0"),
		Name:       "Demo",
		Version:    "1.0.0",
		PluginID:   "demo-plugin",
		PluginInfo: identity.ID,
	})
	assert.Error(t, err)
}

func TestGetIdentityQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	store := &SQLStore{db: db, dialect: DialectSQLite}
	_, err = store.GetIdentity(context.Background(), "demo-plugin")
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnshelveAllExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE plugin_releases").WillReturnError(errors.New("disk full"))

	store := &SQLStore{db: db, dialect: DialectSQLite}
	err = store.UnshelveAll(context.Background(), "demo-plugin")
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	sqlite := &SQLStore{dialect: DialectSQLite}
	postgres := &SQLStore{dialect: DialectPostgres}

	query := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, query, sqlite.rebind(query))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", postgres.rebind(query))
}
