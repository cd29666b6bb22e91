package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Store is the persistence boundary for identities and releases
type Store interface {
	// GetIdentity returns the identity for a plugin id, or ErrNotFound.
	GetIdentity(ctx context.Context, pluginID string) (*PluginIdentity, error)

	// CreateIdentity inserts a new identity and fills in its row id.
	CreateIdentity(ctx context.Context, identity *PluginIdentity) error

	// UpdateIdentityAuthor overwrites the author of an existing identity.
	// The secret digest is never touched.
	UpdateIdentityAuthor(ctx context.Context, pluginID, author string) error

	// DeleteIdentity removes an identity; its releases cascade away with it.
	// Deleting an absent identity is a no-op.
	DeleteIdentity(ctx context.Context, pluginID string) error

	// GetOnShelfRelease returns the currently published release for a plugin
	// id, or ErrNotFound.
	GetOnShelfRelease(ctx context.Context, pluginID string) (*PluginRelease, error)

	// ListOnShelf returns every published release, in store order.
	ListOnShelf(ctx context.Context) ([]PluginRelease, error)

	// UnshelveAll sets on_shelf = 0 on every release of a plugin id.
	UnshelveAll(ctx context.Context, pluginID string) error

	// DeleteRelease removes the release row for one (plugin_id, version)
	// pair. Deleting an absent row is a no-op.
	DeleteRelease(ctx context.Context, pluginID, version string) error

	// CreateRelease inserts a new release row and fills in its row id.
	CreateRelease(ctx context.Context, release *PluginRelease) error
}

// Dialect selects the SQL flavor of a SQLStore
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements Store on a relational database
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore creates a SQLStore and runs its migrations
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		pk = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS plugin_identities (
				id %s,
				plugin_id TEXT NOT NULL UNIQUE,
				author TEXT NOT NULL DEFAULT '',
				secret_key TEXT NOT NULL,
				download_num BIGINT NOT NULL DEFAULT 0
			)`, pk),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS plugin_releases (
				id %s,
				file TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				version TEXT NOT NULL,
				plugin_id TEXT NOT NULL,
				plugin_type TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				document TEXT NOT NULL DEFAULT '',
				logo TEXT NOT NULL DEFAULT '',
				remark TEXT NOT NULL DEFAULT '',
				upload_time TEXT NOT NULL DEFAULT '',
				on_shelf SMALLINT NOT NULL DEFAULT 1,
				plugin_info BIGINT NOT NULL REFERENCES plugin_identities (id) ON DELETE CASCADE,
				UNIQUE (plugin_id, version)
			)`, pk),
		`CREATE INDEX IF NOT EXISTS idx_plugin_releases_plugin_id ON plugin_releases (plugin_id)`,
		`CREATE INDEX IF NOT EXISTS idx_plugin_releases_on_shelf ON plugin_releases (on_shelf)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// rebind rewrites ? placeholders to $N for postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GetIdentity implements Store.GetIdentity
func (s *SQLStore) GetIdentity(ctx context.Context, pluginID string) (*PluginIdentity, error) {
	query := s.rebind(`
		SELECT id, plugin_id, author, secret_key, download_num
		FROM plugin_identities
		WHERE plugin_id = ?
	`)

	var identity PluginIdentity
	err := s.db.QueryRowContext(ctx, query, pluginID).Scan(
		&identity.ID,
		&identity.PluginID,
		&identity.Author,
		&identity.SecretKey,
		&identity.DownloadNum,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("identity %s: %w", pluginID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return &identity, nil
}

// CreateIdentity implements Store.CreateIdentity
func (s *SQLStore) CreateIdentity(ctx context.Context, identity *PluginIdentity) error {
	if s.dialect == DialectPostgres {
		query := s.rebind(`
			INSERT INTO plugin_identities (plugin_id, author, secret_key, download_num)
			VALUES (?, ?, ?, ?) RETURNING id
		`)
		err := s.db.QueryRowContext(ctx, query,
			identity.PluginID, identity.Author, identity.SecretKey, identity.DownloadNum,
		).Scan(&identity.ID)
		if err != nil {
			return fmt.Errorf("failed to create identity: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO plugin_identities (plugin_id, author, secret_key, download_num)
		VALUES (?, ?, ?, ?)
	`, identity.PluginID, identity.Author, identity.SecretKey, identity.DownloadNum)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}

	identity.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read identity id: %w", err)
	}
	return nil
}

// UpdateIdentityAuthor implements Store.UpdateIdentityAuthor
func (s *SQLStore) UpdateIdentityAuthor(ctx context.Context, pluginID, author string) error {
	query := s.rebind(`UPDATE plugin_identities SET author = ? WHERE plugin_id = ?`)

	if _, err := s.db.ExecContext(ctx, query, author, pluginID); err != nil {
		return fmt.Errorf("failed to update identity author: %w", err)
	}
	return nil
}

// DeleteIdentity implements Store.DeleteIdentity
func (s *SQLStore) DeleteIdentity(ctx context.Context, pluginID string) error {
	query := s.rebind(`DELETE FROM plugin_identities WHERE plugin_id = ?`)

	if _, err := s.db.ExecContext(ctx, query, pluginID); err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	return nil
}

const releaseColumns = `id, file, name, version, plugin_id, plugin_type,
	description, document, logo, remark, upload_time, on_shelf, plugin_info`

func scanRelease(row interface{ Scan(...interface{}) error }, r *PluginRelease) error {
	return row.Scan(
		&r.ID, &r.File, &r.Name, &r.Version, &r.PluginID, &r.PluginType,
		&r.Description, &r.Document, &r.Logo, &r.Remark, &r.UploadTime,
		&r.OnShelf, &r.PluginInfo,
	)
}

// GetOnShelfRelease implements Store.GetOnShelfRelease
func (s *SQLStore) GetOnShelfRelease(ctx context.Context, pluginID string) (*PluginRelease, error) {
	query := s.rebind(`
		SELECT ` + releaseColumns + `
		FROM plugin_releases
		WHERE plugin_id = ? AND on_shelf = 1
	`)

	var release PluginRelease
	err := scanRelease(s.db.QueryRowContext(ctx, query, pluginID), &release)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("on-shelf release for %s: %w", pluginID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get on-shelf release: %w", err)
	}

	return &release, nil
}

// ListOnShelf implements Store.ListOnShelf
func (s *SQLStore) ListOnShelf(ctx context.Context) ([]PluginRelease, error) {
	query := `
		SELECT ` + releaseColumns + `
		FROM plugin_releases
		WHERE on_shelf = 1
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query releases: %w", err)
	}
	defer rows.Close()

	var releases []PluginRelease
	for rows.Next() {
		var r PluginRelease
		if err := scanRelease(rows, &r); err != nil {
			return nil, fmt.Errorf("failed to scan release: %w", err)
		}
		releases = append(releases, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate releases: %w", err)
	}

	return releases, nil
}

// UnshelveAll implements Store.UnshelveAll
func (s *SQLStore) UnshelveAll(ctx context.Context, pluginID string) error {
	query := s.rebind(`UPDATE plugin_releases SET on_shelf = 0 WHERE plugin_id = ?`)

	if _, err := s.db.ExecContext(ctx, query, pluginID); err != nil {
		return fmt.Errorf("failed to unshelve releases: %w", err)
	}
	return nil
}

// DeleteRelease implements Store.DeleteRelease
func (s *SQLStore) DeleteRelease(ctx context.Context, pluginID, version string) error {
	query := s.rebind(`DELETE FROM plugin_releases WHERE plugin_id = ? AND version = ?`)

	if _, err := s.db.ExecContext(ctx, query, pluginID, version); err != nil {
		return fmt.Errorf("failed to delete release: %w", err)
	}
	return nil
}

// CreateRelease implements Store.CreateRelease
func (s *SQLStore) CreateRelease(ctx context.Context, release *PluginRelease) error {
	if s.dialect == DialectPostgres {
		query := s.rebind(`
			INSERT INTO plugin_releases (file, name, version, plugin_id, plugin_type,
				description, document, logo, remark, upload_time, on_shelf, plugin_info)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id
		`)
		err := s.db.QueryRowContext(ctx, query,
			release.File, release.Name, release.Version, release.PluginID,
			release.PluginType, release.Description, release.Document, release.Logo,
			release.Remark, release.UploadTime, release.OnShelf, release.PluginInfo,
		).Scan(&release.ID)
		if err != nil {
			return fmt.Errorf("failed to create release: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO plugin_releases (file, name, version, plugin_id, plugin_type,
			description, document, logo, remark, upload_time, on_shelf, plugin_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		release.File, release.Name, release.Version, release.PluginID,
		release.PluginType, release.Description, release.Document, release.Logo,
		release.Remark, release.UploadTime, release.OnShelf, release.PluginInfo,
	)
	if err != nil {
		return fmt.Errorf("failed to create release: %w", err)
	}

	release.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read release id: %w", err)
	}
	return nil
}
