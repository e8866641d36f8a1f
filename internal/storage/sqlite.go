package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/matsen/bibmeta/internal/curator"
	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
	_ "modernc.org/sqlite"
)

// Store is the persisted knowledge store: every batch that was curated and
// committed. It answers the curator's lookups and takes new batches.
type Store struct {
	db *sql.DB
}

var _ resolver.Resolver = (*Store)(nil)

// Open opens or creates a SQLite knowledge store at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes. With one connection, rows
	// must be closed before the next query runs.
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		-- Bibliographic resources, responsible agents and quarantined conflicts
		CREATE TABLE IF NOT EXISTS entities (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			conflict INTEGER NOT NULL DEFAULT 0,
			run_id TEXT,
			PRIMARY KEY (kind, id)
		);

		-- Identifier entities, one per external identifier and kind
		CREATE TABLE IF NOT EXISTS identifiers (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			scheme TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (kind, id),
			UNIQUE (kind, scheme, value)
		);

		CREATE TABLE IF NOT EXISTS entity_identifiers (
			kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			identifier_id TEXT NOT NULL,
			PRIMARY KEY (kind, entity_id, identifier_id)
		);
		CREATE INDEX IF NOT EXISTS idx_entity_identifiers_identifier
			ON entity_identifiers(kind, identifier_id);

		-- Contributor roles, chained per resource and role through next_id
		CREATE TABLE IF NOT EXISTS roles (
			id TEXT PRIMARY KEY,
			br_id TEXT NOT NULL,
			role TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			next_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_roles_br ON roles(br_id, role);

		-- Containment facts: a volume or issue is part_of its container
		CREATE TABLE IF NOT EXISTS resources (
			br_id TEXT PRIMARY KEY,
			type TEXT NOT NULL DEFAULT '',
			pub_date TEXT NOT NULL DEFAULT '',
			part_of TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_resources_part_of ON resources(part_of);

		-- Page embodiments
		CREATE TABLE IF NOT EXISTS embodiments (
			id TEXT PRIMARY KEY,
			br_id TEXT NOT NULL UNIQUE,
			pages TEXT NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// Persist writes a curated batch in one transaction. Entities that already
// exist keep their row; a changed title is updated.
func (s *Store) Persist(ctx context.Context, res *curator.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := persistEntities(ctx, tx, res); err != nil {
		return err
	}
	if err := persistIdentifiers(ctx, tx, res); err != nil {
		return err
	}
	if err := persistRoles(ctx, tx, res.Sequences); err != nil {
		return err
	}
	if err := persistResources(ctx, tx, res); err != nil {
		return err
	}
	if err := persistPages(ctx, tx, res.Pages); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch %s: %w", res.RunID, err)
	}
	return nil
}

func persistEntities(ctx context.Context, tx *sql.Tx, res *curator.Result) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (kind, id, title, conflict, run_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET title = excluded.title
		WHERE excluded.title != ''
	`)
	if err != nil {
		return fmt.Errorf("preparing entity insert: %w", err)
	}
	defer stmt.Close()

	for _, kind := range []reference.Kind{reference.KindBR, reference.KindRA} {
		for conflict, list := range [][]curator.Entity{res.Entities[kind], res.Conflicts[kind]} {
			for _, e := range list {
				if _, err := stmt.ExecContext(ctx, kind, e.ID, e.Title, conflict, res.RunID); err != nil {
					return fmt.Errorf("inserting %s/%s: %w", kind, e.ID, err)
				}
			}
		}
	}
	return nil
}

func persistIdentifiers(ctx context.Context, tx *sql.Tx, res *curator.Result) error {
	idStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO identifiers (kind, id, scheme, value) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing identifier insert: %w", err)
	}
	defer idStmt.Close()

	linkStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO entity_identifiers (kind, entity_id, identifier_id) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing identifier link insert: %w", err)
	}
	defer linkStmt.Close()

	for kind, index := range res.Identifiers {
		for raw, local := range index {
			scheme, value, ok := strings.Cut(raw, ":")
			if !ok {
				return fmt.Errorf("malformed identifier %q", raw)
			}
			if _, err := idStmt.ExecContext(ctx, kind, local, scheme, value); err != nil {
				return fmt.Errorf("inserting identifier %s: %w", raw, err)
			}
		}
	}

	for _, kind := range []reference.Kind{reference.KindBR, reference.KindRA} {
		index := res.Identifiers[kind]
		for _, list := range [][]curator.Entity{res.Entities[kind], res.Conflicts[kind]} {
			for _, e := range list {
				for _, id := range e.ExternalIDs() {
					local, ok := index[id.String()]
					if !ok {
						return fmt.Errorf("%s/%s: identifier %s has no identifier entity", kind, e.ID, id)
					}
					if _, err := linkStmt.ExecContext(ctx, kind, e.ID, local); err != nil {
						return fmt.Errorf("linking %s to %s/%s: %w", id, kind, e.ID, err)
					}
				}
			}
		}
	}
	return nil
}

// persistRoles stores every sequence as a chain. Existing roles keep their
// position; the last of them is pointed at the first appended role.
func persistRoles(ctx context.Context, tx *sql.Tx, seqs []curator.Sequence) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO roles (id, br_id, role, agent_id, next_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET next_id = excluded.next_id
	`)
	if err != nil {
		return fmt.Errorf("preparing role insert: %w", err)
	}
	defer stmt.Close()

	for _, seq := range seqs {
		for i, e := range seq.Entries {
			next := ""
			if i+1 < len(seq.Entries) {
				next = seq.Entries[i+1].ID
			}
			if _, err := stmt.ExecContext(ctx, e.ID, seq.BR, seq.Role, e.Agent, next); err != nil {
				return fmt.Errorf("inserting role %s of br/%s: %w", e.ID, seq.BR, err)
			}
		}
	}
	return nil
}

// persistResources stores containment facts. A stored non-empty value is
// never overwritten.
func persistResources(ctx context.Context, tx *sql.Tx, res *curator.Result) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO resources (br_id, type, pub_date, part_of, label)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (br_id) DO UPDATE SET
			type = CASE WHEN resources.type = '' THEN excluded.type ELSE resources.type END,
			pub_date = CASE WHEN resources.pub_date = '' THEN excluded.pub_date ELSE resources.pub_date END,
			part_of = CASE WHEN resources.part_of = '' THEN excluded.part_of ELSE resources.part_of END,
			label = CASE WHEN resources.label = '' THEN excluded.label ELSE resources.label END
	`)
	if err != nil {
		return fmt.Errorf("preparing resource insert: %w", err)
	}
	defer stmt.Close()

	put := func(r curator.Resource) error {
		if _, err := stmt.ExecContext(ctx, r.BR, r.Type, r.PubDate, r.PartOf, r.Label); err != nil {
			return fmt.Errorf("inserting resource br/%s: %w", r.BR, err)
		}
		return nil
	}

	for _, r := range res.Resources {
		if err := put(r); err != nil {
			return err
		}
	}
	for venue, tree := range res.Venues {
		for label, vol := range tree.Volumes {
			if err := put(curator.Resource{BR: vol.ID, Type: reference.TypeJournalVolume, PartOf: venue, Label: label}); err != nil {
				return err
			}
			for l, issue := range vol.Issues {
				if err := put(curator.Resource{BR: issue, Type: reference.TypeJournalIssue, PartOf: vol.ID, Label: l}); err != nil {
					return err
				}
			}
		}
		for l, issue := range tree.Issues {
			if err := put(curator.Resource{BR: issue, Type: reference.TypeJournalIssue, PartOf: venue, Label: l}); err != nil {
				return err
			}
		}
	}
	return nil
}

func persistPages(ctx context.Context, tx *sql.Tx, pages []curator.Page) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO embodiments (id, br_id, pages) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing embodiment insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range pages {
		if _, err := stmt.ExecContext(ctx, p.ID, p.BR, p.Range); err != nil {
			return fmt.Errorf("inserting embodiment %s: %w", p.ID, err)
		}
	}
	return nil
}

// Count returns the number of stored entities of kind, conflicts excluded.
func (s *Store) Count(ctx context.Context, kind reference.Kind) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entities WHERE kind = ? AND conflict = 0", kind).Scan(&count)
	return count, err
}

// renderVenue formats a stored venue the way curated rows carry it.
func renderVenue(title string, ids []resolver.Identifier, kind reference.Kind, id string) string {
	list := make([]identifier.ID, 0, len(ids)+1)
	for _, x := range ids {
		list = append(list, x.ID)
	}
	list = append(list, identifier.Meta(kind, id))
	return title + " [" + identifier.Join(list) + "]"
}
