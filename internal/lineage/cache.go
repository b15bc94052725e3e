package lineage

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (edges + meta).
const currentSchemaVersion = 1

const stampKey = "catalog_stamp"

// Cache is a derived SQLite index over dependency edges. It exists purely
// to speed up reverse-edge queries on large stores; the Index falls back
// to scanning parents documents whenever the cache stamp does not match
// the catalog.
type Cache struct {
	db *sql.DB
}

// OpenCache creates or opens the edge cache at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during rebuild
//   - NORMAL synchronous mode (derived data, durability is cheap to lose)
//   - 5-second busy timeout for lock contention
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open lineage cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect lineage cache: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY during rebuilds.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("lineage cache %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("lineage cache schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("lineage cache user_version: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Rebuild replaces the cached edge set and records the catalog stamp it
// was built against. The swap is transactional: readers see the old edge
// set or the new one, never a mix.
func (c *Cache) Rebuild(edges []Edge, stamp string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("lineage cache rebuild: begin: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.Exec("DELETE FROM edges"); err != nil {
		return fmt.Errorf("lineage cache rebuild: clear: %w", err)
	}
	for _, e := range edges {
		_, err := tx.Exec(`
			INSERT INTO edges (child_path, child_version, parent_path, parent_version)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, e.ChildPath, e.ChildVersionID, e.ParentPath, e.ParentVersionID)
		if err != nil {
			return fmt.Errorf("lineage cache rebuild: insert: %w", err)
		}
	}
	if _, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, stampKey, stamp); err != nil {
		return fmt.Errorf("lineage cache rebuild: stamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lineage cache rebuild: commit: %w", err)
	}
	return nil
}

// Edges returns the cached edge set when the stored stamp matches the
// given one. ok=false means the cache is stale or empty and the caller
// must scan.
func (c *Cache) Edges(stamp string) ([]Edge, bool, error) {
	var stored string
	err := c.db.QueryRow("SELECT value FROM meta WHERE key = ?", stampKey).Scan(&stored)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lineage cache stamp: %w", err)
	}
	if stored != stamp {
		return nil, false, nil
	}

	rows, err := c.db.Query(`
		SELECT child_path, child_version, parent_path, parent_version
		FROM edges
		ORDER BY child_version, parent_path, parent_version
	`)
	if err != nil {
		return nil, false, fmt.Errorf("lineage cache edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ChildPath, &e.ChildVersionID, &e.ParentPath, &e.ParentVersionID); err != nil {
			return nil, false, fmt.Errorf("lineage cache edges: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("lineage cache edges: %w", err)
	}
	return edges, true, nil
}
