// Package sqlite is a durable local vectorindex backend. Vectors are stored
// as JSON and ranked by cosine similarity in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex"
)

// Backend stores indexes in a SQLite database file.
type Backend struct {
	conn *sql.DB
	path string
	log  *slog.Logger
}

// Open creates or opens the index database at dbPath.
func Open(dbPath string, log *slog.Logger) (*Backend, error) {
	log = logger.OrDiscard(log)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn, log); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Backend{conn: conn, path: dbPath, log: log}, nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.conn.Close()
}

// Path returns the database file path.
func (b *Backend) Path() string {
	return b.path
}

func (b *Backend) ListIndexes(ctx context.Context) ([]string, error) {
	rows, err := b.conn.QueryContext(ctx, "SELECT name FROM indexes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing indexes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (b *Backend) CreateIndex(ctx context.Context, name string, dimension int, metric vectorindex.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	if metric != vectorindex.Cosine {
		return fmt.Errorf("unsupported metric %q", metric)
	}
	_, err := b.conn.ExecContext(ctx,
		"INSERT INTO indexes (name, dimension, metric) VALUES (?, ?, ?)",
		name, dimension, string(metric))
	if err != nil {
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	return nil
}

func (b *Backend) DeleteIndex(ctx context.Context, name string) error {
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vectors WHERE index_name = ?", name); err != nil {
		return fmt.Errorf("deleting vectors of %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM indexes WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting index %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	return tx.Commit()
}

func (b *Backend) DescribeIndex(ctx context.Context, name string) (vectorindex.IndexStatus, error) {
	var status vectorindex.IndexStatus
	err := b.conn.QueryRowContext(ctx, `
SELECT i.dimension, (SELECT COUNT(*) FROM vectors v WHERE v.index_name = i.name)
FROM indexes i WHERE i.name = ?`, name).Scan(&status.Dimension, &status.VectorCount)
	if errors.Is(err, sql.ErrNoRows) {
		return status, fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	if err != nil {
		return status, fmt.Errorf("describing index %s: %w", name, err)
	}
	status.Ready = true
	return status, nil
}

func (b *Backend) ListIDs(ctx context.Context, name string) ([]string, error) {
	if _, err := b.dimension(ctx, name); err != nil {
		return nil, err
	}

	rows, err := b.conn.QueryContext(ctx,
		"SELECT id FROM vectors WHERE index_name = ? ORDER BY rowid", name)
	if err != nil {
		return nil, fmt.Errorf("listing ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *Backend) Upsert(ctx context.Context, name string, vectors []vectorindex.Vector) error {
	dim, err := b.dimension(ctx, name)
	if err != nil {
		return err
	}
	for _, v := range vectors {
		if len(v.Values) != dim {
			return fmt.Errorf("vector %s has dimension %d, index expects %d", v.ID, len(v.Values), dim)
		}
	}

	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO vectors (index_name, id, vals, metadata) VALUES (?, ?, ?, ?)
ON CONFLICT(index_name, id) DO UPDATE SET
    vals = excluded.vals, metadata = excluded.metadata, upserted_at = datetime('now')`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, v := range vectors {
		vals, err := json.Marshal(v.Values)
		if err != nil {
			return fmt.Errorf("encoding vector %s: %w", v.ID, err)
		}
		md, err := json.Marshal(v.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata %s: %w", v.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, name, v.ID, string(vals), string(md)); err != nil {
			return fmt.Errorf("upserting %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	b.log.Debug("sqlite upsert", "index", name, "count", len(vectors))
	return nil
}

func (b *Backend) Query(ctx context.Context, name string, vector []float32, topK int) ([]vectorindex.Match, error) {
	dim, err := b.dimension(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(vector), dim)
	}

	rows, err := b.conn.QueryContext(ctx,
		"SELECT id, vals, metadata FROM vectors WHERE index_name = ? ORDER BY rowid", name)
	if err != nil {
		return nil, fmt.Errorf("scanning vectors: %w", err)
	}
	defer rows.Close()

	var matches []vectorindex.Match
	for rows.Next() {
		var id, vals, md string
		if err := rows.Scan(&id, &vals, &md); err != nil {
			return nil, err
		}
		var values []float32
		if err := json.Unmarshal([]byte(vals), &values); err != nil {
			return nil, fmt.Errorf("decoding vector %s: %w", id, err)
		}
		m := vectorindex.Match{ID: id, Score: vectorindex.CosineSimilarity(vector, values)}
		if err := json.Unmarshal([]byte(md), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata %s: %w", id, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

func (b *Backend) dimension(ctx context.Context, name string) (int, error) {
	var dim int
	err := b.conn.QueryRowContext(ctx, "SELECT dimension FROM indexes WHERE name = ?", name).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("reading index %s: %w", name, err)
	}
	return dim, nil
}
