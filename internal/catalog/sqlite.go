// Package catalog indexes the chops produced for each source track in SQLite.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maauso/chopper/internal/chop"
)

//go:embed schema.sql
var schema string

// Entry is one indexed chop.
type Entry struct {
	ChopID        string    `json:"chop_id"`
	SourceTrackID string    `json:"source_track_id"`
	Index         int       `json:"index"`
	Name          string    `json:"name"`
	Start         float64   `json:"start_time"`
	End           float64   `json:"end_time"`
	Cluster       int       `json:"cluster"`
	RMS           float64   `json:"rms"`
	DominantNote  string    `json:"dominant_note,omitempty"`
	Selected      bool      `json:"selected"`
	CreatedAt     time.Time `json:"created_at"`
}

// SQLite is the catalog backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) the catalog at path and applies the schema.
// Use ":memory:" for a private in-memory catalog.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := initDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	return &SQLite{db: db}, nil
}

// initDatabase runs the embedded schema and sets performance PRAGMAs.
func initDatabase(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		return err
	}
	_, err := db.Exec(schema)
	return err
}

// Close closes the database.
func (c *SQLite) Close() error {
	return c.db.Close()
}

// RecordChops replaces the index of sourceID with chops. Chops without a
// storage id are skipped.
func (c *SQLite) RecordChops(ctx context.Context, sourceID string, chops []chop.Segment, selected []int) error {
	picked := make(map[int]bool, len(selected))
	for _, i := range selected {
		picked[i] = true
	}

	entries := make([]Entry, 0, len(chops))
	for _, s := range chops {
		if s.ID == "" {
			continue
		}
		entries = append(entries, Entry{
			ChopID:        s.ID,
			SourceTrackID: sourceID,
			Index:         s.Index,
			Name:          s.Name,
			Start:         s.Start,
			End:           s.End,
			Cluster:       s.Cluster,
			RMS:           s.Bundle.RMS,
			DominantNote:  s.Bundle.DominantNote,
			Selected:      picked[s.Index],
		})
	}
	return c.Replace(ctx, sourceID, entries)
}

// Replace deletes the rows of sourceID and inserts entries in one transaction.
func (c *SQLite) Replace(ctx context.Context, sourceID string, entries []Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chops WHERE source_track_id = ?", sourceID); err != nil {
		return fmt.Errorf("delete previous chops: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO chops (chop_id, source_track_id, idx, name, start_sec, end_sec, cluster, rms, dominant_note, selected, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(chop_id) DO UPDATE SET
		source_track_id = excluded.source_track_id,
		idx = excluded.idx,
		name = excluded.name,
		start_sec = excluded.start_sec,
		end_sec = excluded.end_sec,
		cluster = excluded.cluster,
		rms = excluded.rms,
		dominant_note = excluded.dominant_note,
		selected = excluded.selected;`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ChopID, sourceID, e.Index, e.Name, e.Start, e.End, e.Cluster, e.RMS, e.DominantNote, e.Selected, now); err != nil {
			return fmt.Errorf("insert chop %s: %w", e.ChopID, err)
		}
	}
	return tx.Commit()
}

// ListBySource returns the chops of sourceID in index order.
func (c *SQLite) ListBySource(ctx context.Context, sourceID string) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
	SELECT chop_id, source_track_id, idx, name, start_sec, end_sec, cluster, rms, dominant_note, selected, created_at
	FROM chops WHERE source_track_id = ? ORDER BY idx`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query chops: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ChopID, &e.SourceTrackID, &e.Index, &e.Name, &e.Start, &e.End, &e.Cluster, &e.RMS, &e.DominantNote, &e.Selected, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chop: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Forget removes every row whose chop id or source track id is in ids and
// returns the number of rows removed.
func (c *SQLite) Forget(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, 2*len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, args...)

	query := fmt.Sprintf("DELETE FROM chops WHERE chop_id IN (%s) OR source_track_id IN (%s)", placeholders, placeholders)
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("forget chops: %w", err)
	}
	return res.RowsAffected()
}

var _ chop.Recorder = (*SQLite)(nil)
