// Package ideastore is the on-device cache of ideas. It is written only
// by backup import and read by export and offline browsing; the remote
// backend stays the source of truth while it is reachable.
package ideastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nugget/vibeplanner/internal/asset"
	"github.com/nugget/vibeplanner/internal/idea"
)

// ErrNotFound is returned by Get when no record has the requested id.
var ErrNotFound = errors.New("idea not in local cache")

// Store persists ideas, including their voice memos, in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a cache on db, running migrations on first use.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate idea cache: %w", err)
	}
	return s, nil
}

// audio_type doubles as the presence marker for the memo so a
// zero-length recording is distinguishable from no recording.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cached_ideas (
			id         INTEGER PRIMARY KEY,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'draft',
			cover_type TEXT NOT NULL DEFAULT '',
			metadata   TEXT,
			audio      BLOB,
			audio_type TEXT,
			created_at TEXT,
			updated_at TEXT,
			stored_at  TEXT NOT NULL
		)
	`)
	return err
}

// BulkUpsert writes ideas in one transaction. Records with an id replace
// the cached copy; records without one get a fresh id. The ids written
// are returned in input order. Either every record is stored or none is.
func (s *Store) BulkUpsert(ctx context.Context, ideas []idea.Idea) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cached_ideas
			(id, title, content, status, cover_type, metadata, audio, audio_type, created_at, updated_at, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			status = excluded.status,
			cover_type = excluded.cover_type,
			metadata = excluded.metadata,
			audio = excluded.audio,
			audio_type = excluded.audio_type,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			stored_at = excluded.stored_at`)
	if err != nil {
		return nil, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	ids := make([]int64, 0, len(ideas))
	for i := range ideas {
		rec := &ideas[i]

		var id any
		if !rec.IsNew() {
			id = rec.ID
		}
		meta, err := encodeMetadata(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("idea %q: %w", rec.Title, err)
		}
		var audio []byte
		var audioType sql.NullString
		if rec.AudioAsset != nil {
			audio = rec.AudioAsset.Data
			if audio == nil {
				audio = []byte{}
			}
			audioType = sql.NullString{String: rec.AudioAsset.MediaType, Valid: true}
		}

		res, err := stmt.ExecContext(ctx,
			id, rec.Title, rec.Content, string(rec.Status.OrDefault()), string(rec.CoverType),
			meta, audio, audioType,
			formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), now,
		)
		if err != nil {
			return nil, fmt.Errorf("upsert idea %q: %w", rec.Title, err)
		}
		if rec.IsNew() {
			newID, err := res.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("read assigned id: %w", err)
			}
			ids = append(ids, newID)
		} else {
			ids = append(ids, rec.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

const selectColumns = `id, title, content, status, cover_type, metadata, audio, audio_type, created_at, updated_at`

// All returns every cached idea ordered by id. The result is non-nil.
func (s *Store) All(ctx context.Context) ([]idea.Idea, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM cached_ideas ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query cached ideas: %w", err)
	}
	defer rows.Close()

	ideas := []idea.Idea{}
	for rows.Next() {
		rec, err := scanIdea(rows)
		if err != nil {
			return nil, err
		}
		ideas = append(ideas, *rec)
	}
	return ideas, rows.Err()
}

// Get returns the cached idea with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*idea.Idea, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM cached_ideas WHERE id = ?`, id)
	rec, err := scanIdea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the cached idea with the given id. Deleting a missing
// id is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_ideas WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %d: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdea(sc scanner) (*idea.Idea, error) {
	var (
		rec                  idea.Idea
		status, coverType    string
		meta, audioType      sql.NullString
		createdAt, updatedAt sql.NullString
		audio                []byte
	)
	err := sc.Scan(&rec.ID, &rec.Title, &rec.Content, &status, &coverType,
		&meta, &audio, &audioType, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan cached idea: %w", err)
	}

	rec.Status = idea.Status(status).OrDefault()
	rec.CoverType = idea.CoverType(coverType)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of idea %d: %w", rec.ID, err)
		}
	}
	if audioType.Valid {
		if audio == nil {
			audio = []byte{}
		}
		rec.AudioAsset = &asset.Asset{MediaType: audioType.String, Data: audio}
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func encodeMetadata(m idea.Metadata) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
