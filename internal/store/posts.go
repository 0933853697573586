package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tanq16/yandl/internal/downloaders/yande"
)

type Record struct {
	Post       yande.Post `json:"post"`
	DownFlag   bool       `json:"down_flag"`
	State      string     `json:"state"`
	RunID      string     `json:"run_id"`
	Path       string     `json:"path"`
	RecordedAt time.Time  `json:"recorded_at"`
}

const recordColumns = `id, tags, created_at, updated_at, creator_id, author, source, score, md5,
	file_size, file_ext, file_url, rating, width, height, parent_id, has_children, status,
	down_flag, state, run_id, path, recorded_at`

// InsertIfAbsent stores rec unless its identifier is already recorded and
// reports whether a row was added.
func (s *PersistentStore) InsertIfAbsent(ctx context.Context, rec Record) (bool, error) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	p := rec.Post
	query := s.rebind(fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, s.table, recordColumns))
	res, err := s.db.ExecContext(ctx, query,
		p.ID, p.Tags, p.CreatedAt, p.UpdatedAt, nullInt(p.CreatorID), p.Author, p.Source, p.Score, p.MD5,
		p.FileSize, p.FileExt, p.FileURL, p.Rating, p.Width, p.Height, nullInt(p.ParentID), p.HasChildren, p.Status,
		rec.DownFlag, rec.State, rec.RunID, rec.Path, rec.RecordedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert post %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PersistentStore) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, s.table)), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkState records the terminal transfer state of a post. down_flag is set
// only for completed transfers.
func (s *PersistentStore) MarkState(ctx context.Context, id int64, state, path string) error {
	query := s.rebind(fmt.Sprintf(`UPDATE %s SET state = ?, down_flag = ?, path = ? WHERE id = ?`, s.table))
	res, err := s.db.ExecContext(ctx, query, state, state == "completed", path, id)
	if err != nil {
		return fmt.Errorf("failed to update post %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PersistentStore) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, recordColumns, s.table)), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns records newest identifier first.
func (s *PersistentStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.rebind(fmt.Sprintf(`SELECT %s FROM %s ORDER BY id DESC LIMIT ? OFFSET ?`, recordColumns, s.table))
	rows, err := s.db.QueryContext(ctx, query, limit, max(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PersistentStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var creator, parent sql.NullInt64
	var recorded int64
	p := &rec.Post
	err := row.Scan(
		&p.ID, &p.Tags, &p.CreatedAt, &p.UpdatedAt, &creator, &p.Author, &p.Source, &p.Score, &p.MD5,
		&p.FileSize, &p.FileExt, &p.FileURL, &p.Rating, &p.Width, &p.Height, &parent, &p.HasChildren, &p.Status,
		&rec.DownFlag, &rec.State, &rec.RunID, &rec.Path, &recorded,
	)
	if err != nil {
		return nil, err
	}
	if creator.Valid {
		p.CreatorID = &creator.Int64
	}
	if parent.Valid {
		p.ParentID = &parent.Int64
	}
	rec.RecordedAt = time.Unix(recorded, 0)
	return &rec, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
