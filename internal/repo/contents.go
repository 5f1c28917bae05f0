package repo

import (
	"context"
	"database/sql"
	"fmt"

	"humantask/internal/domain"
)

// InsertContent stores a payload and returns its id. Inline and Reference
// payloads are stored the same way; only the access type differs.
func (r Repo) InsertContent(ctx context.Context, tx *sql.Tx, data domain.ContentData, createdAt string) (int64, error) {
	access := data.AccessType
	if access == "" {
		access = domain.AccessInline
	}
	payload := data.Content
	if payload == nil {
		payload = []byte{}
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO contents(type,access_type,data,size,created_at) VALUES (?,?,?,?,?)`,
		nullable(data.Type), string(access), payload, len(payload), createdAt)
	if err != nil {
		return 0, fmt.Errorf("insert content: %w", err)
	}
	return res.LastInsertId()
}

// GetContent returns a stored payload.
func (r Repo) GetContent(ctx context.Context, id int64) (domain.Content, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,COALESCE(type,''),access_type,data,size,created_at FROM contents WHERE id=?`, id)
	var c domain.Content
	var access string
	err := row.Scan(&c.ID, &c.Type, &access, &c.Data, &c.Size, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Content{}, fmt.Errorf("content %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Content{}, err
	}
	c.AccessType = domain.AccessType(access)
	if c.Data == nil {
		c.Data = []byte{}
	}
	return c, nil
}
