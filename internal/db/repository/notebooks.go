package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"hue-gateway/internal/domain"
)

var _ domain.NotebookRepository = (*NotebookRepo)(nil)

// NotebookRepo stores saved notebook documents as JSON.
type NotebookRepo struct {
	db *sql.DB
}

// NewNotebookRepo creates a new NotebookRepo.
func NewNotebookRepo(db *sql.DB) *NotebookRepo {
	return &NotebookRepo{db: db}
}

// Save inserts the document or replaces the owner's existing copy. Saving a
// document that belongs to another owner is a conflict.
func (r *NotebookRepo) Save(ctx context.Context, doc *domain.NotebookDocument) (*domain.NotebookDocument, error) {
	if doc == nil {
		return nil, domain.ErrValidation("notebook is required")
	}
	if doc.Owner == "" {
		return nil, domain.ErrValidation("notebook owner is required")
	}
	if !json.Valid(doc.Data) {
		return nil, domain.ErrValidation("notebook data must be valid JSON")
	}
	if doc.ID == "" {
		doc.ID = domain.NewID()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notebooks (id, owner, name, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, data = excluded.data, updated_at = CURRENT_TIMESTAMP
		WHERE notebooks.owner = excluded.owner
	`, doc.ID, doc.Owner, doc.Name, string(doc.Data))
	if err != nil {
		return nil, mapDBError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, domain.ErrConflict("notebook %q belongs to another user", doc.ID)
	}

	return r.Get(ctx, doc.Owner, doc.ID)
}

// Get returns one of the owner's notebooks.
func (r *NotebookRepo) Get(ctx context.Context, owner, id string) (*domain.NotebookDocument, error) {
	var (
		doc  domain.NotebookDocument
		data string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner, name, data, created_at, updated_at
		FROM notebooks WHERE id = ? AND owner = ?
	`, id, owner).Scan(&doc.ID, &doc.Owner, &doc.Name, &data, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound("notebook %q not found", id)
		}
		return nil, mapDBError(err)
	}
	doc.Data = json.RawMessage(data)
	return &doc, nil
}

// List returns the owner's notebooks, most recently updated first. Data is
// omitted from listings.
func (r *NotebookRepo) List(ctx context.Context, owner string, page domain.PageRequest) ([]domain.NotebookDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner, name, created_at, updated_at
		FROM notebooks WHERE owner = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, owner, page.Limit(), page.Offset())
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.NotebookDocument
	for rows.Next() {
		var doc domain.NotebookDocument
		if err := rows.Scan(&doc.ID, &doc.Owner, &doc.Name, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Delete removes one of the owner's notebooks.
func (r *NotebookRepo) Delete(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notebooks WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return mapDBError(err)
	}
	return requireAffected(res, "notebook %q not found", id)
}
