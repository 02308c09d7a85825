package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/store"
)

// SaveDraft upserts by id, so saving a draft twice keeps the latest copy.
func (s *Store) SaveDraft(ctx context.Context, draft domain.Draft) error {
	if draft.ID == "" {
		return store.ErrInvalidInput
	}
	payload, err := json.Marshal(draft.SaleData)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sale_drafts (id, fecha, sale_id, sale_data)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (id) DO UPDATE
		SET fecha = EXCLUDED.fecha, sale_id = EXCLUDED.sale_id, sale_data = EXCLUDED.sale_data
	`, draft.ID, draft.Fecha.UTC(), draft.SaleID, payload)
	return err
}

func scanDraft(row rowScanner) (domain.Draft, error) {
	var (
		draft   domain.Draft
		saleID  sql.NullString
		payload []byte
	)
	if err := row.Scan(&draft.ID, &draft.Fecha, &saleID, &payload); err != nil {
		return draft, err
	}
	draft.Fecha = draft.Fecha.UTC()
	draft.SaleID = saleID.String
	if err := json.Unmarshal(payload, &draft.SaleData); err != nil {
		return draft, fmt.Errorf("decode draft %s: %w", draft.ID, err)
	}
	return draft, nil
}

func (s *Store) ListDrafts(ctx context.Context) ([]domain.Draft, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, fecha, sale_id, sale_data FROM sale_drafts ORDER BY fecha DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drafts := make([]domain.Draft, 0, 8)
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drafts, nil
}

func (s *Store) GetDraft(ctx context.Context, id string) (*domain.Draft, error) {
	draft, err := scanDraft(s.db.QueryRowContext(ctx, `SELECT id, fecha, sale_id, sale_data FROM sale_drafts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &draft, nil
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	return execAffectingOne(ctx, s.db, `DELETE FROM sale_drafts WHERE id = $1`, id)
}

func (s *Store) ClearDrafts(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sale_drafts`)
	return err
}
