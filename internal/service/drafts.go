package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/sales"
	"sorbo/backend/internal/store"
)

var errNoDraftStore = errors.New("draft store not configured")

func (s *Service) ListDrafts(ctx context.Context) ([]domain.Draft, error) {
	if s.drafts == nil {
		return []domain.Draft{}, nil
	}
	return s.drafts.ListDrafts(ctx)
}

func (s *Service) GetDraft(ctx context.Context, id string) (domain.Draft, error) {
	if s.drafts == nil {
		return domain.Draft{}, &NotFoundError{Entity: "draft", ID: id}
	}
	draft, err := s.drafts.GetDraft(ctx, id)
	if err != nil {
		return domain.Draft{}, notFound(err, "draft", id)
	}
	return *draft, nil
}

func (s *Service) DeleteDraft(ctx context.Context, id string) error {
	if s.drafts == nil {
		return &NotFoundError{Entity: "draft", ID: id}
	}
	if err := s.drafts.DeleteDraft(ctx, id); err != nil {
		return notFound(err, "draft", id)
	}
	s.logAudit(ctx, "draft_discard", "draft", id, "discarded")
	return nil
}

func (s *Service) ClearDrafts(ctx context.Context) error {
	if s.drafts == nil {
		return nil
	}
	if err := s.drafts.ClearDrafts(ctx); err != nil {
		return err
	}
	s.logAudit(ctx, "draft_clear", "draft", "*", "cleared")
	return nil
}

// CommitDraft submits a saved draft, validated against the current catalog.
// A draft of an edit is applied to its sale instead of creating a new one.
// The draft is removed only once the sale is committed; a failed commit
// overwrites it in place.
func (s *Service) CommitDraft(ctx context.Context, id string) (domain.Sale, error) {
	if s.drafts == nil {
		return domain.Sale{}, errNoDraftStore
	}
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.commitSale(ctx, draft.SaleID, domain.SaleRequest{
		Items:       sales.LinesFromDraft(draft),
		EsMayorista: draft.SaleData.EsMayorista,
	}, draft.ID)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.drafts.DeleteDraft(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("committed draft could not be removed", zap.String("draft_id", id), zap.String("sale_id", sale.ID), zap.Error(err))
	}
	s.logAudit(ctx, "draft_commit", "draft", id, "sale="+sale.ID)
	return sale, nil
}
