package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/insights"
	"sorbo/backend/internal/metrics"
	"sorbo/backend/internal/receipt"
	"sorbo/backend/internal/sales"
	"sorbo/backend/internal/store"
	"sorbo/backend/internal/xid"
)

// loadSaleProducts reads every product the lines (and the original sale,
// when editing) refer to.
func (s *Service) loadSaleProducts(ctx context.Context, lines []domain.SaleLine, original *domain.Sale) (map[string]domain.Product, error) {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, line := range lines {
		add(line.ProductID)
	}
	if original != nil {
		for _, item := range original.Items {
			add(item.ProductID)
		}
	}
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	return s.repo.GetProductsByIDs(ctx, ids)
}

func (s *Service) builderFor(ctx context.Context, saleID string, req domain.SaleRequest) (*sales.Builder, error) {
	if saleID == "" {
		b := sales.NewBuilder(req.EsMayorista)
		b.SetLines(req.Items)
		return b, nil
	}

	original, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, notFound(err, "sale", saleID)
	}
	b := sales.NewEditBuilder(*original)
	b.SetLines(req.Items)
	b.SetWholesale(req.EsMayorista)
	return b, nil
}

// ValidateSale checks a sale (or an edit of saleID) against the current
// catalog without committing it.
func (s *Service) ValidateSale(ctx context.Context, saleID string, req domain.SaleRequest) (domain.SaleValidationResponse, error) {
	b, err := s.builderFor(ctx, saleID, req)
	if err != nil {
		return domain.SaleValidationResponse{}, err
	}
	products, err := s.loadSaleProducts(ctx, req.Items, b.Original())
	if err != nil {
		return domain.SaleValidationResponse{}, err
	}

	errs := b.Validate(products)
	return domain.SaleValidationResponse{
		Valid:    len(errs) == 0,
		Errors:   errs,
		MaxStock: b.MaxStock(products),
		Total:    b.Total(products),
	}, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	return s.commitSale(ctx, "", req, "")
}

func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleRequest) (domain.Sale, error) {
	return s.commitSale(ctx, id, req, "")
}

// commitSale validates and writes a new sale (saleID empty) or an edit.
// draftID names the draft a failed commit is kept under; a new id is
// generated when it is empty.
func (s *Service) commitSale(ctx context.Context, saleID string, req domain.SaleRequest, draftID string) (domain.Sale, error) {
	op := metrics.OperationCreate
	if saleID != "" {
		op = metrics.OperationUpdate
	}

	b, err := s.builderFor(ctx, saleID, req)
	if err != nil {
		return domain.Sale{}, err
	}
	products, err := s.loadSaleProducts(ctx, req.Items, b.Original())
	if err != nil {
		metrics.SaleCommitFailed(op)
		return domain.Sale{}, &CommitError{Op: op, Err: err}
	}

	if errs := b.Validate(products); len(errs) > 0 {
		return domain.Sale{}, &ValidationError{Lines: errs, MaxStock: b.MaxStock(products)}
	}
	items, err := b.Items(products)
	if err != nil {
		return domain.Sale{}, err
	}

	actor, _ := ActorFromContext(ctx)
	sale := domain.Sale{
		ID:          saleID,
		Fecha:       s.now(),
		Items:       items,
		Total:       sales.Total(items),
		EsMayorista: b.EsMayorista(),
		VendedorID:  actor.Username,
	}
	deltas := b.Deltas(items)

	var saved *domain.Sale
	if saleID == "" {
		sale.ID = xid.New("sale")
		saved, err = s.repo.CreateSale(ctx, sale, deltas)
	} else {
		saved, err = s.repo.UpdateSale(ctx, sale, deltas)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && saleID != "" {
			if _, getErr := s.repo.GetSale(ctx, saleID); errors.Is(getErr, store.ErrNotFound) {
				return domain.Sale{}, notFound(err, "sale", saleID)
			}
		}
		return domain.Sale{}, s.commitFailed(ctx, op, b, products, draftID, err)
	}
	_ = b.MarkCommitted()

	metrics.SaleCommitted(op)
	s.logAudit(ctx, "sale_"+op, "sale", saved.ID, fmt.Sprintf("items=%d,total=%s,mayorista=%t", len(saved.Items), saved.Total, saved.EsMayorista))
	eventType := domain.EventSaleCreated
	if op == metrics.OperationUpdate {
		eventType = domain.EventSaleUpdated
	}
	s.afterWrite(ctx, eventType, sales.ProductIDs(deltas))
	return *saved, nil
}

// commitFailed keeps the valid lines of a sale that could not be written as
// a draft, then returns the original error. A draft that cannot be saved is
// logged and otherwise ignored.
func (s *Service) commitFailed(ctx context.Context, op string, b *sales.Builder, products map[string]domain.Product, draftID string, cause error) error {
	metrics.SaleCommitFailed(op)
	commitErr := &CommitError{Op: op, Err: cause}

	logger := s.logger.With(zap.String("operation", op))
	if draftID == "" {
		draftID = xid.New("draft")
	}
	draft, ok := b.Draft(draftID, s.now(), products)
	if !ok {
		logger.Warn("sale commit failed, nothing to keep as draft", zap.Error(cause))
		return commitErr
	}
	if s.drafts == nil {
		logger.Warn("sale commit failed, no draft store configured", zap.Error(cause))
		return commitErr
	}
	if err := s.drafts.SaveDraft(ctx, draft); err != nil {
		logger.Warn("sale commit failed and draft could not be saved", zap.Error(cause), zap.NamedError("draft_error", err))
		return commitErr
	}

	metrics.DraftSaved()
	commitErr.DraftID = draft.ID
	logger.Warn("sale commit failed, kept as draft", zap.String("draft_id", draft.ID), zap.Error(cause))
	return commitErr
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	deleted, err := s.repo.DeleteSale(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(err, "sale", id)
		}
		metrics.SaleCommitFailed(metrics.OperationDelete)
		return &CommitError{Op: metrics.OperationDelete, Err: err}
	}

	metrics.SaleCommitted(metrics.OperationDelete)
	s.logAudit(ctx, "sale_delete", "sale", id, fmt.Sprintf("items=%d,total=%s", len(deleted.Items), deleted.Total))
	s.afterWrite(ctx, domain.EventSaleDeleted, sales.ProductIDs(sales.ReversalDeltas(deleted.Items)))
	return nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, notFound(err, "sale", id)
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) SalesSummary(ctx context.Context, filter domain.SaleFilter) (domain.SalesSummary, error) {
	filter.Limit = 0
	list, err := s.ListSales(ctx, filter)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return insights.SummarizeSales(list), nil
}

// Receipt renders the sale as a printable PDF ticket.
func (s *Service) Receipt(ctx context.Context, id string) ([]byte, error) {
	sale, err := s.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	return receipt.Render(sale, s.businessName)
}

func (s *Service) Dashboard(ctx context.Context, filter domain.SaleFilter) (*domain.Dashboard, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, store.ErrInvalidInput
	}
	return s.insights.Dashboard(ctx, filter, func(ctx context.Context, filter domain.SaleFilter) ([]domain.Product, []domain.Sale, error) {
		products, err := s.repo.ListProducts(ctx)
		if err != nil {
			return nil, nil, err
		}
		list, err := s.repo.ListSales(ctx, domain.SaleFilter{From: filter.From, To: filter.To})
		if err != nil {
			return nil, nil, err
		}
		return products, list, nil
	})
}
