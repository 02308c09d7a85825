// Package service coordinates the catalog, the sale flow and their side
// effects (price history, audit, events, dashboard invalidation).
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/events"
	"sorbo/backend/internal/insights"
	"sorbo/backend/internal/stock"
	"sorbo/backend/internal/store"
	"sorbo/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	// catalogMu serializes cost and product writes so a reprice always
	// reads the inputs it writes prices for.
	catalogMu sync.Mutex

	repo         store.Repository
	drafts       store.DraftStore
	insights     *insights.Engine
	thresholds   stock.Thresholds
	hub          *events.Hub
	logger       *zap.Logger
	businessName string
	now          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEvents publishes stock events on hub after every committed write.
func WithEvents(hub *events.Hub) Option {
	return func(s *Service) { s.hub = hub }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBusinessName sets the header printed on receipts.
func WithBusinessName(name string) Option {
	return func(s *Service) { s.businessName = name }
}

func New(repo store.Repository, drafts store.DraftStore, engine *insights.Engine, opts ...Option) *Service {
	if engine == nil {
		engine = insights.NewEngine(nil, 0, stock.DefaultThresholds())
	}
	s := &Service{
		repo:         repo,
		drafts:       drafts,
		insights:     engine,
		thresholds:   engine.Thresholds(),
		logger:       zap.NewNop(),
		businessName: "Sorbo Sabores",
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "service"))
	return s
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

// afterWrite runs the side effects every committed catalog or sale write
// shares: the dashboard cache is dropped and live subscribers are told.
func (s *Service) afterWrite(ctx context.Context, eventType string, productIDs []string) {
	if err := s.insights.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
	if s.hub == nil || s.hub.Subscribers() == 0 {
		return
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		s.logger.Warn("failed to load products for stock event", zap.String("event", eventType), zap.Error(err))
		return
	}
	s.hub.Publish(domain.StockEvent{
		Type:       eventType,
		ProductIDs: productIDs,
		Summary:    s.thresholds.Summarize(products),
		At:         s.now(),
	})
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if date == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}
