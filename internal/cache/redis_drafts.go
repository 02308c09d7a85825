package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/store"
	"sorbo/backend/internal/xid"
)

// DraftsKey is the hash holding every pending draft, keyed by draft id.
const DraftsKey = "sales_drafts"

// RedisDraftStore keeps drafts outside the primary database so they
// survive a database outage, which is when most drafts are produced.
type RedisDraftStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisDraftStore(client *redis.Client, logger *zap.Logger) *RedisDraftStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDraftStore{client: client, logger: logger.With(zap.String("component", "redis-drafts"))}
}

func (s *RedisDraftStore) SaveDraft(ctx context.Context, draft domain.Draft) error {
	if draft.ID == "" {
		draft.ID = xid.New("draft")
	}
	if draft.Fecha.IsZero() {
		draft.Fecha = time.Now().UTC()
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, DraftsKey, draft.ID, payload).Err()
}

func (s *RedisDraftStore) ListDrafts(ctx context.Context) ([]domain.Draft, error) {
	raw, err := s.client.HGetAll(ctx, DraftsKey).Result()
	if err != nil {
		return nil, err
	}
	drafts := make([]domain.Draft, 0, len(raw))
	for id, val := range raw {
		var draft domain.Draft
		// A corrupt entry is skipped rather than hiding every other draft.
		if err := json.Unmarshal([]byte(val), &draft); err != nil {
			s.logger.Warn("skipping unreadable draft", zap.String("draft_id", id), zap.Error(err))
			continue
		}
		drafts = append(drafts, draft)
	}
	store.SortDrafts(drafts)
	return drafts, nil
}

func (s *RedisDraftStore) GetDraft(ctx context.Context, id string) (*domain.Draft, error) {
	val, err := s.client.HGet(ctx, DraftsKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var draft domain.Draft
	if err := json.Unmarshal([]byte(val), &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

func (s *RedisDraftStore) DeleteDraft(ctx context.Context, id string) error {
	removed, err := s.client.HDel(ctx, DraftsKey, id).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *RedisDraftStore) ClearDrafts(ctx context.Context) error {
	return s.client.Del(ctx, DraftsKey).Err()
}
