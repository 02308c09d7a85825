package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/store"
)

func TestRedisDraftStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("SORBO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set SORBO_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	client := NewRedisClient(addr, "", 15)
	t.Cleanup(func() {
		_ = client.Del(ctx, DraftsKey).Err()
		_ = client.Close()
	})
	core, logs := observer.New(zap.WarnLevel)
	drafts := NewRedisDraftStore(client, zap.New(core))
	if err := drafts.ClearDrafts(ctx); err != nil {
		t.Fatalf("clear drafts: %v", err)
	}

	first := domain.Draft{
		ID:    "draft-a",
		Fecha: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		SaleData: domain.DraftSaleData{
			Items: []domain.DraftItem{{ProductID: "p1", Quantity: 2, PrecioUnitario: decimal.NewFromInt(10)}},
			Total: decimal.NewFromInt(20),
		},
	}
	second := domain.Draft{ID: "draft-b", Fecha: first.Fecha.Add(time.Hour)}
	for _, d := range []domain.Draft{first, second} {
		if err := drafts.SaveDraft(ctx, d); err != nil {
			t.Fatalf("save draft: %v", err)
		}
	}

	if err := client.HSet(ctx, DraftsKey, "draft-corrupt", "{not json").Err(); err != nil {
		t.Fatalf("seed corrupt draft: %v", err)
	}

	list, err := drafts.ListDrafts(ctx)
	if err != nil {
		t.Fatalf("list drafts: %v", err)
	}
	if len(list) != 2 || list[0].ID != "draft-b" {
		t.Fatalf("expected newest draft first, got %+v", list)
	}
	skipped := logs.FilterMessage("skipping unreadable draft").All()
	if len(skipped) != 1 || skipped[0].ContextMap()["draft_id"] != "draft-corrupt" {
		t.Fatalf("expected one warning for the corrupt draft, got %+v", skipped)
	}

	got, err := drafts.GetDraft(ctx, "draft-a")
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if !got.SaleData.Total.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected total 20, got %s", got.SaleData.Total)
	}

	if err := drafts.DeleteDraft(ctx, "draft-a"); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if err := drafts.DeleteDraft(ctx, "draft-a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
