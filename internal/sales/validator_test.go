package sales

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sorbo/backend/internal/domain"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func catalog() map[string]domain.Product {
	return map[string]domain.Product{
		"x": {
			ID:                          "x",
			Nombre:                      "Blend Clasico",
			Tipo:                        domain.ProductTypeBlend,
			PrecioCosto:                 d("1000"),
			PorcentajeGanancia:          d("60"),
			PorcentajeGananciaMayorista: d("35"),
			Costos:                      d("430"),
			PrecioVenta:                 d("2288"),
			PrecioVentaMayorista:        d("1930.5"),
			Stock:                       5,
		},
		"y": {
			ID:                 "y",
			Nombre:             "Caja Regalo",
			Tipo:               domain.ProductTypeCaja,
			PrecioCosto:        d("500"),
			PorcentajeGanancia: d("50"),
			Costos:             d("390"),
			PrecioVenta:        d("1335"),
			Stock:              2,
		},
	}
}

func TestCreationFlagsEveryLineOfOversoldProduct(t *testing.T) {
	lines := []domain.SaleLine{
		{ProductID: "x", Quantity: 3},
		{ProductID: "x", Quantity: 3},
		{ProductID: "y", Quantity: 1},
	}

	errs := ComputeItemErrors(lines, catalog(), nil)

	require.Len(t, errs, 2)
	assert.Equal(t, "total quantity exceeds available stock (5)", errs[0])
	assert.Equal(t, "total quantity exceeds available stock (5)", errs[1])
	_, flagged := errs[2]
	assert.False(t, flagged)
}

func TestCreationAllowsExactStock(t *testing.T) {
	lines := []domain.SaleLine{{ProductID: "x", Quantity: 2}, {ProductID: "x", Quantity: 3}}

	assert.Empty(t, ComputeItemErrors(lines, catalog(), nil))
}

func TestBasicErrorsSkipStockCheck(t *testing.T) {
	lines := []domain.SaleLine{
		{ProductID: "", Quantity: 1},
		{ProductID: "x", Quantity: 0},
		{ProductID: "x", Quantity: 99},
	}

	errs := ComputeItemErrors(lines, catalog(), nil)

	assert.Equal(t, map[int]string{0: MsgProductRequired, 1: MsgQuantityPositive}, errs)
}

func TestUnknownProductIsReported(t *testing.T) {
	lines := []domain.SaleLine{{ProductID: "ghost", Quantity: 1}, {ProductID: "y", Quantity: 1}}

	errs := ComputeItemErrors(lines, catalog(), nil)

	assert.Equal(t, map[int]string{0: MsgProductNotFound}, errs)
}

func editedSale() domain.Sale {
	products := catalog()
	return domain.Sale{
		ID:    "sale-1",
		Items: BuildSaleItems([]domain.SaleLine{{ProductID: "y", Quantity: 3}}, products, false),
	}
}

func TestEditReconcilesAgainstOriginalQuantity(t *testing.T) {
	original := editedSale()
	products := catalog()

	assert.Empty(t, ComputeItemErrors([]domain.SaleLine{{ProductID: "y", Quantity: 4}}, products, &original))
	assert.Empty(t, ComputeItemErrors([]domain.SaleLine{{ProductID: "y", Quantity: 5}}, products, &original))
	assert.Empty(t, ComputeItemErrors([]domain.SaleLine{{ProductID: "y", Quantity: 1}}, products, &original))

	errs := ComputeItemErrors([]domain.SaleLine{{ProductID: "y", Quantity: 6}}, products, &original)
	assert.Equal(t, map[int]string{0: "total quantity exceeds available stock (5)"}, errs)
}

func TestEditChecksNewProductsAgainstPlainStock(t *testing.T) {
	original := editedSale()
	lines := []domain.SaleLine{{ProductID: "y", Quantity: 3}, {ProductID: "x", Quantity: 6}}

	errs := ComputeItemErrors(lines, catalog(), &original)

	assert.Equal(t, map[int]string{1: "total quantity exceeds available stock (5)"}, errs)
}

func TestMaxStockForItem(t *testing.T) {
	products := catalog()
	original := editedSale()

	assert.Equal(t, 2, MaxStockForItem("y", products, nil))
	assert.Equal(t, 5, MaxStockForItem("y", products, &original))
	assert.Equal(t, 5, MaxStockForItem("x", products, &original))
	assert.Equal(t, 0, MaxStockForItem("ghost", products, nil))
}

func TestComputeTotalUsesWholesaleOnlyWhenConfigured(t *testing.T) {
	lines := []domain.SaleLine{{ProductID: "x", Quantity: 2}, {ProductID: "y", Quantity: 1}}
	products := catalog()

	assert.True(t, d("5911").Equal(ComputeTotal(lines, products, false)))
	// y has no wholesale margin and falls back to its retail price.
	assert.True(t, d("5196").Equal(ComputeTotal(lines, products, true)))
}

func TestSnapshotRecordsWholesaleMarginOnlyWhenCharged(t *testing.T) {
	lines := []domain.SaleLine{{ProductID: "x", Quantity: 1}, {ProductID: "y", Quantity: 1}}
	products := catalog()

	wholesale := BuildSaleItems(lines, products, true)
	require.Len(t, wholesale, 2)
	require.NotNil(t, wholesale[0].Snapshot.PorcentajeGananciaMayorista)
	assert.True(t, d("35").Equal(*wholesale[0].Snapshot.PorcentajeGananciaMayorista))
	assert.True(t, d("1930.5").Equal(wholesale[0].PrecioUnitario))
	assert.Nil(t, wholesale[1].Snapshot.PorcentajeGananciaMayorista)
	assert.True(t, d("1335").Equal(wholesale[1].PrecioUnitario))

	retail := BuildSaleItems(lines, products, false)
	assert.Nil(t, retail[0].Snapshot.PorcentajeGananciaMayorista)
	assert.True(t, d("2288").Equal(retail[0].Snapshot.PrecioVenta))
	assert.True(t, d("430").Equal(retail[0].Snapshot.Costos))
}

func TestRebuildKeepsOriginalSnapshot(t *testing.T) {
	original := editedSale()
	products := catalog()
	repriced := products["y"]
	repriced.PrecioVenta = d("9999")
	products["y"] = repriced

	items := RebuildSaleItems([]domain.SaleLine{{ProductID: "y", Quantity: 4}, {ProductID: "x", Quantity: 1}}, products, original, false)

	require.Len(t, items, 2)
	assert.Equal(t, 4, items[0].Cantidad)
	assert.True(t, d("1335").Equal(items[0].PrecioUnitario))
	assert.True(t, d("2288").Equal(items[1].PrecioUnitario))
	assert.True(t, d("7628").Equal(Total(items)))
}

func TestCreationDeltas(t *testing.T) {
	items := BuildSaleItems([]domain.SaleLine{{ProductID: "y", Quantity: 1}, {ProductID: "x", Quantity: 2}, {ProductID: "x", Quantity: 1}}, catalog(), false)

	deltas := CreationDeltas(items)

	assert.Equal(t, []domain.StockDelta{
		{ProductID: "x", Stock: -3, Sold: 3},
		{ProductID: "y", Stock: -1, Sold: 1},
	}, deltas)
}

func TestEditDeltasApplyOnlyDifferences(t *testing.T) {
	products := catalog()
	before := BuildSaleItems([]domain.SaleLine{{ProductID: "x", Quantity: 3}, {ProductID: "y", Quantity: 1}}, products, false)
	after := BuildSaleItems([]domain.SaleLine{{ProductID: "x", Quantity: 1}}, products, false)

	assert.Equal(t, []domain.StockDelta{
		{ProductID: "x", Stock: 2, Sold: -2},
		{ProductID: "y", Stock: 1, Sold: -1},
	}, EditDeltas(before, after))

	assert.Empty(t, EditDeltas(before, before))
}

func TestReversalDeltas(t *testing.T) {
	items := BuildSaleItems([]domain.SaleLine{{ProductID: "x", Quantity: 2}}, catalog(), false)

	assert.Equal(t, []domain.StockDelta{{ProductID: "x", Stock: 2, Sold: -2}}, ReversalDeltas(items))
}

func TestDraftKeepsOnlyValidLines(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lines := []domain.SaleLine{
		{ProductID: "x", Quantity: 1},
		{ProductID: "", Quantity: 2},
		{ProductID: "y", Quantity: 0},
		{ProductID: "ghost", Quantity: 1},
		{ProductID: "y", Quantity: 2},
	}

	draft, ok := BuildDraft("draft-1", at, lines, catalog(), false)

	require.True(t, ok)
	assert.Equal(t, "draft-1", draft.ID)
	assert.Equal(t, at, draft.Fecha)
	require.Len(t, draft.SaleData.Items, 2)
	assert.Equal(t, "x", draft.SaleData.Items[0].ProductID)
	assert.Equal(t, "y", draft.SaleData.Items[1].ProductID)
	assert.Equal(t, 2, draft.SaleData.Items[1].Quantity)
	assert.True(t, d("4958").Equal(draft.SaleData.Total))
	assert.Equal(t, lines[0:1], LinesFromDraft(draft)[0:1])
}

func TestDraftWithoutValidLines(t *testing.T) {
	_, ok := BuildDraft("draft-1", time.Now(), []domain.SaleLine{{ProductID: "", Quantity: 1}}, catalog(), false)

	assert.False(t, ok)
}

func TestBuilderLifecycle(t *testing.T) {
	products := catalog()
	b := NewBuilder(false)
	assert.Equal(t, StateEmpty, b.State())

	idx := b.AddLine("x", 6)
	assert.Equal(t, StateEditing, b.State())
	assert.NotEmpty(t, b.Validate(products))
	assert.Equal(t, StateEditing, b.State())

	_, err := b.Items(products)
	assert.ErrorIs(t, err, ErrNotValidated)

	b.SetQuantity(idx, 5)
	assert.Empty(t, b.Validate(products))
	assert.Equal(t, StateValidated, b.State())
	assert.Equal(t, []int{5}, b.MaxStock(products))

	items, err := b.Items(products)
	require.NoError(t, err)
	assert.Equal(t, []domain.StockDelta{{ProductID: "x", Stock: -5, Sold: 5}}, b.Deltas(items))

	require.NoError(t, b.MarkCommitted())
	assert.Equal(t, StateCommitted, b.State())
	assert.Equal(t, -1, b.AddLine("y", 1))
	_, err = b.Items(products)
	assert.ErrorIs(t, err, ErrAlreadyCommitted)
}

func TestBuilderChangeInvalidatesValidation(t *testing.T) {
	products := catalog()
	b := NewBuilder(false)
	b.AddLine("x", 1)
	require.Empty(t, b.Validate(products))

	b.SetWholesale(true)
	assert.Equal(t, StateEditing, b.State())

	b.RemoveLine(0)
	assert.Equal(t, StateEmpty, b.State())
	assert.Equal(t, map[int]string{0: MsgProductRequired}, b.Validate(products))
}

func TestEditBuilderStartsFromOriginalLines(t *testing.T) {
	original := editedSale()
	b := NewEditBuilder(original)

	assert.Equal(t, StateEditing, b.State())
	assert.Equal(t, []domain.SaleLine{{ProductID: "y", Quantity: 3}}, b.Lines())

	b.SetQuantity(0, 5)
	require.Empty(t, b.Validate(catalog()))
	items, err := b.Items(catalog())
	require.NoError(t, err)
	assert.Equal(t, []domain.StockDelta{{ProductID: "y", Stock: -2, Sold: 2}}, b.Deltas(items))
}

func TestRebuildRepricesWhenWholesaleFlagChanges(t *testing.T) {
	products := catalog()
	original := domain.Sale{Items: BuildSaleItems([]domain.SaleLine{{ProductID: "x", Quantity: 1}}, products, false)}

	items := RebuildSaleItems([]domain.SaleLine{{ProductID: "x", Quantity: 1}}, products, original, true)

	require.Len(t, items, 1)
	assert.True(t, d("1930.5").Equal(items[0].PrecioUnitario))
	require.NotNil(t, items[0].Snapshot.PorcentajeGananciaMayorista)
}

func TestEditDraftKeepsSaleIDAndFrozenPrices(t *testing.T) {
	original := editedSale()
	products := catalog()
	repriced := products["y"]
	repriced.PrecioVenta = d("9999")
	products["y"] = repriced

	b := NewEditBuilder(original)
	b.SetQuantity(0, 4)
	b.AddLine("x", 1)
	draft, ok := b.Draft("draft-1", time.Now(), products)

	require.True(t, ok)
	assert.Equal(t, "sale-1", draft.SaleID)
	require.Len(t, draft.SaleData.Items, 2)
	assert.True(t, d("1335").Equal(draft.SaleData.Items[0].PrecioUnitario))
	// 4 x 1335 + 2288.
	assert.True(t, d("7628").Equal(draft.SaleData.Total))
}
