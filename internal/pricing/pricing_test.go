package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sorbo/backend/internal/domain"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sampleCosts() []domain.CostItem {
	return []domain.CostItem{
		{ID: "c1", Nombre: "Empaquetado", Tipo: domain.CostTypeGeneral, Valor: d("120")},
		{ID: "c2", Nombre: "Materia prima blends", Tipo: domain.CostTypeBlend, Valor: d("220")},
		{ID: "c3", Nombre: "Materia prima cajas", Tipo: domain.CostTypeCaja, Valor: d("180")},
		{ID: "c4", Nombre: "Gin botanico", Tipo: domain.CostTypeGin, Valor: d("350")},
		{ID: "c5", Nombre: "Amortizacion", Tipo: domain.CostTypeAmortizable, Valor: d("90")},
	}
}

func TestApplicableCostsFiltersByType(t *testing.T) {
	costs := sampleCosts()

	assert.True(t, d("430").Equal(ApplicableCosts(costs, domain.ProductTypeBlend)))
	assert.True(t, d("390").Equal(ApplicableCosts(costs, domain.ProductTypeCaja)))
	assert.True(t, d("560").Equal(ApplicableCosts(costs, domain.ProductTypeGin)))
}

func TestApplicableCostsEmptyCatalogIsZero(t *testing.T) {
	assert.True(t, ApplicableCosts(nil, domain.ProductTypeGin).IsZero())
	assert.True(t, ApplicableCosts([]domain.CostItem{}, domain.ProductTypeBlend).IsZero())
}

func TestSalePrice(t *testing.T) {
	cases := []struct {
		name   string
		base   string
		costs  string
		margin string
		want   string
	}{
		{"documented example", "100", "50", "50", "225.00"},
		{"no margin", "100", "50", "0", "150"},
		{"rounds half up", "0.01", "0", "50", "0.02"},
		{"fractional margin", "33.33", "0", "33.3", "44.43"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SalePrice(d(tc.base), d(tc.costs), d(tc.margin))
			assert.Truef(t, d(tc.want).Equal(got), "expected %s got %s", tc.want, got)
		})
	}
}

func TestSalePriceIsMonotonic(t *testing.T) {
	values := []string{"0", "0.5", "1", "10", "99.99", "250"}
	for i := 1; i < len(values); i++ {
		lo, hi := d(values[i-1]), d(values[i])
		fixed := d("40")

		assert.True(t, SalePrice(hi, fixed, fixed).GreaterThanOrEqual(SalePrice(lo, fixed, fixed)))
		assert.True(t, SalePrice(fixed, hi, fixed).GreaterThanOrEqual(SalePrice(fixed, lo, fixed)))
		assert.True(t, SalePrice(fixed, fixed, hi).GreaterThanOrEqual(SalePrice(fixed, fixed, lo)))
	}
}

func TestRecalculateProductFinancialsIsIdempotent(t *testing.T) {
	costs := sampleCosts()
	p := domain.Product{
		ID:                          "p1",
		Nombre:                      "Blend Citrico",
		Tipo:                        domain.ProductTypeBlend,
		PrecioCosto:                 d("1000"),
		PorcentajeGanancia:          d("60"),
		PorcentajeGananciaMayorista: d("35"),
		Stock:                       7,
		SoldCount:                   12,
	}

	first := RecalculateProductFinancials(p, costs)
	second := RecalculateProductFinancials(first, costs)

	require.True(t, d("430").Equal(first.Costos))
	assert.True(t, d("2288").Equal(first.PrecioVenta), "got %s", first.PrecioVenta)
	assert.True(t, d("1930.5").Equal(first.PrecioVentaMayorista), "got %s", first.PrecioVentaMayorista)
	assert.False(t, FinancialsChanged(first, second))
	assert.Equal(t, "p1", second.ID)
	assert.Equal(t, 12, second.SoldCount)
	assert.Equal(t, 7, second.Stock)
}

func TestRecalculateCatalogPreservesIdentity(t *testing.T) {
	products := []domain.Product{
		{ID: "a", Tipo: domain.ProductTypeGin, PrecioCosto: d("10"), PorcentajeGanancia: d("10"), SoldCount: 4},
		{ID: "b", Tipo: domain.ProductTypeCaja, PrecioCosto: d("20"), PorcentajeGanancia: d("0"), SoldCount: 9},
	}

	out := RecalculateCatalog(products, sampleCosts())

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, 4, out[0].SoldCount)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, 9, out[1].SoldCount)
	assert.True(t, products[0].PrecioVenta.IsZero(), "input must not be modified")
	assert.True(t, d("627").Equal(out[0].PrecioVenta), "got %s", out[0].PrecioVenta)
}

func TestUnitPriceFallsBackToRetailWithoutWholesaleMargin(t *testing.T) {
	p := RecalculateProductFinancials(domain.Product{
		Tipo:               domain.ProductTypeCaja,
		PrecioCosto:        d("100"),
		PorcentajeGanancia: d("50"),
	}, nil)

	assert.True(t, p.PrecioVenta.Equal(UnitPrice(p, true)))
	assert.True(t, d("100").Equal(p.PrecioVentaMayorista))

	p.PorcentajeGananciaMayorista = d("20")
	p = RecalculateProductFinancials(p, nil)
	assert.True(t, d("120").Equal(UnitPrice(p, true)))
	assert.True(t, d("150").Equal(UnitPrice(p, false)))
}
