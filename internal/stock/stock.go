package stock

import (
	"math"

	"sorbo/backend/internal/domain"
)

const (
	DefaultGoodThreshold = 10
	DefaultLowThreshold  = 1
)

// Thresholds classifies stock counts: >= Good is good, >= Low is low,
// anything below Low is out.
type Thresholds struct {
	Good int
	Low  int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Good: DefaultGoodThreshold, Low: DefaultLowThreshold}
}

// Normalize replaces unusable values with the defaults.
func (t Thresholds) Normalize() Thresholds {
	if t.Low < 1 {
		t.Low = DefaultLowThreshold
	}
	if t.Good <= t.Low {
		t.Good = DefaultGoodThreshold
		if t.Good <= t.Low {
			t.Good = t.Low + 1
		}
	}
	return t
}

func (t Thresholds) Status(stock int) domain.StockStatus {
	if stock >= t.Good {
		return domain.StockGood
	}
	if stock >= t.Low {
		return domain.StockLow
	}
	return domain.StockOut
}

func (t Thresholds) Summarize(products []domain.Product) domain.StockSummary {
	summary := domain.StockSummary{Total: len(products)}
	for _, p := range products {
		switch t.Status(p.Stock) {
		case domain.StockGood:
			summary.Good++
		case domain.StockLow:
			summary.Low++
		default:
			summary.Out++
		}
	}
	summary.GoodPercentage = percentage(summary.Good, summary.Total)
	summary.LowPercentage = percentage(summary.Low, summary.Total)
	summary.OutPercentage = percentage(summary.Out, summary.Total)
	return summary
}

// Status classifies stock with the default thresholds.
func Status(stock int) domain.StockStatus {
	return DefaultThresholds().Status(stock)
}

// Summary summarizes products with the default thresholds.
func Summary(products []domain.Product) domain.StockSummary {
	return DefaultThresholds().Summarize(products)
}

func percentage(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}
