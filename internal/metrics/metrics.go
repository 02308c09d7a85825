package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sorbo",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	salesCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sorbo",
		Name:      "sales_committed_total",
		Help:      "Sales written, by operation.",
	}, []string{"operation"})

	saleCommitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sorbo",
		Name:      "sale_commit_failures_total",
		Help:      "Sale writes that failed after validation, by operation.",
	}, []string{"operation"})

	draftsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sorbo",
		Name:      "sale_drafts_saved_total",
		Help:      "Drafts saved after a failed sale write.",
	})

	catalogReprices = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sorbo",
		Name:      "catalog_reprices_total",
		Help:      "Catalog-wide price recalculations.",
	})

	productsRepriced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sorbo",
		Name:      "products_repriced_total",
		Help:      "Products whose derived prices changed in a recalculation.",
	})
)

const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

func SaleCommitted(operation string) {
	salesCommitted.WithLabelValues(operation).Inc()
}

func SaleCommitFailed(operation string) {
	saleCommitFailures.WithLabelValues(operation).Inc()
}

func DraftSaved() {
	draftsSaved.Inc()
}

func CatalogRepriced(changed int) {
	catalogReprices.Inc()
	productsRepriced.Add(float64(changed))
}

// Middleware records request latency labelled by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
