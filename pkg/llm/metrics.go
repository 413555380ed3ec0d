package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriviewer_llm_requests_total",
		Help: "Total number of language model backend requests",
	},
		[]string{"backend"},
	)

	BackendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriviewer_llm_request_errors_total",
		Help: "Total number of language model backend errors by class",
	},
		[]string{"backend", "reason"},
	)

	BackendLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agriviewer_llm_request_duration_seconds",
		Help:    "Language model backend request latency",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	},
		[]string{"backend"},
	)
)

// errorReason はメトリクスのラベル用にエラー分類名を返します。
func errorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case isErr(err, ErrBackendAuth):
		return "auth"
	case isErr(err, ErrBackendAccessDenied):
		return "access_denied"
	case isErr(err, ErrBackendTimeout):
		return "timeout"
	case isErr(err, ErrBackendUnreachable):
		return "unreachable"
	case isErr(err, ErrBackendStatus), isErr(err, ErrEmptyReply):
		return "status"
	default:
		return "other"
	}
}
