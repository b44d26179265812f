package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	TransfersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Total successful intrabank transfers",
		},
	)

	QrisRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qris_redemptions_total",
			Help: "Total successful QRIS redemptions",
		},
		[]string{"branch"}, // p2p|merchant_dynamic|merchant_static
	)

	PaymentsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_failed_total",
			Help: "Total failed payment operations",
		},
	)
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(TransfersTotal)
	prometheus.MustRegister(QrisRedemptionsTotal)
	prometheus.MustRegister(PaymentsFailed)
}
