package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Счётчик вызовов методов репозитория
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	// Гистограмма времени выполнения запросов
	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	WalletOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_operations_total",
			Help: "Wallet credits and debits by outcome",
		},
		[]string{"operation", "status"},
	)

	RefundsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_refunds_total",
			Help: "Cancelled bookings by refund percentage",
		},
		[]string{"percentage"},
	)

	MembershipPurchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_purchases_total",
			Help: "Membership purchases by payment method and outcome",
		},
		[]string{"method", "status"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(RepositoryCalls, RepositoryDuration, WalletOperations, RefundsIssued, MembershipPurchases)
}
