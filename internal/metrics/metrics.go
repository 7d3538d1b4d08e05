package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the ledger's collectors.
	Registry = prometheus.NewRegistry()

	spends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infobot",
			Subsystem: "ledger",
			Name:      "spend_total",
			Help:      "Spend attempts by result.",
		},
		[]string{"result"},
	)

	credits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infobot",
			Subsystem: "ledger",
			Name:      "credit_total",
			Help:      "Credits granted by reason.",
		},
		[]string{"reason"},
	)

	bonusClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infobot",
			Subsystem: "bonus",
			Name:      "claims_total",
			Help:      "Daily bonus claim attempts by result.",
		},
		[]string{"result"},
	)

	referrals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infobot",
			Subsystem: "referral",
			Name:      "processed_total",
			Help:      "Referrals processed by result.",
		},
		[]string{"result"},
	)

	searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infobot",
			Subsystem: "search",
			Name:      "total",
			Help:      "Search attempts by kind and result.",
		},
		[]string{"kind", "result"},
	)

	lookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "infobot",
			Subsystem: "lookup",
			Name:      "duration_seconds",
			Help:      "Duration of external lookup calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		spends,
		credits,
		bonusClaims,
		referrals,
		searches,
		lookupDuration,
	)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordSpend(result string) {
	spends.WithLabelValues(result).Inc()
}

func RecordCredit(reason string, amount int64) {
	if amount <= 0 {
		return
	}
	credits.WithLabelValues(reason).Add(float64(amount))
}

func RecordBonusClaim(result string) {
	bonusClaims.WithLabelValues(result).Inc()
}

func RecordReferral(result string) {
	referrals.WithLabelValues(result).Inc()
}

func RecordSearch(kind, result string) {
	searches.WithLabelValues(kind, result).Inc()
}

func RecordLookup(kind string, duration time.Duration) {
	lookupDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
