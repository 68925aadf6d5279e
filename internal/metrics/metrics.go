package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts settlement cycles by product and outcome.
	// Status is one of "settled", "skipped", "failed".
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settler_cycles_total",
			Help: "Total number of settlement cycles by product and status",
		},
		[]string{"product", "status"},
	)

	// CycleDuration measures wall time of a full settlement cycle.
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settler_cycle_duration_seconds",
			Help:    "Duration of settlement cycles in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"product"},
	)

	// TradesFetched counts trades pulled from the feed, before merging.
	TradesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settler_trades_fetched_total",
			Help: "Total number of trades fetched from the feed",
		},
		[]string{"product", "source"},
	)

	// TradesMerged counts trades newly added to the ledger.
	TradesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settler_trades_merged_total",
			Help: "Total number of new trades merged into the ledger",
		},
		[]string{"product"},
	)

	// TradesRejected counts duplicate trades whose immutable fields disagreed.
	TradesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settler_trades_rejected_total",
			Help: "Total number of trades rejected for conflicting duplicate fields",
		},
		[]string{"product"},
	)

	// ParseErrors counts feed rows dropped during conversion.
	ParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settler_feed_parse_errors_total",
			Help: "Total number of feed rows dropped due to parse errors",
		},
		[]string{"product"},
	)

	// PartyObligation exposes the most recent obligation per party.
	PartyObligation = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "settler_party_obligation",
			Help: "Most recent settlement obligation per party",
		},
		[]string{"product", "party"},
	)

	// PartyBalance exposes the current balance per party.
	PartyBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "settler_party_balance",
			Help: "Current balance per party",
		},
		[]string{"party"},
	)

	// StreamConnected reports websocket connection state (1 = connected).
	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "settler_stream_connected",
			Help: "Whether the websocket match stream is connected",
		},
	)
)

// Handler returns an HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
