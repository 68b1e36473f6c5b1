package obs

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	BidsTotal *prometheus.CounterVec // result=accepted|outbid|rejected|error

	OpLatencyMS *prometheus.HistogramVec // op=place_bid|tick_start|tick_end

	ContentionRetries prometheus.Counter

	TransitionsTotal *prometheus.CounterVec // pass=start|end, result=success|noop|fail

	EmitFailures prometheus.Counter

	ActiveListings prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		BidsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_bids_total",
				Help: "Total bid placements by result",
			},
			[]string{"result"},
		),
		OpLatencyMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auction_op_latency_ms",
				Help:    "Latency of engine operations (ms)",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1ms .. ~2048ms
			},
			[]string{"op"},
		),
		ContentionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auction_contention_retries_total",
			Help: "Total listing-row contention retries",
		}),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_transitions_total",
				Help: "Lifecycle transitions by pass and result",
			},
			[]string{"pass", "result"},
		),
		EmitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auction_emit_failures_total",
			Help: "Broadcast events that failed to publish",
		}),
		ActiveListings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auction_active_listings",
			Help: "Listings currently in active status",
		}),
	}

	prometheus.MustRegister(
		m.BidsTotal,
		m.OpLatencyMS,
		m.ContentionRetries,
		m.TransitionsTotal,
		m.EmitFailures,
		m.ActiveListings,
	)

	return m
}
