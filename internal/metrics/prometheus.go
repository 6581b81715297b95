package metrics

import (
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

const namespace = "ministake"

// Collector records staking telemetry in a dedicated Prometheus registry so
// it never collides with the default global one.
type Collector struct {
	registry *prometheus.Registry

	readTotal    *prometheus.CounterVec
	readDuration *prometheus.HistogramVec

	writeTotal    *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec

	stakesMatured prometheus.Counter
	debugEvents   *prometheus.CounterVec

	obligation prometheus.Gauge
	balance    prometheus.Gauge
	sufficient prometheus.Gauge

	uptimeSeconds prometheus.GaugeFunc
	startTime     time.Time
	unit          *big.Float
	reported      atomic.Bool // SetSufficiency called at least once
}

var _ staking.Metrics = (*Collector)(nil)

// NewCollector creates a Collector with every metric registered. decimals
// converts token amounts from base units for the balance gauges.
func NewCollector(decimals uint8) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry:  reg,
		startTime: time.Now(),
		unit:      new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),

		readTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Ledger reads by field and result.",
		}, []string{"field", "result"}),

		readDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "read_duration_seconds",
			Help:      "Ledger read latency by field, including retries.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"field"}),

		writeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Write flows by operation and final status.",
		}, []string{"op", "status"}),

		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Time from submission to confirmation or failure.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"op"}),

		stakesMatured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stakes_matured_total",
			Help:      "Stakes that became ready for withdrawal.",
		}),

		debugEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdraw_debug_events_total",
			Help:      "WithdrawDebug events by reconciliation outcome.",
		}, []string{"outcome"}),

		obligation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_obligation_tokens",
			Help:      "Principal plus projected rewards of the tracked account's active stakes.",
		}),

		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_balance_tokens",
			Help:      "Token balance held by the staking contract.",
		}),

		sufficient: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_sufficient",
			Help:      "1 when the ledger balance covers the tracked obligation.",
		}),
	}

	c.uptimeSeconds = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Time since the process started in seconds.",
	}, func() float64 { return time.Since(c.startTime).Seconds() })

	reg.MustRegister(
		c.readTotal,
		c.readDuration,
		c.writeTotal,
		c.writeDuration,
		c.stakesMatured,
		c.debugEvents,
		c.obligation,
		c.balance,
		c.sufficient,
		c.uptimeSeconds,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the registry backing this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRead records one ledger read
func (c *Collector) ObserveRead(field string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.readTotal.WithLabelValues(field, result).Inc()
	c.readDuration.WithLabelValues(field).Observe(d.Seconds())
}

// ObserveWrite records the outcome of a write flow
func (c *Collector) ObserveWrite(op types.Operation, status types.TxStatus, d time.Duration) {
	c.writeTotal.WithLabelValues(string(op), string(status)).Inc()
	c.writeDuration.WithLabelValues(string(op)).Observe(d.Seconds())
}

// StakeMatured counts a maturity notification
func (c *Collector) StakeMatured() {
	c.stakesMatured.Inc()
}

// DebugEvent counts a WithdrawDebug event by outcome
func (c *Collector) DebugEvent(outcome string) {
	c.debugEvents.WithLabelValues(outcome).Inc()
}

// SetSufficiency publishes the latest sufficiency check in whole tokens
func (c *Collector) SetSufficiency(obligation, balance *big.Int, sufficient bool) {
	c.obligation.Set(c.tokens(obligation))
	c.balance.Set(c.tokens(balance))
	c.reported.Store(true)
	if sufficient {
		c.sufficient.Set(1)
	} else {
		c.sufficient.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) tokens(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), c.unit).Float64()
	return f
}
