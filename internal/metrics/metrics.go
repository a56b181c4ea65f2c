// Package metrics exposes Prometheus instrumentation for the simulator.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	orders          *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	chargesPaid     prometheus.Counter
	realizedPnL     prometheus.Gauge
	balance         prometheus.Gauge
	openPositions   prometheus.Gauge
	ticks           *prometheus.CounterVec
	tickDuration    *prometheus.HistogramVec
	chainGeneration prometheus.Histogram
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		orders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradekaro_orders_total",
				Help: "Orders by type, side and resulting status",
			},
			[]string{"type", "side", "status"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradekaro_order_rejections_total",
				Help: "Rejected orders by reason",
			},
			[]string{"reason"},
		),
		chargesPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradekaro_charges_paid_total",
			Help: "Brokerage and statutory charges paid in INR",
		}),
		realizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tradekaro_realized_pnl",
			Help: "Realized P&L across closed trades in INR",
		}),
		balance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tradekaro_available_balance",
			Help: "Available cash balance in INR",
		}),
		openPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tradekaro_open_positions",
			Help: "Number of open stock, index and option positions",
		}),
		ticks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradekaro_scheduler_runs_total",
				Help: "Scheduler task runs by outcome",
			},
			[]string{"task", "outcome"},
		),
		tickDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradekaro_scheduler_run_duration_seconds",
				Help:    "Scheduler task run duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"task"},
		),
		chainGeneration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradekaro_chain_generation_seconds",
			Help:    "Option chain generation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler returns an HTTP handler serving the registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordOrder counts an order by type, side and status.
func (r *Recorder) RecordOrder(orderType, side, status string) {
	if r == nil {
		return
	}
	r.orders.WithLabelValues(orderType, side, status).Inc()
}

// RecordRejection counts a rejected order.
func (r *Recorder) RecordRejection(reason string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(reason).Inc()
}

// AddCharges adds to the charges-paid counter.
func (r *Recorder) AddCharges(amount float64) {
	if r == nil || amount <= 0 {
		return
	}
	r.chargesPaid.Add(amount)
}

// SetRealizedPnL sets the realized P&L gauge.
func (r *Recorder) SetRealizedPnL(v float64) {
	if r == nil {
		return
	}
	r.realizedPnL.Set(v)
}

// SetBalance sets the available balance gauge.
func (r *Recorder) SetBalance(v float64) {
	if r == nil {
		return
	}
	r.balance.Set(v)
}

// SetOpenPositions sets the open positions gauge.
func (r *Recorder) SetOpenPositions(n int) {
	if r == nil {
		return
	}
	r.openPositions.Set(float64(n))
}

// RecordRun records one scheduler task run.
func (r *Recorder) RecordRun(task string, d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.ticks.WithLabelValues(task, outcome).Inc()
	r.tickDuration.WithLabelValues(task).Observe(d.Seconds())
}

// RecordSkip records a tick skipped because the previous run was still active.
func (r *Recorder) RecordSkip(task string) {
	if r == nil {
		return
	}
	r.ticks.WithLabelValues(task, "skipped").Inc()
}

// ObserveChain records option chain generation time.
func (r *Recorder) ObserveChain(d time.Duration) {
	if r == nil {
		return
	}
	r.chainGeneration.Observe(d.Seconds())
}
