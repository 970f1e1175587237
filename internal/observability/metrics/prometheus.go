// Package metrics provides Prometheus metrics for the clinic services.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	AppointmentsCreated   prometheus.Counter
	AppointmentsCancelled prometheus.Counter
	SlotsReserved         prometheus.Counter
	SlotsReleased         prometheus.Counter
	SagasStarted          *prometheus.CounterVec
	SagasCompleted        *prometheus.CounterVec
	SagasCompensated      *prometheus.CounterVec
	CascadeRelocations    prometheus.Counter
	CascadeCancellations  prometheus.Counter
	ClassifierDuration    prometheus.Histogram
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		AppointmentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appointments_created_total",
			Help: "Total appointments created",
		}),
		AppointmentsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appointments_cancelled_total",
			Help: "Total appointments cancelled",
		}),
		SlotsReserved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_slots_reserved_total",
			Help: "Total time slots reserved",
		}),
		SlotsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_slots_released_total",
			Help: "Total time slots released",
		}),
		SagasStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sagas_started_total",
			Help: "Total sagas started",
		}, []string{"kind"}),
		SagasCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sagas_completed_total",
			Help: "Total sagas run to a terminal state",
		}, []string{"kind"}),
		SagasCompensated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sagas_compensated_total",
			Help: "Total sagas that ended through a compensation path",
		}, []string{"kind"}),
		CascadeRelocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cascade_relocations_total",
			Help: "Displaced appointments moved to another doctor",
		}),
		CascadeCancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cascade_cancellations_total",
			Help: "Displaced appointments cancelled for lack of a slot",
		}),
		ClassifierDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "classifier_request_duration_seconds",
			Help:    "Issue classification request duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}

	prometheus.MustRegister(
		m.AppointmentsCreated,
		m.AppointmentsCancelled,
		m.SlotsReserved,
		m.SlotsReleased,
		m.SagasStarted,
		m.SagasCompleted,
		m.SagasCompensated,
		m.CascadeRelocations,
		m.CascadeCancellations,
		m.ClassifierDuration,
	)

	return m
}

// The helpers below are nil-safe so library code can record metrics without
// caring whether a registry was wired in (tests pass a nil *Metrics).

func (m *Metrics) AppointmentCreated() {
	if m == nil {
		return
	}
	m.AppointmentsCreated.Inc()
}

func (m *Metrics) AppointmentCancelled() {
	if m == nil {
		return
	}
	m.AppointmentsCancelled.Inc()
}

func (m *Metrics) SlotReserved() {
	if m == nil {
		return
	}
	m.SlotsReserved.Inc()
}

func (m *Metrics) SlotReleased() {
	if m == nil {
		return
	}
	m.SlotsReleased.Inc()
}

func (m *Metrics) SagaStarted(kind string) {
	if m == nil {
		return
	}
	m.SagasStarted.WithLabelValues(kind).Inc()
}

func (m *Metrics) SagaCompleted(kind string) {
	if m == nil {
		return
	}
	m.SagasCompleted.WithLabelValues(kind).Inc()
}

func (m *Metrics) SagaCompensated(kind string) {
	if m == nil {
		return
	}
	m.SagasCompensated.WithLabelValues(kind).Inc()
}

func (m *Metrics) CascadeRelocated() {
	if m == nil {
		return
	}
	m.CascadeRelocations.Inc()
}

func (m *Metrics) CascadeCancelled() {
	if m == nil {
		return
	}
	m.CascadeCancellations.Inc()
}

func (m *Metrics) ObserveClassifier(d time.Duration) {
	if m == nil {
		return
	}
	m.ClassifierDuration.Observe(d.Seconds())
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
