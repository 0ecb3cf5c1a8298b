package pipeline

import (
	"github.com/aluiziolira/isbn-finder/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks bulk job throughput.
type Metrics struct {
	ItemsTotal  *prometheus.CounterVec
	JobsTotal   *prometheus.CounterVec
	JobsRunning prometheus.Gauge
}

// NewMetrics registers the bulk collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isbnfinder_bulk_items_total",
			Help: "ISBNs processed by bulk jobs, by result status.",
		},
		[]string{"status"},
	)
	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isbnfinder_bulk_jobs_total",
			Help: "Finished bulk jobs by terminal status.",
		},
		[]string{"status"},
	)
	running := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "isbnfinder_bulk_jobs_running",
		Help: "Bulk jobs currently running.",
	})

	reg.MustRegister(items, jobs, running)
	return &Metrics{ItemsTotal: items, JobsTotal: jobs, JobsRunning: running}
}

func (m *Metrics) item(status models.ResultStatus) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.JobsRunning.Inc()
}

func (m *Metrics) jobFinished(status models.SessionStatus) {
	if m == nil {
		return
	}
	m.JobsRunning.Dec()
	m.JobsTotal.WithLabelValues(string(status)).Inc()
}
