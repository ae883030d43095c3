// Package metrics exposes Prometheus counters for ingest and merge outcomes.
//
// Recorder implements silo.Observer, so the engine reports into it without
// depending on Prometheus directly.
package metrics

import (
	"net/http"

	"tolatables/internal/silo"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry with the engine counters.
type Recorder struct {
	reg *prometheus.Registry

	ingestRows *prometheus.CounterVec // tolatables_ingest_rows_total{result}
	merges     *prometheus.CounterVec // tolatables_merge_total{mode,status}
}

var _ silo.Observer = (*Recorder)(nil)

// New constructs a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	ingestRows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolatables_ingest_rows_total",
			Help: "Ingested records partitioned by result (inserted, updated, skipped).",
		},
		[]string{"result"},
	)
	merges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolatables_merge_total",
			Help: "Table merge/append operations partitioned by mode and status.",
		},
		[]string{"mode", "status"},
	)
	reg.MustRegister(ingestRows, merges)

	return &Recorder{reg: reg, ingestRows: ingestRows, merges: merges}
}

// IngestDone records the outcome counts of one ingest batch.
func (r *Recorder) IngestDone(_ string, res silo.IngestResult) {
	r.ingestRows.WithLabelValues("inserted").Add(float64(res.Inserted))
	r.ingestRows.WithLabelValues("updated").Add(float64(res.Updated))
	r.ingestRows.WithLabelValues("skipped").Add(float64(len(res.Skipped)))
}

// MergeDone records one merge or append operation.
func (r *Recorder) MergeDone(mode string, res silo.Result) {
	r.merges.WithLabelValues(mode, res.Status).Inc()
}

// Registry returns the underlying registry (for tests and extra collectors).
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
