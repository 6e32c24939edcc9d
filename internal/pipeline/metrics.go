package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JaimeStill/refine/internal/stages"
)

// Rejection reasons reported by refine_pipeline_rejections_total.
const (
	ReasonNoDocument   = "no_document"
	ReasonGenerating   = "generating"
	ReasonNoCritique   = "no_critique"
	ReasonInvalidStage = "invalid_stage"
	ReasonNoStages     = "no_stages"
)

// Metrics records pipeline activity. A nil *Metrics records nothing.
type Metrics struct {
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	iterations prometheus.Counter
	rejections *prometheus.CounterVec
}

// NewMetrics creates the pipeline collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refine_stage_runs_total",
			Help: "Stage executions by stage and outcome (complete, error, cancelled).",
		}, []string{"stage", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refine_stage_duration_seconds",
			Help:    "Wall time of stage executions.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refine_quick_iterations_total",
			Help: "Quick iterate cycles started.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refine_pipeline_rejections_total",
			Help: "Pipeline entry point calls refused by validation.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.runs, m.duration, m.iterations, m.rejections)
	return m
}

func (m *Metrics) stageRun(stage stages.Stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(stage), outcome).Inc()
	m.duration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (m *Metrics) quickIteration() {
	if m == nil {
		return
	}
	m.iterations.Inc()
}

func (m *Metrics) rejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}
