package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 流水线Prometheus指标。为nil时所有方法是空操作
type Metrics struct {
	jobsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	queueDepth    prometheus.Gauge
	inflightJobs  prometheus.Gauge
}

// NewMetrics 注册流水线指标，未启用时返回nil
func NewMetrics(enabled bool) *Metrics {
	if !enabled {
		return nil
	}

	return &Metrics{
		jobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_jobs_total",
				Help: "Total number of document processing jobs by result",
			},
			[]string{"result"}, // success, failure, skipped
		),
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Duration of document processing stages",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"}, // extraction, analysis, segmentation, indexing
		),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Number of jobs waiting in the processing queue",
		}),
		inflightJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_inflight_jobs",
			Help: "Number of documents currently being processed",
		}),
	}
}

func (m *Metrics) jobDone(result string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) setInflight(count int) {
	if m == nil {
		return
	}
	m.inflightJobs.Set(float64(count))
}
