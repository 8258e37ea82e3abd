// Package metrics exposes Prometheus metrics for the HTTP surface and the
// generation pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Stage labels
const (
	StageImageSubmit   = "image_submit"
	StageImagePoll     = "image_poll"
	StageImageDownload = "image_download"
	StageVideoSubmit   = "video_submit"
	StageVideoPoll     = "video_poll"
	StageVideoDownload = "video_download"
	StageMirror        = "mirror"
)

// Collector holds the service metrics. A nil *Collector records nothing.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	runsTotal     *prometheus.CounterVec
	runsInFlight  prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	bytesTotal    *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers all metrics on reg under namespace
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Total number of pipeline runs by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		runsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_in_flight",
				Help:      "Number of pipeline runs currently executing",
			},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Duration of each pipeline stage in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage", "outcome"},
		),
		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_bytes_total",
				Help:      "Total bytes of downloaded artifacts",
			},
			[]string{"media_type"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RunStarted marks a run as executing and returns a func that records its outcome
func (c *Collector) RunStarted(mode string) func(err error) {
	if c == nil {
		return func(error) {}
	}
	c.runsInFlight.Inc()
	return func(err error) {
		c.runsInFlight.Dec()
		c.runsTotal.WithLabelValues(mode, outcome(err)).Inc()
	}
}

// ObserveStage records how long a pipeline stage took
func (c *Collector) ObserveStage(stage string, start time.Time, err error) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage, outcome(err)).Observe(time.Since(start).Seconds())
}

// AddArtifactBytes records downloaded bytes
func (c *Collector) AddArtifactBytes(mediaType string, n int64) {
	if c == nil {
		return
	}
	c.bytesTotal.WithLabelValues(mediaType).Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
