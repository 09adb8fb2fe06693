// Package metrics exposes the job and HTTP surface as prometheus metrics.
//
// The job core never calls into this package; a Recorder consumes event bus
// events instead.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"batchsim/internal/eventbus"
)

const (
	prefix   = "app_"
	appLabel = "batchsim"
)

var burnBuckets = []float64{0.001, 0.01, 0.1, 1, 2, 5}

type Recorder struct {
	reg *prometheus.Registry

	jobRunning   prometheus.Gauge
	depth        prometheus.Gauge
	starts       prometheus.Counter
	windows      prometheus.Counter
	ticks        prometheus.Counter
	windowTicks  prometheus.Histogram
	burnSeconds  prometheus.Histogram
	httpRequests *prometheus.CounterVec
}

// New builds a Recorder on its own registry. Every series, including the Go
// and process collectors, carries the app_ prefix and app="batchsim".
func New() *Recorder {
	reg := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWithPrefix(prefix,
		prometheus.WrapRegistererWith(prometheus.Labels{"app": appLabel}, reg))
	wrapped.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(wrapped)

	return &Recorder{
		reg: reg,
		jobRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "job_running",
			Help: "1 while the batch job is running",
		}),
		depth: f.NewGauge(prometheus.GaugeOpts{
			Name: "job_processing_depth",
			Help: "Load generator iterations per Active window",
		}),
		starts: f.NewCounter(prometheus.CounterOpts{
			Name: "job_starts_total",
			Help: "Number of job runs started",
		}),
		windows: f.NewCounter(prometheus.CounterOpts{
			Name: "job_windows_total",
			Help: "Number of Active windows entered",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "job_ticks_total",
			Help: "Number of aggregation batches processed",
		}),
		windowTicks: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "job_window_ticks",
			Help:    "Batches processed per completed Active window",
			Buckets: prometheus.LinearBuckets(0, 1, 16),
		}),
		burnSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "job_burn_duration_seconds",
			Help:    "Wall time of the load generator per window",
			Buckets: burnBuckets,
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status class",
		}, []string{"route", "code"}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Observe folds a single job event into the metrics.
func (r *Recorder) Observe(e eventbus.Event) {
	switch e.Kind {
	case eventbus.JobStarted:
		r.starts.Inc()
		r.jobRunning.Set(1)
		r.depth.Set(e.Depth)
	case eventbus.JobStopped:
		r.jobRunning.Set(0)
	case eventbus.WindowStarted:
		r.windows.Inc()
	case eventbus.BurnDone:
		r.burnSeconds.Observe(e.Took.Seconds())
	case eventbus.Tick:
		r.ticks.Inc()
	case eventbus.WindowCompleted:
		r.windowTicks.Observe(float64(e.Ticks))
	}
}

// Run observes events until ctx is done or the channel closes. Subscribe
// before starting the job so no early event is missed.
func (r *Recorder) Run(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			r.Observe(e)
		}
	}
}

// ObserveRequest counts one HTTP response.
func (r *Recorder) ObserveRequest(route string, code int) {
	r.httpRequests.WithLabelValues(route, StatusClass(code)).Inc()
}

// StatusClass groups a status code as "2xx", "4xx" and so on.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
