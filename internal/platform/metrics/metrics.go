package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for a verification run and for
// the fake plugin server. All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// fake plugin server
	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter

	// harness
	apiRequestsTotal *prometheus.CounterVec
	statusPollsTotal prometheus.Counter
	taskProgress     prometheus.Gauge
	episodes         *prometheus.GaugeVec
	episodesTotal    prometheus.Gauge
	accuracy         prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "intro_verifier_server_requests_total",
		Help: "Total number of HTTP requests received by the fake plugin",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "intro_verifier_server_errors_total",
		Help: "Total number of fake plugin responses with error status (4xx or 5xx)",
	})
	apiRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intro_verifier_api_requests_total",
		Help: "Requests sent to the plugin API by method and status code",
	}, []string{"method", "code"})
	statusPollsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "intro_verifier_status_polls_total",
		Help: "Number of scheduled task status checks performed",
	})
	taskProgress := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intro_verifier_task_progress_percent",
		Help: "Last observed analysis task progress",
	})
	episodes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "intro_verifier_episodes",
		Help: "Episodes scored in the last run by result",
	}, []string{"result"})
	episodesTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intro_verifier_episodes_expected",
		Help: "Number of episodes in the expected dataset",
	})
	accuracy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intro_verifier_accuracy_percent",
		Help: "Share of expected episodes whose timestamps were within tolerance",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		apiRequestsTotal,
		statusPollsTotal,
		taskProgress,
		episodes,
		episodesTotal,
		accuracy,
	)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		errorsTotal:      errorsTotal,
		apiRequestsTotal: apiRequestsTotal,
		statusPollsTotal: statusPollsTotal,
		taskProgress:     taskProgress,
		episodes:         episodes,
		episodesTotal:    episodesTotal,
		accuracy:         accuracy,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// ObserveAPIRequest counts one outbound plugin API call. code is 0 when no
// response was received.
func (m *Metrics) ObserveAPIRequest(method string, code int) {
	if m == nil {
		return
	}
	m.apiRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// ObservePoll records one status check and the progress it produced.
func (m *Metrics) ObservePoll(percent float64) {
	if m == nil {
		return
	}
	m.statusPollsTotal.Inc()
	m.taskProgress.Set(percent)
}

// SetScore records the aggregate outcome of a comparison.
func (m *Metrics) SetScore(correct, incorrect, total int, percent float64) {
	if m == nil {
		return
	}
	m.episodes.WithLabelValues("correct").Set(float64(correct))
	m.episodes.WithLabelValues("incorrect").Set(float64(incorrect))
	m.episodesTotal.Set(float64(total))
	m.accuracy.Set(percent)
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
