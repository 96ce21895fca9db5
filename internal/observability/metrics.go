package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "primegrid"

// Metrics exports coordinator and HTTP activity to Prometheus.
// It satisfies coordinator.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	batchesIssued    prometheus.Counter
	submissions      prometheus.Counter
	primesReported   prometheus.Counter
	numbersProcessed prometheus.Counter
	activeClients    prometheus.Gauge
	evictions        prometheus.Counter
	persistFailures  *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a private registry, so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batchesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_issued_total",
			Help:      "Number of batches handed out to workers.",
		}),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Number of result submissions recorded.",
		}),
		primesReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "primes_reported_total",
			Help:      "Number of primes reported by workers.",
		}),
		numbersProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "numbers_processed_total",
			Help:      "Sum of the batch sizes of all recorded submissions.",
		}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_clients",
			Help:      "Clients seen within the liveness timeout.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_evictions_total",
			Help:      "Clients dropped for inactivity.",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed storage writes by operation.",
		}, []string{"op"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}

	m.registry.MustRegister(
		m.batchesIssued,
		m.submissions,
		m.primesReported,
		m.numbersProcessed,
		m.activeClients,
		m.evictions,
		m.persistFailures,
		m.requestDuration,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BatchIssued(uint64) { m.batchesIssued.Inc() }

func (m *Metrics) SubmissionRecorded(primes int, batchSize uint64) {
	m.submissions.Inc()
	m.primesReported.Add(float64(primes))
	m.numbersProcessed.Add(float64(batchSize))
}

func (m *Metrics) ActiveClients(n int) { m.activeClients.Set(float64(n)) }

func (m *Metrics) ClientsEvicted(n int) { m.evictions.Add(float64(n)) }

func (m *Metrics) PersistFailed(op string) { m.persistFailures.WithLabelValues(op).Inc() }

// ObserveRequest records one served HTTP request. route must come from a
// bounded set, such as RouteOf.
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}
