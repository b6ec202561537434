package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgeproxy",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	headerValidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Subsystem: "validate",
			Name:      "validations_total",
			Help:      "Header validation runs.",
		},
	)
	headerValidationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Subsystem: "validate",
			Name:      "errors_total",
			Help:      "Header validation failures collected across all runs.",
		},
	)
	headerValidationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "edgeproxy",
			Subsystem: "validate",
			Name:      "duration_seconds",
			Help:      "Header validation latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
	)
	dnsCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Subsystem: "dns",
			Name:      "cache_hits_total",
			Help:      "DNS cache hits.",
		},
	)
	dnsCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Subsystem: "dns",
			Name:      "cache_misses_total",
			Help:      "DNS cache misses, including expiries.",
		},
	)
	tunnelsEstablished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Subsystem: "tunnel",
			Name:      "established_total",
			Help:      "CONNECT tunnels that reached the piping state.",
		},
	)
	tunnelsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Subsystem: "tunnel",
			Name:      "rejected_total",
			Help:      "CONNECT requests rejected before piping.",
		},
		[]string{"status"},
	)
	tunnelBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Subsystem: "tunnel",
			Name:      "bytes_total",
			Help:      "Bytes piped through established tunnels.",
		},
		[]string{"direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			headerValidations, headerValidationErrors, headerValidationDuration,
			dnsCacheHits, dnsCacheMisses,
			tunnelsEstablished, tunnelsRejected, tunnelBytes,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTunnelEstablished() {
	RegisterMetrics()
	tunnelsEstablished.Inc()
}

func RecordTunnelRejected(status int) {
	RegisterMetrics()
	tunnelsRejected.WithLabelValues(strconv.Itoa(status)).Inc()
}

func RecordTunnelBytes(direction string, n int64) {
	RegisterMetrics()
	if n > 0 {
		tunnelBytes.WithLabelValues(direction).Add(float64(n))
	}
}

func RecordDNSCache(hit bool) {
	RegisterMetrics()
	if hit {
		dnsCacheHits.Inc()
	} else {
		dnsCacheMisses.Inc()
	}
}

// ValidationMetrics satisfies the validator's metrics sink with the
// process-wide prometheus counters. Increments never block the request
// path; prometheus counters are atomic.
type ValidationMetrics struct{}

func (ValidationMetrics) ObserveValidation(errorCount int, elapsed time.Duration) {
	RegisterMetrics()
	headerValidations.Inc()
	if errorCount > 0 {
		headerValidationErrors.Add(float64(errorCount))
	}
	headerValidationDuration.Observe(elapsed.Seconds())
}
