package daemon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus counters and histograms for vbridged.
type Metrics struct {
	registry *prometheus.Registry

	ipmiPacketsTotal     *prometheus.CounterVec
	ipmiSessionsTotal    *prometheus.CounterVec
	redfishRequests      *prometheus.CounterVec
	redfishDuration      *prometheus.HistogramVec
	taskTransitionsTotal *prometheus.CounterVec
	vsphereOpsTotal      *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	ipmiPacketsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vbridge",
			Subsystem: "ipmi",
			Name:      "packets_total",
			Help:      "IPMI datagrams by VM and direction (in, out, dropped).",
		},
		[]string{"vm", "direction"},
	)
	ipmiSessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vbridge",
			Subsystem: "ipmi",
			Name:      "sessions_total",
			Help:      "IPMI session lifecycle events by VM (opened, closed).",
		},
		[]string{"vm", "event"},
	)
	redfishRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vbridge",
			Subsystem: "redfish",
			Name:      "requests_total",
			Help:      "Redfish requests by VM, method, and status code.",
		},
		[]string{"vm", "method", "code"},
	)
	redfishDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vbridge",
			Subsystem: "redfish",
			Name:      "request_duration_seconds",
			Help:      "Redfish request handling time.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"vm", "method"},
	)

	taskTransitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vbridge",
			Subsystem: "task",
			Name:      "transitions_total",
			Help:      "Redfish task state transitions.",
		},
		[]string{"from", "to"},
	)
	vsphereOpsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vbridge",
			Subsystem: "vsphere",
			Name:      "operations_total",
			Help:      "vSphere operations after retry by result (ok, not_found, unavailable).",
		},
		[]string{"op", "result"},
	)

	registry.MustRegister(ipmiPacketsTotal, ipmiSessionsTotal, redfishRequests,
		redfishDuration, taskTransitionsTotal, vsphereOpsTotal)
	return &Metrics{
		registry:             registry,
		ipmiPacketsTotal:     ipmiPacketsTotal,
		ipmiSessionsTotal:    ipmiSessionsTotal,
		redfishRequests:      redfishRequests,
		redfishDuration:      redfishDuration,
		taskTransitionsTotal: taskTransitionsTotal,
		vsphereOpsTotal:      vsphereOpsTotal,
	}
}

// TaskTransition records one task state change.
func (m *Metrics) TaskTransition(from, to string) {
	m.taskTransitionsTotal.WithLabelValues(from, to).Inc()
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return mux
}

// ipmiStats adapts the registry to the ipmi.Stats interface for one VM.
type ipmiStats struct {
	m  *Metrics
	vm string
}

func (s ipmiStats) PacketIn()      { s.m.ipmiPacketsTotal.WithLabelValues(s.vm, "in").Inc() }
func (s ipmiStats) PacketOut()     { s.m.ipmiPacketsTotal.WithLabelValues(s.vm, "out").Inc() }
func (s ipmiStats) PacketDropped() { s.m.ipmiPacketsTotal.WithLabelValues(s.vm, "dropped").Inc() }
func (s ipmiStats) SessionOpened() { s.m.ipmiSessionsTotal.WithLabelValues(s.vm, "opened").Inc() }
func (s ipmiStats) SessionClosed() { s.m.ipmiSessionsTotal.WithLabelValues(s.vm, "closed").Inc() }

// redfishStats adapts the registry to the redfish.Stats interface.
type redfishStats struct {
	m  *Metrics
	vm string
}

func (s redfishStats) Request(method string, status int, elapsed time.Duration) {
	s.m.redfishRequests.WithLabelValues(s.vm, method, strconv.Itoa(status)).Inc()
	s.m.redfishDuration.WithLabelValues(s.vm, method).Observe(elapsed.Seconds())
}

// vsphereStats adapts the registry to the vsphere.Stats interface.
type vsphereStats struct {
	m *Metrics
}

func (s vsphereStats) Op(name, result string) {
	s.m.vsphereOpsTotal.WithLabelValues(name, result).Inc()
}
