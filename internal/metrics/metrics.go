// Package metrics exports FTP client activity as Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "ftpc"

// Metrics implements the client's MetricsCollector on a private registry,
// so several clients in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	TransferBytes   *prometheus.CounterVec
	Transfers       *prometheus.HistogramVec
	Logins          *prometheus.CounterVec
}

// New creates the metrics and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "control",
			Name:      "commands_total",
			Help:      "Commands sent on the control connection, by verb and reply code.",
		}, []string{"verb", "code"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "control",
			Name:      "command_duration_seconds",
			Help:      "Time from sending a command to reading its reply.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"verb"}),
		TransferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "data",
			Name:      "bytes_total",
			Help:      "Bytes moved over data connections, by command.",
		}, []string{"verb"}),
		Transfers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "data",
			Name:      "transfer_duration_seconds",
			Help:      "Duration of completed data transfers.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"verb"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Login attempts, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.Collectors()...)
	return m
}

// Collectors returns all prometheus metrics as collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Commands,
		m.CommandDuration,
		m.TransferBytes,
		m.Transfers,
		m.Logins,
	}
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCommand counts a command and its reply code.
func (m *Metrics) RecordCommand(verb string, code int, d time.Duration) {
	m.Commands.WithLabelValues(verb, strconv.Itoa(code)).Inc()
	m.CommandDuration.WithLabelValues(verb).Observe(d.Seconds())
}

// RecordTransfer records a completed data transfer.
func (m *Metrics) RecordTransfer(verb string, bytes int64, d time.Duration) {
	m.TransferBytes.WithLabelValues(verb).Add(float64(bytes))
	m.Transfers.WithLabelValues(verb).Observe(d.Seconds())
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.Logins.WithLabelValues(result).Inc()
}

// WriteToTextfile writes the current values in the text exposition format,
// as read by the node exporter's textfile collector. The file is replaced
// atomically.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
