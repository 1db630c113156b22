package ftpc

import "time"

// MetricsCollector is an optional interface for collecting client metrics.
// Implementations can send metrics to monitoring systems like Prometheus,
// StatsD, DataDog, etc.
//
// Methods are called synchronously from the goroutine driving the session
// and should return quickly.
type MetricsCollector interface {
	// RecordCommand records a command round trip.
	// verb is the command name (e.g., "RETR", "CWD"), code the reply code.
	RecordCommand(verb string, code int, duration time.Duration)

	// RecordTransfer records a completed data transfer.
	// operation is "RETR", "STOR", "LIST" or "MLSD".
	RecordTransfer(operation string, bytes int64, duration time.Duration)

	// RecordLogin records the outcome of a login, including automatic
	// re-logins.
	RecordLogin(success bool)
}
