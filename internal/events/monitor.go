package events

import "log/slog"

// MonitorSink receives fire-and-forget notifications about background job
// outcomes for an external monitoring service. Capture must never block the
// job that calls it.
type MonitorSink interface {
	Capture(message string)
}

// LogMonitor reports job outcomes to the structured log.
type LogMonitor struct {
	Logger *slog.Logger
}

// Capture implements MonitorSink.
func (m *LogMonitor) Capture(message string) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("job monitor", slog.String("message", message))
}

// NopMonitor discards notifications.
type NopMonitor struct{}

// Capture implements MonitorSink.
func (NopMonitor) Capture(string) {}
