package telemetry

import (
	"context"
	"log/slog"
)

// telemetryLogger prefixes every message with "[Telemetry]".
type telemetryLogger struct {
	logger *slog.Logger
}

func newTelemetryLogger(logger *slog.Logger) *telemetryLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &telemetryLogger{logger: logger}
}

func (tl *telemetryLogger) Debug(msg string, args ...any) {
	tl.logger.Debug("[Telemetry] "+msg, args...)
}

func (tl *telemetryLogger) Info(msg string, args ...any) {
	tl.logger.Info("[Telemetry] "+msg, args...)
}

func (tl *telemetryLogger) Warn(msg string, args ...any) {
	tl.logger.Warn("[Telemetry] "+msg, args...)
}

func (tl *telemetryLogger) Error(msg string, args ...any) {
	tl.logger.Error("[Telemetry] "+msg, args...)
}

func (tl *telemetryLogger) Enabled(ctx context.Context, level slog.Level) bool {
	return tl.logger.Enabled(ctx, level)
}
