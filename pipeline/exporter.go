package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/nr-labs/nrdot-core/record"
)

// LoggingExporter is a reference Exporter that logs every admitted record
// and always succeeds. It lets the pipeline run end-to-end (and its tests
// exercise the full Consume/Run/Shutdown lifecycle) without a real
// upstream collaborator.
type LoggingExporter struct {
	logger *zap.Logger
}

// NewLoggingExporter builds a LoggingExporter. logger may be nil.
func NewLoggingExporter(logger *zap.Logger) *LoggingExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingExporter{logger: logger.Named("export")}
}

func (e *LoggingExporter) Send(_ context.Context, r record.Record) error {
	e.logger.Debug("record exported",
		zap.String("kind", r.Kind.String()),
		zap.String("class", r.Class.String()),
		zap.Int("payload_bytes", len(r.Payload)),
	)
	return nil
}
