package observability

import (
	"go.uber.org/zap"
)

// ErrorReporter is the sink for failures that must not propagate, such as
// scheduled task errors. Report never panics and never returns an error.
type ErrorReporter struct {
	logger  *zap.Logger
	metrics *Metrics
}

// NewErrorReporter builds a reporter writing to logger.
func NewErrorReporter(logger *zap.Logger, metrics *Metrics) *ErrorReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorReporter{logger: logger, metrics: metrics}
}

// Report records err under the given context label.
func (r *ErrorReporter) Report(context string, err error) {
	if r == nil || err == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	r.metrics.RecordError("", "", context)
	r.logger.Error("reported error", zap.String("context", context), zap.Error(err))
}
