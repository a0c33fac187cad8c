package runner

import (
	"github.com/sirupsen/logrus"
)

// Hook observes case execution. Both methods run synchronously on the
// worker executing the case, so implementations should return quickly.
type Hook interface {
	BeforeCase(tc *TestCase)
	AfterCase(r TestResult)
}

// LoggingHook emits a structured log line around every case.
type LoggingHook struct {
	Logger logrus.FieldLogger
}

func (h *LoggingHook) BeforeCase(tc *TestCase) {
	h.Logger.WithFields(logrus.Fields{
		"test":  tc.Name,
		"model": tc.Model,
	}).Debug("case started")
}

func (h *LoggingHook) AfterCase(r TestResult) {
	fields := logrus.Fields{
		"test":   r.Case.Name,
		"model":  r.Case.Model,
		"passed": r.Passed,
	}
	if r.Metrics != nil {
		fields["latency_ms"] = r.Metrics.LatencyMS
		if retries := r.Metrics.Retries(); retries > 0 {
			fields["retries"] = retries
		}
	}

	entry := h.Logger.WithFields(fields)
	switch {
	case r.Errored():
		entry.WithField("error", r.ExecutionError).Error("case errored")
	case !r.Passed:
		entry.Warn("case failed validation")
	default:
		entry.Info("case passed")
	}
}
