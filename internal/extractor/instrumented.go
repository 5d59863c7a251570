package extractor

import (
	"context"
	"errors"
	"time"

	"github.com/mamage/photo-similarity/internal/logger"
	"github.com/mamage/photo-similarity/internal/metrics"
	"go.uber.org/zap"
)

// Instrumented records metrics and logs failures around another Extractor.
type Instrumented struct {
	next   Extractor
	logger *zap.Logger
}

// NewInstrumented wraps next.
func NewInstrumented(next Extractor, l *zap.Logger) *Instrumented {
	return &Instrumented{next: next, logger: logger.OrNop(l)}
}

func (i *Instrumented) Model() string   { return i.next.Model() }
func (i *Instrumented) Backend() string { return i.next.Backend() }

func (i *Instrumented) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	backend, model := i.next.Backend(), i.next.Model()
	start := time.Now()

	vec, err := i.next.Extract(ctx, imageData)

	metrics.ExtractionDuration.WithLabelValues(backend, model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExtractionRequestsTotal.WithLabelValues(backend, model, "error").Inc()
		metrics.ExtractionErrorsTotal.WithLabelValues(backend, model, errorType(err)).Inc()
		i.logger.Debug("extraction failed",
			zap.String("backend", backend),
			zap.String("model", model),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.ExtractionRequestsTotal.WithLabelValues(backend, model, "ok").Inc()
	return vec, nil
}

func errorType(err error) string {
	var inf *InferenceError
	switch {
	case IsModelLoad(err):
		return "model_load"
	case errors.As(err, &inf):
		return "inference"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
