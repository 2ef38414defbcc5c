// Package submission turns one image payload into an analysis record by
// calling the detection service.
package submission

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/eye-check/internal/apiclient"
	"github.com/example/eye-check/internal/logging"
	"github.com/example/eye-check/internal/result"
)

// FallbackMessage is shown when the service gave no error text.
const FallbackMessage = "Failed to upload image"

// Analyzer is the subset of the service client used by the pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, name, contentType string, data []byte) (*result.Record, error)
}

// Error is a failed submission. Message is safe to show to the user; Err
// carries the diagnostic cause.
type Error struct {
	Message   string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Submitted      int64
	Failed         int64
	AverageLatency time.Duration
}

// Pipeline performs analyze requests. It does not serialize calls; callers
// gate concurrent submissions themselves.
type Pipeline struct {
	analyzer Analyzer
	logger   *zap.Logger

	submitted    atomic.Int64
	failed       atomic.Int64
	totalLatency atomic.Int64
}

// NewPipeline constructs a pipeline over analyzer.
func NewPipeline(analyzer Analyzer, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		analyzer: analyzer,
		logger:   logger.Named("submission"),
	}
}

// Submit sends payload for analysis. No retry is attempted; a failure is
// returned as *Error.
func (p *Pipeline) Submit(ctx context.Context, payload *Payload) (*result.Record, error) {
	if payload.Empty() {
		return nil, ErrEmptyPayload
	}

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(p.logger, "submission.submit", requestID)
	ctx = apiclient.WithRequestID(ctx, requestID)

	p.submitted.Add(1)
	started := time.Now()
	rec, err := p.analyzer.Analyze(ctx, payload.Name, payload.ContentType, payload.Data)
	p.totalLatency.Add(int64(time.Since(started)))
	if err != nil {
		p.failed.Add(1)
		opLogger.Error("analysis request failed", zap.Error(err), zap.String("filename", payload.Name))
		return nil, &Error{Message: userMessage(err), RequestID: requestID, Err: err}
	}

	opLogger.Info("analysis completed",
		zap.String("result_id", string(rec.ID)),
		zap.Int("eye_count", rec.EyeCount),
		zap.Duration("latency", time.Since(started)),
	)
	return rec, nil
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	stats := Stats{
		Submitted: p.submitted.Load(),
		Failed:    p.failed.Load(),
	}
	if stats.Submitted > 0 {
		stats.AverageLatency = time.Duration(p.totalLatency.Load() / stats.Submitted)
	}
	return stats
}

// MessageOf returns the user-facing text for a submission failure.
func MessageOf(err error) string {
	var subErr *Error
	if errors.As(err, &subErr) {
		return subErr.Message
	}
	return FallbackMessage
}

func userMessage(err error) string {
	var svcErr *apiclient.ServiceError
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		return svcErr.Message
	}
	return FallbackMessage
}
