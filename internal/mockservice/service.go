// Package mockservice is a development double of the eye-region detection
// service. It serves the same REST boundary the client uses.
package mockservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/eye-check/internal/apiclient"
	"github.com/example/eye-check/internal/logging"
	"github.com/example/eye-check/internal/result"
	"github.com/example/eye-check/internal/watch"
)

// Publisher receives change events.
type Publisher interface {
	Publish(ev watch.Event)
}

// MetricsSummary represents aggregated analysis insights.
type MetricsSummary struct {
	TotalAnalyses    int64   `json:"total_analyses"`
	FailedAnalyses   int64   `json:"failed_analyses"`
	AverageEyeCount  float64 `json:"average_eye_count"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// Service encapsulates the analyze, list and delete flows.
type Service struct {
	store     Store
	analyzer  Analyzer
	uploadDir string
	events    Publisher
	logger    *zap.Logger
	now       func() time.Time

	total     atomic.Int64
	failed    atomic.Int64
	eyes      atomic.Int64
	latencyNs atomic.Int64
}

// NewService constructs a service. uploadDir must exist and be writable;
// events may be nil.
func NewService(store Store, analyzer Analyzer, uploadDir string, events Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		analyzer:  analyzer,
		uploadDir: uploadDir,
		events:    events,
		logger:    logger.Named("service"),
		now:       time.Now,
	}
}

// Analyze stores the upload as "{uuid}_{name}", runs the analyzer and
// persists the resulting record.
func (s *Service) Analyze(ctx context.Context, name string, data []byte) (*result.Record, error) {
	requestID := apiclient.RequestIDFrom(ctx)
	opLogger := logging.WithOperation(s.logger, "service.analyze", requestID)
	started := s.now()
	s.total.Add(1)

	filename := uuid.NewString() + "_" + filepath.Base(name)
	if err := os.WriteFile(filepath.Join(s.uploadDir, filename), data, 0o644); err != nil {
		return nil, s.fail(opLogger, "service.save_upload", requestID, err)
	}

	analysis, err := s.analyzer.Analyze(ctx, data)
	if err != nil {
		return nil, s.fail(opLogger, "service.analyze", requestID, err)
	}

	var marked string
	if len(analysis.Marked) > 0 {
		marked = "marked_" + filename
		if err := os.WriteFile(filepath.Join(s.uploadDir, marked), analysis.Marked, 0o644); err != nil {
			opLogger.Warn("failed to save marked image", zap.Error(err))
			marked = ""
		}
	}

	symmetry := analysis.SymmetryScore
	ts := s.now().UTC()
	rec := &result.Record{
		ID:             result.ID(uuid.NewString()),
		Filename:       filename,
		MarkedFilename: marked,
		EyeCount:       analysis.EyeCount,
		SymmetryScore:  &symmetry,
		Features:       analysis.Features,
		Timestamp:      &ts,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, s.fail(opLogger, "service.save_result", requestID, err)
	}

	s.eyes.Add(int64(rec.EyeCount))
	s.latencyNs.Add(int64(s.now().Sub(started)))
	s.publish(string(rec.ID))
	opLogger.Info("analysis stored",
		zap.String("result_id", string(rec.ID)),
		zap.String("filename", filename),
		zap.Int("eye_count", rec.EyeCount),
	)
	return rec, nil
}

// Results lists every record, newest first.
func (s *Service) Results(ctx context.Context) ([]*result.Record, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, logging.NewOperationError("service.list", apiclient.RequestIDFrom(ctx), err)
	}
	return records, nil
}

// Delete removes one record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return logging.NewOperationError("service.delete", apiclient.RequestIDFrom(ctx), err)
	}
	s.publish(id)
	return nil
}

// DeleteAll removes every record.
func (s *Service) DeleteAll(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return logging.NewOperationError("service.delete_all", apiclient.RequestIDFrom(ctx), err)
	}
	s.publish("")
	return nil
}

// UploadPath resolves a stored filename inside the upload directory. Names
// that would escape it are rejected with ErrNotFound.
func (s *Service) UploadPath(filename string) (string, error) {
	base := filepath.Base(filename)
	if base != filename || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", ErrNotFound
	}
	path := filepath.Join(s.uploadDir, base)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

// Metrics returns aggregated counters.
func (s *Service) Metrics() MetricsSummary {
	summary := MetricsSummary{
		TotalAnalyses:  s.total.Load(),
		FailedAnalyses: s.failed.Load(),
	}
	if ok := summary.TotalAnalyses - summary.FailedAnalyses; ok > 0 {
		summary.AverageEyeCount = float64(s.eyes.Load()) / float64(ok)
		summary.AverageLatencyMs = float64(s.latencyNs.Load()) / float64(ok) / float64(time.Millisecond)
	}
	return summary
}

func (s *Service) fail(opLogger *zap.Logger, operation, requestID string, err error) error {
	s.failed.Add(1)
	wrapped := logging.NewOperationError(operation, requestID, err)
	opLogger.Error("analysis failed", zap.Error(wrapped))
	return wrapped
}

func (s *Service) publish(id string) {
	if s.events == nil {
		return
	}
	s.events.Publish(watch.Event{Type: watch.ResultsChanged, ResultID: id})
}

// EnsureUploadDir creates dir when missing.
func EnsureUploadDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	return nil
}
