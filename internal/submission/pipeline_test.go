package submission

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/example/eye-check/internal/apiclient"
	"github.com/example/eye-check/internal/logging"
	"github.com/example/eye-check/internal/result"
)

type stubAnalyzer struct {
	record    *result.Record
	err       error
	calls     int
	lastName  string
	requestID string
}

func (s *stubAnalyzer) Analyze(ctx context.Context, name, contentType string, data []byte) (*result.Record, error) {
	s.calls++
	s.lastName = name
	s.requestID = apiclient.RequestIDFrom(ctx)
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

func TestSubmitReturnsRecord(t *testing.T) {
	expected := &result.Record{ID: "1", EyeCount: 2}
	analyzer := &stubAnalyzer{record: expected}
	pipeline := NewPipeline(analyzer, zap.NewNop())

	rec, err := pipeline.Submit(context.Background(), &Payload{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("x")})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if rec != expected {
		t.Fatalf("expected the analyzer record to be returned as-is")
	}
	if analyzer.requestID == "" {
		t.Fatal("expected a request id to be attached")
	}
	if stats := pipeline.Stats(); stats.Submitted != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSubmitRejectsEmptyPayload(t *testing.T) {
	analyzer := &stubAnalyzer{}
	pipeline := NewPipeline(analyzer, zap.NewNop())

	for _, payload := range []*Payload{nil, {Name: "empty.jpg"}} {
		if _, err := pipeline.Submit(context.Background(), payload); !errors.Is(err, ErrEmptyPayload) {
			t.Fatalf("expected ErrEmptyPayload, got %v", err)
		}
	}
	if analyzer.calls != 0 {
		t.Fatalf("expected no analyze calls, got %d", analyzer.calls)
	}
}

func TestSubmitUsesServiceMessage(t *testing.T) {
	svcErr := logging.NewOperationError("apiclient.analyze", "req", &apiclient.ServiceError{StatusCode: 500, Message: "Could not load image"})
	pipeline := NewPipeline(&stubAnalyzer{err: svcErr}, zap.NewNop())

	_, err := pipeline.Submit(context.Background(), &Payload{Name: "a.jpg", Data: []byte("x")})
	var subErr *Error
	if !errors.As(err, &subErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if subErr.Message != "Could not load image" {
		t.Fatalf("unexpected message: %q", subErr.Message)
	}
	if MessageOf(err) != "Could not load image" {
		t.Fatalf("unexpected MessageOf: %q", MessageOf(err))
	}
	if stats := NewPipeline(&stubAnalyzer{}, zap.NewNop()).Stats(); stats.AverageLatency != 0 {
		t.Fatalf("expected zero latency without submissions, got %v", stats.AverageLatency)
	}
}

func TestSubmitFallsBackToGenericMessage(t *testing.T) {
	tests := []error{
		errors.New("connection refused"),
		&apiclient.ServiceError{StatusCode: 502},
	}
	for _, cause := range tests {
		pipeline := NewPipeline(&stubAnalyzer{err: cause}, zap.NewNop())
		_, err := pipeline.Submit(context.Background(), &Payload{Name: "a.jpg", Data: []byte("x")})
		if MessageOf(err) != FallbackMessage {
			t.Errorf("cause %v: expected fallback message, got %q", cause, MessageOf(err))
		}
		if !errors.Is(err, cause) {
			t.Errorf("cause %v: expected cause to be preserved", cause)
		}
		if stats := pipeline.Stats(); stats.Failed != 1 {
			t.Errorf("cause %v: expected one failure, got %+v", cause, stats)
		}
	}
}

func TestPayloadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "face.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	payload, err := PayloadFromFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if payload.Name != "face.png" || payload.ContentType != "image/png" {
		t.Fatalf("unexpected payload: name=%s type=%s", payload.Name, payload.ContentType)
	}

	if _, err := PayloadFromFile(filepath.Join(dir, "missing.jpg")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
