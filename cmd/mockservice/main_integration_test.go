package main

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/eye-check/internal/config"
	"github.com/example/eye-check/internal/mockservice"
)

// blockingAnalyzer holds each analysis until released.
type blockingAnalyzer struct {
	started chan struct{}
	release chan struct{}
}

func (a *blockingAnalyzer) Analyze(ctx context.Context, data []byte) (*mockservice.Analysis, error) {
	select {
	case <-a.started:
	default:
		close(a.started)
	}
	<-a.release
	return mockservice.Measure(nil), nil
}

func TestServerGracefulShutdown(t *testing.T) {
	logger := zap.NewNop()
	gin.SetMode(gin.TestMode)

	analyzer := &blockingAnalyzer{started: make(chan struct{}), release: make(chan struct{})}
	defer func() {
		select {
		case <-analyzer.release:
		default:
			close(analyzer.release)
		}
	}()

	svc := mockservice.NewService(mockservice.NewMemoryStore(), analyzer, t.TempDir(), nil, logger)
	router := gin.New()
	mockservice.RegisterRoutes(router, svc, nil, logger)

	t.Log("creating listener")
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: router}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, server, listener, 2*time.Second, logger)
	}()

	addr := listener.Addr().String()
	t.Logf("listening on %s", addr)
	waitForServer(t, addr)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "face.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	// PNG signature so the upload sniffs as an image
	part.Write([]byte("\x89PNG\r\n\x1a\n"))
	writer.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		t.Log("sending request")
		resp, err := client.Post("http://"+addr+"/api/analyze", writer.FormDataContentType(), body)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-analyzer.started:
		t.Log("request started")
	case <-time.After(2 * time.Second):
		t.Fatal("request did not start in time")
	}

	t.Log("stopping server")
	stop()

	time.Sleep(50 * time.Millisecond)
	close(analyzer.release)
	t.Log("released request")

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
		t.Log("server shutdown complete")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}

func TestOpenStoreMemoryAndUnknown(t *testing.T) {
	logger := zap.NewNop()

	store, closeStore, err := openStore(context.Background(), &config.ServiceConfig{Store: "memory"}, logger)
	if err != nil {
		t.Fatalf("memory store failed: %v", err)
	}
	defer closeStore()
	if _, ok := store.(*mockservice.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	if _, _, err := openStore(context.Background(), &config.ServiceConfig{Store: "etcd"}, logger); err == nil {
		t.Fatal("expected unknown store to fail")
	}
}

func TestOpenAnalyzerDefaultsToSample(t *testing.T) {
	analyzer, closeAnalyzer, err := openAnalyzer(&config.ServiceConfig{Analyzer: "sample"}, zap.NewNop())
	if err != nil {
		t.Fatalf("open analyzer: %v", err)
	}
	defer closeAnalyzer()
	if _, ok := analyzer.(mockservice.SampleAnalyzer); !ok {
		t.Fatalf("expected sample analyzer, got %T", analyzer)
	}
}

func TestServeReturnsListenerError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	listener.Close()

	err = serve(context.Background(), &http.Server{Handler: http.NotFoundHandler()}, listener, time.Second, zap.NewNop())
	if err == nil {
		t.Fatal("expected serve to fail on a closed listener")
	}
}
