package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/example/eye-check/internal/logging"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL+"/api/", server.Client(), zap.NewNop())
}

func TestAnalyzeSendsMultipartImage(t *testing.T) {
	var gotRequestID, gotName, gotType string
	var gotData []byte

	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		gotRequestID = r.Header.Get(RequestIDHeader)
		file, header, err := r.FormFile(ImageField)
		if err != nil {
			t.Errorf("missing image field: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotName = header.Filename
		gotType = header.Header.Get("Content-Type")
		gotData, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"filename":"x_a.jpg","eye_count":2,"symmetry_score":0.95,
			"features":[{"openness":0.8,"brightness":120},{"openness":0.75,"brightness":118}]}`))
	})
	client := newTestClient(t, mux)

	ctx := WithRequestID(context.Background(), "req-42")
	rec, err := client.Analyze(ctx, "a.jpg", "image/jpeg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if rec.ID != "1" || rec.EyeCount != 2 || len(rec.Features) != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if gotRequestID != "req-42" {
		t.Errorf("expected request id header, got %q", gotRequestID)
	}
	if gotName != "a.jpg" || gotType != "image/jpeg" || string(gotData) != "jpeg-bytes" {
		t.Errorf("unexpected upload: name=%q type=%q data=%q", gotName, gotType, gotData)
	}
}

func TestAnalyzeSurfacesServiceErrorMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No selected file"}`))
	}))

	_, err := client.Analyze(context.Background(), "a.jpg", "image/jpeg", []byte("x"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if svcErr.StatusCode != http.StatusBadRequest || svcErr.Message != "No selected file" {
		t.Fatalf("unexpected service error: %+v", svcErr)
	}
	if op := logging.OperationOf(err); op != "apiclient.analyze" {
		t.Fatalf("unexpected operation: %s", op)
	}
}

func TestNonJSONErrorHasEmptyMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))

	_, err := client.ListResults(context.Background())
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.Message != "" {
		t.Fatalf("expected empty message, got %q", svcErr.Message)
	}
}

func TestListAndDeleteRoutes(t *testing.T) {
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/results", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`[{"id":"b"},{"id":"a"}]`))
		}
	})
	mux.HandleFunc("/api/results/", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	records, err := client.ListResults(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != "b" || records[1].ID != "a" {
		t.Fatalf("expected server order to be preserved, got %+v", records)
	}
	if err := client.DeleteResult(ctx, "a b"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := client.DeleteAllResults(ctx); err != nil {
		t.Fatalf("delete all failed: %v", err)
	}

	expected := []string{"GET /api/results", "DELETE /api/results/a b", "DELETE /api/results"}
	if len(calls) != len(expected) {
		t.Fatalf("unexpected calls: %v", calls)
	}
	for i := range expected {
		if calls[i] != expected[i] {
			t.Errorf("call %d = %q, expected %q", i, calls[i], expected[i])
		}
	}
}

func TestFetchUpload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/uploads/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/uploads/m.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("marked"))
	})
	client := newTestClient(t, mux)

	data, err := client.FetchUpload(context.Background(), "m.jpg")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if string(data) != "marked" {
		t.Fatalf("unexpected bytes: %q", data)
	}

	if _, err := client.FetchUpload(context.Background(), "missing.jpg"); err == nil {
		t.Fatal("expected error for missing upload")
	}
}

func TestListResultsDropsNullEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/results", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"filename":"x_face.png"},null]`))
	})
	client := newTestClient(t, mux)

	records, err := client.ListResults(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 || records[0] == nil || records[0].ID != "1" {
		t.Fatalf("expected the null entry dropped, got %+v", records)
	}
}
