// Package apiclient talks to the eye-region detection service over its REST
// boundary.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/example/eye-check/internal/logging"
	"github.com/example/eye-check/internal/result"
)

const (
	// ImageField is the multipart field carrying the analyzed image.
	ImageField = "image"
	// RequestIDHeader propagates the client request id to the service.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 64 << 10
)

// ServiceError is a non-success response from the detection service.
// Message holds the service's structured error text and may be empty.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("service responded with status %d: %s", e.StatusCode, e.Message)
}

type requestIDKey struct{}

// WithRequestID attaches a request id that is sent with every call made
// using the returned context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFrom returns the request id stored by WithRequestID.
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Client is a REST client for the detection service. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs a client for the absolute API base URL (for example
// "https://host/api"). A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.Named("apiclient"),
	}
}

// BaseURL returns the API base this client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Analyze uploads one image for analysis and returns the stored record.
func (c *Client) Analyze(ctx context.Context, name, contentType string, data []byte) (*result.Record, error) {
	const op = "apiclient.analyze"

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ImageField, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, logging.NewOperationError(op, RequestIDFrom(ctx), err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, logging.NewOperationError(op, RequestIDFrom(ctx), err)
	}
	if err := writer.Close(); err != nil {
		return nil, logging.NewOperationError(op, RequestIDFrom(ctx), err)
	}

	var rec result.Record
	if err := c.do(ctx, op, http.MethodPost, "/analyze", writer.FormDataContentType(), body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListResults returns the service's current history in server order.
func (c *Client) ListResults(ctx context.Context) ([]*result.Record, error) {
	var records []*result.Record
	if err := c.do(ctx, "apiclient.list_results", http.MethodGet, "/results", "", nil, &records); err != nil {
		return nil, err
	}
	kept := records[:0]
	for _, rec := range records {
		if rec != nil {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

// DeleteResult removes one record by id.
func (c *Client) DeleteResult(ctx context.Context, id string) error {
	return c.do(ctx, "apiclient.delete_result", http.MethodDelete, "/results/"+url.PathEscape(id), "", nil, nil)
}

// DeleteAllResults removes every record.
func (c *Client) DeleteAllResults(ctx context.Context) error {
	return c.do(ctx, "apiclient.delete_all_results", http.MethodDelete, "/results", "", nil, nil)
}

// UploadURL returns the static link for a stored image.
func (c *Client) UploadURL(filename string) string {
	return c.baseURL + "/uploads/" + url.PathEscape(filename)
}

// FetchUpload downloads the bytes of a stored (or marked) image.
func (c *Client) FetchUpload(ctx context.Context, filename string) ([]byte, error) {
	const op = "apiclient.fetch_upload"
	requestID := RequestIDFrom(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.UploadURL(filename), nil)
	if err != nil {
		return nil, logging.NewOperationError(op, requestID, err)
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, c.fail(op, requestID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(op, requestID, decodeServiceError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(op, requestID, err)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out interface{}) error {
	requestID := RequestIDFrom(ctx)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return logging.NewOperationError(op, requestID, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return c.fail(op, requestID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(op, requestID, decodeServiceError(resp))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.fail(op, requestID, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	if requestID := RequestIDFrom(req.Context()); requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	return c.httpClient.Do(req)
}

func (c *Client) fail(op, requestID string, err error) error {
	wrapped := logging.NewOperationError(op, requestID, err)
	logging.WithOperation(c.logger, op, requestID).Warn("detection service call failed", zap.Error(err))
	return wrapped
}

func decodeServiceError(resp *http.Response) error {
	svcErr := &ServiceError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return svcErr
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		svcErr.Message = strings.TrimSpace(payload.Error)
	}
	return svcErr
}
