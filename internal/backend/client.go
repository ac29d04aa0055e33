package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"DocChat/internal/config"
	"DocChat/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	pathChat      = "/chat/"
	pathUpload    = "/documents/upload"
	pathLLMConfig = "/config/llm"
)

// StatusError is returned when the backend answers with a non-2xx status.
// Its message is the raw response body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return e.Body
}

// Client calls the chat/documents backend. It applies no timeout, retry or
// cancellation policy of its own beyond the caller's context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	duration   metric.Float64Histogram
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer sets the tracer used for per-call spans
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithMeter sets the meter used for the request duration histogram
func WithMeter(m metric.Meter) Option {
	return func(c *Client) { c.meter = m }
}

// NewClient creates a backend client rooted at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("docchat/backend")
	}
	if c.meter == nil {
		c.meter = otel.Meter("docchat/backend")
	}

	histogram, err := c.meter.Float64Histogram(
		telemetry.RequestDurationMetric,
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	c.duration = histogram

	return c, nil
}

// SendMessage posts one chat turn. An empty sessionID is sent as null.
func (c *Client) SendMessage(ctx context.Context, message, sessionID string, useDocuments bool) (*ChatResponse, error) {
	reqBody := ChatRequest{
		Message:      message,
		UseDocuments: useDocuments,
	}
	if sessionID != "" {
		reqBody.SessionID = &sessionID
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	status, body, err := c.do(ctx, "send_message", http.MethodPost, pathChat, bytes.NewReader(jsonData), "application/json")
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, &StatusError{StatusCode: status, Body: string(body)}
	}

	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// UploadDocument sends the file as multipart form data. An empty subject
// is left out of the form.
func (c *Client) UploadDocument(ctx context.Context, filename string, file io.Reader, subject string) (*UploadResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreatePart(filePartHeader(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if subject != "" {
		if err := w.WriteField("subject", subject); err != nil {
			return nil, fmt.Errorf("failed to write subject: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	// the writer owns the boundary
	status, body, err := c.do(ctx, "upload_document", http.MethodPost, pathUpload, &buf, w.FormDataContentType())
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, &StatusError{StatusCode: status, Body: string(body)}
	}

	var resp UploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// GetLLMConfig reads the active provider. A non-2xx answer degrades to
// provider "unknown" instead of an error; transport failures are returned.
func (c *Client) GetLLMConfig(ctx context.Context) (*LLMConfig, error) {
	status, body, err := c.do(ctx, "get_llm_config", http.MethodGet, pathLLMConfig, nil, "")
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return &LLMConfig{Provider: config.ProviderUnknown}, nil
	}

	var resp LLMConfig
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// SetLLMProvider switches the backend provider and returns the now-active one.
func (c *Client) SetLLMProvider(ctx context.Context, provider string) (*LLMConfig, error) {
	jsonData, err := json.Marshal(LLMConfig{Provider: provider})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	status, body, err := c.do(ctx, "set_llm_provider", http.MethodPost, pathLLMConfig, bytes.NewReader(jsonData), "application/json")
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, &StatusError{StatusCode: status, Body: string(body)}
	}

	var resp LLMConfig
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// do performs a single request and returns the status code and full body.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) (int, []byte, error) {
	ctx, span := c.tracer.Start(ctx, "backend."+op)
	defer span.End()

	start := time.Now()
	requestID := uuid.NewString()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.String("request.id", requestID),
	)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.logger.Error("backend request failed",
			"request_id", requestID, "operation", op, "method", method, "path", path, "error", err)
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	elapsed := time.Since(start)
	c.duration.Record(ctx, float64(elapsed.Milliseconds()),
		metric.WithAttributes(attribute.String("operation", op)))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if !ok(resp.StatusCode) {
		span.SetStatus(codes.Error, resp.Status)
	}

	c.logger.Info("backend request",
		"request_id", requestID,
		"operation", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp.StatusCode, respBody, nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// filePartHeader builds the "file" part header with a content type guessed
// from the extension, the way a browser form would.
func filePartHeader(filename string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(filename))))

	ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h.Set("Content-Type", ctype)
	return h
}
