package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "github.com/MrEthical07/goFeedback/internal/transport"
	requestIDHeader     = "X-Request-ID"
	defaultMaxBodyBytes = 1 << 20
)

var (
	// ErrTransport marks failures where no usable response was received.
	ErrTransport = errors.New("backend transport failure")
	// ErrMalformedResponse marks a 2xx response whose body could not be decoded.
	ErrMalformedResponse = errors.New("backend response malformed")
)

// Config controls how backend requests are built.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// StatusError is returned when the backend answered with a non-2xx status.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

// ServerSide reports whether the status points at a backend fault rather
// than an authoritative answer about the request.
func (e *StatusError) ServerSide() bool {
	return e.StatusCode >= 500
}

// Client performs JSON requests against the feedback backend.
type Client struct {
	http   *http.Client
	base   *url.URL
	cfg    Config
	tracer trace.Tracer
}

// New validates cfg and returns a Client. A nil hc gets a client with cfg.Timeout.
func New(hc *http.Client, cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.New("backend base url must be http or https")
	}
	if base.Host == "" {
		return nil, errors.New("backend base url host is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		http:   hc,
		base:   base,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// PostJSON sends body as JSON and decodes a 2xx response into out (when non-nil).
func (c *Client) PostJSON(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, path, nil, payload, out)
}

// GetJSON issues a GET with query and decodes a 2xx response into out.
func (c *Client) GetJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.do(ctx, op, http.MethodGet, path, query, nil, out)
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload []byte, out any) error {
	ctx, span := c.tracer.Start(ctx, "goFeedback."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	requestID := uuid.NewString()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.String("gofeedback.request_id", requestID),
	)

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, query), reader)
	if err != nil {
		return c.fail(span, fmt.Errorf("%w: build request: %v", ErrTransport, err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(span, fmt.Errorf("%w: %v", ErrTransport, err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return c.fail(span, fmt.Errorf("%w: read body: %v", ErrTransport, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(span, &StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(body)})
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		if out != nil {
			return c.fail(span, fmt.Errorf("%w: %w: empty body", ErrTransport, ErrMalformedResponse))
		}
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.fail(span, fmt.Errorf("%w: %w: %v", ErrTransport, ErrMalformedResponse, err))
	}
	return nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// errorDetail pulls the FastAPI-style "detail" or "message" field out of an
// error body, falling back to a truncated raw body.
func errorDetail(body []byte) string {
	var parsed struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		var detail string
		if len(parsed.Detail) > 0 && json.Unmarshal(parsed.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if len(parsed.Detail) > 0 {
			return truncate(string(parsed.Detail))
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	const limit = 256
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
