// Package client talks to the remote ingestion service: connectivity test,
// table listing, schema discovery, row preview and transfer execution.
package client

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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
)

// DefaultBaseURL is where a locally running service listens.
const DefaultBaseURL = "http://localhost:8080/api/integration"

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu          sync.Mutex
	discovering bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// Row is one previewed record keyed by column name.
type Row map[string]any

// IngestionRequest is the JSON document the service expects for preview
// and execution.
type IngestionRequest struct {
	SourceType       string                  `json:"sourceType,omitempty"`
	TargetType       string                  `json:"targetType,omitempty"`
	ClickHouseConfig *model.ConnectionConfig `json:"clickHouseConfig,omitempty"`
	FlatFileConfig   *model.FileConfig       `json:"flatFileConfig,omitempty"`
	TableName        string                  `json:"tableName,omitempty"`
	SelectedColumns  []model.Column          `json:"selectedColumns"`
	TargetTableName  string                  `json:"targetTableName,omitempty"`
	AdditionalTables []string                `json:"additionalTables,omitempty"`
	JoinCondition    string                  `json:"joinCondition,omitempty"`
}

// beginDiscovery marks a connectivity test or table listing as in flight.
func (c *Client) beginDiscovery() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discovering {
		return ErrBusy
	}
	c.discovering = true
	return nil
}

func (c *Client) endDiscovery() {
	c.mu.Lock()
	c.discovering = false
	c.mu.Unlock()
}

// Discovering reports whether a connectivity test or table listing is in
// flight.
func (c *Client) Discovering() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discovering
}

// do sends the request and returns the response on 2xx. Any other outcome
// becomes an *Error of the given kind; the caller closes the body.
func (c *Client) do(ctx context.Context, kind Kind, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &Error{Kind: kind, Err: fmt.Errorf("building request: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	logging.Debug("%s %s (request %s)", method, path, requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		logging.Warn("%s %s failed after %s: %v", method, path, time.Since(start).Round(time.Millisecond), err)
		return nil, &Error{Kind: kind, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := parseErrorMessage(resp.Header.Get("Content-Type"), data)
		logging.Warn("%s %s returned HTTP %d (request %s)", method, path, resp.StatusCode, requestID)
		return nil, &Error{Kind: kind, StatusCode: resp.StatusCode, Message: msg}
	}

	logging.Debug("%s %s -> %d in %s", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	return resp, nil
}

// postJSON sends v as JSON and decodes the JSON response into out.
func (c *Client) postJSON(ctx context.Context, kind Kind, path string, query url.Values, v, out any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return &Error{Kind: kind, Err: fmt.Errorf("encoding request: %w", err)}
	}
	resp, err := c.do(ctx, kind, http.MethodPost, path, query, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(kind, resp.Body, out)
}

func decodeJSON(kind Kind, r io.Reader, out any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &Error{Kind: kind, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// multipartBody builds a form with one JSON part and an optional file part,
// the shape the service's multipart endpoints expect.
func multipartBody(jsonPart string, v any, blob *model.Blob) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("encoding %s: %w", jsonPart, err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="blob"`, jsonPart))
	h.Set("Content-Type", "application/json")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(payload); err != nil {
		return nil, "", err
	}

	if blob != nil {
		contentType := blob.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		fh := make(textproto.MIMEHeader)
		fh.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(blob.Name)))
		fh.Set("Content-Type", contentType)
		fp, err := w.CreatePart(fh)
		if err != nil {
			return nil, "", err
		}
		if _, err := fp.Write(blob.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// postMultipart sends a multipart form and returns the raw response.
func (c *Client) postMultipart(ctx context.Context, kind Kind, path, jsonPart string, v any, blob *model.Blob) (*http.Response, error) {
	body, contentType, err := multipartBody(jsonPart, v, blob)
	if err != nil {
		return nil, &Error{Kind: kind, Err: err}
	}
	return c.do(ctx, kind, http.MethodPost, path, nil, body, contentType)
}

// Health calls the service health endpoint, which lives at the server root.
func (c *Client) Health(ctx context.Context) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", &Error{Kind: KindConnection, Err: err}
	}
	u.Path = "/health"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &Error{Kind: KindConnection, Err: err}
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: KindConnection, Err: err}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindConnection, StatusCode: resp.StatusCode, Message: parseErrorMessage(resp.Header.Get("Content-Type"), data)}
	}
	return strings.TrimSpace(string(data)), nil
}
