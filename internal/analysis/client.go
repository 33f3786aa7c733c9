// Package analysis is the HTTP client for the remote manuscript analysis
// service. It knows the wire contract and nothing about UI state.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/JonMunkholm/frondo/internal/logging"
	"github.com/JonMunkholm/frondo/internal/manuscript"
)

// ProcessPath is the endpoint that accepts manuscripts.
const ProcessPath = "/api/process-manuscript/"

// FileField is the multipart field carrying the manuscript.
const FileField = "file"

// DefaultMaxResponseSize caps how much of a response body is read.
const DefaultMaxResponseSize int64 = 64 << 20

// maxDetail caps the body excerpt kept for diagnostics on non-2xx responses.
const maxDetail = 512

// Options configures a Client.
type Options struct {
	// Timeout bounds one request. Zero means no client-side timeout.
	Timeout time.Duration

	// MaxResponseSize caps the response body (default 64MB).
	MaxResponseSize int64

	// APIToken is sent as a bearer token when set.
	APIToken string

	// HTTPClient overrides the underlying client (tests).
	HTTPClient *http.Client
}

// Client talks to the analysis service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxBody    int64
	token      string
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("analysis: base URL is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	maxBody := opts.MaxResponseSize
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseSize
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: hc,
		maxBody:    maxBody,
		token:      opts.APIToken,
	}, nil
}

var _ manuscript.Submitter = (*Client)(nil)

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// processResponse mirrors the service's JSON. Raw fields let us tell a
// missing key from a present one of the wrong type.
type processResponse struct {
	ProcessedImage *json.RawMessage `json:"processed_image"`
	Visualization  *json.RawMessage `json:"visualization"`
	StaffLines     *json.RawMessage `json:"staff_lines"`
	Characters     *json.RawMessage `json:"characters"`
}

// Process uploads file and maps the response into a ProcessedResult.
// Every error it returns is a *manuscript.Failure.
func (c *Client) Process(ctx context.Context, file manuscript.AcquiredFile) (*manuscript.ProcessedResult, error) {
	body, contentType, err := encodeMultipart(file)
	if err != nil {
		return nil, manuscript.TransportFailure(fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ProcessPath, body)
	if err != nil {
		return nil, manuscript.TransportFailure(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger := logging.WithFields(ctx, "file", file.Name, "url", req.URL.String())
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, manuscript.TransportFailure(err)
	}
	defer resp.Body.Close()

	logger.Debug("analysis response",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetail))
		return nil, manuscript.ServerFailure(resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, manuscript.TransportFailure(fmt.Errorf("read response: %w", err))
	}
	if int64(len(data)) > c.maxBody {
		return nil, manuscript.MalformedResponse(fmt.Errorf("response exceeds %d bytes", c.maxBody))
	}

	result, err := DecodeResult(data)
	if err != nil {
		return nil, manuscript.MalformedResponse(err)
	}
	return result, nil
}

// DecodeResult applies the response contract: all four fields must be
// present with the right JSON types, or the whole response is rejected.
func DecodeResult(data []byte) (*manuscript.ProcessedResult, error) {
	var raw processResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var (
		result manuscript.ProcessedResult
		err    error
	)
	if result.BinaryImage, err = requireString("processed_image", raw.ProcessedImage); err != nil {
		return nil, err
	}
	if result.Visualization, err = requireString("visualization", raw.Visualization); err != nil {
		return nil, err
	}
	if result.StaffLines, err = requireArray("staff_lines", raw.StaffLines); err != nil {
		return nil, err
	}
	if result.Characters, err = requireArray("characters", raw.Characters); err != nil {
		return nil, err
	}
	return &result, nil
}

func requireString(field string, raw *json.RawMessage) (string, error) {
	if raw == nil || string(*raw) == "null" {
		return "", fmt.Errorf("missing field %s", field)
	}
	var s string
	if err := json.Unmarshal(*raw, &s); err != nil {
		return "", fmt.Errorf("field %s: want string: %w", field, err)
	}
	return s, nil
}

func requireArray(field string, raw *json.RawMessage) ([]json.RawMessage, error) {
	if raw == nil || string(*raw) == "null" {
		return nil, fmt.Errorf("missing field %s", field)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(*raw, &items); err != nil {
		return nil, fmt.Errorf("field %s: want array: %w", field, err)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

// encodeMultipart builds the request body with a single "file" part that
// keeps the file's own content type.
func encodeMultipart(file manuscript.AcquiredFile) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(FileField), quoteEscaper.Replace(file.Name)))
	h.Set("Content-Type", ct)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// quoteEscaper matches the escaping mime/multipart uses for CreateFormFile.
var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Ping checks that the service answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analysis service unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}
