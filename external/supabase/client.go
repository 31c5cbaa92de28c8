package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/open-fpl/data/internal/domain/picks"
	"github.com/open-fpl/data/internal/platform/logging"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultBucket  = "open-fpl"
	defaultTable   = "picks"
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 4096
)

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	SecretKey  string
	Bucket     string
	Table      string
	Timeout    time.Duration
	Logger     *logging.Logger
}

// Client talks to the Supabase REST (PostgREST) and Storage APIs with a
// service key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	bucket     string
	table      string
	logger     *logging.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL, err := validateHTTPBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, crerr.Wrap(err, "invalid SUPABASE_URL")
	}
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, crerr.New("SUPABASE_SECRET_KEY is required")
	}

	bucket := strings.Trim(strings.TrimSpace(cfg.Bucket), "/")
	if bucket == "" {
		bucket = defaultBucket
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultTable
	}
	if !tableNameRegex.MatchString(table) {
		return nil, crerr.Newf("invalid picks table name %q", table)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		secretKey:  secretKey,
		bucket:     bucket,
		table:      table,
		logger:     logger,
	}, nil
}

// UpsertPicks writes the row {id: gameweekID, data: snapshot}, replacing any
// existing row for the gameweek. data must be a JSON document.
func (c *Client) UpsertPicks(ctx context.Context, gameweekID int, data []byte) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString(`[{"id":`)
	_, _ = buf.WriteString(strconv.Itoa(gameweekID))
	_, _ = buf.WriteString(`,"data":`)
	_, _ = buf.Write(data)
	_, _ = buf.WriteString(`}]`)

	endpoint := c.baseURL + "/rest/v1/" + c.table
	headers := map[string]string{
		"Content-Type": "application/json",
		"Prefer":       "resolution=merge-duplicates,return=minimal",
	}
	_, err := c.do(ctx, "upsert row", http.MethodPost, endpoint, buf.B, headers)
	return err
}

// UploadObject stores data at key in the configured bucket, overwriting.
func (c *Client) UploadObject(ctx context.Context, key string, data []byte) error {
	headers := map[string]string{
		"Content-Type":  "application/json",
		"x-upsert":      "true",
		"Cache-Control": "max-age=3600",
	}
	_, err := c.do(ctx, "upload object", http.MethodPost, c.objectURL(key), data, headers)
	return err
}

// DownloadObject returns picks.ErrSnapshotNotFound when key does not exist.
func (c *Client) DownloadObject(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.do(ctx, "download object", http.MethodGet, c.objectURL(key), nil, nil)
	if err != nil {
		var apiErr *APIError
		if crerr.As(err, &apiErr) && apiErr.NotFound() {
			return nil, fmt.Errorf("%w: %w", picks.ErrSnapshotNotFound, err)
		}
		return nil, err
	}
	return raw, nil
}

func (c *Client) objectURL(key string) string {
	segments := strings.Split(strings.Trim(key, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return c.baseURL + "/storage/v1/object/" + url.PathEscape(c.bucket) + "/" + strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, operation, method, endpoint string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, crerr.Wrapf(err, "build supabase %s request", operation)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("apikey", c.secretKey)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, crerr.Wrapf(err, "supabase %s", operation)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := newAPIError(operation, resp.StatusCode, raw)
		c.logger.DebugContext(ctx, "supabase request failed", "operation", operation, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, crerr.Wrapf(err, "read supabase %s response", operation)
	}
	return raw, nil
}

// APIError is a non-2xx answer from Supabase.
type APIError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase %s status=%d: %s", e.Operation, e.StatusCode, e.Message)
}

// NotFound reports a missing object. Storage answers 400 with error
// "not_found" for missing keys on some deployments.
func (e *APIError) NotFound() bool {
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	return e.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Code), "not_found")
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    any    `json:"code"`
	Hint    string `json:"hint"`
}

func newAPIError(operation string, status int, raw []byte) *APIError {
	out := &APIError{Operation: operation, StatusCode: status}

	var body errorBody
	if err := sonic.Unmarshal(raw, &body); err == nil {
		out.Message = strings.TrimSpace(body.Message)
		out.Code = strings.TrimSpace(body.Error)
		if out.Code == "" && body.Code != nil {
			out.Code = fmt.Sprint(body.Code)
		}
	}
	if out.Message == "" {
		out.Message = strings.TrimSpace(string(raw))
	}
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	return out
}

func validateHTTPBaseURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", crerr.New("value is empty")
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", crerr.Wrapf(err, "parse %q", candidate)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", crerr.Newf("%q uses unsupported scheme=%q; expected http or https", candidate, parsed.Scheme)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", crerr.Newf("%q has empty host", candidate)
	}

	return strings.TrimRight(candidate, "/"), nil
}
