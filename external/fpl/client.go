package fpl

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/open-fpl/data/internal/domain/picks"
	"github.com/open-fpl/data/internal/platform/logging"
	"github.com/open-fpl/data/internal/platform/resilience"
	"github.com/open-fpl/data/internal/usecase"
	"github.com/valyala/fasthttp"
)

const (
	defaultBaseURL   = "https://fantasy.premierleague.com/api"
	defaultUserAgent = "open-fpl-data/1.0"
	defaultTimeout   = 10 * time.Second
	maxBodyLogLength = 512
)

type ClientConfig struct {
	HTTPClient     *fasthttp.Client
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client reads league metadata and entry squads from the public FPL API.
type Client struct {
	httpClient *fasthttp.Client
	baseURL    string
	userAgent  string
	timeout    time.Duration
	validate   *validator.Validate
	logger     *logging.Logger
	breaker    *resilience.CircuitBreaker
}

func NewClient(cfg ClientConfig) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL, err := validateHTTPBaseURL(baseURL)
	if err != nil {
		return nil, crerr.Wrap(err, "invalid FPL_BASE_URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &fasthttp.Client{
			MaxConnsPerHost:     64,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		userAgent:  userAgent,
		timeout:    timeout,
		validate:   validator.New(),
		logger:     logger,
		breaker:    resilience.NewCircuitBreakerFromConfig("fpl", cfg.CircuitBreaker),
	}, nil
}

func (c *Client) FetchLeagueMetadata(ctx context.Context) (picks.LeagueMetadata, error) {
	var payload bootstrapResponse
	if err := c.getJSON(ctx, "/bootstrap-static/", &payload); err != nil {
		return picks.LeagueMetadata{}, err
	}

	out := picks.LeagueMetadata{
		TotalPlayers: payload.TotalPlayers,
		Gameweeks:    make([]picks.Gameweek, 0, len(payload.Events)),
	}
	for _, event := range payload.Events {
		out.Gameweeks = append(out.Gameweeks, picks.Gameweek{
			ID:        event.ID,
			IsCurrent: event.IsCurrent,
			IsNext:    event.IsNext,
		})
	}
	return out, nil
}

func (c *Client) FetchEntryPicks(ctx context.Context, entryID, gameweekID int) (picks.EntryPicks, error) {
	path := fmt.Sprintf("/entry/%d/event/%d/picks/", entryID, gameweekID)
	if entryID <= 0 || gameweekID <= 0 {
		return picks.EntryPicks{}, &FetchError{
			Kind: FetchErrorStatus,
			Path: path,
			Err:  crerr.Wrapf(usecase.ErrInvalidInput, "entry_id=%d gameweek_id=%d must be positive", entryID, gameweekID),
		}
	}

	var payload entryPicksResponse
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return picks.EntryPicks{}, err
	}

	out := picks.EntryPicks{
		EntryID:    entryID,
		GameweekID: gameweekID,
		Picks:      make([]picks.Pick, 0, len(payload.Picks)),
	}
	for _, item := range payload.Picks {
		out.Picks = append(out.Picks, picks.Pick{
			Element:       item.Element,
			Position:      item.Position,
			Multiplier:    item.Multiplier,
			IsCaptain:     item.IsCaptain,
			IsViceCaptain: item.IsViceCaptain,
		})
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	var raw []byte
	err := c.breaker.Execute(func() error {
		body, reqErr := c.executeRequest(ctx, path)
		raw = body
		return reqErr
	}, isCircuitFailure)
	if err != nil {
		if stderrors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.WarnContext(ctx, "fpl circuit breaker rejected request", "path", path, "state", c.breaker.State())
			return &FetchError{Kind: FetchErrorTransport, Path: path, Err: err}
		}
		return err
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return &FetchError{
			Kind: FetchErrorDecode,
			Path: path,
			Err:  crerr.Wrapf(err, "decode body=%s", abbreviateBody(raw)),
		}
	}
	if err := c.validate.StructCtx(ctx, target); err != nil {
		return &FetchError{Kind: FetchErrorDecode, Path: path, Err: crerr.Wrap(err, "validate payload")}
	}
	return nil
}

type response struct {
	status int
	body   []byte
	err    error
}

// executeRequest performs one GET bounded by the client timeout and the
// context deadline. fasthttp has no context support, so the call runs on its
// own goroutine and is abandoned when ctx is done.
func (c *Client) executeRequest(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Kind: FetchErrorTransport, Path: path, Err: err}
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &FetchError{Kind: FetchErrorTransport, Path: path, Err: context.DeadlineExceeded}
		}
		timeout = min(timeout, remaining)
	}

	done := make(chan response, 1)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(c.baseURL + path)
		req.Header.SetMethod(fasthttp.MethodGet)
		req.Header.Set("Accept", "application/json")
		req.Header.SetUserAgent(c.userAgent)

		err := c.httpClient.DoTimeout(req, resp, timeout)
		if err != nil {
			done <- response{err: err}
			return
		}
		done <- response{status: resp.StatusCode(), body: bytes.Clone(resp.Body())}
	}()

	var res response
	select {
	case <-ctx.Done():
		return nil, &FetchError{Kind: FetchErrorTransport, Path: path, Err: ctx.Err()}
	case res = <-done:
	}

	if res.err != nil {
		// DoTimeout is clamped to the ctx deadline, so it can fire first.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &FetchError{Kind: FetchErrorTransport, Path: path, Err: ctxErr}
		}
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			return nil, &FetchError{Kind: FetchErrorTransport, Path: path, Err: context.DeadlineExceeded}
		}
		return nil, &FetchError{Kind: FetchErrorTransport, Path: path, Err: crerr.Wrap(res.err, "send request")}
	}
	if res.status < 200 || res.status > 299 {
		return nil, &FetchError{
			Kind:       FetchErrorStatus,
			Path:       path,
			StatusCode: res.status,
			Err:        crerr.Newf("unexpected status body=%s", abbreviateBody(res.body)),
		}
	}
	return res.body, nil
}

// isCircuitFailure excludes per-entry 404s and caller cancellation.
func isCircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	var fetchErr *FetchError
	if stderrors.As(err, &fetchErr) && fetchErr.notFound() {
		return false
	}
	return true
}

func abbreviateBody(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) <= maxBodyLogLength {
		return text
	}
	return text[:maxBodyLogLength] + "...(truncated)"
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
