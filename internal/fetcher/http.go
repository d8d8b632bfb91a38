package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxDocumentBytes = 4 << 20

// asOfLayouts are tried in order; zone-less layouts are read in the configured location.
var asOfLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// HTTPOptions parameterise the HTTP source.
type HTTPOptions struct {
	RatesURL           string
	AsOfURL            string
	HistoryURLTemplate string
	RequestTimeout     time.Duration
	TotalTimeout       time.Duration
	UserAgent          string
	Location           *time.Location
}

// HTTP fetches documents from fixed HTTPS endpoints.
type HTTP struct {
	opts   HTTPOptions
	client *http.Client
	logger zerolog.Logger
}

// NewHTTP builds an HTTP source. RequestTimeout bounds the wait for response headers,
// TotalTimeout bounds the whole exchange including the body.
func NewHTTP(opts HTTPOptions, logger zerolog.Logger) *HTTP {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = 15 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.RequestTimeout

	return &HTTP{
		opts:   opts,
		client: &http.Client{Timeout: opts.TotalTimeout, Transport: transport},
		logger: logger.With().Str("component", "remote_source").Logger(),
	}
}

// FetchRates retrieves the current rate table.
func (h *HTTP) FetchRates(ctx context.Context) ([]byte, error) {
	return h.get(ctx, "fetch rates", h.opts.RatesURL)
}

// FetchAsOf retrieves and parses the as-of timestamp document.
func (h *HTTP) FetchAsOf(ctx context.Context) (time.Time, string, error) {
	body, err := h.get(ctx, "fetch as-of", h.opts.AsOfURL)
	if err != nil {
		return time.Time{}, "", err
	}
	raw := strings.Trim(strings.TrimSpace(string(body)), `"`)
	ts, err := ParseAsOf(raw, h.opts.Location)
	if err != nil {
		return time.Time{}, raw, &Error{Kind: Malformed, Op: "fetch as-of", Err: err}
	}
	return ts, raw, nil
}

// FetchDated retrieves the rate table for a past date.
func (h *HTTP) FetchDated(ctx context.Context, date string) ([]byte, error) {
	if h.opts.HistoryURLTemplate == "" {
		return nil, &Error{Kind: Unreachable, Op: "fetch dated", Err: errors.New("history url template not configured")}
	}
	url := strings.ReplaceAll(h.opts.HistoryURLTemplate, "{date}", date)
	return h.get(ctx, "fetch dated "+date, url)
}

func (h *HTTP) get(ctx context.Context, op, url string) ([]byte, error) {
	if url == "" {
		return nil, &Error{Kind: Unreachable, Op: op, Err: errors.New("url not configured")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: Unreachable, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json, text/plain")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	started := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, transportError(op, err)
	}

	h.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(started)).
		Msg("remote document fetched")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: Malformed, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(snippet(body))))}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &Error{Kind: Malformed, Op: op, Status: resp.StatusCode, Err: errors.New("empty body")}
	}
	return body, nil
}

// ParseAsOf parses an ISO-8601 timestamp, falling back to zone-less layouts in loc.
func ParseAsOf(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty as-of timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range asOfLayouts {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised as-of timestamp %q", raw)
}

func snippet(body []byte) []byte {
	if len(body) > 200 {
		return body[:200]
	}
	return body
}

var _ RemoteSource = (*HTTP)(nil)
