// Package krux fetches export pages from the Krux analytics API.
package krux

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/cantart/kruxsync/upsert"
)

var ErrMissingToken = errors.New("krux: API token is not set")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Query  string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("krux: query %s: unexpected status %s", e.Query, e.Status)
}

type Options struct {
	BaseURL   string
	Token     string
	CompanyID string
	UserAgent string
	Timeout   time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

type Client struct {
	baseURL   string
	token     string
	companyID string
	userAgent string
	http      *http.Client
	logger    zerolog.Logger
}

func NewClient(opts Options, logger zerolog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:   opts.BaseURL,
		token:     opts.Token,
		companyID: opts.CompanyID,
		userAgent: opts.UserAgent,
		http:      httpClient,
		logger:    logger,
	}
}

type exportResponse struct {
	Table []upsert.Record `json:"Table"`
}

// Fetch returns the records exported for queryName since start. Any failure
// is logged and yields an empty slice, which callers treat as nothing to sync.
func (c *Client) Fetch(ctx context.Context, start, queryName string) []upsert.Record {
	records, err := c.FetchE(ctx, start, queryName)
	if err != nil {
		c.logger.Error().Err(err).Str("query", queryName).Msg("error fetching data from Krux API")
		return []upsert.Record{}
	}
	return records
}

// FetchE is Fetch with the failure reported to the caller.
func (c *Client) FetchE(ctx context.Context, start, queryName string) ([]upsert.Record, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("krux: base url: %w", err)
	}
	q := u.Query()
	q.Set("companyId", c.companyID)
	q.Set("queryName", queryName)
	q.Set("exportDateTime", start)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("krux: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")

	c.logger.Info().Str("query", queryName).Str("start", start).Msg("fetching data from Krux API")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("krux: query %s: %w", queryName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Query: queryName, Code: resp.StatusCode, Status: resp.Status}
	}

	var payload exportResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("krux: query %s: decode response: %w", queryName, err)
	}
	if payload.Table == nil {
		payload.Table = []upsert.Record{}
	}

	c.logger.Info().Str("query", queryName).Int("records", len(payload.Table)).Msg("fetched records from Krux API")
	return payload.Table, nil
}
