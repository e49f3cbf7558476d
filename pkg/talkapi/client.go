package talkapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const (
	sessionTimeout    = 10 * time.Second
	conferenceTimeout = 30 * time.Second
	errorBodyLimit    = 512
)

// StatusError is returned when the upstream API answers with a non-200
// status. It carries the status code and a snippet of the error body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// ClientConfig holds the upstream API endpoint and optional basic-auth
// credentials.
type ClientConfig struct {
	BaseURL  string
	Username string
	Password string
}

// Client fetches talks from the upstream data API. It is read-only and does
// not retry: failed fetches surface to the caller, where queue redelivery or
// the reindex sweep's per-item isolation provides the retry policy.
type Client struct {
	cfg    ClientConfig
	logger zerolog.Logger

	// Conference listings can be large, so the list call gets a longer
	// timeout than a single-session fetch.
	sessionHTTP    *http.Client
	conferenceHTTP *http.Client
}

// NewClient creates a new upstream API client.
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	return &Client{
		cfg:            cfg,
		logger:         logger.With().Str("component", "TalkAPIClient").Logger(),
		sessionHTTP:    &http.Client{Timeout: sessionTimeout},
		conferenceHTTP: &http.Client{Timeout: conferenceTimeout},
	}
}

// FetchTalk retrieves a single talk by id.
func (c *Client) FetchTalk(ctx context.Context, talkID string) (*TalkRecord, error) {
	u := fmt.Sprintf("%s/data/session/%s", c.cfg.BaseURL, url.PathEscape(talkID))

	var talk TalkRecord
	if err := c.get(ctx, c.sessionHTTP, u, &talk); err != nil {
		return nil, fmt.Errorf("failed to fetch talk %s: %w", talkID, err)
	}
	return &talk, nil
}

// FetchConferenceTalks retrieves all talks of a conference from the sessions
// listing endpoint.
func (c *Client) FetchConferenceTalks(ctx context.Context, conferenceID string) ([]TalkRecord, error) {
	u := fmt.Sprintf("%s/data/conference/%s/session", c.cfg.BaseURL, url.PathEscape(conferenceID))

	var listing struct {
		Sessions []TalkRecord `json:"sessions"`
	}
	if err := c.get(ctx, c.conferenceHTTP, u, &listing); err != nil {
		return nil, fmt.Errorf("failed to fetch talks for conference %s: %w", conferenceID, err)
	}
	return listing.Sessions, nil
}

// get issues an authenticated GET and decodes a 200 response into out.
func (c *Client) get(ctx context.Context, client *http.Client, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.cfg.Username != "" && c.cfg.Password != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return nil
}
