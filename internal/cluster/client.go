package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// StatusError is returned when the coordinator answers with a non-2xx code.
type StatusError struct {
	URL    string
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("http %s: %d: %s", e.URL, e.Code, e.Reason)
	}
	return fmt.Sprintf("http %s: %d", e.URL, e.Code)
}

// PostJSON posts body as JSON to url and decodes the response into out
// when out is non-nil.
func PostJSON(ctx context.Context, hc *http.Client, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(hc, req, out)
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, hc *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return do(hc, req, out)
}

func do(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var status StatusResponse
		_ = json.NewDecoder(resp.Body).Decode(&status)
		return &StatusError{URL: req.URL.String(), Code: resp.StatusCode, Reason: status.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Client talks to a coordinator on behalf of one worker. It keeps the
// session cookie so the configured batch size and login survive across
// calls.
type Client struct {
	http *http.Client
	base string
}

// NewClient creates a client for the coordinator at base
// (e.g. "http://localhost:5000").
func NewClient(base string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}, nil
}

// GetBatch requests the next batch.
func (c *Client) GetBatch(ctx context.Context) (BatchResponse, error) {
	var out BatchResponse
	err := GetJSON(ctx, c.http, c.base+"/get_batch", &out)
	return out, err
}

// SubmitPrimes reports the primes found in the last batch.
func (c *Client) SubmitPrimes(ctx context.Context, primes []uint64) error {
	if primes == nil {
		primes = []uint64{}
	}
	return PostJSON(ctx, c.http, c.base+"/submit_primes", primes, nil)
}

// SetBatchSize configures the batch size for this client's session.
func (c *Client) SetBatchSize(ctx context.Context, size uint64) error {
	return PostJSON(ctx, c.http, c.base+"/set_batch_size", SetBatchSizeRequest{Size: size}, nil)
}

// Login authenticates the session so submissions count towards the user.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	return PostJSON(ctx, c.http, c.base+"/login", creds, nil)
}

// Register creates a user account.
func (c *Client) Register(ctx context.Context, creds Credentials) error {
	return PostJSON(ctx, c.http, c.base+"/register", creds, nil)
}

// Stats fetches the live statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := GetJSON(ctx, c.http, c.base+"/get_stats", &out)
	return out, err
}

// History fetches the minute-bucketed history.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := GetJSON(ctx, c.http, c.base+"/get_stats_log", &out)
	return out, err
}

// Leaderboard fetches the top users.
func (c *Client) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	err := GetJSON(ctx, c.http, c.base+"/leaderboard", &out)
	return out, err
}

// Progress fetches the logged-in user's totals.
func (c *Client) Progress(ctx context.Context) (UserProgress, error) {
	var out UserProgress
	err := GetJSON(ctx, c.http, c.base+"/user/progress", &out)
	return out, err
}
