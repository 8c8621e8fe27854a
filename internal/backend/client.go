package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is where the analytics backend listens in development
	DefaultBaseURL = "http://127.0.0.1:5000"

	// DefaultTimeout bounds every backend call
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 200
)

// Client talks to the analytics backend JSON API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a backend client. An empty baseURL selects DefaultBaseURL
// and a nil httpClient gets DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: DefaultTimeout,
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the backend root the client was configured with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends a question to the AI endpoint
func (c *Client) Chat(ctx context.Context, message string) (*ChatAnswer, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", ChatRequest{Message: message}, &resp); err != nil {
		return nil, err
	}
	if resp.Response == nil {
		return nil, fmt.Errorf("chat: %w: response", ErrMissingField)
	}
	return resp.Response, nil
}

// PlayerStats fetches per-game statistics for a player by display name
func (c *Client) PlayerStats(ctx context.Context, playerName string) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.do(ctx, http.MethodPost, "/api/stats", StatsRequest{PlayerName: playerName}, &resp); err != nil {
		return nil, err
	}
	if resp.PerGameStats == nil {
		return nil, fmt.Errorf("stats for %q: %w: per_game_stats", playerName, ErrMissingField)
	}
	return &resp, nil
}

// SearchPlayers runs a structured player search by name. An empty slice
// means nothing matched.
func (c *Client) SearchPlayers(ctx context.Context, query string) ([]PlayerSummary, error) {
	var resp SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/search_player", SearchRequest{Query: query}, &resp); err != nil {
		return nil, err
	}
	if resp.Players == nil {
		return nil, fmt.Errorf("search %q: %w: players", query, ErrMissingField)
	}
	return resp.Players, nil
}

// ListPlayers fetches one page of the football listing. Missing fields
// are read as an empty page.
func (c *Client) ListPlayers(ctx context.Context, q ListingQuery) (*ListingResponse, error) {
	var resp ListingResponse
	path := "/api/players?" + q.Values().Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Players == nil {
		resp.Players = []FootballPlayer{}
	}
	return &resp, nil
}

// ScrapeSalaries asks the backend to refresh its salary table. The
// acknowledgement body is opaque and discarded.
func (c *Client) ScrapeSalaries(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/scrape/salaries", nil, nil)
}

// Values encodes the listing query. Empty filters are omitted; skip and
// limit are always sent.
func (q ListingQuery) Values() url.Values {
	v := url.Values{}
	add := func(key, value string) {
		if value != "" {
			v.Add(key, value)
		}
	}
	add("posicion", q.Position)
	add("max_sueldo", q.MaxSalary)
	add("nacionalidad", q.Nationality)
	add("max_edad", q.MaxAge)
	add("ordenar_por", q.OrderBy)
	add("orden", q.Order)
	v.Add("skip", strconv.Itoa(q.Skip))
	v.Add("limit", strconv.Itoa(q.Limit))
	return v
}

// do performs one JSON round trip. out may be nil to discard the body.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[backend] %s %s failed: %v", method, path, err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Printf("[backend] %s %s returned %d", method, path, resp.StatusCode)
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}

	return nil
}
