package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUpstream marks a failed or rejected request to the analytics store.
var ErrUpstream = errors.New("analytics upstream error")

// SupabaseClient reads tables through the PostgREST interface of a Supabase project.
type SupabaseClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewSupabaseClient builds a client with a bounded, idle-evicting connection pool.
func NewSupabaseClient(baseURL, apiKey string, timeout time.Duration) *SupabaseClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return NewSupabaseClientWithHTTP(baseURL, apiKey, &http.Client{Timeout: timeout, Transport: transport})
}

// NewSupabaseClientWithHTTP uses the provided http.Client as is.
func NewSupabaseClientWithHTTP(baseURL, apiKey string, client *http.Client) *SupabaseClient {
	return &SupabaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// FetchPage returns up to limit rows of table starting at offset.
func (c *SupabaseClient) FetchPage(ctx context.Context, table string, offset, limit int) ([]Record, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, url.PathEscape(table), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("%w: %s returned status %d: %s", ErrUpstream, table, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []Record
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUpstream, table, err)
	}
	return rows, nil
}
