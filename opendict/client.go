// Package opendict is a minimal client for the open dictionary catalog
// service. The catalog accepts statements in its own DDL language and
// answers with a JSON document; this client only submits statements and
// surfaces error documents as Go errors.
package opendict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultTokenPath = "/catalog/v1/oauth/tokens"
	defaultQueryPath = "/opendic/v1/sql"
	defaultScope     = "PRINCIPAL_ROLE:ALL"
	defaultTimeout   = 5 * time.Minute
)

// Config holds the connection parameters of a catalog deployment.
type Config struct {
	APIURL       string
	ClientID     string
	ClientSecret string
	Scope        string
	TokenPath    string
	QueryPath    string
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Scope == "" {
		c.Scope = defaultScope
	}
	if c.TokenPath == "" {
		c.TokenPath = defaultTokenPath
	}
	if c.QueryPath == "" {
		c.QueryPath = defaultQueryPath
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}

	return c
}

// Response is the decoded JSON document returned for a statement.
type Response map[string]any

// ResponseError is returned when the catalog answers with an error document
// or a non-2xx status.
type ResponseError struct {
	Status int
	Body   Response
}

func (e *ResponseError) Error() string {
	if msg, ok := e.Body["error"]; ok {
		return fmt.Sprintf("opendict: status %d: %v", e.Status, msg)
	}

	return fmt.Sprintf("opendict: status %d", e.Status)
}

// Client submits statements to one catalog deployment.
type Client struct {
	http     *http.Client
	queryURL string
}

// New creates a Client authenticating with OAuth2 client credentials. No
// request is made until the first statement.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	if cfg.APIURL == "" {
		return nil, fmt.Errorf("opendict: api url is required")
	}

	base := strings.TrimRight(cfg.APIURL, "/")

	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + cfg.TokenPath,
		Scopes:       []string{cfg.Scope},
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Timeout: cfg.Timeout,
	})

	httpClient := creds.Client(ctx)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		http:     httpClient,
		queryURL: base + cfg.QueryPath,
	}, nil
}

// SQL submits one statement and returns the decoded response.
func (c *Client) SQL(ctx context.Context, query string) (Response, error) {
	body, err := json.Marshal(map[string]string{"sql": query})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queryURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit statement: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out, err := decodeResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &ResponseError{Status: resp.StatusCode, Body: out}
	}

	if _, failed := out["error"]; failed {
		return nil, &ResponseError{Status: resp.StatusCode, Body: out}
	}

	return out, nil
}

// decodeResponse accepts an object, a list (wrapped under "data") or an
// empty body.
func decodeResponse(raw []byte) (Response, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Response{}, nil
	}

	if raw[0] == '[' {
		var items []any
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}

		return Response{"data": items}, nil
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out, nil
}
