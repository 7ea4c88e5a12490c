// Package rest implements a client for the synchronous Salesforce REST API:
// SOQL queries paged by server-issued cursors, object field metadata, the
// composite collections endpoint for multi-record writes, and the
// record-count limits probe.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/muselabdx/forceflow/internal/httpx"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config configures the REST API client.
type Config struct {
	// InstanceURL is the org instance base URL.
	InstanceURL string

	// SessionID authenticates requests as a Bearer token.
	SessionID string

	// APIVersion is the API version segment, e.g. "58.0".
	APIVersion string

	// Timeout for individual requests; zero keeps the transport default.
	Timeout time.Duration

	// RateLimit requests per second; zero keeps the transport default.
	RateLimit float64

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// Client talks to the synchronous REST API for one org.
type Client struct {
	http       *httpx.Client
	instance   string
	apiVersion string
}

// NewClient creates a REST API client for the configured org.
func NewClient(cfg Config) *Client {
	httpCfg := httpx.DefaultClientConfig()
	httpCfg.BaseURL = fmt.Sprintf("%s/services/data/v%s", cfg.InstanceURL, cfg.APIVersion)
	httpCfg.Auth = httpx.BearerToken{Token: cfg.SessionID}
	httpCfg.Transport = cfg.Transport
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	if cfg.RateLimit > 0 {
		httpCfg.RateLimit = cfg.RateLimit
	}
	return &Client{
		http:       httpx.NewClient(httpCfg),
		instance:   strings.TrimSuffix(cfg.InstanceURL, "/"),
		apiVersion: cfg.APIVersion,
	}
}

// APIVersion returns the numeric server API version, e.g. 58.0.
func (c *Client) APIVersion() float64 {
	v, err := strconv.ParseFloat(c.apiVersion, 64)
	if err != nil {
		return 0
	}
	return v
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// QueryResult is one page of a SOQL query response.
type QueryResult struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Records        []map[string]any `json:"records"`
}

// Field is the subset of object field metadata the core consumes.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CollectionError is one structured error entry on a collection result.
type CollectionError struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields"`
}

// CollectionResult is one per-record response from the collections endpoint.
type CollectionResult struct {
	ID      string            `json:"id"`
	Success bool              `json:"success"`
	Created *bool             `json:"created,omitempty"`
	Errors  []CollectionError `json:"errors"`
}

type describeResponse struct {
	Fields []Field `json:"fields"`
}

type recordCountResponse struct {
	SObjects []struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	} `json:"sObjects"`
}

// =============================================================================
// QUERIES
// =============================================================================

// Query executes a SOQL query and returns the first result page.
func (c *Client) Query(ctx context.Context, soql string) (*QueryResult, error) {
	q := url.Values{}
	q.Set("q", soql)
	resp, err := c.http.Get(ctx, "query", q)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	var result QueryResult
	if err := resp.JSON(&result); err != nil {
		return nil, fmt.Errorf("parse query response: %w", err)
	}
	return &result, nil
}

// QueryMore follows a server-issued cursor URL to the next result page.
func (c *Client) QueryMore(ctx context.Context, nextRecordsURL string) (*QueryResult, error) {
	resp, err := c.http.Do(ctx, &httpx.Request{
		Method:      http.MethodGet,
		AbsoluteURL: c.instance + nextRecordsURL,
	})
	if err != nil {
		return nil, fmt.Errorf("query more: %w", err)
	}
	var result QueryResult
	if err := resp.JSON(&result); err != nil {
		return nil, fmt.Errorf("parse query response: %w", err)
	}
	return &result, nil
}

// =============================================================================
// METADATA
// =============================================================================

// DescribeFields fetches object field metadata keyed by field name.
func (c *Client) DescribeFields(ctx context.Context, object string) (map[string]Field, error) {
	resp, err := c.http.Get(ctx, "sobjects/"+object+"/describe", nil)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", object, err)
	}
	var describe describeResponse
	if err := resp.JSON(&describe); err != nil {
		return nil, fmt.Errorf("parse describe response: %w", err)
	}
	fields := make(map[string]Field, len(describe.Fields))
	for _, f := range describe.Fields {
		fields[f.Name] = f
	}
	return fields, nil
}

// RecordCounts probes approximate per-object record counts via the limits
// endpoint. Objects absent from the response are omitted from the map.
func (c *Client) RecordCounts(ctx context.Context, objects []string) (map[string]int, error) {
	q := url.Values{}
	q.Set("sObjects", strings.Join(objects, ","))
	resp, err := c.http.Get(ctx, "limits/recordCount", q)
	if err != nil {
		return nil, fmt.Errorf("record counts: %w", err)
	}
	var counts recordCountResponse
	if err := resp.JSON(&counts); err != nil {
		return nil, fmt.Errorf("parse record counts: %w", err)
	}
	result := make(map[string]int, len(counts.SObjects))
	for _, entry := range counts.SObjects {
		result[entry.Name] = entry.Count
	}
	return result, nil
}

// =============================================================================
// COLLECTIONS
// =============================================================================

// Collections issues a composite collections request. suffix is appended to
// the "composite/sobjects" path: an external-id segment for upsert, or an
// "?ids=" query for delete. body is JSON-encoded when non-nil.
func (c *Client) Collections(ctx context.Context, method, suffix string, body any) ([]CollectionResult, error) {
	req := &httpx.Request{
		Method: method,
		Path:   "composite/sobjects" + suffix,
	}
	if body != nil {
		reader, err := httpx.MarshalJSONBody(body)
		if err != nil {
			return nil, err
		}
		req.Body = reader
		req.Headers = map[string]string{"Content-Type": "application/json"}
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("collections %s: %w", method, err)
	}
	var results []CollectionResult
	if err := resp.JSON(&results); err != nil {
		return nil, fmt.Errorf("parse collections response: %w", err)
	}
	return results, nil
}
