// Package bulk implements a client for the batch-oriented Salesforce Bulk
// API: asynchronous jobs composed of batches that are queued server-side and
// polled to completion. Job and batch state documents are XML.
package bulk

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/muselabdx/forceflow/internal/httpx"
)

const jobNamespace = "http://www.force.com/2009/06/asyncapi/dataload"

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config configures the Bulk API client.
type Config struct {
	// InstanceURL is the org instance base URL, e.g. "https://na1.salesforce.com".
	InstanceURL string

	// SessionID authenticates requests via the X-SFDC-Session header.
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

// Client talks to the Bulk API for one org.
type Client struct {
	http *httpx.Client
}

// NewClient creates a Bulk API client for the configured org.
func NewClient(cfg Config) *Client {
	httpCfg := httpx.DefaultClientConfig()
	httpCfg.BaseURL = fmt.Sprintf("%s/services/async/%s", cfg.InstanceURL, cfg.APIVersion)
	httpCfg.Auth = httpx.SessionHeader{SessionID: cfg.SessionID}
	httpCfg.Transport = cfg.Transport
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	if cfg.RateLimit > 0 {
		httpCfg.RateLimit = cfg.RateLimit
	}
	return &Client{http: httpx.NewClient(httpCfg)}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// JobConfig describes a job to create.
type JobConfig struct {
	Object      string
	Operation   string // insert, update, delete, hardDelete, upsert, query
	ContentType string // CSV or JSON
	Concurrency string // Parallel or Serial
	// ExternalIDField names the upsert match field; empty otherwise.
	ExternalIDField string
}

// JobInfo is the job status document summary.
type JobInfo struct {
	ID               string
	State            string
	BatchesCompleted int
	BatchesTotal     int
}

// BatchState is one batch's slice of the job batch-status document.
type BatchState struct {
	ID               string
	State            string
	StateMessage     string
	RecordsFailed    int
	RecordsProcessed int
}

type jobInfoXML struct {
	XMLName         xml.Name `xml:"jobInfo"`
	XMLNS           string   `xml:"xmlns,attr,omitempty"`
	ID              string   `xml:"id,omitempty"`
	Operation       string   `xml:"operation,omitempty"`
	Object          string   `xml:"object,omitempty"`
	ExternalIDField string   `xml:"externalIdFieldName,omitempty"`
	ConcurrencyMode string   `xml:"concurrencyMode,omitempty"`
	ContentType     string   `xml:"contentType,omitempty"`
	State           string   `xml:"state,omitempty"`
	BatchesQueued   int      `xml:"numberBatchesQueued,omitempty"`
	BatchesDone     int      `xml:"numberBatchesCompleted,omitempty"`
	BatchesTotal    int      `xml:"numberBatchesTotal,omitempty"`
}

type batchInfoXML struct {
	ID               string `xml:"id"`
	State            string `xml:"state"`
	StateMessage     string `xml:"stateMessage"`
	RecordsFailed    int    `xml:"numberRecordsFailed"`
	RecordsProcessed int    `xml:"numberRecordsProcessed"`
}

type batchInfoListXML struct {
	XMLName xml.Name       `xml:"batchInfoList"`
	Batches []batchInfoXML `xml:"batchInfo"`
}

type resultListXML struct {
	XMLName xml.Name `xml:"result-list"`
	Results []string `xml:"result"`
}

// =============================================================================
// JOB LIFECYCLE
// =============================================================================

// CreateJob opens a new job and returns its id.
func (c *Client) CreateJob(ctx context.Context, cfg JobConfig) (string, error) {
	concurrency := cfg.Concurrency
	if concurrency == "" {
		concurrency = "Parallel"
	}
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "CSV"
	}
	req := jobInfoXML{
		XMLNS:           jobNamespace,
		Operation:       cfg.Operation,
		Object:          cfg.Object,
		ExternalIDField: cfg.ExternalIDField,
		ConcurrencyMode: concurrency,
		ContentType:     contentType,
	}
	resp, err := c.http.PostXML(ctx, "job", req)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	var info jobInfoXML
	if err := resp.XML(&info); err != nil {
		return "", fmt.Errorf("parse job response: %w", err)
	}
	return info.ID, nil
}

// CreateQueryJob opens a new query job and returns its id. concurrency is
// Parallel or Serial; empty keeps the server default.
func (c *Client) CreateQueryJob(ctx context.Context, object, contentType, concurrency string) (string, error) {
	return c.CreateJob(ctx, JobConfig{
		Object:      object,
		Operation:   "query",
		ContentType: contentType,
		Concurrency: concurrency,
	})
}

// CloseJob marks a job Closed. Closing before batch results are ready is
// valid; the API requires a close before results can be fetched.
func (c *Client) CloseJob(ctx context.Context, jobID string) error {
	req := jobInfoXML{XMLNS: jobNamespace, State: "Closed"}
	if _, err := c.http.PostXML(ctx, "job/"+jobID, req); err != nil {
		return fmt.Errorf("close job %s: %w", jobID, err)
	}
	return nil
}

// JobStatus fetches the job status document.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobInfo, error) {
	resp, err := c.http.Get(ctx, "job/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("job status %s: %w", jobID, err)
	}
	var info jobInfoXML
	if err := resp.XML(&info); err != nil {
		return nil, fmt.Errorf("parse job status: %w", err)
	}
	return &JobInfo{
		ID:               info.ID,
		State:            info.State,
		BatchesCompleted: info.BatchesDone,
		BatchesTotal:     info.BatchesTotal,
	}, nil
}

// BatchStates fetches and parses the per-batch state document for a job.
func (c *Client) BatchStates(ctx context.Context, jobID string) ([]BatchState, error) {
	resp, err := c.http.Get(ctx, "job/"+jobID+"/batch", nil)
	if err != nil {
		return nil, fmt.Errorf("batch states for job %s: %w", jobID, err)
	}
	return ParseBatchStates(resp.Body)
}

// ParseBatchStates parses a batchInfoList XML document.
func ParseBatchStates(doc []byte) ([]BatchState, error) {
	var list batchInfoListXML
	if err := xml.Unmarshal(doc, &list); err != nil {
		return nil, fmt.Errorf("parse batch states: %w", err)
	}
	states := make([]BatchState, 0, len(list.Batches))
	for _, b := range list.Batches {
		states = append(states, BatchState{
			ID:               b.ID,
			State:            b.State,
			StateMessage:     b.StateMessage,
			RecordsFailed:    b.RecordsFailed,
			RecordsProcessed: b.RecordsProcessed,
		})
	}
	return states, nil
}

// =============================================================================
// BATCH SUBMISSION
// =============================================================================

// SubmitQuery submits SOQL text as a single batch under a query job.
func (c *Client) SubmitQuery(ctx context.Context, jobID, soql string) (string, error) {
	return c.submitBatch(ctx, jobID, strings.NewReader(soql))
}

// SubmitBatch submits a CSV batch body under a job and returns the batch id.
func (c *Client) SubmitBatch(ctx context.Context, jobID string, body io.Reader) (string, error) {
	return c.submitBatch(ctx, jobID, body)
}

func (c *Client) submitBatch(ctx context.Context, jobID string, body io.Reader) (string, error) {
	resp, err := c.http.Do(ctx, &httpx.Request{
		Method: http.MethodPost,
		Path:   "job/" + jobID + "/batch",
		Body:   body,
		Headers: map[string]string{
			"Content-Type": "text/csv; charset=UTF-8",
		},
	})
	if err != nil {
		return "", fmt.Errorf("submit batch for job %s: %w", jobID, err)
	}
	var info batchInfoXML
	if err := resp.XML(&info); err != nil {
		return "", fmt.Errorf("parse batch response: %w", err)
	}
	return info.ID, nil
}

// =============================================================================
// RESULTS
// =============================================================================

// QueryResultIDs resolves the result-file identifiers for a query batch.
func (c *Client) QueryResultIDs(ctx context.Context, jobID, batchID string) ([]string, error) {
	resp, err := c.http.Get(ctx, fmt.Sprintf("job/%s/batch/%s/result", jobID, batchID), nil)
	if err != nil {
		return nil, fmt.Errorf("result ids for batch %s: %w", batchID, err)
	}
	var list resultListXML
	if err := resp.XML(&list); err != nil {
		return nil, fmt.Errorf("parse result ids: %w", err)
	}
	return list.Results, nil
}
