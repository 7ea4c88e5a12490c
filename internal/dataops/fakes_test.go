package dataops

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/muselabdx/forceflow/internal/salesforce/bulk"
	"github.com/muselabdx/forceflow/internal/salesforce/rest"
)

// =============================================================================
// MOCK TRANSPORTS
// =============================================================================

// fakeBulkService implements BulkService against canned responses, recording
// every call for assertions.
type fakeBulkService struct {
	// canned responses
	jobID       string
	batchStates [][]bulk.BatchState // successive BatchStates responses; last repeats
	resultIDs   []string
	// resultFiles maps batchID+"/"+resultID to a result file body.
	resultFiles map[string]string
	retrieveErr error

	// recorded calls
	createdJobs      []bulk.JobConfig
	queryJobs        []string
	queryConcurrency []string // concurrency mode per CreateQueryJob call
	closedJobs       []string
	submitted        []string // submitted batch/query bodies in order
	statusCalls      int
	retrieved        []string // batchID+"/"+resultID in retrieval order
	openBodies       []*trackedBody
	nextBatchSeq     int
	statesServed     int
	closedBefore     bool // CloseJob seen before the first JobStatus call
}

func (f *fakeBulkService) CreateJob(ctx context.Context, cfg bulk.JobConfig) (string, error) {
	f.createdJobs = append(f.createdJobs, cfg)
	return f.jobID, nil
}

func (f *fakeBulkService) CreateQueryJob(ctx context.Context, object, contentType, concurrency string) (string, error) {
	f.queryJobs = append(f.queryJobs, object+"/"+contentType)
	f.queryConcurrency = append(f.queryConcurrency, concurrency)
	return f.jobID, nil
}

func (f *fakeBulkService) CloseJob(ctx context.Context, jobID string) error {
	f.closedJobs = append(f.closedJobs, jobID)
	if f.statusCalls == 0 {
		f.closedBefore = true
	}
	return nil
}

func (f *fakeBulkService) SubmitQuery(ctx context.Context, jobID, soql string) (string, error) {
	f.submitted = append(f.submitted, soql)
	return f.nextBatchID(), nil
}

func (f *fakeBulkService) SubmitBatch(ctx context.Context, jobID string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.submitted = append(f.submitted, string(data))
	return f.nextBatchID(), nil
}

func (f *fakeBulkService) JobStatus(ctx context.Context, jobID string) (*bulk.JobInfo, error) {
	f.statusCalls++
	return &bulk.JobInfo{ID: jobID, State: "Open"}, nil
}

func (f *fakeBulkService) BatchStates(ctx context.Context, jobID string) ([]bulk.BatchState, error) {
	idx := f.statesServed
	if idx >= len(f.batchStates) {
		idx = len(f.batchStates) - 1
	}
	f.statesServed++
	return f.batchStates[idx], nil
}

func (f *fakeBulkService) QueryResultIDs(ctx context.Context, jobID, batchID string) ([]string, error) {
	return f.resultIDs, nil
}

func (f *fakeBulkService) RetrieveResult(ctx context.Context, jobID, batchID, resultID string) (io.ReadCloser, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	key := batchID + "/" + resultID
	f.retrieved = append(f.retrieved, key)
	body := &trackedBody{Reader: strings.NewReader(f.resultFiles[key])}
	f.openBodies = append(f.openBodies, body)
	return body, nil
}

func (f *fakeBulkService) nextBatchID() string {
	f.nextBatchSeq++
	return fmt.Sprintf("batch-%d", f.nextBatchSeq)
}

// trackedBody records whether a result stream was closed.
type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

// fakeRestService implements RestService against canned responses.
type fakeRestService struct {
	apiVersion float64
	describe   map[string]rest.Field
	counts     map[string]int
	countsErr  error

	// queryPages maps SOQL text to a response; queryMore maps cursor URLs.
	queryPages map[string]*rest.QueryResult
	queryErr   error
	queryMore  map[string]*rest.QueryResult

	collections    []rest.CollectionResult
	collectionsErr error

	// recorded calls
	queries         []string
	collectionCalls []collectionCall
}

type collectionCall struct {
	method string
	suffix string
	body   any
}

func (f *fakeRestService) Query(ctx context.Context, soql string) (*rest.QueryResult, error) {
	f.queries = append(f.queries, soql)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if page, ok := f.queryPages[soql]; ok {
		return page, nil
	}
	return &rest.QueryResult{Done: true}, nil
}

func (f *fakeRestService) QueryMore(ctx context.Context, nextRecordsURL string) (*rest.QueryResult, error) {
	return f.queryMore[nextRecordsURL], nil
}

func (f *fakeRestService) DescribeFields(ctx context.Context, object string) (map[string]rest.Field, error) {
	if f.describe == nil {
		return map[string]rest.Field{}, nil
	}
	return f.describe, nil
}

func (f *fakeRestService) Collections(ctx context.Context, method, suffix string, body any) ([]rest.CollectionResult, error) {
	f.collectionCalls = append(f.collectionCalls, collectionCall{method: method, suffix: suffix, body: body})
	if f.collectionsErr != nil {
		return nil, f.collectionsErr
	}
	return f.collections, nil
}

func (f *fakeRestService) RecordCounts(ctx context.Context, objects []string) (map[string]int, error) {
	if f.countsErr != nil {
		return nil, f.countsErr
	}
	return f.counts, nil
}

func (f *fakeRestService) APIVersion() float64 {
	if f.apiVersion == 0 {
		return 58.0
	}
	return f.apiVersion
}

// =============================================================================
// TEST HELPERS
// =============================================================================

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// immediatePoller builds a poller whose sleeps return instantly.
func immediatePoller(svc BulkService, logger *slog.Logger) *Poller {
	p := NewPoller(svc, logger)
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

// errIterator yields its rows and then fails with err.
type errIterator struct {
	rows [][]string
	idx  int
	err  error
}

func (it *errIterator) Next() bool {
	if it.idx >= len(it.rows) {
		return false
	}
	it.idx++
	return true
}

func (it *errIterator) Value() []string { return it.rows[it.idx-1] }
func (it *errIterator) Err() error      { return it.err }
func (it *errIterator) Close() error    { return nil }
