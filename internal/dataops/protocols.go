package dataops

import (
	"context"
	"io"

	"github.com/muselabdx/forceflow/internal/salesforce/bulk"
	"github.com/muselabdx/forceflow/internal/salesforce/rest"
)

// =============================================================================
// OPERATION CONTRACTS
// These interfaces define the uniform operation contract over both APIs.
// =============================================================================

// QueryOperation fetches rows matching a SOQL query. An instance owns one
// job id (batch-oriented) or one paged response cursor (synchronous) for its
// lifetime and must not be shared across goroutines.
type QueryOperation interface {
	// Query executes the query and blocks until results are available.
	Query(ctx context.Context) error

	// GetResults returns a lazy, single-pass sequence of raw row tuples.
	// The batch-oriented sequence is not restartable; the synchronous one
	// restarts only by re-invoking Query.
	GetResults(ctx context.Context) (RecordIterator, error)

	// Result returns the job result captured by Query, nil before it runs.
	Result() *JobResult
}

// DmlOperation inserts, updates, deletes, upserts, or selects rows. Start
// and End delimit the operation's scoped lifetime: Start on enter, End on
// exit unconditionally.
type DmlOperation interface {
	Start(ctx context.Context) error

	// GetPrevRecordValues fetches current org values for the input rows to
	// prepare a rollback. Valid only for Upsert and Update; calling it for
	// any other kind is a programming error and panics.
	GetPrevRecordValues(ctx context.Context, records RecordIterator) ([][]string, []string, error)

	// SelectRecords draws existing org record ids instead of loading new
	// rows. Supported only by the synchronous variant.
	SelectRecords(ctx context.Context, records RecordIterator) error

	// LoadRecords performs the configured DML verb over the row sequence.
	LoadRecords(ctx context.Context, records RecordIterator) error

	End(ctx context.Context) error

	// GetResults returns the normalized per-record outcomes.
	GetResults(ctx context.Context) (ResultIterator, error)

	// Result returns the accumulated job result, nil before one exists.
	Result() *JobResult
}

// =============================================================================
// SCOPED EXECUTION
// =============================================================================

// WithQueryOperation runs fn inside the operation's scope: the query is
// executed on enter.
func WithQueryOperation(ctx context.Context, op QueryOperation, fn func(QueryOperation) error) error {
	if err := op.Query(ctx); err != nil {
		return err
	}
	return fn(op)
}

// WithDmlOperation runs fn between Start and End. End always runs, even
// when fn fails; fn's error takes precedence over End's.
func WithDmlOperation(ctx context.Context, op DmlOperation, fn func(DmlOperation) error) error {
	if err := op.Start(ctx); err != nil {
		return err
	}
	fnErr := fn(op)
	endErr := op.End(ctx)
	if fnErr != nil {
		return fnErr
	}
	return endErr
}

// =============================================================================
// TRANSPORT CONTRACTS
// Narrow views over the API clients, satisfied by the salesforce packages
// and by test fakes.
// =============================================================================

// BulkService is the batch-oriented transport consumed by the core.
type BulkService interface {
	CreateJob(ctx context.Context, cfg bulk.JobConfig) (string, error)
	CreateQueryJob(ctx context.Context, object, contentType, concurrency string) (string, error)
	CloseJob(ctx context.Context, jobID string) error
	SubmitQuery(ctx context.Context, jobID, soql string) (string, error)
	SubmitBatch(ctx context.Context, jobID string, body io.Reader) (string, error)
	JobStatus(ctx context.Context, jobID string) (*bulk.JobInfo, error)
	BatchStates(ctx context.Context, jobID string) ([]bulk.BatchState, error)
	QueryResultIDs(ctx context.Context, jobID, batchID string) ([]string, error)
	// RetrieveResult downloads one batch result file as a scoped resource;
	// the caller must Close it. resultID is empty for DML batch results.
	RetrieveResult(ctx context.Context, jobID, batchID, resultID string) (io.ReadCloser, error)
}

// RestService is the synchronous transport consumed by the core.
type RestService interface {
	Query(ctx context.Context, soql string) (*rest.QueryResult, error)
	QueryMore(ctx context.Context, nextRecordsURL string) (*rest.QueryResult, error)
	DescribeFields(ctx context.Context, object string) (map[string]rest.Field, error)
	Collections(ctx context.Context, method, suffix string, body any) ([]rest.CollectionResult, error)
	RecordCounts(ctx context.Context, objects []string) (map[string]int, error)
	APIVersion() float64
}
