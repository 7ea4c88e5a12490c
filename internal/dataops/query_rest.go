package dataops

import (
	"context"
	"log/slog"

	"github.com/muselabdx/forceflow/internal/salesforce/rest"
)

// =============================================================================
// REST QUERY OPERATION
// =============================================================================

// RestQueryOperation runs a query synchronously: the first page and total
// row count are captured immediately, and further pages are fetched through
// the server's follow-up cursor while results are consumed.
type RestQueryOperation struct {
	object string
	soql   string
	fields []string
	svc    RestService
	logger *slog.Logger

	response  *rest.QueryResult
	jobResult *JobResult
}

// NewRestQueryOperation constructs a synchronous query operation. fields
// fixes the column order of emitted rows.
func NewRestQueryOperation(object, soql string, fields []string, svc RestService, logger *slog.Logger) *RestQueryOperation {
	return &RestQueryOperation{
		object: object,
		soql:   soql,
		fields: fields,
		svc:    svc,
		logger: logger,
	}
}

// Query issues the query and captures the first page. There is no polling:
// the job result is an immediate Success carrying the total row count.
func (op *RestQueryOperation) Query(ctx context.Context) error {
	response, err := op.svc.Query(ctx, op.soql)
	if err != nil {
		return err
	}
	op.response = response
	op.jobResult = &JobResult{
		Status:           StatusSuccess,
		RecordsProcessed: response.TotalSize,
	}
	return nil
}

// GetResults returns a lazy row sequence over the captured response,
// transparently following the cursor to subsequent pages. Restartable only
// by re-invoking Query.
func (op *RestQueryOperation) GetResults(ctx context.Context) (RecordIterator, error) {
	return &restQueryRows{ctx: ctx, op: op}, nil
}

// Result returns the job result captured by Query.
func (op *RestQueryOperation) Result() *JobResult {
	return op.jobResult
}

// =============================================================================
// RESULT ROW ITERATOR
// =============================================================================

type restQueryRows struct {
	ctx context.Context
	op  *RestQueryOperation

	idx  int
	row  []string
	err  error
	done bool
}

func (it *restQueryRows) Next() bool {
	for {
		if it.done || it.err != nil {
			return false
		}
		resp := it.op.response
		if resp == nil {
			it.done = true
			return false
		}

		if it.idx < len(resp.Records) {
			it.row = it.convert(resp.Records[it.idx])
			it.idx++
			return true
		}

		if resp.Done {
			it.done = true
			return false
		}

		next, err := it.op.svc.QueryMore(it.ctx, resp.NextRecordsURL)
		if err != nil {
			it.err = err
			return false
		}
		it.op.response = next
		it.idx = 0
	}
}

// convert renders each configured field as its string form; absent or null
// fields become the empty string.
func (it *restQueryRows) convert(record map[string]any) []string {
	row := make([]string, len(it.op.fields))
	for i, f := range it.op.fields {
		row[i] = stringifyField(record[f])
	}
	return row
}

func (it *restQueryRows) Value() []string { return it.row }
func (it *restQueryRows) Err() error      { return it.err }

func (it *restQueryRows) Close() error {
	it.done = true
	return nil
}
