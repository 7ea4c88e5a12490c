package dataops

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
)

// emptyResultSentinel is the literal body the Bulk API returns in place of a
// CSV header when a query matched no records.
const emptyResultSentinel = "Records not found for this query"

// =============================================================================
// BULK QUERY OPERATION
// =============================================================================

// BulkQueryOperation runs a query as a Bulk API job: the SOQL text is
// submitted as a single batch, polled to completion, and results are
// streamed from per-batch result files.
type BulkQueryOperation struct {
	object  string
	soql    string
	options Options
	svc     BulkService
	poller  *Poller
	logger  *slog.Logger

	jobID     string
	batchID   string
	jobResult *JobResult
}

// NewBulkQueryOperation constructs a Bulk API query operation.
func NewBulkQueryOperation(object, soql string, options Options, svc BulkService, poller *Poller, logger *slog.Logger) *BulkQueryOperation {
	return &BulkQueryOperation{
		object:  object,
		soql:    soql,
		options: options,
		svc:     svc,
		poller:  poller,
		logger:  logger,
	}
}

// Query creates the job, submits the query batch, waits for a terminal
// state, and closes the job. Closing before results are fetched is required
// by the API.
func (op *BulkQueryOperation) Query(ctx context.Context) error {
	jobID, err := op.svc.CreateQueryJob(ctx, op.object, "CSV", op.options.BulkMode)
	if err != nil {
		return err
	}
	op.jobID = jobID
	op.logger.Info("Created Bulk API query job", "job", jobID)

	batchID, err := op.svc.SubmitQuery(ctx, jobID, op.soql)
	if err != nil {
		return err
	}
	op.batchID = batchID

	result, err := op.poller.Wait(ctx, jobID)
	if err != nil {
		return err
	}
	op.jobResult = result

	return op.svc.CloseJob(ctx, jobID)
}

// GetResults resolves the batch's result-file identifiers and returns a
// lazy, single-pass row sequence over them. The header row of each file is
// consumed to capture column order and excluded from the sequence.
//
// PK chunking is unsupported: results are collected for the single submitted
// batch only.
func (op *BulkQueryOperation) GetResults(ctx context.Context) (RecordIterator, error) {
	resultIDs, err := op.svc.QueryResultIDs(ctx, op.jobID, op.batchID)
	if err != nil {
		return nil, err
	}
	return &bulkQueryRows{
		ctx:       ctx,
		svc:       op.svc,
		jobID:     op.jobID,
		batchID:   op.batchID,
		resultIDs: resultIDs,
	}, nil
}

// Result returns the job result captured by Query.
func (op *BulkQueryOperation) Result() *JobResult {
	return op.jobResult
}

// =============================================================================
// RESULT ROW ITERATOR
// =============================================================================

// bulkQueryRows streams rows from one or more downloaded result files.
// Each file is a scoped temporary resource removed when the iterator moves
// past it, or on Close.
type bulkQueryRows struct {
	ctx       context.Context
	svc       BulkService
	jobID     string
	batchID   string
	resultIDs []string

	idx     int
	file    io.ReadCloser
	reader  *csv.Reader
	columns []string
	row     []string
	err     error
	done    bool
}

func (it *bulkQueryRows) Next() bool {
	for {
		if it.done || it.err != nil {
			return false
		}

		if it.reader == nil {
			if it.idx >= len(it.resultIDs) {
				it.done = true
				return false
			}
			if !it.openNext() {
				return false
			}
			continue
		}

		row, err := it.reader.Read()
		if err == io.EOF {
			it.closeCurrent()
			continue
		}
		if err != nil {
			it.err = err
			it.closeCurrent()
			return false
		}
		it.row = row
		return true
	}
}

// openNext downloads the next result file and consumes its header row. A
// header containing the empty-result sentinel terminates the whole sequence.
func (it *bulkQueryRows) openNext() bool {
	file, err := it.svc.RetrieveResult(it.ctx, it.jobID, it.batchID, it.resultIDs[it.idx])
	if err != nil {
		it.err = err
		return false
	}
	it.idx++
	it.file = file
	it.reader = csv.NewReader(file)
	it.reader.FieldsPerRecord = -1

	header, err := it.reader.Read()
	if err == io.EOF {
		it.closeCurrent()
		return true
	}
	if err != nil {
		it.err = err
		it.closeCurrent()
		return false
	}
	it.columns = header
	for _, cell := range header {
		if cell == emptyResultSentinel {
			it.closeCurrent()
			it.done = true
			return false
		}
	}
	return true
}

func (it *bulkQueryRows) closeCurrent() {
	if it.file != nil {
		it.file.Close()
		it.file = nil
	}
	it.reader = nil
}

func (it *bulkQueryRows) Value() []string { return it.row }
func (it *bulkQueryRows) Err() error      { return it.err }

// Columns returns the header of the most recently opened result file.
func (it *bulkQueryRows) Columns() []string { return it.columns }

func (it *bulkQueryRows) Close() error {
	it.closeCurrent()
	it.done = true
	return nil
}
