package dataops

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/muselabdx/forceflow/internal/salesforce/bulk"
)

// =============================================================================
// BULK DML OPERATION
// =============================================================================

// BulkDmlOperation runs insert, update, delete, hardDelete, or upsert as a
// Bulk API job. Rows are serialized to CSV and packed into sub-batches under
// one shared job id; results are correlated back per sub-batch.
type BulkDmlOperation struct {
	object  string
	kind    OperationKind
	options Options
	fields  []string
	svc     BulkService
	poller  *Poller
	logger  *slog.Logger

	jobID     string
	batchIDs  []string
	jobResult *JobResult
}

// NewBulkDmlOperation constructs a Bulk API DML operation. The caller's
// options are copied so the injected default batch size never leaks back.
func NewBulkDmlOperation(object string, kind OperationKind, options Options, fields []string, svc BulkService, poller *Poller, logger *slog.Logger) *BulkDmlOperation {
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultBulkBatchSize
	}
	return &BulkDmlOperation{
		object:  object,
		kind:    kind,
		options: options,
		fields:  fields,
		svc:     svc,
		poller:  poller,
		logger:  logger,
	}
}

// Start opens the job that all sub-batches are submitted under.
func (op *BulkDmlOperation) Start(ctx context.Context) error {
	jobID, err := op.svc.CreateJob(ctx, bulk.JobConfig{
		Object:          op.object,
		Operation:       string(op.kind),
		ContentType:     "CSV",
		Concurrency:     op.options.BulkMode,
		ExternalIDField: op.options.UpdateKey,
	})
	if err != nil {
		return err
	}
	op.jobID = jobID
	return nil
}

// End closes the job and waits for it to reach a terminal state. The close
// must happen first: the Bulk API only finishes processing a closed job.
func (op *BulkDmlOperation) End(ctx context.Context) error {
	if err := op.svc.CloseJob(ctx, op.jobID); err != nil {
		return err
	}
	result, err := op.poller.Wait(ctx, op.jobID)
	if err != nil {
		return err
	}
	op.jobResult = result
	return nil
}

// LoadRecords serializes the row sequence into CSV sub-batches bounded by
// both the record-count and byte-size ceilings, and submits each under the
// shared job. Sub-batch ids are recorded in submission order for result
// correlation.
func (op *BulkDmlOperation) LoadRecords(ctx context.Context, records RecordIterator) error {
	op.batchIDs = nil

	count := 0
	return batchCSVRecords(records, op.fields, op.options.BatchSize, maxBatchBytes, func(batch *bytes.Buffer) error {
		count++
		op.logger.Info("Uploading batch", "batch", count)
		batchID, err := op.svc.SubmitBatch(ctx, op.jobID, batch)
		if err != nil {
			return err
		}
		op.batchIDs = append(op.batchIDs, batchID)
		return nil
	})
}

// SelectRecords is a synchronous-only capability.
func (op *BulkDmlOperation) SelectRecords(ctx context.Context, records RecordIterator) error {
	return errorf(CodeUnsupportedOperation, "select is not available through the Bulk API")
}

// GetPrevRecordValues fetches the current org values of the input rows,
// keyed by the update key, to prepare a rollback. Rows come back in the
// returned field order.
func (op *BulkDmlOperation) GetPrevRecordValues(ctx context.Context, records RecordIterator) ([][]string, []string, error) {
	if op.kind != KindUpsert && op.kind != KindUpdate {
		panic(fmt.Sprintf("GetPrevRecordValues requires an upsert or update operation, got %q", op.kind))
	}

	op.logger.Info("Retrieving previous record values", "object", op.object)

	updateKey := "Id"
	if op.kind == KindUpsert {
		updateKey = op.options.UpdateKey
	}
	keyIdx := fieldIndex(op.fields, updateKey)
	if keyIdx < 0 {
		return nil, nil, errorf(CodeMissingField, "update key %q is not among the operation fields", updateKey)
	}
	relevantFields := appendUnique(op.fields, "Id")

	var prevValues [][]string
	count := 0
	err := chunkRecords(records, op.options.BatchSize, func(chunk [][]string) error {
		count++
		op.logger.Info("Querying batch", "batch", count)

		values := make([]string, len(chunk))
		for i, row := range chunk {
			values[i] = quoteSOQL(row[keyIdx])
		}
		soql := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			strings.Join(relevantFields, ", "), op.object, updateKey, strings.Join(values, ", "))

		sub := NewBulkQueryOperation(op.object, soql, op.options, op.svc, op.poller, op.logger)
		if err := sub.Query(ctx); err != nil {
			return err
		}
		rows, err := sub.GetResults(ctx)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			row := rows.Value()
			copied := make([]string, len(row))
			copy(copied, row)
			prevValues = append(prevValues, copied)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	op.logger.Info("Done")
	return prevValues, relevantFields, nil
}

// GetResults downloads each sub-batch's result file in submission order and
// converts its rows to RecordResult values using the fixed column positions
// id, success, created, error.
func (op *BulkDmlOperation) GetResults(ctx context.Context) (ResultIterator, error) {
	return &bulkDmlResults{
		ctx:      ctx,
		svc:      op.svc,
		jobID:    op.jobID,
		batchIDs: op.batchIDs,
		logger:   op.logger,
	}, nil
}

// Result returns the job result accumulated by End.
func (op *BulkDmlOperation) Result() *JobResult {
	return op.jobResult
}

// =============================================================================
// RESULT ITERATOR
// =============================================================================

type bulkDmlResults struct {
	ctx      context.Context
	svc      BulkService
	jobID    string
	batchIDs []string
	logger   *slog.Logger

	idx    int
	file   io.ReadCloser
	reader *csv.Reader
	value  RecordResult
	err    error
	done   bool
}

func (it *bulkDmlResults) Next() bool {
	for {
		if it.done || it.err != nil {
			return false
		}

		if it.reader == nil {
			if it.idx >= len(it.batchIDs) {
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
			it.idx++
			continue
		}
		if err != nil {
			it.fail(err)
			return false
		}

		result, err := parseResultRow(row)
		if err != nil {
			it.fail(err)
			return false
		}
		it.value = result
		return true
	}
}

// openNext downloads the result file for the current sub-batch and skips its
// header row. Any failure is wrapped as a download error naming the batch.
func (it *bulkDmlResults) openNext() bool {
	batchID := it.batchIDs[it.idx]
	file, err := it.svc.RetrieveResult(it.ctx, it.jobID, batchID, "")
	if err != nil {
		it.err = errorf(CodeResultDownloadFailed, "failed to download results for batch %s: %w", batchID, err)
		return false
	}
	it.logger.Info("Downloaded results for batch", "batch", batchID)
	it.file = file
	it.reader = csv.NewReader(file)
	it.reader.FieldsPerRecord = -1

	if _, err := it.reader.Read(); err != nil && err != io.EOF {
		it.fail(err)
		return false
	}
	return true
}

func (it *bulkDmlResults) fail(err error) {
	batchID := it.batchIDs[it.idx]
	it.err = errorf(CodeResultDownloadFailed, "failed to download results for batch %s: %w", batchID, err)
	it.closeCurrent()
}

func (it *bulkDmlResults) closeCurrent() {
	if it.file != nil {
		it.file.Close()
		it.file = nil
	}
	it.reader = nil
}

func (it *bulkDmlResults) Value() RecordResult { return it.value }
func (it *bulkDmlResults) Err() error          { return it.err }

func (it *bulkDmlResults) Close() error {
	it.closeCurrent()
	it.done = true
	return nil
}

// parseResultRow converts one Bulk result-file row using the API's fixed
// column positions: id, success flag, created flag, error message.
func parseResultRow(row []string) (RecordResult, error) {
	if len(row) < 4 {
		return RecordResult{}, fmt.Errorf("malformed result row: %d columns", len(row))
	}
	success, err := parseBool(row[1])
	if err != nil {
		return RecordResult{}, err
	}
	created, err := parseBool(row[2])
	if err != nil {
		return RecordResult{}, err
	}

	result := RecordResult{Success: success, Created: &created}
	if success {
		result.ID = row[0]
	} else {
		result.Error = row[3]
	}
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func fieldIndex(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}

// appendUnique returns fields plus extras, preserving order and dropping
// duplicates.
func appendUnique(fields []string, extras ...string) []string {
	seen := make(map[string]bool, len(fields)+len(extras))
	out := make([]string, 0, len(fields)+len(extras))
	for _, f := range append(append([]string{}, fields...), extras...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// quoteSOQL renders a value as a single-quoted SOQL string literal.
func quoteSOQL(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}
