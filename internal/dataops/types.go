package dataops

import (
	"fmt"
	"strings"
)

// =============================================================================
// ENUMS
// =============================================================================

// OperationKind identifies the requested data operation. Values mirror the
// Bulk API operation verbs.
type OperationKind string

const (
	KindInsert      OperationKind = "insert"
	KindUpdate      OperationKind = "update"
	KindDelete      OperationKind = "delete"
	KindHardDelete  OperationKind = "hardDelete"
	KindQuery       OperationKind = "query"
	KindUpsert      OperationKind = "upsert"
	KindEtlUpsert   OperationKind = "etl_upsert"
	KindSmartUpsert OperationKind = "smart_upsert"
	KindSelect      OperationKind = "select"
)

// APIChoice selects which Salesforce data API executes an operation.
type APIChoice string

const (
	// APIBulk is the batch-oriented, job-based Bulk API.
	APIBulk APIChoice = "bulk"
	// APIRest is the synchronous REST API.
	APIRest APIChoice = "rest"
	// APIAuto defers the choice to the volume heuristic.
	APIAuto APIChoice = "smart"
)

// JobStatus is the outcome classification of a data operation.
type JobStatus string

const (
	StatusSuccess    JobStatus = "Success"
	StatusRowFailure JobStatus = "Row failure"
	StatusJobFailure JobStatus = "Job failure"
	StatusInProgress JobStatus = "In progress"
	StatusAborted    JobStatus = "Aborted"
)

// Terminal reports whether the status is terminal. In progress is the only
// non-terminal state.
func (s JobStatus) Terminal() bool {
	return s != StatusInProgress
}

// =============================================================================
// RESULTS
// =============================================================================

// JobResult summarizes a completed (or in-progress) data operation job.
type JobResult struct {
	Status           JobStatus
	JobErrors        []string
	RecordsProcessed int
	TotalRowErrors   int
}

// RecordResult is the normalized per-record outcome, regardless of which API
// executed the operation. ID is set only when the record succeeded or the
// API echoed it; Error is non-empty only on failure. Created is nil when the
// API did not report it.
type RecordResult struct {
	ID      string
	Success bool
	Error   string
	Created *bool
}

// =============================================================================
// OPTIONS
// =============================================================================

// Bulk job concurrency modes.
const (
	BulkModeParallel = "Parallel"
	BulkModeSerial   = "Serial"
)

// Options carries caller-supplied operation tuning. Constructed once per
// operation; the batch-oriented DML operation takes a defensive copy to
// inject its own default batch size.
type Options struct {
	// BatchSize bounds records per batch. Zero means the API default.
	BatchSize int

	// BulkMode is the Bulk API concurrency mode (Parallel or Serial).
	BulkMode string

	// UpdateKey names the field used to match existing records on upsert.
	UpdateKey string
}

// =============================================================================
// RECORD ITERATION
// =============================================================================

// RecordIterator is a lazy, single-pass sequence of raw row tuples. Rows are
// positional string values aligned with an operation's field list.
type RecordIterator interface {
	// Next advances to the next row, returning false at the end of the
	// sequence or on error.
	Next() bool
	// Value returns the current row. Valid only after a true Next.
	Value() []string
	// Err returns the first error encountered while iterating.
	Err() error
	// Close releases any scoped resources held by the iterator.
	Close() error
}

// ResultIterator is a lazy, single-pass sequence of RecordResult values.
type ResultIterator interface {
	Next() bool
	Value() RecordResult
	Err() error
	// Close releases any scoped resources held by the iterator.
	Close() error
}

type sliceIterator struct {
	rows [][]string
	idx  int
}

// NewSliceIterator adapts an in-memory row slice to a RecordIterator.
func NewSliceIterator(rows [][]string) RecordIterator {
	return &sliceIterator{rows: rows, idx: -1}
}

func (it *sliceIterator) Next() bool {
	if it.idx+1 >= len(it.rows) {
		return false
	}
	it.idx++
	return true
}

func (it *sliceIterator) Value() []string { return it.rows[it.idx] }
func (it *sliceIterator) Err() error      { return nil }
func (it *sliceIterator) Close() error    { return nil }

// =============================================================================
// VALUE PARSING
// =============================================================================

// parseBool converts the loosely-typed truthy/falsy representations used in
// row data and Bulk result files. The empty string is false.
func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("cannot interpret %q as a boolean", value)
}

// stringifyField renders a decoded JSON field value the way row tuples
// expect: absent or null becomes the empty string.
func stringifyField(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers decode as float64; render integers without a point.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
