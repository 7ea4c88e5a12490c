// Package dataops is the bulk data-movement core. It mediates between the
// batch-oriented Bulk API and the synchronous REST API to move records into
// and out of an org, hiding the differences behind a uniform operation
// contract.
//
// Structure:
//
//	types.go        - Operation enums, JobResult, RecordResult, options
//	errors.go       - Coded domain errors
//	protocols.go    - Operation and transport contracts, scoped execution
//	poller.go       - Job polling and batch-state classification
//	chunk.go        - Size- and byte-bounded batching
//	query_bulk.go   - Batch-oriented query operation
//	query_rest.go   - Synchronous query operation
//	dml_bulk.go     - Batch-oriented DML operation
//	dml_rest.go     - Synchronous DML operation
//	factory.go      - API-selection heuristic and operation construction
//	declarations.go - Default selection filters per object
package dataops
