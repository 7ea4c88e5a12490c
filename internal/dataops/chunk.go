package dataops

import (
	"bytes"
	"strings"
)

// Batch size bounds per API.
const (
	// DefaultBulkBatchSize bounds records per Bulk batch.
	DefaultBulkBatchSize = 10_000
	// DefaultRestBatchSize bounds records per collections request.
	DefaultRestBatchSize = 200
	// MaxRestBatchSize is a hard cap regardless of caller override.
	MaxRestBatchSize = 200
	// maxBatchBytes bounds a Bulk batch's serialized size, header included.
	maxBatchBytes = 10_000_000
)

// =============================================================================
// CSV SERIALIZATION
// =============================================================================

// serializeCSVRecord renders one row in strict-quoting CSV: every field is
// quoted, embedded quotes doubled, CRLF terminated. encoding/csv quotes only
// when required, so this is done by hand.
func serializeCSVRecord(record []string) []byte {
	var b bytes.Buffer
	for i, field := range record {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// =============================================================================
// BATCHING
// =============================================================================

// batchCSVRecords packs rows into CSV batches bounded by a record-count
// ceiling and a byte-size ceiling, the header row counting toward the bytes
// of every batch. A batch is flushed as soon as either bound would be
// exceeded: a record that would push the batch past the byte ceiling forces
// a flush of the accumulated batch before it is added, even if that record
// alone exceeds the ceiling. Each non-empty leftover batch is flushed at end
// of input.
func batchCSVRecords(records RecordIterator, fields []string, recordCap, byteCap int, emit func(batch *bytes.Buffer) error) error {
	header := serializeCSVRecord(fields)

	batch := bytes.NewBuffer(nil)
	batch.Write(header)
	rows := 0

	flush := func() error {
		if err := emit(batch); err != nil {
			return err
		}
		batch = bytes.NewBuffer(nil)
		batch.Write(header)
		rows = 0
		return nil
	}

	for records.Next() {
		serialized := serializeCSVRecord(records.Value())

		if len(serialized)+batch.Len() > byteCap {
			if err := flush(); err != nil {
				return err
			}
		}

		batch.Write(serialized)
		rows++

		if rows == recordCap {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := records.Err(); err != nil {
		return err
	}

	if rows > 0 {
		if err := emit(batch); err != nil {
			return err
		}
	}
	return nil
}

// chunkRecords partitions a row sequence into chunks of at most n rows,
// preserving order. Used by the synchronous path, which is bounded by record
// count alone.
func chunkRecords(records RecordIterator, n int, emit func(chunk [][]string) error) error {
	chunk := make([][]string, 0, n)
	for records.Next() {
		row := records.Value()
		copied := make([]string, len(row))
		copy(copied, row)
		chunk = append(chunk, copied)
		if len(chunk) == n {
			if err := emit(chunk); err != nil {
				return err
			}
			chunk = make([][]string, 0, n)
		}
	}
	if err := records.Err(); err != nil {
		return err
	}
	if len(chunk) > 0 {
		return emit(chunk)
	}
	return nil
}
