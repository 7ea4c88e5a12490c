// Package mirror provides a relational sink/source for row sequences. The
// data-movement core consumes it only as a supplier or receiver of rows: it
// owns no operation semantics.
//
// Datetime columns are stored as integer milliseconds since the Unix epoch
// rather than as engine datetime types, so round-trips stay exact across
// engines; all other columns are stored as text verbatim.
package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/muselabdx/forceflow/internal/dataops"
)

// Store stages rows for one object table.
type Store struct {
	db       *sql.DB
	table    string
	columns  []string
	datetime map[string]bool
}

// Open connects to the mirror database and binds a store to one table with
// the given column set. Columns named in datetimeColumns are stored
// epoch-encoded; the rest are stored as text.
func Open(connString, table string, columns, datetimeColumns []string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open mirror database: %w", err)
	}
	datetime := make(map[string]bool, len(datetimeColumns))
	for _, c := range datetimeColumns {
		datetime[c] = true
	}
	return &Store{db: db, table: table, columns: columns, datetime: datetime}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureTable creates the staging table if it does not exist. Datetime
// columns are BIGINT epoch milliseconds; everything else crosses this
// boundary in its string form.
func (s *Store) EnsureTable(ctx context.Context) error {
	cols := make([]string, 0, len(s.columns)+1)
	cols = append(cols, `"_sid" BIGSERIAL PRIMARY KEY`)
	for _, c := range s.columns {
		colType := "TEXT"
		if s.datetime[c] {
			colType = "BIGINT"
		}
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(c), colType))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(s.table), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure table %s: %w", s.table, err)
	}
	return nil
}

// WriteRows drains the row sequence into the table inside one transaction
// and returns the number of rows written. Datetime values are epoch-encoded
// on the way in; an unparseable datetime aborts the transaction.
func (s *Store) WriteRows(ctx context.Context, records dataops.RecordIterator) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}

	quoted := make([]string, len(s.columns))
	placeholders := make([]string, len(s.columns))
	for i, c := range s.columns {
		quoted[i] = quoteIdent(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(s.table), strings.Join(quoted, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for records.Next() {
		row := records.Value()
		args := make([]any, len(s.columns))
		for i, c := range s.columns {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			if s.datetime[c] {
				encoded, err := encodeDatetime(value)
				if err != nil {
					tx.Rollback()
					return written, fmt.Errorf("column %s: %w", c, err)
				}
				args[i] = encoded
				continue
			}
			args[i] = value
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return written, fmt.Errorf("insert row: %w", err)
		}
		written++
	}
	if err := records.Err(); err != nil {
		tx.Rollback()
		return written, err
	}

	if err := tx.Commit(); err != nil {
		return written, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// Rows returns a lazy, single-pass sequence over the staged rows in
// insertion order, decoding datetime columns back to their wire form. The
// caller must Close the iterator.
func (s *Store) Rows(ctx context.Context) (dataops.RecordIterator, error) {
	quoted := make([]string, len(s.columns))
	datetime := make([]bool, len(s.columns))
	for i, c := range s.columns {
		quoted[i] = quoteIdent(c)
		datetime[i] = s.datetime[c]
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY "_sid"`,
		strings.Join(quoted, ", "), quoteIdent(s.table)))
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	return &rowIterator{rows: rows, datetime: datetime}, nil
}

type rowIterator struct {
	rows     *sql.Rows
	datetime []bool
	row      []string
	err      error
}

func (it *rowIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}

	width := len(it.datetime)
	values := make([]sql.NullString, width)
	scan := make([]any, width)
	for i := range values {
		scan[i] = &values[i]
	}
	if err := it.rows.Scan(scan...); err != nil {
		it.err = err
		return false
	}

	row := make([]string, width)
	for i, v := range values {
		if !v.Valid {
			continue
		}
		if it.datetime[i] {
			row[i] = decodeDatetime(v.String)
			continue
		}
		row[i] = v.String
	}
	it.row = row
	return true
}

func (it *rowIterator) Value() []string { return it.row }
func (it *rowIterator) Err() error      { return it.err }
func (it *rowIterator) Close() error    { return it.rows.Close() }

// quoteIdent double-quotes an identifier for Postgres.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// =============================================================================
// EPOCH DATETIME ENCODING
// =============================================================================

// datetimeLayout is the org wire form for datetime fields, e.g.
// "2018-08-07T16:00:56.000+0000".
const datetimeLayout = "2006-01-02T15:04:05.000-0700"

// encodeDatetime converts a wire-form datetime to epoch milliseconds for
// storage. The empty string stores as NULL.
func encodeDatetime(value string) (any, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{datetimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return EpochMillis(t), nil
		}
	}
	return nil, fmt.Errorf("cannot parse datetime %q", value)
}

// decodeDatetime converts a stored epoch-millisecond value back to the wire
// form. Values that are not integers pass through unchanged.
func decodeDatetime(raw string) string {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw
	}
	return FromEpochMillis(ms).Format(datetimeLayout)
}

// EpochMillis encodes a time as epoch milliseconds.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromEpochMillis decodes epoch milliseconds back to a UTC time.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
