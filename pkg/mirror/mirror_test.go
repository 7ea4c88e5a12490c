package mirror

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muselabdx/forceflow/internal/dataops"
)

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"Account"`, quoteIdent("Account"))
	assert.Equal(t, `"odd""name"`, quoteIdent(`odd"name`))
}

func TestEpochMillisRoundTrip(t *testing.T) {
	ts := time.Date(2021, 6, 15, 12, 30, 45, 123_000_000, time.UTC)
	assert.Equal(t, ts, FromEpochMillis(EpochMillis(ts)))
}

func TestEpochMillisKnownValue(t *testing.T) {
	assert.Equal(t, int64(0), EpochMillis(time.Unix(0, 0)))
	assert.Equal(t, time.Date(1970, 1, 1, 0, 0, 1, 0, time.UTC), FromEpochMillis(1000))
}

func TestEncodeDatetime(t *testing.T) {
	encoded, err := encodeDatetime("2018-08-07T16:00:56.000+0000")
	require.NoError(t, err)
	assert.Equal(t, int64(1533657656000), encoded)

	// RFC 3339 is accepted as a fallback layout.
	encoded, err = encodeDatetime("1970-01-01T00:00:01Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), encoded)
}

func TestEncodeDatetimeEmptyIsNull(t *testing.T) {
	encoded, err := encodeDatetime("")
	require.NoError(t, err)
	assert.Nil(t, encoded)
}

func TestEncodeDatetimeRejectsGarbage(t *testing.T) {
	_, err := encodeDatetime("not-a-datetime")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-datetime")
}

func TestDecodeDatetime(t *testing.T) {
	assert.Equal(t, "2018-08-07T16:00:56.000+0000", decodeDatetime("1533657656000"))
	assert.Equal(t, "1970-01-01T00:00:01.000+0000", decodeDatetime("1000"))
}

func TestDecodeDatetimeNonIntegerPassesThrough(t *testing.T) {
	assert.Equal(t, "hello", decodeDatetime("hello"))
}

func TestDatetimeWireRoundTrip(t *testing.T) {
	wire := "2021-06-15T12:30:45.000+0000"
	encoded, err := encodeDatetime(wire)
	require.NoError(t, err)
	assert.Equal(t, wire, decodeDatetime(fmt.Sprintf("%d", encoded)))
}

// TestStoreRoundTrip exercises EnsureTable, WriteRows, and Rows against a
// real Postgres instance. Run with FORCEFLOW_MIRROR_TEST_URL pointing at a
// scratch database, e.g.
// FORCEFLOW_MIRROR_TEST_URL="postgres://localhost/forceflow_test?sslmode=disable".
func TestStoreRoundTrip(t *testing.T) {
	connString := os.Getenv("FORCEFLOW_MIRROR_TEST_URL")
	if connString == "" {
		t.Skip("FORCEFLOW_MIRROR_TEST_URL not set")
	}

	ctx := context.Background()
	table := fmt.Sprintf("mirror_roundtrip_%d", time.Now().UnixNano())
	store, err := Open(connString, table, []string{"Id", "Name", "CreatedDate"}, []string{"CreatedDate"})
	require.NoError(t, err)
	defer store.Close()
	defer store.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(table)))

	require.NoError(t, store.EnsureTable(ctx))
	// EnsureTable is idempotent.
	require.NoError(t, store.EnsureTable(ctx))

	written, err := store.WriteRows(ctx, dataops.NewSliceIterator([][]string{
		{"001A", "Sample", "2018-08-07T16:00:56.000+0000"},
		{"001B", "Other", ""},
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	rows, err := store.Rows(ctx)
	require.NoError(t, err)
	defer rows.Close()

	var got [][]string
	for rows.Next() {
		row := rows.Value()
		got = append(got, append([]string(nil), row...))
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, [][]string{
		{"001A", "Sample", "2018-08-07T16:00:56.000+0000"},
		{"001B", "Other", ""},
	}, got)
}

func TestStoreRoundTripRejectsBadDatetime(t *testing.T) {
	connString := os.Getenv("FORCEFLOW_MIRROR_TEST_URL")
	if connString == "" {
		t.Skip("FORCEFLOW_MIRROR_TEST_URL not set")
	}

	ctx := context.Background()
	table := fmt.Sprintf("mirror_baddt_%d", time.Now().UnixNano())
	store, err := Open(connString, table, []string{"Id", "CreatedDate"}, []string{"CreatedDate"})
	require.NoError(t, err)
	defer store.Close()
	defer store.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(table)))

	require.NoError(t, store.EnsureTable(ctx))

	_, err = store.WriteRows(ctx, dataops.NewSliceIterator([][]string{
		{"001A", "yesterday"},
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CreatedDate")
}
