// Package main implements the forceflow CLI: extract rows from an org to
// CSV (or the relational mirror), or load CSV rows into an org through the
// operation factory.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/muselabdx/forceflow/internal/config"
	"github.com/muselabdx/forceflow/internal/dataops"
	"github.com/muselabdx/forceflow/internal/salesforce/bulk"
	"github.com/muselabdx/forceflow/internal/salesforce/rest"
	"github.com/muselabdx/forceflow/pkg/mirror"
)

func main() {
	var (
		mode   = flag.String("mode", "extract", "extract or load")
		object = flag.String("object", "", "target object, e.g. Account")
		fields = flag.String("fields", "", "comma-separated field list")
		query  = flag.String("query", "", "SOQL for extract (default SELECT fields FROM object)")
		dtCols = flag.String("datetime-fields", "", "comma-separated datetime fields, epoch-encoded in the mirror")
		kind   = flag.String("kind", "insert", "DML kind for load")
		api    = flag.String("api", "smart", "bulk, rest, or smart")
		volume = flag.Int("volume", 0, "estimated record volume for API selection")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *object == "" || *fields == "" {
		logger.Error("both -object and -fields are required")
		os.Exit(2)
	}
	fieldList := strings.Split(*fields, ",")
	var datetimeList []string
	if *dtCols != "" {
		datetimeList = strings.Split(*dtCols, ",")
	}

	cfg := config.LoadOrgConfig()
	if cfg.InstanceURL == "" || cfg.SessionID == "" {
		logger.Error("FORCEFLOW_INSTANCE_URL and FORCEFLOW_SESSION_ID must be set")
		os.Exit(2)
	}

	bulkClient := bulk.NewClient(bulk.Config{
		InstanceURL: cfg.InstanceURL,
		SessionID:   cfg.SessionID,
		APIVersion:  cfg.APIVersion,
		Timeout:     cfg.RequestTimeout,
		RateLimit:   cfg.RateLimit,
	})
	restClient := rest.NewClient(rest.Config{
		InstanceURL: cfg.InstanceURL,
		SessionID:   cfg.SessionID,
		APIVersion:  cfg.APIVersion,
		Timeout:     cfg.RequestTimeout,
		RateLimit:   cfg.RateLimit,
	})
	factory := dataops.NewFactory(bulkClient, restClient, logger)

	ctx := context.Background()
	var err error
	switch *mode {
	case "extract":
		err = runExtract(ctx, factory, cfg, *object, fieldList, datetimeList, *query, dataops.APIChoice(*api), logger)
	case "load":
		err = runLoad(ctx, factory, *object, fieldList, dataops.OperationKind(*kind), *volume, dataops.APIChoice(*api), logger)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// runExtract queries the org and writes rows to stdout as CSV, or into the
// mirror when one is configured.
func runExtract(ctx context.Context, factory *dataops.Factory, cfg *config.OrgConfig, object string, fields, datetimeFields []string, soql string, api dataops.APIChoice, logger *slog.Logger) error {
	if soql == "" {
		soql = fmt.Sprintf("SELECT %s FROM %s", strings.Join(fields, ", "), object)
	}

	op, err := factory.QueryOperation(ctx, object, fields, dataops.Options{}, soql, api)
	if err != nil {
		return err
	}

	return dataops.WithQueryOperation(ctx, op, func(op dataops.QueryOperation) error {
		rows, err := op.GetResults(ctx)
		if err != nil {
			return err
		}
		defer rows.Close()

		if cfg.MirrorURL != "" {
			store, err := mirror.Open(cfg.MirrorURL, object, fields, datetimeFields)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureTable(ctx); err != nil {
				return err
			}
			written, err := store.WriteRows(ctx, rows)
			if err != nil {
				return err
			}
			logger.Info("Extracted rows into mirror", "rows", written, "table", object)
			return nil
		}

		w := csv.NewWriter(os.Stdout)
		if err := w.Write(fields); err != nil {
			return err
		}
		for rows.Next() {
			if err := w.Write(rows.Value()); err != nil {
				return err
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	})
}

// runLoad reads CSV rows from stdin (header first, matching -fields) and
// performs the requested DML, reporting per-record failures.
func runLoad(ctx context.Context, factory *dataops.Factory, object string, fields []string, kind dataops.OperationKind, volume int, api dataops.APIChoice, logger *slog.Logger) error {
	op, err := factory.DmlOperation(ctx, object, kind, fields, dataops.Options{}, volume, api)
	if err != nil {
		return err
	}

	err = dataops.WithDmlOperation(ctx, op, func(op dataops.DmlOperation) error {
		return op.LoadRecords(ctx, newCSVIterator(os.Stdin))
	})
	if err != nil {
		return err
	}

	results, err := op.GetResults(ctx)
	if err != nil {
		return err
	}
	defer results.Close()

	failures := 0
	for results.Next() {
		if res := results.Value(); !res.Success {
			failures++
			logger.Error("Record failed", "error", res.Error)
		}
	}
	if err := results.Err(); err != nil {
		return err
	}

	result := op.Result()
	logger.Info("Load finished",
		"status", string(result.Status),
		"processed", result.RecordsProcessed,
		"rowErrors", result.TotalRowErrors,
		"reportedFailures", failures)
	return nil
}

// csvIterator adapts a CSV stream (with header row) to a RecordIterator.
type csvIterator struct {
	reader *csv.Reader
	first  bool
	row    []string
	err    error
}

func newCSVIterator(r io.Reader) *csvIterator {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	return &csvIterator{reader: reader, first: true}
}

func (it *csvIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.first {
		it.first = false
		if _, err := it.reader.Read(); err != nil {
			if err != io.EOF {
				it.err = err
			}
			return false
		}
	}
	row, err := it.reader.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		it.err = err
		return false
	}
	it.row = row
	return true
}

func (it *csvIterator) Value() []string { return it.row }
func (it *csvIterator) Err() error      { return it.err }
func (it *csvIterator) Close() error    { return nil }
