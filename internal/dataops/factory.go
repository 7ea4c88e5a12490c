package dataops

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// API selection thresholds.
const (
	// collectionsMinVersion is the first server API version with the
	// synchronous collections endpoint; older orgs force the Bulk API.
	collectionsMinVersion = 42.0

	// bulkVolumeThreshold is the record count at or above which the
	// automatic choice prefers the Bulk API.
	bulkVolumeThreshold = 2000
)

// =============================================================================
// OPERATION FACTORY
// =============================================================================

// Factory chooses and constructs the correct operation variant for a
// request, resolving an automatic API choice through the volume heuristic.
type Factory struct {
	Bulk   BulkService
	Rest   RestService
	Logger *slog.Logger

	// PollInterval overrides the poller interval for constructed bulk
	// operations; zero keeps the default.
	PollInterval time.Duration
}

// NewFactory creates an operation factory over the two transports.
func NewFactory(bulkSvc BulkService, restSvc RestService, logger *slog.Logger) *Factory {
	return &Factory{Bulk: bulkSvc, Rest: restSvc, Logger: logger}
}

// QueryOperation constructs a query operation for the object. An automatic
// API choice probes the object's approximate record count and picks the
// Bulk API at or above the volume threshold.
func (f *Factory) QueryOperation(ctx context.Context, object string, fields []string, options Options, soql string, api APIChoice) (QueryOperation, error) {
	api, err := f.resolveQueryAPI(ctx, object, api)
	if err != nil {
		return nil, err
	}
	logger := f.operationLogger(KindQuery, object, api)

	switch api {
	case APIBulk:
		return NewBulkQueryOperation(object, soql, options, f.Bulk, f.poller(logger), logger), nil
	case APIRest:
		return NewRestQueryOperation(object, soql, fields, f.Rest, logger), nil
	}
	return nil, fmt.Errorf("unknown API: %s", api)
}

// DmlOperation constructs a DML operation for the object. An automatic API
// choice uses the caller's volume estimate, and hardDelete always takes the
// Bulk API because it has no synchronous equivalent.
func (f *Factory) DmlOperation(ctx context.Context, object string, kind OperationKind, fields []string, options Options, volume int, api APIChoice) (DmlOperation, error) {
	api = f.resolveDmlAPI(kind, volume, api)
	logger := f.operationLogger(kind, object, api)
	logger.Debug("Creating operation", "kind", string(kind), "volume", volume)

	switch api {
	case APIBulk:
		return NewBulkDmlOperation(object, kind, options, fields, f.Bulk, f.poller(logger), logger), nil
	case APIRest:
		return NewRestDmlOperation(ctx, object, kind, options, fields, f.Rest, logger)
	}
	return nil, fmt.Errorf("unknown API: %s", api)
}

// =============================================================================
// API RESOLUTION
// =============================================================================

func (f *Factory) resolveQueryAPI(ctx context.Context, object string, api APIChoice) (APIChoice, error) {
	// The record-count probe and the collections endpoint both require
	// newer API versions; older orgs only speak Bulk.
	if f.Rest.APIVersion() < collectionsMinVersion && api != APIBulk {
		return APIBulk, nil
	}
	if api != APIAuto && api != "" {
		return api, nil
	}

	counts, err := f.Rest.RecordCounts(ctx, []string{object})
	if err != nil {
		return "", err
	}
	if count, ok := counts[object]; ok && count >= bulkVolumeThreshold {
		return APIBulk, nil
	}
	return APIRest, nil
}

func (f *Factory) resolveDmlAPI(kind OperationKind, volume int, api APIChoice) APIChoice {
	if f.Rest.APIVersion() < collectionsMinVersion && api != APIBulk {
		return APIBulk
	}
	if api != APIAuto && api != "" {
		return api
	}
	if volume >= bulkVolumeThreshold || kind == KindHardDelete {
		return APIBulk
	}
	return APIRest
}

// =============================================================================
// CONSTRUCTION HELPERS
// =============================================================================

// operationLogger tags every line of an operation with a trace id so
// interleaved operations stay attributable in the log stream.
func (f *Factory) operationLogger(kind OperationKind, object string, api APIChoice) *slog.Logger {
	return f.Logger.With(
		"op", uuid.NewString(),
		"kind", string(kind),
		"object", object,
		"api", string(api),
	)
}

func (f *Factory) poller(logger *slog.Logger) *Poller {
	p := NewPoller(f.Bulk, logger)
	if f.PollInterval > 0 {
		p.Interval = f.PollInterval
	}
	return p
}
