package dataops

import (
	"context"
	"log/slog"
	"time"

	"github.com/muselabdx/forceflow/internal/salesforce/bulk"
)

// DefaultPollInterval is the fixed wait between job status checks.
const DefaultPollInterval = 10 * time.Second

// =============================================================================
// JOB CLASSIFICATION
// =============================================================================

// ClassifyBatchStates derives a JobResult from the per-batch state document.
// The terminal status is a pure function of the multiset of batch states,
// with precedence Aborted > In progress > Job failure > Row failure >
// Success. Processed and failed record counts are summed regardless of the
// resulting status.
func ClassifyBatchStates(states []bulk.BatchState) JobResult {
	var (
		notProcessed bool
		inProgress   bool
		failed       bool
		jobErrors    []string
		processed    int
		rowErrors    int
	)

	for _, s := range states {
		switch s.State {
		case "Not Processed":
			notProcessed = true
		case "InProgress", "Queued":
			inProgress = true
		case "Failed":
			failed = true
		}
		if s.StateMessage != "" {
			jobErrors = append(jobErrors, s.StateMessage)
		}
		processed += s.RecordsProcessed
		rowErrors += s.RecordsFailed
	}

	switch {
	case notProcessed:
		// A "Not Processed" batch is expected for the original batch of a
		// PK-chunked query job. PK chunking is not supported here, so the
		// whole job is treated as aborted.
		return JobResult{Status: StatusAborted, RecordsProcessed: processed, TotalRowErrors: rowErrors}
	case inProgress:
		return JobResult{Status: StatusInProgress, RecordsProcessed: processed, TotalRowErrors: rowErrors}
	case failed:
		return JobResult{Status: StatusJobFailure, JobErrors: jobErrors, RecordsProcessed: processed, TotalRowErrors: rowErrors}
	case rowErrors > 0:
		return JobResult{Status: StatusRowFailure, RecordsProcessed: processed, TotalRowErrors: rowErrors}
	}
	return JobResult{Status: StatusSuccess, RecordsProcessed: processed, TotalRowErrors: rowErrors}
}

// =============================================================================
// POLLER
// =============================================================================

// Poller blocks until a Bulk job reaches a terminal state. The loop is
// unbounded by design; callers bound it through ctx. Sleep is injectable so
// tests can terminate the loop without waiting out real intervals.
type Poller struct {
	Bulk   BulkService
	Logger *slog.Logger

	// Interval between status checks (default: DefaultPollInterval).
	Interval time.Duration

	// Sleep overrides the wait between polls. It must honor ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller with the default interval.
func NewPoller(svc BulkService, logger *slog.Logger) *Poller {
	return &Poller{Bulk: svc, Logger: logger, Interval: DefaultPollInterval}
}

// Wait polls the job until its batch states classify to a terminal status,
// then returns the final JobResult. Batch failure messages are logged at
// error level; all other progress is informational.
func (p *Poller) Wait(ctx context.Context, jobID string) (*JobResult, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var result JobResult
	for {
		info, err := p.Bulk.JobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		p.Logger.Info("Waiting for job",
			"job", jobID,
			"batchesComplete", info.BatchesCompleted,
			"batchesTotal", info.BatchesTotal)

		states, err := p.Bulk.BatchStates(ctx, jobID)
		if err != nil {
			return nil, err
		}
		result = ClassifyBatchStates(states)
		if result.Status.Terminal() {
			break
		}

		if err := p.sleep(ctx, interval); err != nil {
			return nil, err
		}
	}

	p.Logger.Info("Job finished",
		"job", jobID,
		"status", string(result.Status),
		"rowErrors", result.TotalRowErrors)
	if result.Status == StatusJobFailure {
		for _, msg := range result.JobErrors {
			p.Logger.Error("Batch failure message", "message", msg)
		}
	}

	return &result, nil
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
