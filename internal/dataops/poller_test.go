package dataops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muselabdx/forceflow/internal/salesforce/bulk"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestClassifyBatchStates(t *testing.T) {
	tests := []struct {
		name   string
		states []bulk.BatchState
		want   JobResult
	}{
		{
			name:   "all completed",
			states: []bulk.BatchState{{State: "Completed", RecordsProcessed: 10}, {State: "Completed", RecordsProcessed: 5}},
			want:   JobResult{Status: StatusSuccess, RecordsProcessed: 15},
		},
		{
			name:   "row errors",
			states: []bulk.BatchState{{State: "Completed", RecordsProcessed: 10, RecordsFailed: 3}},
			want:   JobResult{Status: StatusRowFailure, RecordsProcessed: 10, TotalRowErrors: 3},
		},
		{
			name:   "failed batch carries its message",
			states: []bulk.BatchState{{State: "Failed", StateMessage: "boom", RecordsProcessed: 2}},
			want:   JobResult{Status: StatusJobFailure, JobErrors: []string{"boom"}, RecordsProcessed: 2},
		},
		{
			name:   "queued beats failed",
			states: []bulk.BatchState{{State: "Failed", StateMessage: "boom"}, {State: "Queued"}},
			want:   JobResult{Status: StatusInProgress},
		},
		{
			name:   "in progress beats row errors",
			states: []bulk.BatchState{{State: "Completed", RecordsProcessed: 4, RecordsFailed: 4}, {State: "InProgress"}},
			want:   JobResult{Status: StatusInProgress, RecordsProcessed: 4, TotalRowErrors: 4},
		},
		{
			name:   "not processed beats everything",
			states: []bulk.BatchState{{State: "Not Processed"}, {State: "InProgress"}, {State: "Failed", StateMessage: "boom"}},
			want:   JobResult{Status: StatusAborted},
		},
		{
			name:   "completed plus queued is still in progress",
			states: []bulk.BatchState{{State: "Completed", RecordsProcessed: 7}, {State: "Queued"}},
			want:   JobResult{Status: StatusInProgress, RecordsProcessed: 7},
		},
		{
			name:   "no batches",
			states: nil,
			want:   JobResult{Status: StatusSuccess},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyBatchStates(tt.states))
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, StatusInProgress.Terminal())
	for _, s := range []JobStatus{StatusSuccess, StatusRowFailure, StatusJobFailure, StatusAborted} {
		assert.True(t, s.Terminal(), string(s))
	}
}

// =============================================================================
// POLL LOOP
// =============================================================================

func TestPollerWaitsUntilTerminal(t *testing.T) {
	svc := &fakeBulkService{
		jobID: "job-1",
		batchStates: [][]bulk.BatchState{
			{{State: "Queued"}},
			{{State: "InProgress", RecordsProcessed: 3}},
			{{State: "Completed", RecordsProcessed: 9, RecordsFailed: 1}},
		},
	}

	sleeps := 0
	p := NewPoller(svc, testLogger(t))
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		assert.Equal(t, DefaultPollInterval, d)
		return nil
	}

	result, err := p.Wait(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRowFailure, result.Status)
	assert.Equal(t, 9, result.RecordsProcessed)
	assert.Equal(t, 1, result.TotalRowErrors)
	assert.Equal(t, 2, sleeps, "terminal poll must not sleep")
	assert.Equal(t, 3, svc.statusCalls)
}

func TestPollerHonorsInterval(t *testing.T) {
	svc := &fakeBulkService{
		jobID: "job-1",
		batchStates: [][]bulk.BatchState{
			{{State: "Queued"}},
			{{State: "Completed"}},
		},
	}

	var got time.Duration
	p := NewPoller(svc, testLogger(t))
	p.Interval = 250 * time.Millisecond
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		got = d
		return nil
	}

	_, err := p.Wait(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, got)
}

func TestPollerStopsOnContextCancel(t *testing.T) {
	svc := &fakeBulkService{
		jobID:       "job-1",
		batchStates: [][]bulk.BatchState{{{State: "Queued"}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(svc, testLogger(t))
	p.Interval = time.Millisecond
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := p.Wait(ctx, "job-1")
	require.ErrorIs(t, err, context.Canceled)
}
