package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHealthManagerEvaluate(t *testing.T) {
	manager := NewHealthManager(0)
	manager.RegisterReadiness(NewCheck("token_store", func(ctx context.Context) ProbeResult {
		return ProbeResult{Status: StatusUp}
	}))
	manager.RegisterReadiness(NewCheck("redis", func(ctx context.Context) ProbeResult {
		return ProbeResult{Status: StatusDown, Details: "connection refused"}
	}))
	manager.RegisterReadiness(Check{})

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "token_store", report.Checks[0].Component)
	require.Equal(t, "redis", report.Checks[1].Component)
}

func TestHealthManagerDegraded(t *testing.T) {
	manager := NewHealthManager(0)
	manager.RegisterLiveness(NewCheck("process", func(ctx context.Context) ProbeResult {
		return ProbeResult{Status: StatusUp}
	}))
	manager.RegisterLiveness(NewCheck("disk", func(ctx context.Context) ProbeResult {
		return ProbeResult{Status: StatusDegraded}
	}))

	report := manager.EvaluateLiveness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, StatusDegraded, report.Status)
}

func TestHealthManagerEmptyIsUp(t *testing.T) {
	report := NewHealthManager(0).EvaluateReadiness(context.Background())
	require.True(t, report.Success)
	require.Equal(t, StatusUp, report.Status)
}

func TestHealthManagerRecoversPanics(t *testing.T) {
	manager := NewHealthManager(0)
	manager.RegisterReadiness(NewCheck("boom", func(ctx context.Context) ProbeResult {
		panic("exploded")
	}))
	manager.RegisterReadiness(NewCheck("missing", nil))

	report := manager.EvaluateReadiness(context.Background())
	require.Equal(t, StatusDown, report.Status)
	require.Equal(t, "boom", report.Checks[0].Component)
	require.Equal(t, "exploded", report.Checks[0].Details)
	require.Equal(t, "probe not implemented", report.Checks[1].Details)
}

func TestHealthManagerAppliesTimeout(t *testing.T) {
	manager := NewHealthManager(10 * time.Millisecond)
	manager.RegisterReadiness(NewCheck("slow", func(ctx context.Context) ProbeResult {
		<-ctx.Done()
		return ResultFromError("slow", ctx.Err(), 0)
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.Equal(t, StatusDegraded, report.Status)
}

func TestResultFromError(t *testing.T) {
	require.Equal(t, StatusUp, ResultFromError("db", nil, time.Second).Status)
	require.Equal(t, StatusDown, ResultFromError("db", errors.New("refused"), time.Second).Status)
	require.Equal(t, StatusDegraded, ResultFromError("db", context.DeadlineExceeded, -time.Second).Status)
}

func TestRecordMaintenanceRun(t *testing.T) {
	resetMaintenance()
	t.Cleanup(resetMaintenance)

	RecordMaintenanceRun("reset_token_sweep", "success", "", time.Second)
	RecordMaintenanceRun("reset_token_sweep", "failure", "disk full", time.Second)
	RecordMaintenanceRun("", "", "", -time.Second)

	jobs := MaintenanceSnapshot()
	require.Len(t, jobs, 2)
	require.Equal(t, "reset_token_sweep", jobs[0].Job)
	require.EqualValues(t, 2, jobs[0].TotalRuns)
	require.EqualValues(t, 1, jobs[0].ConsecutiveFailures)
	require.Equal(t, "disk full", jobs[0].LastError)
	require.False(t, jobs[0].LastSuccessAt.IsZero())
	require.Equal(t, "unknown", jobs[1].Job)
}
