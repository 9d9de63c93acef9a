package monitoring

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlesng35/storefront/pkg/metrics"
)

// MaintenanceJobSummary reports the recent history of one background job.
type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

var maintenanceJobs = struct {
	sync.Mutex
	jobs map[string]*MaintenanceJobSummary
}{jobs: make(map[string]*MaintenanceJobSummary)}

// RecordMaintenanceRun stores the outcome of a maintenance run and exports it as metrics.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	job = strings.TrimSpace(job)
	if job == "" {
		job = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	if duration < 0 {
		duration = 0
	}

	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()
	metrics.MaintenanceDuration.WithLabelValues(job).Observe(duration.Seconds())

	now := time.Now()

	maintenanceJobs.Lock()
	defer maintenanceJobs.Unlock()

	entry, ok := maintenanceJobs.jobs[job]
	if !ok {
		entry = &MaintenanceJobSummary{Job: job}
		maintenanceJobs.jobs[job] = entry
	}

	entry.LastStatus = result
	entry.LastRunAt = now
	entry.LastDuration = duration
	entry.LastError = strings.TrimSpace(message)
	entry.TotalRuns++
	if result == "success" {
		entry.ConsecutiveFailures = 0
		entry.LastSuccessAt = now
	} else {
		entry.ConsecutiveFailures++
	}
}

// MaintenanceSnapshot returns a copy of every recorded job, sorted by name.
func MaintenanceSnapshot() []MaintenanceJobSummary {
	maintenanceJobs.Lock()
	defer maintenanceJobs.Unlock()

	out := make([]MaintenanceJobSummary, 0, len(maintenanceJobs.jobs))
	for _, entry := range maintenanceJobs.jobs {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// resetMaintenance clears recorded jobs. Tests only.
func resetMaintenance() {
	maintenanceJobs.Lock()
	defer maintenanceJobs.Unlock()
	maintenanceJobs.jobs = make(map[string]*MaintenanceJobSummary)
}
