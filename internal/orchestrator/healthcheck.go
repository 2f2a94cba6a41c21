package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/johndauphine/chfile/internal/config"
	"github.com/johndauphine/chfile/internal/model"
)

// HealthCheckResult reports service and ClickHouse reachability.
type HealthCheckResult struct {
	Timestamp           string `json:"timestamp"`
	ServiceURL          string `json:"service_url"`
	ServiceStatus       string `json:"service_status,omitempty"`
	ServiceHealthy      bool   `json:"service_healthy"`
	ServiceError        string `json:"service_error,omitempty"`
	ServiceLatencyMs    int64  `json:"service_latency_ms"`
	ClickHouse          string `json:"clickhouse"`
	ClickHouseConnected bool   `json:"clickhouse_connected"`
	ClickHouseError     string `json:"clickhouse_error,omitempty"`
	ClickHouseTables    int    `json:"clickhouse_tables"`
	ClickHouseLatencyMs int64  `json:"clickhouse_latency_ms"`
	Healthy             bool   `json:"healthy"`
}

const checkTimeout = 30 * time.Second

// HealthCheck calls the service health endpoint and, through the service,
// the configured ClickHouse server. Both checks run in parallel with their
// own timeout.
func (o *Orchestrator) HealthCheck(ctx context.Context, serviceURL string) *HealthCheckResult {
	conn := o.config.ClickHouse
	result := &HealthCheckResult{
		Timestamp:  time.Now().Format(time.RFC3339),
		ServiceURL: serviceURL,
		ClickHouse: conn.String(),
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		status, err := o.remote.Health(cctx)
		if err != nil {
			result.ServiceError = err.Error()
		} else {
			result.ServiceHealthy = true
			result.ServiceStatus = status
		}
		result.ServiceLatencyMs = time.Since(start).Milliseconds()
	}()

	go func() {
		defer wg.Done()
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		if err := conn.Validate(); err != nil {
			result.ClickHouseError = err.Error()
			return
		}
		if _, err := o.remote.TestConnection(cctx, conn); err != nil {
			result.ClickHouseError = err.Error()
		} else {
			result.ClickHouseConnected = true
			if tables, err := o.remote.ListTables(cctx, conn); err == nil {
				result.ClickHouseTables = len(tables)
			}
		}
		result.ClickHouseLatencyMs = time.Since(start).Milliseconds()
	}()

	wg.Wait()
	result.Healthy = result.ServiceHealthy && result.ClickHouseConnected
	return result
}

// DryRunResult is what a run would send, without executing it.
type DryRunResult struct {
	Direction   model.Direction
	Source      string
	Target      string
	Columns     []model.Column
	Selected    int
	PreviewRows int
	PreviewNote string
}

// DryRun applies job and walks the session through discovery and preview
// without executing the transfer.
func (o *Orchestrator) DryRun(ctx context.Context, job *config.Job) (*DryRunResult, error) {
	stop := context.AfterFunc(ctx, o.session.Close)
	defer stop()

	res, err := o.prepare(ctx, job)
	if err != nil {
		return nil, err
	}
	snap := o.session.Store().Snapshot()
	out := &DryRunResult{
		Direction: job.Dir(),
		Columns:   o.session.Columns(),
		Selected:  len(snap.Selected()),
	}
	out.Source, out.Target = endpoints(job)
	if res != nil {
		out.PreviewRows = res.Total
		out.PreviewNote = res.Caption()
	}
	if !o.session.Gates().Execution {
		return out, fmt.Errorf("job would not be executable: %s", o.session.Gates().Current())
	}
	return out, nil
}

func endpoints(job *config.Job) (source, target string) {
	file := job.Upload
	if file == "" {
		file = job.File.FileName
	}
	if job.Dir() == model.DirectionExport {
		return job.Table, file
	}
	return file, job.TargetTable
}
