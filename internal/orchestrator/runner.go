package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/johndauphine/chfile/internal/config"
	"github.com/johndauphine/chfile/internal/executor"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/preview"
)

// ProgressReporter receives executor progress. *progress.Tracker
// satisfies it.
type ProgressReporter interface {
	Update(percent int, visible bool)
}

// RunResult is the outcome of a scripted run.
type RunResult struct {
	RunID    string
	Columns  []model.Column
	Preview  *preview.Result
	Outcome  executor.Outcome
	Message  string
	Duration time.Duration
}

// prepare applies the job and walks the session up to a completed preview.
func (o *Orchestrator) prepare(ctx context.Context, job *config.Job) (*preview.Result, error) {
	if err := o.ApplyJob(job); err != nil {
		return nil, fmt.Errorf("applying job: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := o.session
	logging.Info("Discovering %s columns", job.Dir().SourceType())
	if err := o.statusError("discovering columns", s.DiscoverSchema()); err != nil {
		return nil, err
	}
	if len(s.Columns()) == 0 {
		return nil, fmt.Errorf("discovering columns: %s", s.Status().Message)
	}
	if err := o.selectColumns(job.Columns); err != nil {
		return nil, err
	}

	logging.Info("Fetching preview")
	if err := o.statusError("previewing", s.Preview()); err != nil {
		return nil, err
	}
	res, _, msg := s.PreviewOutcome()
	logging.Info("%s", msg)
	return res, nil
}

// Run executes job end to end: configure, discover, select, preview and
// execute. prog may be nil. Cancelling ctx aborts the in-flight call.
func (o *Orchestrator) Run(ctx context.Context, job *config.Job, prog ProgressReporter) (*RunResult, error) {
	stop := context.AfterFunc(ctx, o.session.Close)
	defer stop()

	start := time.Now()
	res, err := o.prepare(ctx, job)
	if err != nil {
		return nil, err
	}

	exec := o.session.Executor()
	if prog != nil {
		exec.SetHooks(executor.Hooks{Progress: prog.Update})
		defer exec.SetHooks(executor.Hooks{})
	}

	logging.Info("Starting %s ingestion", job.Dir())
	out, err := o.session.Execute()
	result := &RunResult{
		RunID:    o.LastRunID(),
		Columns:  o.session.Columns(),
		Preview:  res,
		Outcome:  out,
		Message:  o.session.Status().Message,
		Duration: time.Since(start),
	}
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, o.statusError("executing", err)
	}
	logging.Info("%s", result.Message)
	return result, nil
}
