package orchestrator

import (
	"context"
	"fmt"
	"slices"

	"github.com/johndauphine/chfile/internal/config"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
)

// Check is one line of a validation report.
type Check struct {
	Name    string
	OK      bool
	Warning bool // failed but not fatal
	Detail  string
}

// ValidationReport lists the checks Validate ran.
type ValidationReport struct {
	Checks []Check
}

// Failed reports whether any fatal check failed.
func (r *ValidationReport) Failed() bool {
	for _, c := range r.Checks {
		if !c.OK && !c.Warning {
			return true
		}
	}
	return false
}

func (r *ValidationReport) add(name string, ok bool, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, OK: ok, Detail: detail})
}

func (r *ValidationReport) warn(name, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, Warning: true, Detail: detail})
}

// Validate checks job against the service without previewing or executing:
// the ClickHouse connection, the tables it names and the columns it selects.
func (o *Orchestrator) Validate(ctx context.Context, job *config.Job) (*ValidationReport, error) {
	stop := context.AfterFunc(ctx, o.session.Close)
	defer stop()

	report := &ValidationReport{}
	if err := o.ApplyJob(job); err != nil {
		return nil, fmt.Errorf("applying job: %w", err)
	}
	s := o.session

	if err := s.TestConnection(); err != nil {
		report.add("clickhouse connection", false, s.Status().Message)
		o.logReport(report)
		return report, nil
	}
	report.add("clickhouse connection", true, s.Status().Message)

	if err := s.ListTables(); err != nil {
		report.add("table listing", false, s.Status().Message)
	} else {
		tables := s.Tables()
		switch job.Dir() {
		case model.DirectionExport:
			report.add("source table "+job.Table, slices.Contains(tables, job.Table), "")
			if job.Join != nil {
				for _, t := range job.Join.AdditionalTables {
					report.add("join table "+t, slices.Contains(tables, t), "")
				}
			}
		case model.DirectionImport:
			if !slices.Contains(tables, job.TargetTable) {
				report.warn("target table "+job.TargetTable, "does not exist yet")
			} else {
				report.add("target table "+job.TargetTable, true, "")
			}
		}
	}

	if report.Failed() {
		o.logReport(report)
		return report, nil
	}

	if err := s.DiscoverSchema(); err != nil || len(s.Columns()) == 0 {
		report.add("source columns", false, s.Status().Message)
		o.logReport(report)
		return report, nil
	}
	cols := s.Columns()
	report.add("source columns", true, fmt.Sprintf("%d columns", len(cols)))
	for _, name := range job.Columns {
		found := slices.ContainsFunc(cols, func(c model.Column) bool { return c.Name == name })
		detail := ""
		if !found {
			detail = "not in source"
		}
		report.add("column "+name, found, detail)
	}

	o.logReport(report)
	return report, nil
}

func (o *Orchestrator) logReport(r *ValidationReport) {
	logging.Info("Validation Results:")
	logging.Info("-------------------")
	for _, c := range r.Checks {
		switch {
		case c.OK:
			logging.Info("%-30s OK %s", c.Name, c.Detail)
		case c.Warning:
			logging.Warn("%-30s WARN %s", c.Name, c.Detail)
		default:
			logging.Error("%-30s FAIL %s", c.Name, c.Detail)
		}
	}
}
