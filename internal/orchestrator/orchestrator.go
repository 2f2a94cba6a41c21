// Package orchestrator drives a session through its steps for scripted
// runs and records every finished run.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/johndauphine/chfile/internal/blob"
	"github.com/johndauphine/chfile/internal/config"
	"github.com/johndauphine/chfile/internal/history"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/notify"
	"github.com/johndauphine/chfile/internal/session"
)

// Remote is the ingestion service as the orchestrator uses it.
type Remote interface {
	session.Remote
	Health(ctx context.Context) (string, error)
}

// Orchestrator owns one session. History and notifier are optional.
type Orchestrator struct {
	config   *config.Config
	remote   Remote
	session  *session.Session
	state    history.Backend
	notifier *notify.Notifier

	mu      sync.Mutex
	lastRun string
}

// New builds the export sink from cfg and a session around remote.
func New(cfg *config.Config, remote Remote, state history.Backend, notifier *notify.Notifier) (*Orchestrator, error) {
	sk, err := cfg.Sink()
	if err != nil {
		return nil, fmt.Errorf("creating export sink: %w", err)
	}
	if notifier == nil {
		notifier = NotifierFor(cfg)
	}
	o := &Orchestrator{
		config:   cfg,
		remote:   remote,
		session:  session.New(remote, sk, cfg.ExecutorOptions()),
		state:    state,
		notifier: notifier,
	}
	o.session.Observe(o.record)
	return o, nil
}

// NotifierFor returns a Slack notifier for the configured webhook.
func NotifierFor(cfg *config.Config) *notify.Notifier {
	s := cfg.Notifications.Slack
	if s.WebhookURL == "" {
		return notify.New(nil)
	}
	return notify.New(&notify.SlackConfig{
		Enabled:    s.OnSuccess || s.OnFailure,
		WebhookURL: s.WebhookURL,
		Channel:    s.Channel,
		Username:   s.Username,
	})
}

// Session returns the session the orchestrator drives.
func (o *Orchestrator) Session() *session.Session { return o.session }

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() *config.Config { return o.config }

// History returns the run store, or nil.
func (o *Orchestrator) History() history.Backend { return o.state }

// LastRunID returns the id of the most recently recorded run.
func (o *Orchestrator) LastRunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun
}

// Close cancels in-flight calls.
func (o *Orchestrator) Close() {
	o.session.Close()
}

// record stores and announces a finished run.
func (o *Orchestrator) record(rep session.RunReport) {
	id := history.NewRunID()
	run := history.FromReport(id, rep)

	o.mu.Lock()
	o.lastRun = id
	o.mu.Unlock()

	if o.state != nil {
		if err := o.state.RecordRun(run); err != nil {
			logging.Warn("Failed to record run %s: %v", id, err)
		}
	}

	slack := o.config.Notifications.Slack
	var err error
	switch {
	case run.Status == history.StatusSuccess && slack.OnSuccess:
		err = o.notifier.IngestionCompleted(id, string(run.Direction), run.Source, run.Target, run.Records, run.Duration())
	case run.Status == history.StatusFailed && slack.OnFailure:
		err = o.notifier.IngestionFailed(id, string(run.Direction), run.Message, run.Duration())
	}
	if err != nil {
		logging.Warn("Failed to send notification for run %s: %v", id, err)
	}
}

// ApplyJob chooses the job's direction, which clears the session, and
// stores every setting the job carries.
func (o *Orchestrator) ApplyJob(job *config.Job) error {
	s := o.session
	dir := job.Dir()
	if err := s.SetDirection(dir); err != nil {
		return err
	}
	if err := s.SetConnection(*job.ClickHouse); err != nil {
		return err
	}

	file := *job.File
	if job.Upload != "" {
		file.FileName = ""
	}
	if err := s.SetFileConfig(file); err != nil {
		return err
	}
	if job.Upload != "" {
		b, err := blob.Load(job.Upload, file.Delimiter, job.Sheet)
		if err != nil {
			return err
		}
		if err := blob.CheckEncoding(b.Data, file.Encoding); err != nil {
			return err
		}
		if err := s.AttachBlob(b); err != nil {
			return err
		}
	}

	switch dir {
	case model.DirectionExport:
		if err := s.SelectTable(job.Table); err != nil {
			return err
		}
		if job.Join != nil {
			if err := s.SetJoin(*job.Join); err != nil {
				return err
			}
		}
	case model.DirectionImport:
		if err := s.SetTargetTable(job.TargetTable); err != nil {
			return err
		}
	}
	return nil
}

// selectColumns narrows the discovered columns to names. An empty list
// keeps everything selected.
func (o *Orchestrator) selectColumns(names []string) error {
	if len(names) == 0 {
		return nil
	}
	if err := o.session.DeselectAll(); err != nil {
		return err
	}
	for _, name := range names {
		if err := o.session.SetColumn(name, true); err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
	}
	return nil
}

// statusError turns the session's status into an error when the step
// failed without one.
func (o *Orchestrator) statusError(step string, err error) error {
	if err != nil {
		if msg := o.session.Status().Message; msg != "" {
			return fmt.Errorf("%s: %s: %w", step, msg, err)
		}
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}
