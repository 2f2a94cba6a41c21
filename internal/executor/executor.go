// Package executor runs the final transfer: one execute request, a timed
// progress indicator while it is outstanding, and a direction-specific
// interpretation of the response.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/johndauphine/chfile/internal/client"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/sink"
	"github.com/johndauphine/chfile/internal/store"
)

// State of the executor.
type State int

const (
	Idle State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MsgFailed is shown when a failure carries no server message.
const MsgFailed = "Ingestion failed."

// ErrRunning is returned by Run while a transfer is outstanding.
var ErrRunning = errors.New("ingestion is already running")

// Client is the subset of the remote client the executor uses.
type Client interface {
	Execute(ctx context.Context, req client.IngestionRequest, blob *model.Blob) (*client.ExecuteResponse, error)
}

// Snapshotter yields the store contents at call time.
type Snapshotter interface {
	Snapshot() store.Snapshot
}

// Options tune the progress indicator.
type Options struct {
	Interval time.Duration // tick period, default 500ms
	Step     int           // percent added per tick, default 10
	Ceiling  int           // highest value before the response, default 90
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.Step <= 0 {
		o.Step = 10
	}
	if o.Ceiling <= 0 || o.Ceiling >= 100 {
		o.Ceiling = 90
	}
	return o
}

// Hooks are called outside the executor's lock. Any may be nil.
type Hooks struct {
	Progress func(percent int, visible bool)
	State    func(State)
	Done     func(Result) // once per run, after the terminal state is set
}

// Result describes a finished run.
type Result struct {
	State    State
	Outcome  Outcome // nil on failure
	Message  string
	Err      error
	Duration time.Duration
}

// Status is a point-in-time view for rendering.
type Status struct {
	State           State
	Progress        int
	ProgressVisible bool
	Message         string
	Outcome         Outcome
}

// Executor is safe for concurrent use; only one run is active at a time.
type Executor struct {
	client Client
	store  Snapshotter
	sink   sink.Sink
	opts   Options

	mu       sync.Mutex
	hooks    Hooks
	state    State
	progress int
	visible  bool
	message  string
	outcome  Outcome
}

// New returns an idle executor. Export payloads go to s; a nil sink
// discards them.
func New(c Client, st Snapshotter, s sink.Sink, opts Options) *Executor {
	return &Executor{client: c, store: st, sink: s, opts: opts.withDefaults()}
}

// SetHooks replaces the listener callbacks.
func (e *Executor) SetHooks(h Hooks) {
	e.mu.Lock()
	e.hooks = h
	e.mu.Unlock()
}

// Status returns the current state.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:           e.state,
		Progress:        e.progress,
		ProgressVisible: e.visible,
		Message:         e.message,
		Outcome:         e.outcome,
	}
}

// Reset returns a finished executor to Idle. It is a no-op while running.
func (e *Executor) Reset() {
	e.mu.Lock()
	if e.state == Running {
		e.mu.Unlock()
		return
	}
	e.state, e.progress, e.visible, e.message, e.outcome = Idle, 0, false, "", nil
	e.mu.Unlock()
}

// BuildRequest assembles the execute document for dir from snap.
func BuildRequest(dir model.Direction, snap store.Snapshot) client.IngestionRequest {
	req := client.IngestionRequest{
		SourceType:       dir.SourceType(),
		TargetType:       dir.TargetType(),
		ClickHouseConfig: snap.Connection,
		FlatFileConfig:   snap.File,
		TableName:        snap.Table,
		SelectedColumns:  snap.Selected(),
		TargetTableName:  snap.TargetTable,
	}
	if dir == model.DirectionExport && snap.Join != nil && snap.Join.Enabled() {
		req.AdditionalTables = snap.Join.AdditionalTables
		req.JoinCondition = snap.Join.Condition
	}
	return req
}

// Run performs one transfer for dir using the store as it is now. It
// blocks until the response is handled and returns the outcome, or the
// error that moved the executor to Failed.
func (e *Executor) Run(ctx context.Context, dir model.Direction) (Outcome, error) {
	dec, ok := decoders[dir]
	if !ok {
		return nil, fmt.Errorf("cannot execute without a direction")
	}

	e.mu.Lock()
	if e.state == Running {
		e.mu.Unlock()
		return nil, ErrRunning
	}
	e.state, e.progress, e.visible, e.message, e.outcome = Running, 0, true, "", nil
	hooks := e.hooks
	e.mu.Unlock()
	notifyState(hooks, Running)
	notifyProgress(hooks, 0, true)

	start := time.Now()
	snap := e.store.Snapshot()
	req := BuildRequest(dir, snap)
	logging.Info("Starting %s: %s -> %s, table=%q, %d columns", dir, req.SourceType, req.TargetType, req.TableName, len(req.SelectedColumns))

	stop := e.tick(hooks)
	resp, err := e.client.Execute(ctx, req, snap.Blob)
	stop()

	var out Outcome
	if err == nil {
		out, err = dec(ctx, e, snap, resp)
	}
	if err != nil {
		return nil, e.fail(hooks, err, time.Since(start))
	}
	e.succeed(hooks, out, time.Since(start))
	return out, nil
}

// tick advances progress until the returned func is called. The func
// blocks until the ticker goroutine has exited, so no tick can land after
// the caller publishes a final value.
func (e *Executor) tick(hooks Hooks) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(e.opts.Interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				e.mu.Lock()
				if e.state != Running || e.progress >= e.opts.Ceiling {
					e.mu.Unlock()
					continue
				}
				e.progress += e.opts.Step
				if e.progress > e.opts.Ceiling {
					e.progress = e.opts.Ceiling
				}
				p := e.progress
				e.mu.Unlock()
				notifyProgress(hooks, p, true)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		wg.Wait()
	}
}

func (e *Executor) succeed(hooks Hooks, out Outcome, elapsed time.Duration) {
	msg := fmt.Sprintf("Ingestion completed. Total records processed: %d", out.Records())
	e.mu.Lock()
	e.state, e.progress, e.visible, e.message, e.outcome = Succeeded, 100, true, msg, out
	e.mu.Unlock()

	logging.Info("Ingestion succeeded: %d records in %s", out.Records(), elapsed.Round(time.Millisecond))
	notifyProgress(hooks, 100, true)
	notifyState(hooks, Succeeded)
	if hooks.Done != nil {
		hooks.Done(Result{State: Succeeded, Outcome: out, Message: msg, Duration: elapsed})
	}
}

func (e *Executor) fail(hooks Hooks, err error, elapsed time.Duration) error {
	msg := ErrorMessage(err)
	e.mu.Lock()
	e.state, e.progress, e.visible, e.message, e.outcome = Failed, 0, false, msg, nil
	e.mu.Unlock()

	logging.Error("Ingestion failed after %s: %v", elapsed.Round(time.Millisecond), err)
	notifyProgress(hooks, 0, false)
	notifyState(hooks, Failed)
	if hooks.Done != nil {
		hooks.Done(Result{State: Failed, Message: msg, Err: err, Duration: elapsed})
	}
	return err
}

// ErrorMessage is the text shown for a failed run.
func ErrorMessage(err error) string {
	if msg := client.ServerMessage(err); msg != "" {
		return msg
	}
	var se *saveError
	if errors.As(err, &se) {
		return se.Error()
	}
	return MsgFailed
}

func notifyState(h Hooks, s State) {
	if h.State != nil {
		h.State(s)
	}
}

func notifyProgress(h Hooks, p int, visible bool) {
	if h.Progress != nil {
		h.Progress(p, visible)
	}
}
