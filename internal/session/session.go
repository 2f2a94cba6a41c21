// Package session is the wizard orchestrator. It owns one configuration
// store and sequences the remote calls a transfer needs, gating each step
// on the ones before it.
//
// Every remote call runs under a context tied to the current direction.
// Changing direction cancels that context and resets all state, and any
// result that still arrives for the old direction is dropped with
// ErrStale instead of being written.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/johndauphine/chfile/internal/client"
	"github.com/johndauphine/chfile/internal/executor"
	"github.com/johndauphine/chfile/internal/gate"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/preview"
	"github.com/johndauphine/chfile/internal/selection"
	"github.com/johndauphine/chfile/internal/sink"
	"github.com/johndauphine/chfile/internal/store"
)

var (
	// ErrStepLocked is returned when an operation's step is not enabled.
	ErrStepLocked = errors.New("step is not available yet")
	// ErrStale is returned when the direction changed while a call was in
	// flight; its result was discarded.
	ErrStale = errors.New("result discarded: direction changed")
	// ErrNoDirection is returned by operations that need a direction.
	ErrNoDirection = errors.New("no direction selected")
)

// Remote is the ingestion service. *client.Client satisfies it.
type Remote interface {
	TestConnection(ctx context.Context, cfg model.ConnectionConfig) (*client.ConnectionResult, error)
	ListTables(ctx context.Context, cfg model.ConnectionConfig) ([]string, error)
	FetchClickHouseSchema(ctx context.Context, cfg model.ConnectionConfig, table string) ([]model.Column, error)
	FetchFileSchema(ctx context.Context, cfg model.FileConfig, blob *model.Blob) ([]model.Column, error)
	preview.Client
	executor.Client
}

// RunReport describes a finished execution for observers.
type RunReport struct {
	Direction model.Direction
	Snapshot  store.Snapshot
	Outcome   executor.Outcome // nil on failure
	Message   string
	Err       error
	Started   time.Time
	Duration  time.Duration
}

// Session is safe for concurrent use.
type Session struct {
	store   *store.Store
	remote  Remote
	sel     *selection.Manager
	fetcher *preview.Fetcher
	exec    *executor.Executor

	// commitMu orders result writes against SetDirection so a result
	// checked as current cannot land in a freshly reset store.
	commitMu sync.Mutex

	mu        sync.Mutex
	dir       model.Direction
	epoch     uint64
	ctx       context.Context
	cancel    context.CancelFunc
	tables    []string
	result    *preview.Result
	prevState gate.PreviewState
	prevMsg   string
	status    Status
	gates     gate.Gates
	observers []func(RunReport)
}

// New returns a session with no direction chosen.
func New(remote Remote, sk sink.Sink, opts executor.Options) *Session {
	st := store.New()
	s := &Session{
		store:   st,
		remote:  remote,
		sel:     selection.New(st),
		fetcher: preview.New(remote, st),
		exec:    executor.New(remote, st, sk, opts),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	st.Subscribe(s.recompute)
	return s
}

// Store exposes the underlying store for read access.
func (s *Session) Store() *store.Store { return s.store }

// Executor exposes the executor so a UI can attach progress hooks.
func (s *Session) Executor() *executor.Executor { return s.exec }

// Observe registers fn to receive a report after every execution.
func (s *Session) Observe(fn func(RunReport)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Close cancels any in-flight call.
func (s *Session) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
}

// recompute refreshes the cached gates. It runs after every store
// mutation and must not be called with s.mu held.
func (s *Session) recompute() {
	snap := s.store.Snapshot()
	n := s.sel.Len()
	s.mu.Lock()
	s.gates = gate.Evaluate(gate.Input{
		Snapshot:        snap,
		Direction:       s.dir,
		DiscoveredCount: n,
		Preview:         s.prevState,
	})
	s.mu.Unlock()
}

// Gates returns the step visibility as of the last mutation.
func (s *Session) Gates() gate.Gates {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gates
}

// Direction returns the active direction.
func (s *Session) Direction() model.Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Status returns the last status line.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Tables returns the last fetched table list.
func (s *Session) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tables...)
}

// Columns returns the discovered columns with their flags.
func (s *Session) Columns() []model.Column { return s.sel.Columns() }

// PreviewOutcome returns the last successful preview (nil if none) and the
// message shown with it.
func (s *Session) PreviewOutcome() (*preview.Result, gate.PreviewState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.prevState, s.prevMsg
}

func (s *Session) setStatus(l Level, msg string) {
	s.mu.Lock()
	s.status = Status{Level: l, Message: msg}
	s.mu.Unlock()
}

// SetDirection makes d active. Choosing a direction, even the current
// one, cancels in-flight calls and clears every configuration entry,
// discovered column and preview.
func (s *Session) SetDirection(d model.Direction) error {
	if !d.Valid() {
		return fmt.Errorf("invalid direction %q", d)
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	s.cancel()
	s.epoch++
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.dir = d
	s.tables = nil
	s.result, s.prevState, s.prevMsg = nil, gate.PreviewNone, ""
	s.status = Status{}
	s.mu.Unlock()

	s.sel.Clear()
	s.exec.Reset()
	s.store.Reset()
	logging.Debug("Direction set to %s (%s -> %s)", d, d.SourceType(), d.TargetType())
	return nil
}

// begin captures the context and epoch a remote call runs under.
func (s *Session) begin() (context.Context, uint64, model.Direction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dir.Valid() {
		return nil, 0, model.DirectionNone, ErrNoDirection
	}
	return s.ctx, s.epoch, s.dir, nil
}

func (s *Session) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

// lockCurrent takes commitMu and reports whether epoch is still current.
// On success the caller writes its result and calls s.commitMu.Unlock.
func (s *Session) lockCurrent(epoch uint64) error {
	s.commitMu.Lock()
	if !s.current(epoch) {
		s.commitMu.Unlock()
		return ErrStale
	}
	return nil
}

// invalidateDiscovery drops discovered columns and the preview after the
// source they describe changed.
func (s *Session) invalidateDiscovery() {
	if s.sel.Len() == 0 {
		return
	}
	s.mu.Lock()
	s.result, s.prevState, s.prevMsg = nil, gate.PreviewNone, ""
	s.mu.Unlock()
	s.sel.Clear()
	s.store.Delete(store.KeySelectedColumns)
}

func (s *Session) sourceIs(kind string) bool {
	return s.Direction().SourceType() == kind
}

// SetConnection stores the ClickHouse connection.
func (s *Session) SetConnection(cfg model.ConnectionConfig) error {
	if _, _, _, err := s.begin(); err != nil {
		return err
	}
	s.store.SetConnection(cfg)
	return nil
}

// SetFileConfig stores the file settings.
func (s *Session) SetFileConfig(cfg model.FileConfig) error {
	if _, _, _, err := s.begin(); err != nil {
		return err
	}
	if s.sourceIs(model.EndpointFlatFile) {
		s.invalidateDiscovery()
	}
	s.store.SetFileConfig(cfg)
	return nil
}

// SetFileReference points the file side at a path or URL.
func (s *Session) SetFileReference(ref string) error {
	if _, _, _, err := s.begin(); err != nil {
		return err
	}
	if s.sourceIs(model.EndpointFlatFile) {
		s.invalidateDiscovery()
	}
	s.store.SetFileReference(ref)
	return nil
}

// AttachBlob uploads a local file as the file side.
func (s *Session) AttachBlob(b model.Blob) error {
	if _, _, _, err := s.begin(); err != nil {
		return err
	}
	if s.sourceIs(model.EndpointFlatFile) {
		s.invalidateDiscovery()
	}
	if snap := s.store.Snapshot(); snap.File == nil {
		s.store.SetFileConfig(model.DefaultFileConfig())
	}
	s.store.AttachBlob(b)
	logging.Debug("Attached %s (%d bytes, xxh3 %s)", b.Name, b.Size(), b.Digest)
	return nil
}

// SelectTable sets the ClickHouse source table. Picking a different table
// discards columns discovered for the previous one.
func (s *Session) SelectTable(name string) error {
	if _, _, _, err := s.begin(); err != nil {
		return err
	}
	if s.store.Snapshot().Table != name {
		s.invalidateDiscovery()
	}
	s.store.SetTable(name)
	return nil
}

// SetTargetTable sets the ClickHouse table an import writes to. A
// different target discards discovered columns and the preview.
func (s *Session) SetTargetTable(name string) error {
	if _, _, _, err := s.begin(); err != nil {
		return err
	}
	if s.store.Snapshot().TargetTable != name {
		s.invalidateDiscovery()
	}
	s.store.SetTargetTable(name)
	return nil
}

// SetJoin sets the optional join metadata for ClickHouse sources. A
// different join discards discovered columns and the preview.
func (s *Session) SetJoin(j model.JoinConfig) error {
	if _, _, _, err := s.begin(); err != nil {
		return err
	}
	var prev model.JoinConfig
	if cur := s.store.Snapshot().Join; cur != nil {
		prev = *cur
	}
	if !prev.Equal(j) {
		s.invalidateDiscovery()
	}
	s.store.SetJoin(j)
	return nil
}

func (s *Session) connection() (model.ConnectionConfig, error) {
	snap := s.store.Snapshot()
	if snap.Connection == nil {
		return model.ConnectionConfig{}, fmt.Errorf("clickhouse connection is not configured")
	}
	if err := snap.Connection.Validate(); err != nil {
		return model.ConnectionConfig{}, err
	}
	return *snap.Connection, nil
}

// TestConnection checks the stored ClickHouse connection.
func (s *Session) TestConnection() error {
	ctx, epoch, _, err := s.begin()
	if err != nil {
		return err
	}
	cfg, err := s.connection()
	if err != nil {
		s.setStatus(LevelError, err.Error())
		return err
	}

	res, err := s.remote.TestConnection(ctx, cfg)
	if err := s.lockCurrent(epoch); err != nil {
		return err
	}
	defer s.commitMu.Unlock()
	switch {
	case busy(err):
		s.setStatus(LevelWarning, MsgBusy)
		return err
	case err != nil:
		logging.Warn("Connection test for %s failed: %v", cfg, err)
		s.setStatus(LevelError, MsgConnectionFailed)
		return err
	}
	msg := res.Message
	if msg == "" {
		msg = "Connection successful."
	}
	s.setStatus(LevelSuccess, msg)
	return nil
}

// ListTables fetches the tables of the stored connection. The previous
// list is cleared before the request is sent and put back if the request
// is refused as busy.
func (s *Session) ListTables() error {
	ctx, epoch, _, err := s.begin()
	if err != nil {
		return err
	}
	cfg, err := s.connection()
	if err != nil {
		s.setStatus(LevelError, err.Error())
		return err
	}

	s.mu.Lock()
	prev := s.tables
	s.tables = nil
	s.mu.Unlock()

	tables, err := s.remote.ListTables(ctx, cfg)
	if err := s.lockCurrent(epoch); err != nil {
		return err
	}
	defer s.commitMu.Unlock()
	switch {
	case busy(err):
		s.mu.Lock()
		if s.tables == nil {
			s.tables = prev
		}
		s.status = Status{Level: LevelWarning, Message: MsgBusy}
		s.mu.Unlock()
		return err
	case err != nil:
		logging.Warn("Listing tables for %s failed: %v", cfg, err)
		s.setStatus(LevelError, MsgTablesFailed)
		return err
	}

	s.mu.Lock()
	s.tables = tables
	s.status = Status{Level: LevelSuccess, Message: MsgTablesFetched}
	s.mu.Unlock()
	return nil
}

// DiscoverSchema fetches the source columns and selects all of them.
func (s *Session) DiscoverSchema() error {
	ctx, epoch, dir, err := s.begin()
	if err != nil {
		return err
	}
	snap := s.store.Snapshot()

	var cols []model.Column
	switch dir.SourceType() {
	case model.EndpointClickHouse:
		cfg, cerr := s.connection()
		if cerr != nil {
			s.setStatus(LevelError, cerr.Error())
			return cerr
		}
		if snap.Table == "" {
			err = fmt.Errorf("select a table first")
			s.setStatus(LevelError, err.Error())
			return err
		}
		cols, err = s.remote.FetchClickHouseSchema(ctx, cfg, snap.Table)
	case model.EndpointFlatFile:
		if snap.File == nil {
			err = fmt.Errorf("flat file is not configured")
			s.setStatus(LevelError, err.Error())
			return err
		}
		cols, err = s.remote.FetchFileSchema(ctx, *snap.File, snap.Blob)
	}
	if err := s.lockCurrent(epoch); err != nil {
		return err
	}
	defer s.commitMu.Unlock()
	if err != nil {
		logging.Warn("Schema discovery failed: %v", err)
		s.setStatus(LevelError, schemaMessage(err))
		return fmt.Errorf("fetching schema: %w", err)
	}

	s.mu.Lock()
	s.result, s.prevState, s.prevMsg = nil, gate.PreviewNone, ""
	s.mu.Unlock()
	s.sel.Initialize(cols)

	if len(cols) == 0 {
		s.setStatus(LevelWarning, MsgNoColumns)
		return nil
	}
	s.setStatus(LevelSuccess, fmt.Sprintf("Fetched %d columns.", len(cols)))
	return nil
}

func (s *Session) require(step gate.Step) error {
	if !s.Gates().Allows(step) {
		return fmt.Errorf("%s: %w", step, ErrStepLocked)
	}
	return nil
}

// SelectAll includes every discovered column.
func (s *Session) SelectAll() error {
	if err := s.require(gate.StepColumns); err != nil {
		return err
	}
	s.sel.SelectAll()
	return nil
}

// DeselectAll excludes every discovered column.
func (s *Session) DeselectAll() error {
	if err := s.require(gate.StepColumns); err != nil {
		return err
	}
	s.sel.DeselectAll()
	return nil
}

// Toggle flips the column at index.
func (s *Session) Toggle(index int) error {
	if err := s.require(gate.StepColumns); err != nil {
		return err
	}
	return s.sel.Toggle(index)
}

// SetColumn sets the flag of the named column.
func (s *Session) SetColumn(name string, selected bool) error {
	if err := s.require(gate.StepColumns); err != nil {
		return err
	}
	return s.sel.Set(name, selected)
}

// Preview fetches sample rows for the current selection. An empty result
// counts as a completed preview; an error does not.
func (s *Session) Preview() error {
	if err := s.require(gate.StepPreview); err != nil {
		return err
	}
	ctx, epoch, dir, err := s.begin()
	if err != nil {
		return err
	}

	res, err := s.fetcher.Fetch(ctx, dir)
	if err := s.lockCurrent(epoch); err != nil {
		return err
	}
	defer s.commitMu.Unlock()

	s.mu.Lock()
	switch {
	case errors.Is(err, preview.ErrNoColumns):
		s.result, s.prevState, s.prevMsg = nil, gate.PreviewNone, ""
		s.status = Status{Level: LevelWarning, Message: MsgSelectColumns}
	case err != nil:
		msg := preview.ErrorMessage(err)
		s.result, s.prevState, s.prevMsg = nil, gate.PreviewFailed, msg
		s.status = Status{Level: LevelError, Message: msg}
	case res.Empty():
		s.result, s.prevState, s.prevMsg = res, gate.PreviewEmpty, preview.MsgEmpty
		s.status = Status{Level: LevelInfo, Message: preview.MsgEmpty}
	default:
		s.result, s.prevState, s.prevMsg = res, gate.PreviewRows, res.Caption()
		s.status = Status{Level: LevelSuccess, Message: res.Caption()}
	}
	s.mu.Unlock()
	s.recompute()

	if err != nil {
		logging.Warn("Preview failed: %v", err)
	}
	return err
}

// Execute runs the transfer with the store as it is now. It blocks until
// the service responds.
func (s *Session) Execute() (executor.Outcome, error) {
	if err := s.require(gate.StepExecute); err != nil {
		return nil, err
	}
	ctx, epoch, dir, err := s.begin()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	snap := s.store.Snapshot()
	out, err := s.exec.Run(ctx, dir)
	if errors.Is(err, executor.ErrRunning) {
		s.setStatus(LevelWarning, "Ingestion is already running.")
		return nil, err
	}
	if lerr := s.lockCurrent(epoch); lerr != nil {
		s.exec.Reset()
		return nil, lerr
	}
	st := s.exec.Status()
	if err != nil {
		s.setStatus(LevelError, st.Message)
	} else {
		s.setStatus(LevelSuccess, st.Message)
	}
	s.commitMu.Unlock()

	report := RunReport{
		Direction: dir,
		Snapshot:  snap,
		Outcome:   out,
		Message:   st.Message,
		Err:       err,
		Started:   started,
		Duration:  time.Since(started),
	}
	s.mu.Lock()
	observers := append([]func(RunReport){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(report)
	}
	return out, err
}
