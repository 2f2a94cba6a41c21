// Package preview fetches a bounded sample of rows for the current source
// and selection.
package preview

import (
	"context"
	"errors"
	"fmt"

	"github.com/johndauphine/chfile/internal/client"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/store"
)

// MaxDisplayRows caps how many rows are shown, whatever the server returns.
const MaxDisplayRows = 100

// User-facing messages.
const (
	MsgEmpty  = "No data available for preview."
	MsgFailed = "Failed to fetch preview data."
)

var (
	// ErrNoSource is returned when no direction is active.
	ErrNoSource = errors.New("no source selected")
	// ErrNoColumns is returned when no column is included.
	ErrNoColumns = errors.New("no columns selected")
)

// Client is the subset of the remote client the fetcher uses.
type Client interface {
	PreviewClickHouse(ctx context.Context, req client.IngestionRequest) ([]client.Row, error)
	PreviewFile(ctx context.Context, req client.IngestionRequest, blob *model.Blob) ([]client.Row, error)
}

// Snapshotter yields the store contents at call time. *store.Store
// satisfies it.
type Snapshotter interface {
	Snapshot() store.Snapshot
}

// Result is a successful preview.
type Result struct {
	Columns []string // included column names, in discovery order
	Rows    []client.Row
	Total   int // rows the server returned
}

// Shown returns how many rows are displayed.
func (r *Result) Shown() int { return len(r.Rows) }

// Empty reports the distinct "no rows" outcome.
func (r *Result) Empty() bool { return r.Total == 0 }

// Caption describes the displayed and total counts.
func (r *Result) Caption() string {
	if r.Empty() {
		return MsgEmpty
	}
	return fmt.Sprintf("Showing %d of %d rows", r.Shown(), r.Total)
}

// Fetcher builds preview requests from the store.
type Fetcher struct {
	client Client
	store  Snapshotter
}

// New returns a fetcher.
func New(c Client, s Snapshotter) *Fetcher {
	return &Fetcher{client: c, store: s}
}

// Fetch snapshots the store and asks the service for sample rows from the
// source side of dir.
func (f *Fetcher) Fetch(ctx context.Context, dir model.Direction) (*Result, error) {
	snap := f.store.Snapshot()
	selected := snap.Selected()
	if len(selected) == 0 {
		return nil, ErrNoColumns
	}

	req := client.IngestionRequest{SelectedColumns: selected}
	var (
		rows []client.Row
		err  error
	)
	switch dir.SourceType() {
	case model.EndpointClickHouse:
		if snap.Connection == nil {
			return nil, fmt.Errorf("clickhouse connection is not configured")
		}
		req.ClickHouseConfig = snap.Connection
		req.TableName = snap.Table
		if snap.Join != nil && snap.Join.Enabled() {
			req.AdditionalTables = snap.Join.AdditionalTables
			req.JoinCondition = snap.Join.Condition
		}
		logging.Debug("Previewing %s table %s (%d columns)", snap.Connection, snap.Table, len(selected))
		rows, err = f.client.PreviewClickHouse(ctx, req)
	case model.EndpointFlatFile:
		if snap.File == nil {
			return nil, fmt.Errorf("flat file is not configured")
		}
		req.FlatFileConfig = snap.File
		logging.Debug("Previewing flat file %s (%d columns)", fileLabel(snap), len(selected))
		rows, err = f.client.PreviewFile(ctx, req, snap.Blob)
	default:
		return nil, ErrNoSource
	}
	if err != nil {
		return nil, fmt.Errorf("fetching preview: %w", err)
	}

	res := &Result{Total: len(rows)}
	for _, c := range selected {
		res.Columns = append(res.Columns, c.Name)
	}
	if len(rows) > MaxDisplayRows {
		rows = rows[:MaxDisplayRows]
	}
	res.Rows = rows
	return res, nil
}

// ErrorMessage returns the text shown for a failed preview: the server's
// message when it sent a usable one, a fixed fallback otherwise.
func ErrorMessage(err error) string {
	if msg := client.ServerMessage(err); msg != "" {
		return msg
	}
	return MsgFailed
}

func fileLabel(snap store.Snapshot) string {
	if snap.Blob != nil {
		return fmt.Sprintf("upload %s (%d bytes, xxh3 %s)", snap.Blob.Name, snap.Blob.Size(), snap.Blob.Digest)
	}
	if snap.File != nil {
		return snap.File.FileName
	}
	return ""
}
