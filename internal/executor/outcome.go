package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/johndauphine/chfile/internal/client"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/store"
	"github.com/johndauphine/chfile/internal/util"
)

// Outcome is the result of a successful run: an *ExportOutcome or an
// *ImportOutcome.
type Outcome interface {
	Records() int64
	Direction() model.Direction
}

// ExportOutcome is a ClickHouse to file transfer. The payload has been
// handed to the sink.
type ExportOutcome struct {
	Payload        []byte
	Filename       string // local name derived from the source table
	ServerFilename string // from Content-Disposition, informational
	SavedTo        string // location returned by the sink
	Count          int64
}

func (o *ExportOutcome) Records() int64             { return o.Count }
func (o *ExportOutcome) Direction() model.Direction { return model.DirectionExport }

// ImportOutcome is a file to ClickHouse transfer.
type ImportOutcome struct {
	Table string
	Count int64
}

func (o *ImportOutcome) Records() int64             { return o.Count }
func (o *ImportOutcome) Direction() model.Direction { return model.DirectionImport }

// decoder turns a successful response into an outcome for one direction.
type decoder func(ctx context.Context, e *Executor, snap store.Snapshot, resp *client.ExecuteResponse) (Outcome, error)

var decoders = map[model.Direction]decoder{
	model.DirectionExport: decodeExport,
	model.DirectionImport: decodeImport,
}

// saveError marks a failure to persist an export the service produced.
type saveError struct{ err error }

func (e *saveError) Error() string { return "saving export: " + e.err.Error() }
func (e *saveError) Unwrap() error { return e.err }

func decodeExport(ctx context.Context, e *Executor, snap store.Snapshot, resp *client.ExecuteResponse) (Outcome, error) {
	out := &ExportOutcome{
		Payload:        resp.Body,
		Filename:       util.ExportFileName(snap.Table),
		ServerFilename: resp.Filename,
		Count:          parseRecordCount(resp.RecordCount),
	}
	if e.sink != nil {
		loc, err := e.sink.Save(ctx, out.Filename, resp.Body)
		if err != nil {
			return nil, &saveError{err}
		}
		out.SavedTo = loc
	}
	return out, nil
}

// parseRecordCount reads the record count header. A missing or garbled
// header counts as zero rather than failing a transfer that succeeded.
func parseRecordCount(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		logging.Warn("Export response has no %s header", client.RecordCountHeader)
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		logging.Warn("Ignoring invalid %s header %q", client.RecordCountHeader, v)
		return 0
	}
	return n
}

func decodeImport(_ context.Context, _ *Executor, snap store.Snapshot, resp *client.ExecuteResponse) (Outcome, error) {
	n, err := parseImportCount(resp.Body)
	if err != nil {
		return nil, &client.Error{Kind: client.KindExecution, StatusCode: resp.StatusCode, Err: err}
	}
	return &ImportOutcome{Table: snap.TargetTable, Count: n}, nil
}

// parseImportCount accepts {"count": N} or a bare JSON number. Negative
// counts are rejected.
func parseImportCount(body []byte) (int64, error) {
	n, err := decodeImportCount(body)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("import response has negative count %d", n)
	}
	return n, nil
}

func decodeImportCount(body []byte) (int64, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return 0, fmt.Errorf("empty import response")
	}
	if body[0] == '{' {
		var doc struct {
			Count *json.Number `json:"count"`
		}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return 0, fmt.Errorf("decoding import response: %w", err)
		}
		if doc.Count == nil {
			return 0, fmt.Errorf("import response has no count")
		}
		return doc.Count.Int64()
	}
	n, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected import response %q", util.Truncate(string(body), 80))
	}
	return n, nil
}
