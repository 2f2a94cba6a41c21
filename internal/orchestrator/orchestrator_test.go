package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/johndauphine/chfile/internal/client"
	"github.com/johndauphine/chfile/internal/config"
	"github.com/johndauphine/chfile/internal/executor"
	"github.com/johndauphine/chfile/internal/history"
	"github.com/johndauphine/chfile/internal/notify"
)

// fakeService mimics the ingestion service endpoints.
type fakeService struct {
	mu          sync.Mutex
	tables      []string
	columns     []string
	rows        int
	failExecute bool
	executed    []client.IngestionRequest
	uploads     []string
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	columns := func() map[string]any {
		cols := make([]map[string]string, 0, len(f.columns))
		for _, c := range f.columns {
			cols = append(cols, map[string]string{"name": c, "type": "String"})
		}
		return map[string]any{"columns": cols}
	}
	rows := func(req client.IngestionRequest) map[string]any {
		data := make([]map[string]any, 0, f.rows)
		for i := 0; i < f.rows; i++ {
			row := map[string]any{}
			for _, c := range req.SelectedColumns {
				row[c.Name] = fmt.Sprintf("%s-%d", c.Name, i)
			}
			data = append(data, row)
		}
		return map[string]any{"data": data}
	}
	ingestion := func(r *http.Request) client.IngestionRequest {
		var req client.IngestionRequest
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return req
		}
		part, _, err := r.FormFile("ingestionRequest")
		if err != nil {
			t.Errorf("missing ingestionRequest part: %v", err)
			return req
		}
		defer part.Close()
		json.NewDecoder(part).Decode(&req)
		if file, hdr, err := r.FormFile("file"); err == nil {
			file.Close()
			f.mu.Lock()
			f.uploads = append(f.uploads, hdr.Filename)
			f.mu.Unlock()
		}
		return req
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "OK")
	})
	mux.HandleFunc("/api/integration/clickhouse/test-connection", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"message": "Connection successful"})
	})
	mux.HandleFunc("/api/integration/clickhouse/tables", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"tables": f.tables})
	})
	mux.HandleFunc("/api/integration/clickhouse/schema", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, columns())
	})
	mux.HandleFunc("/api/integration/flatfile/schema", func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		writeJSON(w, columns())
	})
	mux.HandleFunc("/api/integration/clickhouse/preview", func(w http.ResponseWriter, r *http.Request) {
		var req client.IngestionRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, rows(req))
	})
	mux.HandleFunc("/api/integration/flatfile/preview", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rows(ingestion(r)))
	})
	mux.HandleFunc("/api/integration/execute", func(w http.ResponseWriter, r *http.Request) {
		req := ingestion(r)
		f.mu.Lock()
		f.executed = append(f.executed, req)
		fail := f.failExecute
		f.mu.Unlock()
		if fail {
			http.Error(w, "table is locked", http.StatusInternalServerError)
			return
		}
		if req.SourceType == "clickhouse" {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set(client.RecordCountHeader, "3")
			io.WriteString(w, "id,name\n1,a\n2,b\n3,c\n")
			return
		}
		writeJSON(w, map[string]int{"count": 2})
	})
	return mux
}

type harness struct {
	svc     *fakeService
	server  *httptest.Server
	cfg     *config.Config
	state   *history.State
	slack   chan notify.SlackMessage
	orch    *Orchestrator
	outDir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		svc: &fakeService{
			tables:  []string{"orders", "customers"},
			columns: []string{"id", "name", "note"},
			rows:    3,
		},
		slack:  make(chan notify.SlackMessage, 4),
		outDir: t.TempDir(),
	}
	h.server = httptest.NewServer(h.svc.handler(t))
	t.Cleanup(h.server.Close)

	slackServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg notify.SlackMessage
		json.NewDecoder(r.Body).Decode(&msg)
		h.slack <- msg
	}))
	t.Cleanup(slackServer.Close)

	cfg := config.Default()
	cfg.Server.BaseURL = h.server.URL + "/api/integration"
	cfg.ClickHouse.Host = "ch.local"
	cfg.Output.Dir = h.outDir
	cfg.Execution.ProgressInterval = time.Millisecond
	cfg.Notifications.Slack.WebhookURL = slackServer.URL
	h.cfg = cfg

	state, err := history.New(t.TempDir())
	if err != nil {
		t.Fatalf("history.New: %v", err)
	}
	t.Cleanup(func() { state.Close() })
	h.state = state

	orch, err := New(cfg, client.New(cfg.Server.BaseURL), state, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(orch.Close)
	h.orch = orch
	return h
}

func (h *harness) job(t *testing.T, doc string) *config.Job {
	t.Helper()
	job, err := config.ParseJob([]byte(doc), h.cfg)
	if err != nil {
		t.Fatalf("ParseJob: %v", err)
	}
	return job
}

type recorder struct {
	mu     sync.Mutex
	values []int
}

func (r *recorder) Update(percent int, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if visible {
		r.values = append(r.values, percent)
	}
}

func TestRunExport(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, "direction: export\ntable: orders\ncolumns: [id, name]\n")

	prog := &recorder{}
	res, err := h.orch.Run(context.Background(), job, prog)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	exp, ok := res.Outcome.(*executor.ExportOutcome)
	if !ok {
		t.Fatalf("outcome = %T, want *ExportOutcome", res.Outcome)
	}
	if exp.Count != 3 {
		t.Errorf("Count = %d, want 3", exp.Count)
	}
	data, err := os.ReadFile(filepath.Join(h.outDir, "orders.csv"))
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if !strings.HasPrefix(string(data), "id,name\n") {
		t.Errorf("export = %q", data)
	}
	if res.Message != "Ingestion completed. Total records processed: 3" {
		t.Errorf("Message = %q", res.Message)
	}
	if res.Preview == nil || res.Preview.Shown() != 3 {
		t.Errorf("preview = %+v, want 3 rows", res.Preview)
	}

	h.svc.mu.Lock()
	sent := h.svc.executed[0]
	h.svc.mu.Unlock()
	if len(sent.SelectedColumns) != 2 || sent.SelectedColumns[1].Name != "name" {
		t.Errorf("selected columns sent = %+v", sent.SelectedColumns)
	}

	prog.mu.Lock()
	last := prog.values[len(prog.values)-1]
	prog.mu.Unlock()
	if last != 100 {
		t.Errorf("last progress = %d, want 100", last)
	}

	run, err := h.state.GetRunByID(res.RunID)
	if err != nil {
		t.Fatalf("GetRunByID(%q): %v", res.RunID, err)
	}
	if run.Status != history.StatusSuccess || run.Records != 3 || run.Source != "orders" {
		t.Errorf("recorded run = %+v", run)
	}

	select {
	case msg := <-h.slack:
		if msg.Attachments[0].Title != "Ingestion Completed" {
			t.Errorf("slack title = %q", msg.Attachments[0].Title)
		}
	case <-time.After(time.Second):
		t.Error("no slack notification sent")
	}
}

func TestRunImportUpload(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(path, []byte("id,name,note\n1,a,x\n2,b,y\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	job := h.job(t, fmt.Sprintf("direction: import\nupload: %s\ntarget_table: people\n", path))

	res, err := h.orch.Run(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome.Records() != 2 {
		t.Errorf("Records = %d, want 2", res.Outcome.Records())
	}

	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	if len(h.svc.uploads) == 0 || h.svc.uploads[len(h.svc.uploads)-1] != "people.csv" {
		t.Errorf("uploads = %v", h.svc.uploads)
	}
	sent := h.svc.executed[0]
	if sent.TargetTableName != "people" || len(sent.SelectedColumns) != 3 {
		t.Errorf("request = %+v", sent)
	}
}

func TestRunFailureRecorded(t *testing.T) {
	h := newHarness(t)
	h.svc.failExecute = true
	job := h.job(t, "direction: export\ntable: orders\n")

	res, err := h.orch.Run(context.Background(), job, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "table is locked") {
		t.Errorf("error = %v, want server message", err)
	}
	if res == nil || res.Outcome != nil {
		t.Fatalf("result = %+v", res)
	}

	runs, err := h.state.GetAllRuns(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != history.StatusFailed || runs[0].Message != "table is locked" {
		t.Errorf("runs = %+v", runs)
	}

	select {
	case msg := <-h.slack:
		if msg.Attachments[0].Title != "Ingestion Failed" {
			t.Errorf("slack title = %q", msg.Attachments[0].Title)
		}
	case <-time.After(time.Second):
		t.Error("no slack notification sent")
	}
}

func TestRunUnknownColumn(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, "direction: export\ntable: orders\ncolumns: [id, missing]\n")

	if _, err := h.orch.Run(context.Background(), job, nil); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("error = %v, want unknown column error", err)
	}
	if len(h.svc.executed) != 0 {
		t.Error("execute must not be called")
	}
}

func TestRunNoColumns(t *testing.T) {
	h := newHarness(t)
	h.svc.columns = nil
	job := h.job(t, "direction: export\ntable: orders\n")

	_, err := h.orch.Run(context.Background(), job, nil)
	if err == nil || !strings.Contains(err.Error(), "No columns found.") {
		t.Errorf("error = %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, "direction: export\ntable: orders\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.orch.Run(ctx, job, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDryRun(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, "direction: export\ntable: orders\n")

	res, err := h.orch.DryRun(context.Background(), job)
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if res.Source != "orders" || res.Selected != 3 || res.PreviewRows != 3 {
		t.Errorf("result = %+v", res)
	}
	if res.PreviewNote != "Showing 3 of 3 rows" {
		t.Errorf("PreviewNote = %q", res.PreviewNote)
	}
	if len(h.svc.executed) != 0 {
		t.Error("dry run must not execute")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantFailed bool
		wantWarn   bool
	}{
		{name: "export ok", doc: "direction: export\ntable: orders\ncolumns: [id]\n"},
		{name: "unknown table", doc: "direction: export\ntable: nope\n", wantFailed: true},
		{name: "unknown column", doc: "direction: export\ntable: orders\ncolumns: [zzz]\n", wantFailed: true},
		{name: "join table missing", doc: "direction: export\ntable: orders\njoin:\n  additional_tables: [ghost]\n  condition: a.id = b.id\n", wantFailed: true},
		{name: "new import target warns", doc: "direction: import\nfile:\n  file_name: /data/in.csv\n  delimiter: \",\"\ntarget_table: fresh\n", wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			report, err := h.orch.Validate(context.Background(), h.job(t, tt.doc))
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if report.Failed() != tt.wantFailed {
				t.Errorf("Failed() = %v, want %v (%+v)", report.Failed(), tt.wantFailed, report.Checks)
			}
			warned := false
			for _, c := range report.Checks {
				warned = warned || c.Warning
			}
			if warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v", warned, tt.wantWarn)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t)
	res := h.orch.HealthCheck(context.Background(), h.cfg.Server.BaseURL)
	if !res.Healthy {
		t.Fatalf("result = %+v, want healthy", res)
	}
	if res.ServiceStatus != "OK" || res.ClickHouseTables != 2 {
		t.Errorf("result = %+v", res)
	}

	h.cfg.ClickHouse.Host = ""
	res = h.orch.HealthCheck(context.Background(), h.cfg.Server.BaseURL)
	if res.Healthy || res.ClickHouseError == "" {
		t.Errorf("result = %+v, want clickhouse error", res)
	}
}

func TestNotifierFor(t *testing.T) {
	cfg := config.Default()
	if NotifierFor(cfg).IsEnabled() {
		t.Error("notifier without webhook must be disabled")
	}
	cfg.Notifications.Slack.WebhookURL = "https://hooks.slack.com/x"
	if !NotifierFor(cfg).IsEnabled() {
		t.Error("notifier with webhook must be enabled")
	}
	cfg.Notifications.Slack.OnSuccess = false
	cfg.Notifications.Slack.OnFailure = false
	if NotifierFor(cfg).IsEnabled() {
		t.Error("notifier with both events off must be disabled")
	}
}
