package history

import (
	"errors"
	"testing"
	"time"

	"github.com/johndauphine/chfile/internal/executor"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/session"
	"github.com/johndauphine/chfile/internal/store"
)

func openState(t *testing.T) *State {
	t.Helper()
	state, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { state.Close() })
	return state
}

func TestRecordAndListRuns(t *testing.T) {
	state := openState(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	runs := []Run{
		{ID: "a", Direction: model.DirectionExport, Source: "orders", Target: "orders.csv", Status: StatusSuccess, Records: 1200, StartedAt: base, CompletedAt: base.Add(3 * time.Second)},
		{ID: "b", Direction: model.DirectionImport, Source: "people.csv", Target: "people", Status: StatusFailed, Message: "Ingestion failed.", StartedAt: base.Add(time.Minute), CompletedAt: base.Add(time.Minute + time.Second)},
		{ID: "c", Direction: model.DirectionImport, Source: "x.csv", Target: "x", Status: StatusSuccess, Records: 340, StartedAt: base.Add(2 * time.Minute), CompletedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range runs {
		if err := state.RecordRun(r); err != nil {
			t.Fatalf("RecordRun(%s) error: %v", r.ID, err)
		}
	}

	all, err := state.GetAllRuns(0)
	if err != nil {
		t.Fatalf("GetAllRuns() error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(all))
	}
	if all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("order = %s,%s,%s, want newest first", all[0].ID, all[1].ID, all[2].ID)
	}

	limited, err := state.GetAllRuns(2)
	if err != nil {
		t.Fatalf("GetAllRuns(2) error: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}

	got, err := state.GetRunByID("a")
	if err != nil {
		t.Fatalf("GetRunByID() error: %v", err)
	}
	if got.Records != 1200 || got.Direction != model.DirectionExport || got.Target != "orders.csv" {
		t.Errorf("run a = %+v", got)
	}
	if got.Duration() != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", got.Duration())
	}
	if !got.StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, base)
	}
}

func TestRecordRunGeneratesID(t *testing.T) {
	state := openState(t)
	if err := state.RecordRun(Run{Direction: model.DirectionExport, Status: StatusSuccess}); err != nil {
		t.Fatalf("RecordRun() error: %v", err)
	}
	runs, err := state.GetAllRuns(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID == "" {
		t.Fatalf("runs = %+v, want one run with an id", runs)
	}
}

func TestGetRunByIDNotFound(t *testing.T) {
	state := openState(t)
	if _, err := state.GetRunByID("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteUnknownProfile(t *testing.T) {
	state := openState(t)
	if err := state.DeleteProfile("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFromReport(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		report     session.RunReport
		wantStatus string
		wantSource string
		wantTarget string
		wantCount  int64
	}{
		{
			name: "export success uses saved location",
			report: session.RunReport{
				Direction: model.DirectionExport,
				Snapshot:  store.Snapshot{Table: "orders"},
				Outcome:   &executor.ExportOutcome{SavedTo: "/out/orders.csv", Count: 1200},
				Started:   started,
				Duration:  2 * time.Second,
			},
			wantStatus: StatusSuccess, wantSource: "orders", wantTarget: "/out/orders.csv", wantCount: 1200,
		},
		{
			name: "import success",
			report: session.RunReport{
				Direction: model.DirectionImport,
				Snapshot:  store.Snapshot{Blob: &model.Blob{Name: "people.csv"}, TargetTable: "people"},
				Outcome:   &executor.ImportOutcome{Table: "people", Count: 340},
				Started:   started,
			},
			wantStatus: StatusSuccess, wantSource: "people.csv", wantTarget: "people", wantCount: 340,
		},
		{
			name: "failure keeps message",
			report: session.RunReport{
				Direction: model.DirectionImport,
				Snapshot:  store.Snapshot{File: &model.FileConfig{FileName: "/data/in.csv"}, TargetTable: "in"},
				Message:   "Ingestion failed.",
				Err:       errors.New("boom"),
				Started:   started,
			},
			wantStatus: StatusFailed, wantSource: "/data/in.csv", wantTarget: "in",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := FromReport("id-1", tt.report)
			if run.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", run.Status, tt.wantStatus)
			}
			if run.Source != tt.wantSource || run.Target != tt.wantTarget {
				t.Errorf("Source/Target = %q/%q, want %q/%q", run.Source, run.Target, tt.wantSource, tt.wantTarget)
			}
			if run.Records != tt.wantCount {
				t.Errorf("Records = %d, want %d", run.Records, tt.wantCount)
			}
			if run.Message != tt.report.Message {
				t.Errorf("Message = %q", run.Message)
			}
			if run.Duration() != tt.report.Duration {
				t.Errorf("Duration = %v, want %v", run.Duration(), tt.report.Duration)
			}
		})
	}
}
