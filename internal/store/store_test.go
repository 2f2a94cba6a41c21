package store

import (
	"testing"

	"github.com/johndauphine/chfile/internal/model"
)

func TestSetGetTypedKeys(t *testing.T) {
	s := New()

	conn := model.DefaultConnection()
	conn.Host = "ch.local"
	if err := s.Set(KeyClickHouseConfig, conn); err != nil {
		t.Fatalf("Set(clickHouseConfig) error: %v", err)
	}
	got, ok := s.Get(KeyClickHouseConfig)
	if !ok {
		t.Fatal("clickHouseConfig missing after Set")
	}
	if got.(model.ConnectionConfig).Host != "ch.local" {
		t.Errorf("host = %q", got.(model.ConnectionConfig).Host)
	}

	if err := s.Set(KeyTableName, "orders"); err != nil {
		t.Fatalf("Set(tableName) error: %v", err)
	}
	if v, _ := s.Get(KeyTableName); v != "orders" {
		t.Errorf("tableName = %v", v)
	}
}

func TestSetAcceptsJSON(t *testing.T) {
	s := New()

	if err := s.Set(KeyFlatFileConfig, `{"fileName":"/data/a.csv","delimiter":";","hasHeader":true,"encoding":"UTF-8"}`); err != nil {
		t.Fatalf("Set JSON string: %v", err)
	}
	if err := s.Set(KeySelectedColumns, []byte(`[{"name":"id","selected":true},{"name":"x","selected":false}]`)); err != nil {
		t.Fatalf("Set JSON bytes: %v", err)
	}

	snap := s.Snapshot()
	if snap.File == nil || snap.File.Delimiter != ";" {
		t.Fatalf("file config not decoded: %+v", snap.File)
	}
	if len(snap.SelectedColumns) != 2 || len(snap.Selected()) != 1 {
		t.Errorf("selected columns = %+v", snap.SelectedColumns)
	}
}

func TestSetRejectsWrongType(t *testing.T) {
	s := New()
	tests := []struct {
		key   Key
		value any
	}{
		{KeyTableName, 42},
		{KeyFile, "not a blob"},
		{KeyClickHouseConfig, 3.14},
		{KeyFlatFileConfig, "{not json"},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			if err := s.Set(tt.key, tt.value); err == nil {
				t.Errorf("Set(%s, %v) expected error", tt.key, tt.value)
			}
			if _, ok := s.Get(tt.key); ok {
				t.Errorf("%s present after rejected Set", tt.key)
			}
		})
	}
}

func TestLastWriteWins(t *testing.T) {
	s := New()
	s.Set("custom", 1)
	s.Set("custom", "two")
	if v, _ := s.Get("custom"); v != "two" {
		t.Errorf("custom = %v, want two", v)
	}
}

func TestBlobAndReferenceAreExclusive(t *testing.T) {
	s := New()
	s.SetFileReference("/data/in.csv")
	s.AttachBlob(model.Blob{Name: "up.csv", Data: []byte("a,b\n")})

	snap := s.Snapshot()
	if snap.Blob == nil {
		t.Fatal("blob missing")
	}
	if snap.File == nil || snap.File.FileName != "" {
		t.Errorf("file reference not cleared by blob: %+v", snap.File)
	}

	s.SetFileReference("https://host/in.csv")
	snap = s.Snapshot()
	if snap.Blob != nil {
		t.Error("blob not cleared by reference")
	}
	if snap.File.FileName != "https://host/in.csv" {
		t.Errorf("fileName = %q", snap.File.FileName)
	}
	if snap.File.Delimiter != "," {
		t.Errorf("defaults not applied, delimiter = %q", snap.File.Delimiter)
	}
}

func TestBlobAndJSONCoexist(t *testing.T) {
	s := New()
	s.SetFileConfig(model.DefaultFileConfig())
	if err := s.Set(KeyFile, model.Blob{Name: "x.csv", Data: []byte{0, 1, 2}}); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if snap.File == nil || snap.Blob == nil {
		t.Fatalf("expected both entries, got file=%v blob=%v", snap.File, snap.Blob)
	}
}

func TestDelete(t *testing.T) {
	s := New()
	s.SetConnection(model.DefaultConnection())
	s.SetSelectedColumns([]model.Column{{Name: "a", Selected: true}})
	s.Set("extra", true)

	for _, k := range []Key{KeyClickHouseConfig, KeySelectedColumns, "extra", "never-set"} {
		s.Delete(k)
		if _, ok := s.Get(k); ok {
			t.Errorf("%s still present after Delete", k)
		}
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := New()
	s.SetSelectedColumns([]model.Column{{Name: "a", Selected: true}})
	s.SetJoin(model.JoinConfig{AdditionalTables: []string{"t2"}, Condition: "t1.id = t2.id"})

	snap := s.Snapshot()
	snap.SelectedColumns[0].Selected = false
	snap.Join.AdditionalTables[0] = "mutated"

	again := s.Snapshot()
	if !again.SelectedColumns[0].Selected {
		t.Error("snapshot mutation leaked into store columns")
	}
	if again.Join.AdditionalTables[0] != "t2" {
		t.Error("snapshot mutation leaked into store join")
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := New()
	s.SetConnection(model.DefaultConnection())
	s.SetFileConfig(model.DefaultFileConfig())
	s.AttachBlob(model.Blob{Name: "b"})
	s.SetTable("t")
	s.SetTargetTable("tt")
	s.SetSelectedColumns([]model.Column{{Name: "a"}})
	s.SetJoin(model.JoinConfig{})
	s.Set("custom", 1)

	s.Reset()

	snap := s.Snapshot()
	for _, k := range []Key{KeyClickHouseConfig, KeyFlatFileConfig, KeyFile, KeyTableName, KeyTargetTableName, KeySelectedColumns, KeyJoin, "custom"} {
		if snap.Has(k) {
			t.Errorf("%s present after Reset", k)
		}
	}
}

func TestSubscribersRunAfterEachMutation(t *testing.T) {
	s := New()
	calls := 0
	var seen Snapshot
	unsubscribe := s.Subscribe(func() {
		calls++
		seen = s.Snapshot()
	})

	s.SetTable("orders")
	if calls != 1 || seen.Table != "orders" {
		t.Fatalf("calls=%d table=%q, want 1 and orders", calls, seen.Table)
	}

	if err := s.Set(KeyTableName, 7); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("subscriber ran for a rejected write")
	}

	unsubscribe()
	s.SetTable("other")
	if calls != 1 {
		t.Errorf("subscriber ran after unsubscribe")
	}
}

func TestEndpointConfigured(t *testing.T) {
	s := New()
	s.SetFileConfig(model.DefaultFileConfig())
	snap := s.Snapshot()
	if !snap.EndpointConfigured(model.EndpointFlatFile) {
		t.Error("flat file should be configured")
	}
	if snap.EndpointConfigured(model.EndpointClickHouse) {
		t.Error("clickhouse should not be configured")
	}
}
