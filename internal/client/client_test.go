package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/johndauphine/chfile/internal/model"
)

func testConn() model.ConnectionConfig {
	c := model.DefaultConnection()
	c.Host = "ch.local"
	c.JWTToken = "tok"
	return c
}

func readFormPart(t *testing.T, r *http.Request, name string) []byte {
	t.Helper()
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		t.Errorf("ParseMultipartForm: %v", err)
		return nil
	}
	f, _, err := r.FormFile(name)
	if err != nil {
		return nil
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	return data
}

func TestTestConnection(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var got model.ConnectionConfig
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/integration/clickhouse/test-connection" {
				t.Errorf("path = %s", r.URL.Path)
			}
			if r.Header.Get(RequestIDHeader) == "" {
				t.Error("missing request id header")
			}
			json.NewDecoder(r.Body).Decode(&got)
			w.Write([]byte(`{"Success":true,"message":"Connection Successful"}`))
		}))
		defer server.Close()

		c := New(server.URL + "/api/integration/")
		res, err := c.TestConnection(context.Background(), testConn())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Message != "Connection Successful" {
			t.Errorf("message = %q", res.Message)
		}
		if got.Host != "ch.local" || got.JWTToken != "tok" || got.Port != 8123 {
			t.Errorf("request body = %+v", got)
		}
	})

	t.Run("server rejects", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"success":false,"message":"Connection failed: auth"}`))
		}))
		defer server.Close()

		_, err := New(server.URL).TestConnection(context.Background(), testConn())
		if !errors.Is(err, ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}
		var e *Error
		if !errors.As(err, &e) || e.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected *Error with status 400, got %#v", err)
		}
		if ServerMessage(err) != "Connection failed: auth" {
			t.Errorf("ServerMessage = %q", ServerMessage(err))
		}
	})
}

func TestDiscoveryIsMutuallyExclusive(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer server.Close()

	c := New(server.URL)
	done := make(chan error, 1)
	go func() {
		_, err := c.TestConnection(context.Background(), testConn())
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("test connection never reached the server")
	}

	if !c.Discovering() {
		t.Error("Discovering() = false while a test is in flight")
	}
	if _, err := c.ListTables(context.Background(), testConn()); !errors.Is(err, ErrBusy) {
		t.Errorf("ListTables during test = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if c.Discovering() {
		t.Error("Discovering() still true after completion")
	}
}

func TestListTables(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"tables":["events","users"]}`))
	}))
	defer server.Close()

	tables, err := New(server.URL).ListTables(context.Background(), testConn())
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 2 || tables[0] != "events" {
		t.Errorf("tables = %v", tables)
	}
}

func TestFetchClickHouseSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("tableName"); got != "my table" {
			t.Errorf("tableName = %q", got)
		}
		w.Write([]byte(`{"columns":[{"name":"id","type":"UInt64"},{"name":""},{"name":"ts","type":"DateTime"}]}`))
	}))
	defer server.Close()

	cols, err := New(server.URL).FetchClickHouseSchema(context.Background(), testConn(), "my table")
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 2 {
		t.Fatalf("got %d columns, want 2 (blank names dropped)", len(cols))
	}
	if cols[1].Name != "ts" || cols[1].Position != 1 || cols[1].Type != "DateTime" {
		t.Errorf("second column = %+v", cols[1])
	}
	if cols[0].Selected {
		t.Error("client must not set inclusion flags")
	}
}

func TestFetchClickHouseSchemaRequiresTable(t *testing.T) {
	_, err := New("http://127.0.0.1:1").FetchClickHouseSchema(context.Background(), testConn(), " ")
	if !errors.Is(err, ErrSchemaFetch) {
		t.Errorf("expected ErrSchemaFetch, got %v", err)
	}
}

func TestFetchFileSchema(t *testing.T) {
	t.Run("with upload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cfg model.FileConfig
			if err := json.Unmarshal(readFormPart(t, r, "flatFileConfig"), &cfg); err != nil {
				t.Errorf("flatFileConfig part: %v", err)
			}
			if cfg.Delimiter != "|" {
				t.Errorf("delimiter = %q", cfg.Delimiter)
			}
			if got := string(readFormPart(t, r, "file")); got != "a|b\n1|2\n" {
				t.Errorf("file part = %q", got)
			}
			w.Write([]byte(`{"columns":[{"name":"a"},{"name":"b"}]}`))
		}))
		defer server.Close()

		cfg := model.DefaultFileConfig()
		cfg.Delimiter = "|"
		blob := &model.Blob{Name: "in.csv", Data: []byte("a|b\n1|2\n")}
		cols, err := New(server.URL).FetchFileSchema(context.Background(), cfg, blob)
		if err != nil {
			t.Fatal(err)
		}
		if len(cols) != 2 {
			t.Errorf("columns = %+v", cols)
		}
	})

	t.Run("neither reference nor upload", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer server.Close()

		_, err := New(server.URL).FetchFileSchema(context.Background(), model.DefaultFileConfig(), nil)
		if !errors.Is(err, ErrSchemaFetch) {
			t.Errorf("expected ErrSchemaFetch, got %v", err)
		}
		if called {
			t.Error("request should not be sent")
		}
	})
}

func TestPreviewFileSendsRequestPart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req IngestionRequest
		if err := json.Unmarshal(readFormPart(t, r, "ingestionRequest"), &req); err != nil {
			t.Errorf("ingestionRequest part: %v", err)
		}
		if req.FlatFileConfig == nil || req.FlatFileConfig.FileName != "s3://bucket/in.csv" {
			t.Errorf("flatFileConfig = %+v", req.FlatFileConfig)
		}
		if readFormPart(t, r, "file") != nil {
			t.Error("file part sent for a reference")
		}
		w.Write([]byte(`{"data":[{"a":1},{"a":2}]}`))
	}))
	defer server.Close()

	cfg := model.DefaultFileConfig()
	cfg.FileName = "s3://bucket/in.csv"
	rows, err := New(server.URL).PreviewFile(context.Background(), IngestionRequest{
		FlatFileConfig:  &cfg,
		SelectedColumns: []model.Column{{Name: "a", Selected: true}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %v", rows)
	}
	if n, ok := rows[1]["a"].(json.Number); !ok || n.String() != "2" {
		t.Errorf("row value = %#v", rows[1]["a"])
	}
}

func TestPreviewClickHouseEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":null}`))
	}))
	defer server.Close()

	conn := testConn()
	rows, err := New(server.URL).PreviewClickHouse(context.Background(), IngestionRequest{ClickHouseConfig: &conn, TableName: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %#v, want empty non-nil", rows)
	}
}

func TestExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req IngestionRequest
		json.Unmarshal(readFormPart(t, r, "ingestionRequest"), &req)
		if req.SourceType != "clickhouse" || req.TargetType != "flatfile" {
			t.Errorf("types = %s -> %s", req.SourceType, req.TargetType)
		}
		w.Header().Set("Content-Disposition", `attachment; filename="export_orders.csv"`)
		w.Header().Set(RecordCountHeader, "1200")
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("id\n1\n"))
	}))
	defer server.Close()

	conn := testConn()
	resp, err := New(server.URL).Execute(context.Background(), IngestionRequest{
		SourceType:       "clickhouse",
		TargetType:       "flatfile",
		ClickHouseConfig: &conn,
		TableName:        "orders",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RecordCount != "1200" || resp.Filename != "export_orders.csv" || string(resp.Body) != "id\n1\n" {
		t.Errorf("response = %+v", resp)
	}
}

func TestExecuteFailureKinds(t *testing.T) {
	t.Run("plain text body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Ingestion failed: table missing"))
		}))
		defer server.Close()

		_, err := New(server.URL).Execute(context.Background(), IngestionRequest{}, nil)
		if !errors.Is(err, ErrExecution) {
			t.Fatalf("expected ErrExecution, got %v", err)
		}
		if ServerMessage(err) != "Ingestion failed: table missing" {
			t.Errorf("message = %q", ServerMessage(err))
		}
	})

	t.Run("transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := New(url).Execute(context.Background(), IngestionRequest{}, nil)
		if !errors.Is(err, ErrExecution) {
			t.Fatalf("expected ErrExecution, got %v", err)
		}
		if ServerMessage(err) != "" {
			t.Errorf("transport error should carry no server message, got %q", ServerMessage(err))
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New("http://127.0.0.1:1").Execute(ctx, IngestionRequest{}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled in chain, got %v", err)
		}
	})
}

func TestParseErrorMessage(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"json message", "application/json", `{"message":"boom"}`, "boom"},
		{"spring error", "application/json", `{"status":400,"error":"Bad Request","path":"/x"}`, ""},
		{"message not a string", "application/json", `{"message":{"detail":"x"}}`, ""},
		{"malformed json", "application/json", `{"message":`, ""},
		{"plain text", "text/plain", "  Ingestion failed: x  ", "Ingestion failed: x"},
		{"html page", "text/html", "<html>oops</html>", ""},
		{"empty", "", "", ""},
		{"json array", "application/json", `["a"]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseErrorMessage(tt.contentType, []byte(tt.body)); got != tt.want {
				t.Errorf("parseErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", 600)
	if got := parseErrorMessage("text/plain", []byte(long)); len(got) != maxMessageLen+3 {
		t.Errorf("long message length = %d", len(got))
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte("App is running!"))
	}))
	defer server.Close()

	msg, err := New(server.URL + "/api/integration").Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if msg != "App is running!" {
		t.Errorf("msg = %q", msg)
	}
}

func TestErrorString(t *testing.T) {
	e := &Error{Kind: KindPreview, StatusCode: 400, Message: "bad column"}
	if got := e.Error(); got != "preview error (HTTP 400): bad column" {
		t.Errorf("Error() = %q", got)
	}
	e = &Error{Kind: KindConnection, Err: errors.New("dial tcp: refused")}
	if got := e.Error(); got != "connection error: dial tcp: refused" {
		t.Errorf("Error() = %q", got)
	}
}
