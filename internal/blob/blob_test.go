package blob

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")
	os.WriteFile(path, []byte("id,name\n1,ann\n"), 0o644)

	b, err := Load(path, ",", "")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name != "people.csv" || b.Size() != 14 {
		t.Errorf("blob = %s (%d bytes)", b.Name, b.Size())
	}
	if !strings.HasPrefix(b.ContentType, "text/csv") {
		t.Errorf("content type = %q", b.ContentType)
	}
	if b.Digest != Digest([]byte("id,name\n1,ann\n")) || len(b.Digest) != 16 {
		t.Errorf("digest = %q", b.Digest)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.csv"), ",", ""); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(dir, ",", ""); err == nil {
		t.Error("expected error for directory")
	}
}

func TestDigestStable(t *testing.T) {
	if Digest([]byte("abc")) != Digest([]byte("abc")) {
		t.Error("digest not deterministic")
	}
	if Digest([]byte("abc")) == Digest([]byte("abd")) {
		t.Error("different inputs share a digest")
	}
}

func writeWorkbook(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"id", "name", "note"},
		{1, "ann", "x"},
		{2, "bob"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	writeWorkbook(t, path)

	b, err := Load(path, ";", "")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name != "book.csv" {
		t.Errorf("name = %q", b.Name)
	}
	want := "id;name;note\n1;ann;x\n2;bob;\n"
	if string(b.Data) != want {
		t.Errorf("data = %q, want %q", b.Data, want)
	}
}

func TestFromXLSXBadDelimiter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	writeWorkbook(t, path)
	data, _ := os.ReadFile(path)
	if _, err := FromXLSX(data, "||", ""); err == nil {
		t.Error("expected error for multi-character delimiter")
	}
}

func TestCheckEncoding(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		enc     string
		wantErr bool
	}{
		{"utf8 ok", []byte("café"), "UTF-8", false},
		{"utf8 bad", []byte{0xff, 0xfe, 'a'}, "utf-8", true},
		{"latin1 anything", []byte{0xe9}, "ISO-8859-1", false},
		{"unknown", []byte("x"), "klingon", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckEncoding(tt.data, tt.enc)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckEncoding() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
