package util

import (
	"reflect"
	"testing"
)

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single value", "foo", []string{"foo"}},
		{"multiple values", "foo,bar,baz", []string{"foo", "bar", "baz"}},
		{"with whitespace", " foo , bar , baz ", []string{"foo", "bar", "baz"}},
		{"trailing comma", "foo,bar,", []string{"foo", "bar"}},
		{"only commas", ",,,", nil},
		{"column names with spaces", "Column A, Column B", []string{"Column A", "Column B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SplitCSV(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("SplitCSV(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestExportFileName(t *testing.T) {
	tests := []struct {
		table string
		want  string
	}{
		{"orders", "orders.csv"},
		{"", "data.csv"},
		{"   ", "data.csv"},
		{"..", "data.csv"},
		{"sales/2024", "sales_2024.csv"},
		{`a:b*c?`, "a_b_c_.csv"},
		{"événements", "événements.csv"},
	}
	for _, tt := range tests {
		if got := ExportFileName(tt.table); got != tt.want {
			t.Errorf("ExportFileName(%q) = %q, want %q", tt.table, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 2, "he"},
		{"hello", 0, "hello"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
