// Package util provides small helpers shared by the CLI and the wizard.
package util

import "strings"

// SplitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty entries. Returns nil for empty input.
func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// SanitizeFilename replaces path separators and characters most file
// systems reject with underscores. An empty or all-dots result yields "".
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return ""
	}
	return out
}

// ExportFileName is the local name an export of table is saved under.
// It falls back to "data" when the table name is empty or unusable.
func ExportFileName(table string) string {
	base := SanitizeFilename(table)
	if base == "" {
		base = "data"
	}
	return base + ".csv"
}

// Truncate shortens s to max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
