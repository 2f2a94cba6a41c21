// Package model holds the domain types shared by the store, the remote
// client and the wizard session.
package model

import (
	"fmt"
	"slices"
	"strings"
)

// Endpoint kinds as the ingestion service names them.
const (
	EndpointClickHouse = "clickhouse"
	EndpointFlatFile   = "flatfile"
)

// Direction is the transfer direction. The zero value means none chosen.
type Direction string

const (
	DirectionNone   Direction = ""
	DirectionExport Direction = "export" // ClickHouse -> flat file
	DirectionImport Direction = "import" // flat file -> ClickHouse
)

// ParseDirection accepts "export" or "import" (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionExport:
		return DirectionExport, nil
	case DirectionImport:
		return DirectionImport, nil
	}
	return DirectionNone, fmt.Errorf("unknown direction %q (want export or import)", s)
}

// DirectionFor derives the direction from a source/target endpoint pair.
func DirectionFor(source, target string) (Direction, error) {
	switch {
	case source == EndpointClickHouse && target == EndpointFlatFile:
		return DirectionExport, nil
	case source == EndpointFlatFile && target == EndpointClickHouse:
		return DirectionImport, nil
	}
	return DirectionNone, fmt.Errorf("ingestion from %q to %q is not supported", source, target)
}

// Valid reports whether d is export or import.
func (d Direction) Valid() bool {
	return d == DirectionExport || d == DirectionImport
}

// SourceType is the endpoint kind data is read from.
func (d Direction) SourceType() string {
	switch d {
	case DirectionExport:
		return EndpointClickHouse
	case DirectionImport:
		return EndpointFlatFile
	}
	return ""
}

// TargetType is the endpoint kind data is written to.
func (d Direction) TargetType() string {
	switch d {
	case DirectionExport:
		return EndpointFlatFile
	case DirectionImport:
		return EndpointClickHouse
	}
	return ""
}

// ConnectionConfig describes how the service reaches ClickHouse.
type ConnectionConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	User     string `json:"user" yaml:"user"`
	JWTToken string `json:"jwtToken" yaml:"jwt_token,omitempty"`
	Secure   bool   `json:"secure" yaml:"secure"`
}

// DefaultConnection returns the defaults the wizard pre-fills.
func DefaultConnection() ConnectionConfig {
	return ConnectionConfig{
		Port:     8123,
		Database: "default",
		User:     "default",
	}
}

// Validate checks the fields the service cannot work without.
func (c ConnectionConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("clickhouse host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("clickhouse port %d out of range", c.Port)
	}
	return nil
}

// String renders the connection without the token.
func (c ConnectionConfig) String() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", scheme, c.User, c.Host, c.Port, c.Database)
}

// FileConfig describes the delimited file side of a transfer.
// FileName is a path or URL the service can read; it is mutually exclusive
// with an uploaded blob.
type FileConfig struct {
	FileName  string `json:"fileName" yaml:"file_name,omitempty"`
	Delimiter string `json:"delimiter" yaml:"delimiter"`
	HasHeader bool   `json:"hasHeader" yaml:"has_header"`
	Encoding  string `json:"encoding" yaml:"encoding"`
}

// DefaultFileConfig returns the defaults the wizard pre-fills.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Delimiter: ",",
		HasHeader: true,
		Encoding:  "UTF-8",
	}
}

// Blob is an uploaded file held in memory. Data is shared between
// snapshots and must be treated as read-only.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
	Digest      string
}

// Size returns the payload length in bytes.
func (b Blob) Size() int { return len(b.Data) }

// Column is one discovered column with its inclusion flag.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Position int    `json:"position"`
	Selected bool   `json:"selected"`
}

// JoinConfig is optional multi-table join metadata for ClickHouse sources.
type JoinConfig struct {
	AdditionalTables []string `json:"additionalTables" yaml:"additional_tables"`
	Condition        string   `json:"joinCondition" yaml:"condition"`
}

// Equal reports whether j and o name the same tables and condition.
func (j JoinConfig) Equal(o JoinConfig) bool {
	return j.Condition == o.Condition && slices.Equal(j.AdditionalTables, o.AdditionalTables)
}

// Enabled reports whether both tables and a condition are set.
func (j JoinConfig) Enabled() bool {
	return len(j.AdditionalTables) > 0 && strings.TrimSpace(j.Condition) != ""
}

// SelectedOnly filters cols down to the included ones, keeping order.
func SelectedOnly(cols []Column) []Column {
	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		if c.Selected {
			out = append(out, c)
		}
	}
	return out
}

// CloneColumns returns an independent copy of cols. nil stays nil.
func CloneColumns(cols []Column) []Column {
	if cols == nil {
		return nil
	}
	out := make([]Column, len(cols))
	copy(out, cols)
	return out
}
