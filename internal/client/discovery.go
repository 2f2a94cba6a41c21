package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/johndauphine/chfile/internal/model"
)

// ConnectionResult is the service's answer to a connectivity test.
type ConnectionResult struct {
	Message string `json:"message"`
}

// TestConnection asks the service to reach ClickHouse with cfg.
// Returns ErrBusy while another test or table listing is in flight.
func (c *Client) TestConnection(ctx context.Context, cfg model.ConnectionConfig) (*ConnectionResult, error) {
	if err := c.beginDiscovery(); err != nil {
		return nil, err
	}
	defer c.endDiscovery()

	var res ConnectionResult
	if err := c.postJSON(ctx, KindConnection, "/clickhouse/test-connection", nil, cfg, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListTables returns the table names visible to cfg.
// Returns ErrBusy while another test or table listing is in flight.
func (c *Client) ListTables(ctx context.Context, cfg model.ConnectionConfig) ([]string, error) {
	if err := c.beginDiscovery(); err != nil {
		return nil, err
	}
	defer c.endDiscovery()

	var res struct {
		Tables []string `json:"tables"`
	}
	if err := c.postJSON(ctx, KindConnection, "/clickhouse/tables", nil, cfg, &res); err != nil {
		return nil, err
	}
	if res.Tables == nil {
		res.Tables = []string{}
	}
	return res.Tables, nil
}

type schemaResponse struct {
	Columns []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"columns"`
}

// columns converts the service's column metadata into discovery-ordered
// columns. Inclusion flags are left for the selection manager.
func (r schemaResponse) columns() []model.Column {
	out := make([]model.Column, 0, len(r.Columns))
	for _, col := range r.Columns {
		if strings.TrimSpace(col.Name) == "" {
			continue
		}
		out = append(out, model.Column{Name: col.Name, Type: col.Type, Position: len(out)})
	}
	return out
}

// FetchClickHouseSchema returns the columns of table from catalog metadata.
func (c *Client) FetchClickHouseSchema(ctx context.Context, cfg model.ConnectionConfig, table string) ([]model.Column, error) {
	if strings.TrimSpace(table) == "" {
		return nil, &Error{Kind: KindSchemaFetch, Err: fmt.Errorf("table name is required")}
	}
	var res schemaResponse
	q := url.Values{"tableName": []string{table}}
	if err := c.postJSON(ctx, KindSchemaFetch, "/clickhouse/schema", q, cfg, &res); err != nil {
		return nil, err
	}
	return res.columns(), nil
}

// FetchFileSchema returns the columns the service infers for the file,
// either from a path/URL reference in cfg or from the uploaded blob.
func (c *Client) FetchFileSchema(ctx context.Context, cfg model.FileConfig, blob *model.Blob) ([]model.Column, error) {
	if cfg.FileName == "" && (blob == nil || blob.Size() == 0) {
		return nil, &Error{Kind: KindSchemaFetch, Err: fmt.Errorf("either a file reference or an uploaded file must be provided")}
	}
	resp, err := c.postMultipart(ctx, KindSchemaFetch, "/flatfile/schema", "flatFileConfig", cfg, blob)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res schemaResponse
	if err := decodeJSON(KindSchemaFetch, resp.Body, &res); err != nil {
		return nil, err
	}
	return res.columns(), nil
}
