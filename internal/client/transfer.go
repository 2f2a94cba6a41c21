package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/johndauphine/chfile/internal/model"
)

// RecordCountHeader carries the exported record count on export responses.
const RecordCountHeader = "X-Record-Count"

type previewResponse struct {
	Data []Row `json:"data"`
}

// PreviewClickHouse returns sample rows for a ClickHouse source.
func (c *Client) PreviewClickHouse(ctx context.Context, req IngestionRequest) ([]Row, error) {
	if req.ClickHouseConfig == nil {
		return nil, &Error{Kind: KindPreview, Err: fmt.Errorf("clickhouse configuration is required")}
	}
	var res previewResponse
	if err := c.postJSON(ctx, KindPreview, "/clickhouse/preview", nil, req, &res); err != nil {
		return nil, err
	}
	return nonNilRows(res.Data), nil
}

// PreviewFile returns sample rows for a flat file source. blob may be nil
// when the file config references a path or URL.
func (c *Client) PreviewFile(ctx context.Context, req IngestionRequest, blob *model.Blob) ([]Row, error) {
	if req.FlatFileConfig == nil {
		return nil, &Error{Kind: KindPreview, Err: fmt.Errorf("flat file configuration is required")}
	}
	if req.FlatFileConfig.FileName == "" && (blob == nil || blob.Size() == 0) {
		return nil, &Error{Kind: KindPreview, Err: fmt.Errorf("either a file reference or an uploaded file must be provided")}
	}
	resp, err := c.postMultipart(ctx, KindPreview, "/flatfile/preview", "ingestionRequest", req, blob)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res previewResponse
	if err := decodeJSON(KindPreview, resp.Body, &res); err != nil {
		return nil, err
	}
	return nonNilRows(res.Data), nil
}

func nonNilRows(rows []Row) []Row {
	if rows == nil {
		return []Row{}
	}
	return rows
}

// ExecuteResponse is the raw answer to an execute call. Its shape depends
// on the direction; interpreting it is left to the caller.
type ExecuteResponse struct {
	StatusCode  int
	ContentType string
	Filename    string // from Content-Disposition, if any
	RecordCount string // raw X-Record-Count header value
	Body        []byte
}

// Execute runs the transfer. It issues exactly one request.
func (c *Client) Execute(ctx context.Context, req IngestionRequest, blob *model.Blob) (*ExecuteResponse, error) {
	resp, err := c.postMultipart(ctx, KindExecution, "/execute", "ingestionRequest", req, blob)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindExecution, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	return &ExecuteResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    attachmentName(resp.Header),
		RecordCount: resp.Header.Get(RecordCountHeader),
		Body:        body,
	}, nil
}

func attachmentName(h http.Header) string {
	cd := h.Get("Content-Disposition")
	if cd == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return ""
	}
	return params["filename"]
}
