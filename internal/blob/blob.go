// Package blob loads local files into uploadable blobs. Spreadsheets are
// converted to delimited text first, since the service only reads
// delimited files.
package blob

import (
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"github.com/zeebo/xxh3"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/johndauphine/chfile/internal/model"
)

// MaxSize bounds how large an upload may be.
const MaxSize = 512 << 20

// Load reads path into a blob. Files ending in .xlsx are converted to
// text using delimiter (comma when empty); the first sheet is used unless
// sheet names another.
func Load(path, delimiter, sheet string) (model.Blob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Blob{}, err
	}
	if info.IsDir() {
		return model.Blob{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxSize {
		return model.Blob{}, fmt.Errorf("%s is %d bytes, larger than the %d byte upload limit", path, info.Size(), MaxSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Blob{}, err
	}

	name := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		converted, err := FromXLSX(data, delimiter, sheet)
		if err != nil {
			return model.Blob{}, fmt.Errorf("converting %s: %w", name, err)
		}
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".csv"
		return New(name, converted), nil
	}
	return New(name, data), nil
}

// New wraps data in a blob with a content type guessed from name.
func New(name string, data []byte) model.Blob {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ct == "" {
		ct = "text/csv"
	}
	return model.Blob{
		Name:        name,
		ContentType: ct,
		Data:        data,
		Digest:      Digest(data),
	}
}

// Digest is the hex xxh3 hash of data.
func Digest(data []byte) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], xxh3.Hash(data))
	return hex.EncodeToString(b[:])
}

// FromXLSX renders one sheet of a workbook as delimited text.
func FromXLSX(data []byte, delimiter, sheet string) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	comma := ','
	if delimiter != "" {
		r, size := utf8.DecodeRuneInString(delimiter)
		if size != len(delimiter) {
			return nil, fmt.Errorf("delimiter %q must be a single character", delimiter)
		}
		comma = r
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for _, row := range rows {
		// GetRows trims trailing empty cells; pad so every record has the
		// header's width.
		for len(row) < width {
			row = append(row, "")
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// LookupEncoding resolves an IANA charset name such as "UTF-8" or
// "windows-1252".
func LookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	if enc == nil {
		return nil, fmt.Errorf("encoding %q is not supported", name)
	}
	return enc, nil
}

// CheckEncoding reports whether data decodes cleanly as the named
// encoding. Only UTF-8 can actually be rejected; single-byte charsets
// accept any input.
func CheckEncoding(data []byte, name string) error {
	enc, err := LookupEncoding(name)
	if err != nil {
		return err
	}
	if canonical, _ := ianaindex.IANA.Name(enc); canonical == "UTF-8" {
		if !utf8.Valid(data) {
			return fmt.Errorf("file is not valid UTF-8")
		}
		return nil
	}
	if _, err := enc.NewDecoder().Bytes(data); err != nil {
		return fmt.Errorf("file does not decode as %s: %w", name, err)
	}
	return nil
}
