package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed remote call by the step that issued it.
type Kind int

const (
	KindConnection Kind = iota + 1
	KindSchemaFetch
	KindPreview
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection error"
	case KindSchemaFetch:
		return "schema fetch error"
	case KindPreview:
		return "preview error"
	case KindExecution:
		return "execution error"
	}
	return "remote error"
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrConnection  = errors.New("connection error")
	ErrSchemaFetch = errors.New("schema fetch error")
	ErrPreview     = errors.New("preview error")
	ErrExecution   = errors.New("execution error")
)

// ErrBusy is returned when a connectivity test or table listing is already
// in flight.
var ErrBusy = errors.New("another connection request is in progress")

// Error is a failed remote call.
type Error struct {
	Kind       Kind
	StatusCode int    // 0 when the request never got a response
	Message    string // server-supplied message, empty when absent or unusable
	Err        error  // transport or decoding error, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	var errs []error
	if s := e.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindConnection:
		return ErrConnection
	case KindSchemaFetch:
		return ErrSchemaFetch
	case KindPreview:
		return ErrPreview
	case KindExecution:
		return ErrExecution
	}
	return nil
}

// ServerMessage returns the server-supplied message carried by err, or ""
// when there is none.
func ServerMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// maxMessageLen bounds plain-text error bodies shown to the user.
const maxMessageLen = 500

// parseErrorMessage extracts a user-facing message from an error body.
// JSON bodies must carry a non-empty string "message"; plain text is used
// as-is. HTML, empty and malformed JSON bodies yield "".
func parseErrorMessage(contentType string, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" || strings.Contains(contentType, "text/html") {
		return ""
	}
	if strings.HasPrefix(text, "{") {
		var payload map[string]any
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return ""
		}
		if msg, ok := payload["message"].(string); ok {
			return strings.TrimSpace(msg)
		}
		return ""
	}
	if strings.HasPrefix(text, "[") || strings.HasPrefix(text, "<") {
		return ""
	}
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen] + "..."
	}
	return text
}
