package session

import (
	"errors"

	"github.com/johndauphine/chfile/internal/client"
)

// Level is the severity of a status line.
type Level int

const (
	LevelNone Level = iota
	LevelInfo
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return ""
}

// Status is the user-facing result of the last operation.
type Status struct {
	Level   Level
	Message string
}

// Fixed messages.
const (
	MsgConnectionFailed = "Connection failed."
	MsgTablesFetched    = "Tables fetched successfully."
	MsgTablesFailed     = "Error fetching tables."
	MsgColumnsFailed    = "Error fetching columns."
	MsgBusy             = "A connection request is already in progress."
	MsgNoColumns        = "No columns found."
	MsgSelectColumns    = "Select at least one column."
)

// schemaMessage is the text for a failed schema fetch.
func schemaMessage(err error) string {
	if msg := client.ServerMessage(err); msg != "" {
		return msg
	}
	return MsgColumnsFailed
}

func busy(err error) bool { return errors.Is(err, client.ErrBusy) }
