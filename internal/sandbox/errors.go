package sandbox

import (
	"fmt"

	"github.com/bobmcallan/transformd/internal/models"
)

// Error is a typed sandbox failure. kind feeds the job's terminal status
// and error taxonomy; Message and Traceback are surfaced to the job log
// verbatim.
type Error struct {
	kind      models.ErrorKind
	Message   string
	Traceback string
}

func (e *Error) Error() string {
	return e.Message
}

// Kind reports the taxonomy bucket this failure belongs to, so callers
// can switch on it instead of string-matching Message.
func (e *Error) Kind() models.ErrorKind {
	return e.kind
}

func newError(kind models.ErrorKind, message string) *Error {
	return &Error{kind: kind, Message: message}
}

func newErrorf(kind models.ErrorKind, format string, args ...any) *Error {
	return &Error{kind: kind, Message: fmt.Sprintf(format, args...)}
}
