package tabular

import (
	"fmt"

	"github.com/bobmcallan/transformd/internal/models"
)

// Error is a typed write-time rejection, mirroring sandbox.Error's
// Kind()-over-string-matching shape so JobProcessor can treat a DataStore
// failure the same way it treats a sandbox one.
type Error struct {
	kind    models.ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Kind reports the taxonomy bucket this failure belongs to.
func (e *Error) Kind() models.ErrorKind {
	return e.kind
}

func newError(kind models.ErrorKind, format string, args ...any) *Error {
	return &Error{kind: kind, Message: fmt.Sprintf(format, args...)}
}
