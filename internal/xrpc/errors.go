package xrpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/sandbox"
	"github.com/atvault/lexhost/internal/store"
)

// Error is a wire-level XRPC error. Name is stable and machine-readable;
// Message is for humans. Serialized as {"error": Name, "message": ...}.
type Error struct {
	Name    string `json:"error"`
	Message string `json:"message"`
	// Status is the HTTP status the name maps to. Not serialized.
	Status int `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Stable wire error names.
const (
	NameSchemaValidation = "SchemaValidationError"
	NameConflict         = "ConflictError"
	NameMissingScript    = "MissingScriptError"
	NameRecordValidation = "RecordValidationError"
	NameInvalidParams    = "InvalidParamsError"
	NameInvalidInput     = "InvalidInputError"
	NameMethodNotFound   = "MethodNotFoundError"
	NameScript           = "ScriptError"
	NameScriptTimeout    = "ScriptTimeoutError"
	NameNotFound         = "NotFound"
	NameInternal         = "InternalServerError"
)

var statusByName = map[string]int{
	NameSchemaValidation: http.StatusBadRequest,
	NameInvalidParams:    http.StatusBadRequest,
	NameInvalidInput:     http.StatusBadRequest,
	NameMissingScript:    http.StatusBadRequest,
	NameRecordValidation: http.StatusBadRequest,
	NameMethodNotFound:   http.StatusNotFound,
	NameNotFound:         http.StatusNotFound,
	NameConflict:         http.StatusConflict,
	NameScript:           http.StatusInternalServerError,
	NameInternal:         http.StatusInternalServerError,
	NameScriptTimeout:    http.StatusGatewayTimeout,
}

// NewError builds a wire error with the status its name maps to.
func NewError(name, format string, args ...any) *Error {
	status, ok := statusByName[name]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{Name: name, Message: fmt.Sprintf(format, args...), Status: status}
}

// MapError converts any error into a wire error. Engine, sandbox and
// store errors keep their taxonomy names; everything else becomes an
// internal error with the detail withheld from the wire.
func MapError(err error) *Error {
	var we *Error
	if errors.As(err, &we) {
		return we
	}

	var se *sandbox.ScriptError
	if errors.As(err, &se) {
		return NewError(NameScript, "%s", se.Message)
	}
	var te *sandbox.TimeoutError
	if errors.As(err, &te) {
		return NewError(NameScriptTimeout, "script exceeded %s", te.Timeout)
	}

	var ee *engine.Error
	if errors.As(err, &ee) {
		switch {
		case ee.Code == engine.ErrCodeSchemaInvalid:
			return NewError(NameSchemaValidation, "%s", ee.Message)
		case ee.Code == engine.ErrCodeMissingScript:
			return NewError(NameMissingScript, "%s", ee.Message)
		case ee.Code == engine.ErrCodeRecordInvalid, ee.Code == engine.ErrCodeUnknownCollection:
			return NewError(NameRecordValidation, "%s", ee.Message)
		case engine.IsNotFound(err):
			return NewError(NameNotFound, "%s", ee.Message)
		case engine.IsConflict(err):
			return NewError(NameConflict, "%s", ee.Message)
		}
	}

	if errors.Is(err, store.ErrNotFound) {
		return NewError(NameNotFound, "not found")
	}
	if errors.Is(err, store.ErrConflict) {
		return NewError(NameConflict, "concurrent update lost")
	}

	return NewError(NameInternal, "internal error")
}
