package utils

import (
	"errors"
	"fmt"
	"strings"
)

var ErrorRecordNotFound = errors.New("record not found")

// Failure kinds surfaced by the clients and the orchestrator. Callers wrap
// them with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrRemote       = errors.New("remote error")
	ErrConnectivity = errors.New("connectivity error")
	ErrParse        = errors.New("parse error")
	ErrBusy         = errors.New("dispatch already running")
)

func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func RemoteError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRemote, fmt.Sprintf(format, args...))
}

func ConnectivityError(err error) error {
	return fmt.Errorf("%w: %v", ErrConnectivity, err)
}

func ParseError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// ErrorMessage strips the kind prefix so the text shown to operators is the
// upstream message itself.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, kind := range []error{ErrValidation, ErrRemote, ErrConnectivity, ErrParse} {
		if errors.Is(err, kind) {
			return strings.TrimPrefix(msg, kind.Error()+": ")
		}
	}
	return msg
}
