package dispatch

import (
	"errors"
	"strings"
)

// Routing failures. The two reasons stay distinct so callers can tell the
// user "reconnect your client" apart from "start the worker plugin".
var ErrControlSessionNotFound = errors.New("control session not found")
var ErrNoWorkerForWorkspace = errors.New("no worker connected for workspace")

// Connectivity failures. Safe for the caller to retry, unlike application
// errors.
var ErrDispatchTimeout = errors.New("timed out waiting for worker response")
var ErrWorkerGone = errors.New("worker connection closed before send completed")

// Validation failures, reported before any routing or correlation state is
// created.
var ErrUnknownCommand = errors.New("unknown command")
var ErrInvalidArguments = errors.New("invalid command arguments")

// CommandError is an application-level failure reported by the worker after
// it executed the command. It is passed through to the caller verbatim and
// never wrapped as a protocol fault.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	code := strings.TrimSpace(e.Code)
	message := strings.TrimSpace(e.Message)
	switch {
	case code != "" && message != "":
		return code + ": " + message
	case code != "":
		return code
	case message != "":
		return message
	default:
		return "command failed"
	}
}

// IsConnectivity reports whether err is in the retry-safe connectivity
// category.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrDispatchTimeout) || errors.Is(err, ErrWorkerGone)
}

// IsRouting reports whether err is a routing failure.
func IsRouting(err error) bool {
	return errors.Is(err, ErrControlSessionNotFound) || errors.Is(err, ErrNoWorkerForWorkspace)
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnknownCommand) || errors.Is(err, ErrInvalidArguments)
}
