package httpapi

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/workbridge/workbridge/internal/dispatch"
	"github.com/workbridge/workbridge/internal/wire"
)

func dispatchControlMeta(remoteAddr string) dispatch.ControlMeta {
	return dispatch.ControlMeta{RemoteAddr: remoteAddr}
}

// controlResponseFor maps the dispatch error taxonomy onto a control-plane
// response. Routing and connectivity failures carry actionable messages so
// the client can tell "start the worker" apart from "the worker died
// mid-call"; application errors pass through verbatim.
func controlResponseFor(requestID string, payload json.RawMessage, err error) wire.ControlResponse {
	if err == nil {
		return wire.ControlResponse{ID: requestID, OK: true, Payload: payload}
	}

	resp := wire.ControlResponse{ID: requestID}
	var commandErr *dispatch.CommandError
	switch {
	case errors.As(err, &commandErr):
		resp.ErrorKind = wire.ErrorKindApplication
		resp.Error = &wire.ResultError{Code: commandErr.Code, Message: commandErr.Message}
	case dispatch.IsValidation(err):
		resp.ErrorKind = wire.ErrorKindValidation
		resp.Error = &wire.ResultError{Message: err.Error()}
	case dispatch.IsRouting(err):
		resp.ErrorKind = wire.ErrorKindRouting
		resp.Error = &wire.ResultError{Message: routingMessage(err)}
	case errors.Is(err, dispatch.ErrDispatchTimeout), errors.Is(err, context.DeadlineExceeded):
		resp.ErrorKind = wire.ErrorKindConnectivity
		resp.Error = &wire.ResultError{Message: "worker did not respond before the deadline"}
	case errors.Is(err, dispatch.ErrWorkerGone):
		resp.ErrorKind = wire.ErrorKindConnectivity
		resp.Error = &wire.ResultError{Message: "worker connection closed before the command was sent"}
	default:
		resp.ErrorKind = wire.ErrorKindConnectivity
		resp.Error = &wire.ResultError{Message: "failed to execute command"}
	}
	return resp
}

func routingMessage(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrControlSessionNotFound):
		return "control session is not registered; reconnect your client"
	case errors.Is(err, dispatch.ErrNoWorkerForWorkspace):
		return "no worker is connected for this workspace; start the workspace plugin"
	default:
		return err.Error()
	}
}
