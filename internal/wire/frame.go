// Package wire defines the JSON frames exchanged with worker plugins and
// control clients. Frames are correlated by call id, never by position.
package wire

import "encoding/json"

// CommandFrame is sent to a worker over its WebSocket connection. Args is the
// raw argument object of the named command, forwarded without interpretation.
type CommandFrame struct {
	CallID  string          `json:"call_id"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// ResultError describes an application-level failure reported by a worker.
type ResultError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ResultFrame is received from a worker. Exactly one of Payload and Error is
// meaningful depending on OK.
type ResultFrame struct {
	CallID  string          `json:"call_id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ResultError    `json:"error,omitempty"`
}

// ConnectAck is the first frame written to a freshly registered connection on
// either plane.
type ConnectAck struct {
	SessionID        string `json:"session_id"`
	WorkspaceKey     string `json:"workspace"`
	ServerTimeUnixMS int64  `json:"server_time_unix_ms"`
	PingIntervalSec  int    `json:"ping_interval_sec"`
}

// ControlRequest is received from a control client over its WebSocket
// connection. ID is chosen by the client and echoed back on the response so
// the client can run concurrent requests on one connection.
type ControlRequest struct {
	ID        string          `json:"id"`
	Command   string          `json:"command"`
	Args      json.RawMessage `json:"args,omitempty"`
	TimeoutMS int             `json:"timeout_ms,omitempty"`
}

// ControlResponse is written back to a control client. ErrorKind distinguishes
// validation, routing, and connectivity failures from application errors so
// the client can decide whether a retry is safe.
type ControlResponse struct {
	ID        string          `json:"id"`
	OK        bool            `json:"ok"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Error     *ResultError    `json:"error,omitempty"`
}

// Error kinds reported on ControlResponse.
const (
	ErrorKindValidation   = "validation"
	ErrorKindRouting      = "routing"
	ErrorKindConnectivity = "connectivity"
	ErrorKindApplication  = "application"
)
