package gateway

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the wire version this gateway speaks.
const ProtocolVersion = 1

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// RPC error codes.
const (
	CodeInvalidParams = "invalid_params"
	CodeNotFound      = "not_found"
	CodeForbidden     = "forbidden"
	CodeUnavailable   = "unavailable"
	CodeAgentError    = "agent_error"
	CodeUnknownMethod = "method_not_found"
	CodeUnauthorized  = "unauthorized"
	CodeProtocol      = "protocol_error"
)

// Frame is the envelope of every WebSocket message. Type says whether the
// request, response or event fields are set.
type Frame struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// RPCError is the body of a failed response.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectParams is the body of the first request on a connection. Every
// later request acts as UserID.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	UserID      string       `json:"userId"`
	ClientID    string       `json:"clientId,omitempty"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// ConnectAuth carries credentials. Only the field matching the gateway's
// auth mode is read.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// checkProtocol accepts clients whose range covers ProtocolVersion. Clients
// that send no range get the current version.
func (p ConnectParams) checkProtocol() error {
	lo, hi := p.MinProtocol, p.MaxProtocol
	if lo == 0 && hi == 0 {
		return nil
	}
	if hi == 0 {
		hi = lo
	}
	if lo > ProtocolVersion || hi < ProtocolVersion {
		return fmt.Errorf("server speaks protocol %d, client asked for %d-%d", ProtocolVersion, lo, hi)
	}
	return nil
}

// HelloOK answers a successful connect.
type HelloOK struct {
	Protocol   int      `json:"protocol"`
	ConnID     string   `json:"connId"`
	Server     string   `json:"server"`
	Methods    []string `json:"methods"`
	Events     []string `json:"events"`
	MaxPayload int      `json:"maxPayload"`
}

func responseFrame(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

func errorFrame(id, code, message string) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &RPCError{Code: code, Message: message}}
}

func eventFrame(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}
