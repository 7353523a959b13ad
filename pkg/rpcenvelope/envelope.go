// Package rpcenvelope implements the zone's kRPC wire format: a single
// JSON envelope posted to "/kapi/<service>", dispatched by method name to a
// registered handler, and answered with a matching envelope carrying
// either a result or an error string. Grounded on verify_hub's warp-routed
// RPCRequest/RPCResponse loop (process_request + the "/kapi/verify-hub"
// route), reimplemented over net/http + encoding/json since warp itself is
// out of scope for this module.
package rpcenvelope

import (
	"context"
	"encoding/json"
	"fmt"
)

// Request is one kRPC call: a method name, its JSON parameters, a caller
// sequence number echoed back in the response, and an optional trace id
// for cross-service log correlation.
type Request struct {
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      uint64          `json:"id"`
	TraceID string          `json:"trace_id,omitempty"`
}

// Response answers a Request with either a result or an error, never both.
type Response struct {
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Seq     uint64          `json:"seq"`
	Token   string          `json:"token,omitempty"`
	TraceID string          `json:"trace_id,omitempty"`
}

// Handler processes one method's parameters and returns a JSON-marshalable
// result, or an error to be reported back as Response.Error.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// ErrUnknownMethod is the error Dispatcher.Handle reports in
// Response.Error when no handler is registered for a request's method.
type ErrUnknownMethod string

func (e ErrUnknownMethod) Error() string {
	return fmt.Sprintf("rpcenvelope: unknown method %q", string(e))
}
