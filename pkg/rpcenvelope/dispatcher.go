package rpcenvelope

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/wugren/buckyos/pkg/metrics"
	"github.com/wugren/buckyos/pkg/zlog"
)

// Dispatcher routes a service's incoming Requests to registered Handlers
// by method name, matching process_request's match-on-method-string shape.
type Dispatcher struct {
	service  string
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates a Dispatcher for the named service (used for log
// tagging and as the service label of its RPC metrics; the HTTP path is
// chosen by the Server that wraps it).
func NewDispatcher(service string) *Dispatcher {
	return &Dispatcher{service: service, handlers: make(map[string]Handler)}
}

// Register binds a method name to the handler that serves it.
func (d *Dispatcher) Register(method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = h
}

// Handle processes one Request and returns the Response to send back,
// logging the request at info level and any handler error at warn level.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	logger := zlog.WithTraceID(req.TraceID)
	logger.Info().Str("service", d.service).Str("method", req.Method).Uint64("id", req.ID).Msg("rpc request")

	timer := metrics.NewTimer()
	outcome := "ok"
	defer func() {
		timer.ObserveDurationVec(metrics.RPCRequestDuration, d.service, req.Method)
		metrics.RPCRequestsTotal.WithLabelValues(d.service, req.Method, outcome).Inc()
	}()

	d.mu.RLock()
	handler, ok := d.handlers[req.Method]
	d.mu.RUnlock()

	if !ok {
		err := ErrUnknownMethod(req.Method)
		logger.Warn().Str("method", req.Method).Msg(err.Error())
		outcome = "unknown_method"
		return Response{Error: err.Error(), Seq: req.ID, TraceID: req.TraceID}
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		logger.Warn().Err(err).Str("method", req.Method).Msg("rpc handler failed")
		outcome = "error"
		return Response{Error: err.Error(), Seq: req.ID, TraceID: req.TraceID}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		logger.Warn().Err(err).Str("method", req.Method).Msg("rpc result marshal failed")
		outcome = "error"
		return Response{Error: err.Error(), Seq: req.ID, TraceID: req.TraceID}
	}

	return Response{Result: raw, Seq: req.ID, TraceID: req.TraceID}
}
