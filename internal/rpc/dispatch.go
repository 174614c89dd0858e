package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fast-gateway-protocol/vercel/internal/observability"
	"github.com/fast-gateway-protocol/vercel/internal/protocol"
	"github.com/fast-gateway-protocol/vercel/internal/vercel"
)

// Dispatcher runs the per-request pipeline: look up the method, validate
// parameters, invoke the handler, translate the outcome into a response.
// Handler failures become ok:false responses; they never close the
// caller's connection.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewDispatcher constructs a dispatcher over a populated registry.
func NewDispatcher(registry *Registry, logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, logger: logger, metrics: metrics}
}

// Dispatch handles one decoded request and always returns a well-formed
// response echoing the request id.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) protocol.Response {
	start := time.Now()
	resp := d.dispatch(ctx, req)

	outcome := "ok"
	if !resp.OK {
		outcome = resp.Error.Kind
	}
	d.metrics.RecordRequest(req.Method, outcome, time.Since(start))
	d.logger.Debug("request dispatched",
		zap.String("id", req.ID),
		zap.String("method", req.Method),
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)))

	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req protocol.Request) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				zap.String("method", req.Method), zap.Any("panic", r))
			resp = protocol.Err(req.ID, protocol.KindInternal, "internal error")
		}
	}()

	spec, ok := d.registry.Lookup(req.Method)
	if !ok {
		return protocol.Err(req.ID, protocol.KindUnknownMethod, fmt.Sprintf("unknown method %q", req.Method))
	}

	params := Params(req.Params)
	if err := checkRequired(spec, params); err != nil {
		return protocol.Err(req.ID, protocol.KindInvalidParams, err.Error())
	}

	result, err := spec.Handler(ctx, params)
	if err != nil {
		return d.errorResponse(req, err)
	}
	return protocol.OK(req.ID, result)
}

func (d *Dispatcher) errorResponse(req protocol.Request, err error) protocol.Response {
	var paramErr *InvalidParamError
	if errors.As(err, &paramErr) {
		return protocol.Err(req.ID, protocol.KindInvalidParams, paramErr.Error())
	}

	var apiErr *vercel.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Kind == protocol.KindInternal || apiErr.Kind == protocol.KindUpstreamUnavailable {
			d.logger.Warn("upstream call failed",
				zap.String("method", req.Method), zap.Error(apiErr))
		}
		return protocol.Err(req.ID, apiErr.Kind, apiErr.CallerMessage())
	}

	d.logger.Error("handler failed",
		zap.String("method", req.Method), zap.Error(err))
	return protocol.Err(req.ID, protocol.KindInternal, "internal error")
}
