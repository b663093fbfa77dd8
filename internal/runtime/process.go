package runtime

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	errspkg "github.com/drblury/pipeflow/internal/runtime/errors"
	"github.com/drblury/pipeflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/pipeflow/internal/runtime/logging"
	"github.com/drblury/pipeflow/internal/runtime/resolver"
)

// Process runs msg through the handler bound for its dynamic type.
//
// With no handler the result is nil and subscribers are still notified. With
// more than one handler a *ConfigurationError is returned before any
// middleware runs. A failing handler triggers the error chain and its error is
// returned unchanged; subscribers are only notified after success. Fan-out
// runs on its own goroutine and may still be running when Process returns.
func (p *Pipeline) Process(ctx context.Context, msg any) (any, error) {
	if p == nil {
		return nil, errspkg.ErrPipelineRequired
	}
	if msg == nil {
		return nil, errspkg.ErrMessageRequired
	}
	if p.closed.Load() {
		return nil, errspkg.ErrPipelineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	msgType := reflect.TypeOf(msg)
	typeName := messageTypeName(msgType)
	stats := p.stats.forType(msgType)

	handlers, err := p.resolver.ResolveAll(ctx, resolver.HandlerCapability(msgType))
	if err != nil {
		return nil, fmt.Errorf("resolve handler for %s: %w", typeName, err)
	}

	switch len(handlers) {
	case 0:
		stats.recordUnhandled()
		p.metrics.observeOutcome(typeName, outcomeUnhandled)
		p.dispatcher.schedule(ctx, msg)
		return nil, nil
	case 1:
	default:
		cfgErr := &errspkg.ConfigurationError{MessageType: typeName, Handlers: len(handlers)}
		stats.recordAmbiguous(cfgErr, p.classifier)
		p.metrics.observeOutcome(typeName, outcomeAmbiguous)
		p.Logger.Error("Ambiguous handler", cfgErr, loggingpkg.LogFields{
			"message_type": typeName,
			"handlers":     len(handlers),
		})
		return nil, cfgErr
	}

	handler, ok := handlers[0].(MessageHandler)
	if !ok {
		return nil, fmt.Errorf("pipeflow: handler for %s is %T, not a MessageHandler", typeName, handlers[0])
	}

	// The terminal records the context it was reached with so fan-out sees the
	// values process middleware added, such as the correlation id.
	handlerCtx := ctx
	core := func(ctx context.Context, msg any) (any, error) {
		handlerCtx = ctx
		return handler.Process(ctx, msg)
	}

	start := time.Now()
	result, err := p.runProcessChain(ctx, core, msg)
	stats.recordProcessed(time.Since(start), err, p.classifier)

	if err != nil {
		p.runErrorChain(handlerCtx, handler, msg, err)
		return nil, err
	}

	p.dispatcher.schedule(handlerCtx, msg)
	return result, nil
}

// runProcessChain invokes the process chain. Panics raised by middleware
// outside the recoverer link become *PanicError like handler panics do.
func (p *Pipeline) runProcessChain(ctx context.Context, core ProcessNext, msg any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &errspkg.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return p.builder.process(ctx, core)(ctx, msg)
}

// runErrorChain invokes the error chain. A panic inside it is logged so the
// caller still receives the original processing error.
func (p *Pipeline) runErrorChain(ctx context.Context, handler MessageHandler, msg any, processErr error) {
	defer func() {
		if r := recover(); r != nil {
			p.Logger.Error("Error chain panicked", &errspkg.PanicError{Value: r, Stack: debug.Stack()}, loggingpkg.LogFields{
				"message_type":   messageTypeName(reflect.TypeOf(msg)),
				"original_error": processErr.Error(),
				"correlation_id": ids.CorrelationID(ctx),
			})
		}
	}()
	p.builder.error(ctx, handler.OnError)(ctx, msg, processErr)
}

// ProcessAs processes msg and converts the handler result to R. A nil result
// yields the zero R.
func ProcessAs[R any](ctx context.Context, p *Pipeline, msg any) (R, error) {
	var zero R
	result, err := p.Process(ctx, msg)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(R)
	if !ok {
		return zero, &errspkg.ResultTypeError{
			Want: reflect.TypeFor[R]().String(),
			Got:  fmt.Sprintf("%T", result),
		}
	}
	return typed, nil
}
