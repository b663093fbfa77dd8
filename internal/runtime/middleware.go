package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/pipeflow/internal/runtime/errors"
	"github.com/drblury/pipeflow/internal/runtime/ids"
	"github.com/drblury/pipeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/pipeflow/internal/runtime/logging"
	"github.com/drblury/pipeflow/internal/runtime/resolver"
)

// MiddlewareBuilder constructs a middleware instance for one chain execution.
// Returning nil skips the link for that execution.
type MiddlewareBuilder func(*Pipeline) (any, error)

// MiddlewareRegistration names a middleware and the chain it belongs to.
// Middleware must implement the chain's interface (ProcessMiddleware,
// ErrorMiddleware or SubscriptionMiddleware) and is shared by every
// execution. Builder runs on every resolution instead.
type MiddlewareRegistration struct {
	Name       string
	Kind       ChainKind
	Middleware any
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard chains used by NewPipeline. Later
// entries wrap earlier ones, so CorrelationID is the outermost process link.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		RecovererMiddleware(),
		MetricsMiddleware(),
		TracerMiddleware(),
		CorrelationIDMiddleware(),
		ErrorLoggingMiddleware(nil),
		SubscriptionRecovererMiddleware(),
		SubscriptionMetricsMiddleware(),
		SubscriptionTracerMiddleware(),
	}
}

// registerMiddleware binds reg in the resolver and appends its descriptor.
func (p *Pipeline) registerMiddleware(reg MiddlewareRegistration) error {
	if reg.Name == "" {
		return errspkg.ErrNameRequired
	}
	if !reg.Kind.valid() {
		return fmt.Errorf("%w: %s", errspkg.ErrUnknownChainKind, reg.Kind)
	}
	registrar, err := p.registrar()
	if err != nil {
		return err
	}

	var (
		factory  resolver.Factory
		lifetime resolver.Lifetime
	)
	switch {
	case reg.Middleware != nil:
		if !implementsChain(reg.Kind, reg.Middleware) {
			return fmt.Errorf("%T does not implement the %s middleware contract", reg.Middleware, reg.Kind)
		}
		factory = resolver.Instance(reg.Middleware)
		lifetime = resolver.Singleton
	case reg.Builder != nil:
		build := reg.Builder
		factory = func(context.Context, resolver.Resolver) (any, error) {
			return build(p)
		}
		lifetime = resolver.Transient
	default:
		return errspkg.ErrMiddlewareRequired
	}

	if err := p.chains.Add(MiddlewareDescriptor{Kind: reg.Kind, Name: reg.Name}); err != nil {
		return err
	}
	return registrar.Register(resolver.MiddlewareCapability(reg.Kind.resolverKind(), reg.Name), factory, lifetime)
}

func implementsChain(kind ChainKind, instance any) bool {
	switch kind {
	case ChainProcess:
		_, ok := instance.(ProcessMiddleware)
		return ok
	case ChainError:
		_, ok := instance.(ErrorMiddleware)
		return ok
	case ChainSubscription:
		_, ok := instance.(SubscriptionMiddleware)
		return ok
	default:
		return false
	}
}

// RecovererMiddleware converts handler panics into *PanicError so they flow
// through the error chain.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "recoverer",
		Kind: ChainProcess,
		Middleware: ProcessMiddlewareFunc(func(ctx context.Context, msg any, next ProcessNext) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					result, err = nil, &errspkg.PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			return next(ctx, msg)
		}),
	}
}

// CorrelationIDMiddleware ensures each processed message carries a correlation
// identifier on its context.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Kind: ChainProcess,
		Middleware: ProcessMiddlewareFunc(func(ctx context.Context, msg any, next ProcessNext) (any, error) {
			ctx, _ = ids.EnsureCorrelationID(ctx)
			return next(ctx, msg)
		}),
	}
}

// TracerMiddleware wraps handler execution in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Kind: ChainProcess,
		Builder: func(p *Pipeline) (any, error) {
			tracer := p.tracer
			return ProcessMiddlewareFunc(func(ctx context.Context, msg any, next ProcessNext) (any, error) {
				ctx, span := tracer.Start(ctx, "pipeflow.process", trace.WithAttributes(
					attribute.String("message.type", messageTypeName(reflect.TypeOf(msg))),
					attribute.String("message.correlation_id", ids.CorrelationID(ctx)),
				))
				defer span.End()

				result, err := next(ctx, msg)
				recordSpanError(span, err)
				return result, err
			}), nil
		},
	}
}

// MetricsMiddleware records Prometheus counters and durations for handled
// messages. It is skipped when metrics are disabled.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Kind: ChainProcess,
		Builder: func(p *Pipeline) (any, error) {
			if p.metrics == nil {
				return nil, nil
			}
			m := p.metrics
			return ProcessMiddlewareFunc(func(ctx context.Context, msg any, next ProcessNext) (any, error) {
				start := time.Now()
				result, err := next(ctx, msg)
				m.observeProcess(messageTypeName(reflect.TypeOf(msg)), time.Since(start), err)
				return result, err
			}), nil
		},
	}
}

// LogMessagesMiddleware logs every processed message at debug level.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Kind: ChainProcess,
		Builder: func(p *Pipeline) (any, error) {
			l := logger
			if l == nil {
				l = p.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return ProcessMiddlewareFunc(func(ctx context.Context, msg any, next ProcessNext) (any, error) {
				ctx, _ = ids.EnsureCorrelationID(ctx)
				l.Debug("Processing message", loggingpkg.LogFields{
					"message_type":   messageTypeName(reflect.TypeOf(msg)),
					"correlation_id": ids.CorrelationID(ctx),
					"payload":        describePayload(msg),
				})
				return next(ctx, msg)
			}), nil
		},
	}
}

// TimingMiddleware logs how long the rest of the process chain took.
func TimingMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "timing",
		Kind: ChainProcess,
		Builder: func(p *Pipeline) (any, error) {
			l := logger
			if l == nil {
				l = p.Logger
			}
			return ProcessMiddlewareFunc(func(ctx context.Context, msg any, next ProcessNext) (any, error) {
				ctx, correlationID := ids.EnsureCorrelationID(ctx)
				start := time.Now()
				result, err := next(ctx, msg)
				l.Info("Message processed", loggingpkg.LogFields{
					"message_type":   messageTypeName(reflect.TypeOf(msg)),
					"correlation_id": correlationID,
					"duration_ms":    time.Since(start).Milliseconds(),
					"failed":         err != nil,
				})
				return result, err
			}), nil
		},
	}
}

// ErrorLoggingMiddleware logs processing failures before the handler's
// OnError runs.
func ErrorLoggingMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "error_logging",
		Kind: ChainError,
		Builder: func(p *Pipeline) (any, error) {
			l := logger
			if l == nil {
				l = p.Logger
			}
			return ErrorMiddlewareFunc(func(ctx context.Context, msg any, err error, next ErrorNext) {
				l.Error("Message processing failed", err, loggingpkg.LogFields{
					"message_type":   messageTypeName(reflect.TypeOf(msg)),
					"correlation_id": ids.CorrelationID(ctx),
				})
				next(ctx, msg, err)
			}), nil
		},
	}
}

// SubscriptionRecovererMiddleware converts subscriber panics into errors.
func SubscriptionRecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "subscription_recoverer",
		Kind: ChainSubscription,
		Middleware: SubscriptionMiddlewareFunc(func(ctx context.Context, msg any, next SubscriptionNext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &errspkg.PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			return next(ctx, msg)
		}),
	}
}

// SubscriptionTracerMiddleware wraps each notification in a span labelled with
// the subscriber name.
func SubscriptionTracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "subscription_tracer",
		Kind: ChainSubscription,
		Builder: func(p *Pipeline) (any, error) {
			tracer := p.tracer
			return SubscriptionMiddlewareFunc(func(ctx context.Context, msg any, next SubscriptionNext) error {
				ctx, span := tracer.Start(ctx, "pipeflow.notify", trace.WithAttributes(
					attribute.String("message.type", messageTypeName(reflect.TypeOf(msg))),
					attribute.String("message.correlation_id", ids.CorrelationID(ctx)),
					attribute.String("pipeflow.subscriber", SubscriberName(ctx)),
				))
				defer span.End()

				err := next(ctx, msg)
				recordSpanError(span, err)
				return err
			}), nil
		},
	}
}

// SubscriptionMetricsMiddleware counts notifications per subscriber. It is
// skipped when metrics are disabled.
func SubscriptionMetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "subscription_metrics",
		Kind: ChainSubscription,
		Builder: func(p *Pipeline) (any, error) {
			if p.metrics == nil {
				return nil, nil
			}
			m := p.metrics
			return SubscriptionMiddlewareFunc(func(ctx context.Context, msg any, next SubscriptionNext) error {
				start := time.Now()
				err := next(ctx, msg)
				m.observeNotification(messageTypeName(reflect.TypeOf(msg)), SubscriberName(ctx), time.Since(start), err)
				return err
			}), nil
		},
	}
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// describePayload renders msg for debug logs, preferring JSON.
func describePayload(msg any) string {
	if data, err := jsoncodec.Marshal(msg); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%+v", msg)
}
