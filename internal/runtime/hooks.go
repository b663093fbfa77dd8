package runtime

import (
	"context"
	"reflect"
	"time"

	"github.com/drblury/pipeflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/pipeflow/internal/runtime/logging"
)

// HookContext describes one chain execution to hooks.
type HookContext struct {
	// Chain is ChainProcess or ChainSubscription.
	Chain ChainKind
	// MessageType is the dispatch key of the message.
	MessageType string
	// Subscriber is the subscriber name; empty for the process chain.
	Subscriber string
	// CorrelationID is read from the context when the execution starts.
	CorrelationID string
	// Message is the message being handled. Hooks must not mutate it.
	Message any
	// Context is the context the hook middleware was invoked with.
	Context context.Context
	// StartedAt is when the execution started.
	StartedAt time.Time
	// Duration is set for OnDone and OnError.
	Duration time.Duration
}

// Hooks defines lifecycle callbacks. All hooks are optional.
type Hooks struct {
	// OnStart is called before the rest of the chain runs.
	OnStart func(hc HookContext)
	// OnDone is called when the rest of the chain succeeded.
	OnDone func(hc HookContext)
	// OnError is called with the error the rest of the chain returned.
	OnError func(hc HookContext, err error)
}

// Merge combines two Hooks. The hooks from other run after the hooks from h.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnStart: chainHooks(h.OnStart, other.OnStart),
		OnDone:  chainHooks(h.OnDone, other.OnDone),
		OnError: chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainHooks(a, b func(HookContext)) func(HookContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(hc HookContext) {
		a(hc)
		b(hc)
	}
}

func chainErrorHooks(a, b func(HookContext, error)) func(HookContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(hc HookContext, err error) {
		a(hc, err)
		b(hc, err)
	}
}

// HooksMiddleware invokes hooks around the process chain.
func HooksMiddleware(hooks Hooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "hooks",
		Kind: ChainProcess,
		Middleware: ProcessMiddlewareFunc(func(ctx context.Context, msg any, next ProcessNext) (any, error) {
			ctx, _ = ids.EnsureCorrelationID(ctx)
			hc := newHookContext(ctx, ChainProcess, msg)
			hooks.start(hc)
			result, err := next(ctx, msg)
			hooks.finish(hc, err)
			return result, err
		}),
	}
}

// SubscriptionHooksMiddleware invokes hooks around every subscriber
// notification.
func SubscriptionHooksMiddleware(hooks Hooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "subscription_hooks",
		Kind: ChainSubscription,
		Middleware: SubscriptionMiddlewareFunc(func(ctx context.Context, msg any, next SubscriptionNext) error {
			hc := newHookContext(ctx, ChainSubscription, msg)
			hooks.start(hc)
			err := next(ctx, msg)
			hooks.finish(hc, err)
			return err
		}),
	}
}

func newHookContext(ctx context.Context, chain ChainKind, msg any) HookContext {
	return HookContext{
		Chain:         chain,
		MessageType:   messageTypeName(reflect.TypeOf(msg)),
		Subscriber:    SubscriberName(ctx),
		CorrelationID: ids.CorrelationID(ctx),
		Message:       msg,
		Context:       ctx,
		StartedAt:     time.Now(),
	}
}

func (h Hooks) start(hc HookContext) {
	if h.OnStart != nil {
		h.OnStart(hc)
	}
}

func (h Hooks) finish(hc HookContext, err error) {
	hc.Duration = time.Since(hc.StartedAt)
	if err != nil {
		if h.OnError != nil {
			h.OnError(hc, err)
		}
		return
	}
	if h.OnDone != nil {
		h.OnDone(hc)
	}
}

// LoggingHooks returns hooks that log lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) Hooks {
	fields := func(hc HookContext) loggingpkg.LogFields {
		f := loggingpkg.LogFields{
			"chain":          hc.Chain.String(),
			"message_type":   hc.MessageType,
			"correlation_id": hc.CorrelationID,
		}
		if hc.Subscriber != "" {
			f["subscriber"] = hc.Subscriber
		}
		return f
	}
	return Hooks{
		OnStart: func(hc HookContext) {
			logger.Debug("Execution started", fields(hc))
		},
		OnDone: func(hc HookContext) {
			f := fields(hc)
			f["duration_ms"] = hc.Duration.Milliseconds()
			logger.Info("Execution completed", f)
		},
		OnError: func(hc HookContext, err error) {
			f := fields(hc)
			f["duration_ms"] = hc.Duration.Milliseconds()
			logger.Error("Execution failed", err, f)
		},
	}
}

// MetricsHooks returns hooks that report to caller-supplied counters.
func MetricsHooks(onStart, onDone, onError func(messageType, subscriber string)) Hooks {
	return Hooks{
		OnStart: func(hc HookContext) {
			if onStart != nil {
				onStart(hc.MessageType, hc.Subscriber)
			}
		},
		OnDone: func(hc HookContext) {
			if onDone != nil {
				onDone(hc.MessageType, hc.Subscriber)
			}
		},
		OnError: func(hc HookContext, err error) {
			if onError != nil {
				onError(hc.MessageType, hc.Subscriber)
			}
		},
	}
}

// AlertingHooks returns hooks that call alertFunc on failures only.
func AlertingHooks(alertFunc func(hc HookContext, err error)) Hooks {
	return Hooks{
		OnError: alertFunc,
	}
}
