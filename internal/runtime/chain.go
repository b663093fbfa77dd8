package runtime

import (
	"context"
	"fmt"

	loggingpkg "github.com/drblury/pipeflow/internal/runtime/logging"
	"github.com/drblury/pipeflow/internal/runtime/resolver"
)

// ChainKind selects one of the three independent middleware chains.
type ChainKind int

const (
	// ChainProcess wraps the handler's Process call.
	ChainProcess ChainKind = iota + 1
	// ChainError wraps the handler's OnError call after a processing failure.
	ChainError
	// ChainSubscription wraps each subscriber notification during fan-out.
	ChainSubscription
)

func (k ChainKind) String() string {
	switch k {
	case ChainProcess:
		return "process"
	case ChainError:
		return "error"
	case ChainSubscription:
		return "subscription"
	default:
		return fmt.Sprintf("ChainKind(%d)", int(k))
	}
}

// MarshalText renders the kind by name in JSON payloads.
func (k ChainKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k ChainKind) valid() bool {
	return k >= ChainProcess && k <= ChainSubscription
}

func (k ChainKind) resolverKind() resolver.Kind {
	switch k {
	case ChainError:
		return resolver.KindErrorMiddleware
	case ChainSubscription:
		return resolver.KindSubscriptionMiddleware
	default:
		return resolver.KindProcessMiddleware
	}
}

// ProcessNext invokes the remainder of a process chain.
type ProcessNext func(ctx context.Context, msg any) (any, error)

// ErrorNext invokes the remainder of an error chain.
type ErrorNext func(ctx context.Context, msg any, err error)

// SubscriptionNext invokes the remainder of a subscription chain.
type SubscriptionNext func(ctx context.Context, msg any) error

// ProcessMiddleware wraps synchronous handler execution. next is never nil and
// should be called at most once.
type ProcessMiddleware interface {
	Process(ctx context.Context, msg any, next ProcessNext) (any, error)
}

// ProcessMiddlewareFunc adapts a function to ProcessMiddleware.
type ProcessMiddlewareFunc func(ctx context.Context, msg any, next ProcessNext) (any, error)

func (f ProcessMiddlewareFunc) Process(ctx context.Context, msg any, next ProcessNext) (any, error) {
	return f(ctx, msg, next)
}

// ErrorMiddleware observes a processing failure. It cannot suppress the error
// returned to the caller.
type ErrorMiddleware interface {
	OnError(ctx context.Context, msg any, err error, next ErrorNext)
}

// ErrorMiddlewareFunc adapts a function to ErrorMiddleware.
type ErrorMiddlewareFunc func(ctx context.Context, msg any, err error, next ErrorNext)

func (f ErrorMiddlewareFunc) OnError(ctx context.Context, msg any, err error, next ErrorNext) {
	f(ctx, msg, err, next)
}

// SubscriptionMiddleware wraps one subscriber notification.
type SubscriptionMiddleware interface {
	OnProcessed(ctx context.Context, msg any, next SubscriptionNext) error
}

// SubscriptionMiddlewareFunc adapts a function to SubscriptionMiddleware.
type SubscriptionMiddlewareFunc func(ctx context.Context, msg any, next SubscriptionNext) error

func (f SubscriptionMiddlewareFunc) OnProcessed(ctx context.Context, msg any, next SubscriptionNext) error {
	return f(ctx, msg, next)
}

// assemble folds links over terminal in registration order, so the last link
// ends up outermost.
func assemble[L, N any](terminal N, links []L, wrap func(L, N) N) N {
	next := terminal
	for _, link := range links {
		next = wrap(link, next)
	}
	return next
}

// chainBuilder resolves descriptors into fresh chains for every execution.
type chainBuilder struct {
	resolver resolver.Resolver
	chains   Chains
	logger   loggingpkg.ServiceLogger
}

func (b *chainBuilder) process(ctx context.Context, core ProcessNext) ProcessNext {
	if core == nil {
		core = func(context.Context, any) (any, error) { return nil, nil }
	}
	links := resolveLinks[ProcessMiddleware](ctx, b, ChainProcess)
	return assemble(core, links, func(m ProcessMiddleware, next ProcessNext) ProcessNext {
		return func(ctx context.Context, msg any) (any, error) {
			return m.Process(ctx, msg, next)
		}
	})
}

func (b *chainBuilder) error(ctx context.Context, core ErrorNext) ErrorNext {
	if core == nil {
		core = func(context.Context, any, error) {}
	}
	links := resolveLinks[ErrorMiddleware](ctx, b, ChainError)
	return assemble(core, links, func(m ErrorMiddleware, next ErrorNext) ErrorNext {
		return func(ctx context.Context, msg any, err error) {
			m.OnError(ctx, msg, err, next)
		}
	})
}

func (b *chainBuilder) subscription(ctx context.Context, core SubscriptionNext) SubscriptionNext {
	if core == nil {
		core = func(context.Context, any) error { return nil }
	}
	links := resolveLinks[SubscriptionMiddleware](ctx, b, ChainSubscription)
	return assemble(core, links, func(m SubscriptionMiddleware, next SubscriptionNext) SubscriptionNext {
		return func(ctx context.Context, msg any) error {
			return m.OnProcessed(ctx, msg, next)
		}
	})
}

// resolveLinks resolves every descriptor of kind. Descriptors without an
// instance are omitted rather than replaced by a pass-through link.
func resolveLinks[M any](ctx context.Context, b *chainBuilder, kind ChainKind) []M {
	descriptors := b.chains.For(kind)
	links := make([]M, 0, len(descriptors))
	for _, d := range descriptors {
		instance, err := b.resolver.ResolveOne(ctx, resolver.MiddlewareCapability(kind.resolverKind(), d.Name))
		if err != nil {
			b.logger.Error("Skipping middleware", err, loggingpkg.LogFields{
				"chain":      kind.String(),
				"middleware": d.Name,
			})
			continue
		}
		if instance == nil {
			continue
		}
		link, ok := instance.(M)
		if !ok {
			b.logger.Error("Skipping middleware", fmt.Errorf("%T does not implement the %s middleware contract", instance, kind), loggingpkg.LogFields{
				"chain":      kind.String(),
				"middleware": d.Name,
			})
			continue
		}
		links = append(links, link)
	}
	return links
}
