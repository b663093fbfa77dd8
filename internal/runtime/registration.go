package runtime

import (
	"context"
	"fmt"
	"reflect"

	errspkg "github.com/drblury/pipeflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/pipeflow/internal/runtime/logging"
	"github.com/drblury/pipeflow/internal/runtime/resolver"
)

// Handler processes messages of type T synchronously. OnError is invoked as the
// terminal of the error chain when Process (or a process middleware) fails.
type Handler[T any] interface {
	Process(ctx context.Context, msg T) (any, error)
	OnError(ctx context.Context, msg T, err error)
}

// HandlerFuncs adapts plain functions to Handler. A nil ProcessFunc yields a
// nil result; a nil OnErrorFunc ignores failures.
type HandlerFuncs[T any] struct {
	ProcessFunc func(ctx context.Context, msg T) (any, error)
	OnErrorFunc func(ctx context.Context, msg T, err error)
}

func (h HandlerFuncs[T]) Process(ctx context.Context, msg T) (any, error) {
	if h.ProcessFunc == nil {
		return nil, nil
	}
	return h.ProcessFunc(ctx, msg)
}

func (h HandlerFuncs[T]) OnError(ctx context.Context, msg T, err error) {
	if h.OnErrorFunc != nil {
		h.OnErrorFunc(ctx, msg, err)
	}
}

// Subscriber is notified after a message of type T was processed successfully.
type Subscriber[T any] interface {
	OnProcessed(ctx context.Context, msg T) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc[T any] func(ctx context.Context, msg T) error

func (f SubscriberFunc[T]) OnProcessed(ctx context.Context, msg T) error {
	return f(ctx, msg)
}

// MessageHandler is the type-erased handler contract the pipeline resolves.
// Custom resolvers bind implementations of it under resolver.HandlerCapability.
type MessageHandler interface {
	Process(ctx context.Context, msg any) (any, error)
	OnError(ctx context.Context, msg any, err error)
}

// MessageSubscriber is the type-erased subscriber contract.
type MessageSubscriber interface {
	OnProcessed(ctx context.Context, msg any) error
}

// HandlerRegistration binds a handler for T. Exactly one of Handler (shared
// instance) or Factory (new instance per Process call) must be set.
type HandlerRegistration[T any] struct {
	Name    string
	Handler Handler[T]
	Factory func(ctx context.Context, r resolver.Resolver) (Handler[T], error)
}

// SubscriberRegistration binds a subscriber for T. Exactly one of Subscriber or
// Factory must be set.
type SubscriberRegistration[T any] struct {
	Name       string
	Subscriber Subscriber[T]
	Factory    func(ctx context.Context, r resolver.Resolver) (Subscriber[T], error)
}

type typedHandler[T any] struct {
	name    string
	handler Handler[T]
}

func (h *typedHandler[T]) Name() string { return h.name }

func (h *typedHandler[T]) Process(ctx context.Context, msg any) (any, error) {
	return h.handler.Process(ctx, msg.(T))
}

func (h *typedHandler[T]) OnError(ctx context.Context, msg any, err error) {
	h.handler.OnError(ctx, msg.(T), err)
}

type typedSubscriber[T any] struct {
	name       string
	subscriber Subscriber[T]
}

func (s *typedSubscriber[T]) Name() string { return s.name }

func (s *typedSubscriber[T]) OnProcessed(ctx context.Context, msg any) error {
	return s.subscriber.OnProcessed(ctx, msg.(T))
}

// RegisterHandler binds a handler for messages whose dynamic type is T.
// Registering a second handler for the same type is accepted here; Process
// reports the ambiguity when the type is processed.
func RegisterHandler[T any](p *Pipeline, reg HandlerRegistration[T]) error {
	if p == nil {
		return errspkg.ErrPipelineRequired
	}
	msgType, err := concreteType[T]()
	if err != nil {
		return err
	}
	if reg.Handler == nil && reg.Factory == nil {
		return errspkg.ErrHandlerRequired
	}
	registrar, err := p.registrar()
	if err != nil {
		return err
	}

	name := reg.Name
	if name == "" {
		name = "handler:" + messageTypeName(msgType)
	}

	var factory resolver.Factory
	lifetime := resolver.Singleton
	if reg.Handler != nil {
		factory = resolver.Instance(&typedHandler[T]{name: name, handler: reg.Handler})
	} else {
		lifetime = resolver.Transient
		build := reg.Factory
		factory = func(ctx context.Context, r resolver.Resolver) (any, error) {
			h, err := build(ctx, r)
			if err != nil {
				return nil, err
			}
			if h == nil {
				return nil, nil
			}
			return &typedHandler[T]{name: name, handler: h}, nil
		}
	}

	if err := registrar.Register(resolver.HandlerCapability(msgType), factory, lifetime); err != nil {
		return fmt.Errorf("register handler %s: %w", name, err)
	}
	p.stats.forType(msgType).addHandler(name)

	p.Logger.Info("Registered handler", loggingpkg.LogFields{
		"message_type": messageTypeName(msgType),
		"handler":      name,
		"lifetime":     lifetime.String(),
	})
	return nil
}

// RegisterSubscriber binds an additional subscriber for messages of type T.
// Subscribers are notified in registration order.
func RegisterSubscriber[T any](p *Pipeline, reg SubscriberRegistration[T]) error {
	if p == nil {
		return errspkg.ErrPipelineRequired
	}
	msgType, err := concreteType[T]()
	if err != nil {
		return err
	}
	if reg.Subscriber == nil && reg.Factory == nil {
		return errspkg.ErrSubscriberRequired
	}
	registrar, err := p.registrar()
	if err != nil {
		return err
	}

	stats := p.stats.forType(msgType)
	name := reg.Name
	if name == "" {
		name = fmt.Sprintf("subscriber:%s#%d", messageTypeName(msgType), stats.subscriberCount()+1)
	}

	var factory resolver.Factory
	lifetime := resolver.Singleton
	if reg.Subscriber != nil {
		factory = resolver.Instance(&typedSubscriber[T]{name: name, subscriber: reg.Subscriber})
	} else {
		lifetime = resolver.Transient
		build := reg.Factory
		factory = func(ctx context.Context, r resolver.Resolver) (any, error) {
			s, err := build(ctx, r)
			if err != nil {
				return nil, err
			}
			if s == nil {
				return nil, nil
			}
			return &typedSubscriber[T]{name: name, subscriber: s}, nil
		}
	}

	if err := registrar.Register(resolver.SubscriberCapability(msgType), factory, lifetime); err != nil {
		return fmt.Errorf("register subscriber %s: %w", name, err)
	}
	stats.addSubscriber(name)

	p.Logger.Info("Registered subscriber", loggingpkg.LogFields{
		"message_type": messageTypeName(msgType),
		"subscriber":   name,
		"lifetime":     lifetime.String(),
	})
	return nil
}

func concreteType[T any]() (reflect.Type, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Interface {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrConcreteTypeRequired, t)
	}
	return t, nil
}

// messageTypeName renders a dispatch key for logs, metrics labels and topics.
// Pointer and value types keep distinct names.
func messageTypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// componentName returns the registration name of a resolved handler or
// subscriber, falling back to its dynamic type.
func componentName(component any, fallback string) string {
	if named, ok := component.(interface{ Name() string }); ok && named.Name() != "" {
		return named.Name()
	}
	if fallback != "" {
		return fallback
	}
	return fmt.Sprintf("%T", component)
}
