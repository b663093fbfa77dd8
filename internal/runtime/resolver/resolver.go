// Package resolver is the component container the pipeline queries for
// handlers, subscribers and middleware instances.
package resolver

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Kind classifies what a capability resolves to.
type Kind string

const (
	KindHandler                Kind = "handler"
	KindSubscriber             Kind = "subscriber"
	KindProcessMiddleware      Kind = "process_middleware"
	KindErrorMiddleware        Kind = "error_middleware"
	KindSubscriptionMiddleware Kind = "subscription_middleware"
)

// Capability is the lookup key. Handler and subscriber capabilities carry the
// message type; middleware capabilities carry the registration name.
type Capability struct {
	Kind Kind
	Type reflect.Type
	Name string
}

// String renders the capability for logs and errors.
func (c Capability) String() string {
	switch {
	case c.Type != nil:
		return fmt.Sprintf("%s[%s]", c.Kind, c.Type)
	case c.Name != "":
		return fmt.Sprintf("%s[%s]", c.Kind, c.Name)
	default:
		return string(c.Kind)
	}
}

// HandlerCapability keys the handler bound to messages of type t.
func HandlerCapability(t reflect.Type) Capability {
	return Capability{Kind: KindHandler, Type: t}
}

// SubscriberCapability keys the subscribers bound to messages of type t.
func SubscriberCapability(t reflect.Type) Capability {
	return Capability{Kind: KindSubscriber, Type: t}
}

// MiddlewareCapability keys a named middleware of the given kind.
func MiddlewareCapability(kind Kind, name string) Capability {
	return Capability{Kind: kind, Name: name}
}

// Lifetime controls how often a factory runs.
type Lifetime int

const (
	// Transient runs the factory on every resolution.
	Transient Lifetime = iota
	// Singleton runs the factory once; a failed build is retried next time.
	Singleton
)

func (l Lifetime) String() string {
	if l == Singleton {
		return "singleton"
	}
	return "transient"
}

// Factory builds a component. It receives the resolver so components can look
// up their own collaborators.
type Factory func(ctx context.Context, r Resolver) (any, error)

// Resolver is the lookup contract the pipeline depends on.
type Resolver interface {
	// ResolveAll returns every instance bound to c in registration order.
	ResolveAll(ctx context.Context, c Capability) ([]any, error)
	// ResolveOne returns the most recent binding for c, or nil when none exists.
	ResolveOne(ctx context.Context, c Capability) (any, error)
}

// Registrar accepts new bindings.
type Registrar interface {
	Register(c Capability, factory Factory, lifetime Lifetime) error
}

// Instance returns a factory that always yields v.
func Instance(v any) Factory {
	return func(context.Context, Resolver) (any, error) { return v, nil }
}

// ResolveError reports a failing factory.
type ResolveError struct {
	Capability Capability
	Err        error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("pipeflow: resolve %s: %v", e.Capability, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Binding describes one registration, for introspection.
type Binding struct {
	Capability Capability
	Lifetime   Lifetime
}

type binding struct {
	capability Capability
	factory    Factory
	lifetime   Lifetime

	mu       sync.Mutex
	built    bool
	instance any
}

func (b *binding) resolve(ctx context.Context, r Resolver) (any, error) {
	if b.lifetime == Transient {
		return b.factory(ctx, r)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return b.instance, nil
	}
	instance, err := b.factory(ctx, r)
	if err != nil {
		return nil, err
	}
	b.instance = instance
	b.built = true
	return instance, nil
}

// Container is the default Resolver. It is safe for concurrent use; bindings
// added while a resolution is running are seen by later resolutions only.
type Container struct {
	mu       sync.RWMutex
	bindings map[Capability][]*binding
	order    []*binding
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{bindings: make(map[Capability][]*binding)}
}

// Register appends a binding for c.
func (c *Container) Register(capability Capability, factory Factory, lifetime Lifetime) error {
	if factory == nil {
		return fmt.Errorf("pipeflow: nil factory for %s", capability)
	}
	if capability.Kind == "" {
		return fmt.Errorf("pipeflow: capability kind is required")
	}
	b := &binding{capability: capability, factory: factory, lifetime: lifetime}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings[capability] = append(c.bindings[capability], b)
	c.order = append(c.order, b)
	return nil
}

func (c *Container) snapshot(capability Capability) []*binding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bound := c.bindings[capability]
	out := make([]*binding, len(bound))
	copy(out, bound)
	return out
}

// ResolveAll builds every binding for capability in registration order. Nil
// instances are dropped.
func (c *Container) ResolveAll(ctx context.Context, capability Capability) ([]any, error) {
	bound := c.snapshot(capability)
	if len(bound) == 0 {
		return nil, nil
	}
	instances := make([]any, 0, len(bound))
	for _, b := range bound {
		instance, err := b.resolve(ctx, c)
		if err != nil {
			return nil, &ResolveError{Capability: capability, Err: err}
		}
		if instance != nil {
			instances = append(instances, instance)
		}
	}
	return instances, nil
}

// ResolveOne builds the last binding registered for capability.
func (c *Container) ResolveOne(ctx context.Context, capability Capability) (any, error) {
	bound := c.snapshot(capability)
	if len(bound) == 0 {
		return nil, nil
	}
	instance, err := bound[len(bound)-1].resolve(ctx, c)
	if err != nil {
		return nil, &ResolveError{Capability: capability, Err: err}
	}
	return instance, nil
}

// Has reports whether anything is bound to capability.
func (c *Container) Has(capability Capability) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bindings[capability]) > 0
}

// Bindings lists registrations in the order they were made.
func (c *Container) Bindings() []Binding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Binding, 0, len(c.order))
	for _, b := range c.order {
		out = append(out, Binding{Capability: b.capability, Lifetime: b.lifetime})
	}
	return out
}
