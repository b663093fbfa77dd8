package runtime

import (
	"fmt"

	errspkg "github.com/drblury/pipeflow/internal/runtime/errors"
)

// MiddlewareDescriptor names a middleware bound in the resolver for one chain.
type MiddlewareDescriptor struct {
	Kind ChainKind `json:"kind"`
	Name string    `json:"name"`
}

// Chains holds the ordered descriptors of every chain kind. The same lists
// apply to every message type. A Pipeline copies the struct at construction
// and never mutates it afterwards.
type Chains struct {
	Process      []MiddlewareDescriptor `json:"process"`
	Error        []MiddlewareDescriptor `json:"error"`
	Subscription []MiddlewareDescriptor `json:"subscription"`
}

// Add appends d to the list of its kind. Names are unique per kind.
func (c *Chains) Add(d MiddlewareDescriptor) error {
	if d.Name == "" {
		return errspkg.ErrNameRequired
	}
	for _, existing := range c.For(d.Kind) {
		if existing.Name == d.Name {
			return fmt.Errorf("pipeflow: %s middleware %q already registered", d.Kind, d.Name)
		}
	}
	switch d.Kind {
	case ChainProcess:
		c.Process = append(c.Process, d)
	case ChainError:
		c.Error = append(c.Error, d)
	case ChainSubscription:
		c.Subscription = append(c.Subscription, d)
	default:
		return fmt.Errorf("%w: %s", errspkg.ErrUnknownChainKind, d.Kind)
	}
	return nil
}

// For returns the descriptors of kind in registration order.
func (c Chains) For(kind ChainKind) []MiddlewareDescriptor {
	switch kind {
	case ChainProcess:
		return c.Process
	case ChainError:
		return c.Error
	case ChainSubscription:
		return c.Subscription
	default:
		return nil
	}
}

// Clone returns a deep copy.
func (c Chains) Clone() Chains {
	return Chains{
		Process:      append([]MiddlewareDescriptor(nil), c.Process...),
		Error:        append([]MiddlewareDescriptor(nil), c.Error...),
		Subscription: append([]MiddlewareDescriptor(nil), c.Subscription...),
	}
}

// Names lists the descriptor names of kind, for introspection.
func (c Chains) Names(kind ChainKind) []string {
	descriptors := c.For(kind)
	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.Name
	}
	return names
}
