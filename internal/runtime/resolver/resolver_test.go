package resolver

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct{ ID string }

var orderType = reflect.TypeOf(order{})

func TestResolveAllKeepsRegistrationOrder(t *testing.T) {
	c := NewContainer()
	capability := SubscriberCapability(orderType)
	require.NoError(t, c.Register(capability, Instance("first"), Singleton))
	require.NoError(t, c.Register(capability, Instance("second"), Transient))
	require.NoError(t, c.Register(capability, Instance("third"), Singleton))

	got, err := c.ResolveAll(context.Background(), capability)
	require.NoError(t, err)
	assert.Equal(t, []any{"first", "second", "third"}, got)
}

func TestResolveAllUnknownCapability(t *testing.T) {
	c := NewContainer()
	got, err := c.ResolveAll(context.Background(), HandlerCapability(orderType))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCapabilitiesAreKeyedByTypeIdentity(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register(HandlerCapability(orderType), Instance("value"), Singleton))

	got, err := c.ResolveAll(context.Background(), HandlerCapability(reflect.TypeOf(&order{})))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, c.Has(HandlerCapability(reflect.TypeOf(order{}))))
}

func TestResolveOneReturnsLastBinding(t *testing.T) {
	c := NewContainer()
	capability := MiddlewareCapability(KindProcessMiddleware, "timer")
	require.NoError(t, c.Register(capability, Instance("old"), Singleton))
	require.NoError(t, c.Register(capability, Instance("new"), Singleton))

	got, err := c.ResolveOne(context.Background(), capability)
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestResolveOneMissingReturnsNil(t *testing.T) {
	c := NewContainer()
	got, err := c.ResolveOne(context.Background(), MiddlewareCapability(KindErrorMiddleware, "nope"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLifetimes(t *testing.T) {
	c := NewContainer()
	var singletonBuilds, transientBuilds atomic.Int32

	single := MiddlewareCapability(KindProcessMiddleware, "single")
	transient := MiddlewareCapability(KindProcessMiddleware, "transient")
	require.NoError(t, c.Register(single, func(context.Context, Resolver) (any, error) {
		return singletonBuilds.Add(1), nil
	}, Singleton))
	require.NoError(t, c.Register(transient, func(context.Context, Resolver) (any, error) {
		return transientBuilds.Add(1), nil
	}, Transient))

	for i := 0; i < 3; i++ {
		_, err := c.ResolveOne(context.Background(), single)
		require.NoError(t, err)
		_, err = c.ResolveOne(context.Background(), transient)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), singletonBuilds.Load())
	assert.Equal(t, int32(3), transientBuilds.Load())
}

func TestSingletonBuiltOnceUnderConcurrency(t *testing.T) {
	c := NewContainer()
	var builds atomic.Int32
	capability := HandlerCapability(orderType)
	require.NoError(t, c.Register(capability, func(context.Context, Resolver) (any, error) {
		builds.Add(1)
		return &order{}, nil
	}, Singleton))

	var wg sync.WaitGroup
	results := make([]any, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.ResolveOne(context.Background(), capability)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestFactoryErrorIsWrapped(t *testing.T) {
	c := NewContainer()
	boom := errors.New("boom")
	capability := HandlerCapability(orderType)
	require.NoError(t, c.Register(capability, func(context.Context, Resolver) (any, error) {
		return nil, boom
	}, Singleton))

	_, err := c.ResolveAll(context.Background(), capability)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var resolveErr *ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, capability, resolveErr.Capability)
	assert.Contains(t, err.Error(), "handler[resolver.order]")

	_, err = c.ResolveOne(context.Background(), capability)
	assert.ErrorIs(t, err, boom)
}

func TestFactoryReceivesResolver(t *testing.T) {
	c := NewContainer()
	dep := MiddlewareCapability(KindProcessMiddleware, "dep")
	require.NoError(t, c.Register(dep, Instance("collaborator"), Singleton))
	require.NoError(t, c.Register(HandlerCapability(orderType), func(ctx context.Context, r Resolver) (any, error) {
		v, err := r.ResolveOne(ctx, dep)
		if err != nil {
			return nil, err
		}
		return "uses " + v.(string), nil
	}, Transient))

	got, err := c.ResolveOne(context.Background(), HandlerCapability(orderType))
	require.NoError(t, err)
	assert.Equal(t, "uses collaborator", got)
}

func TestNilInstancesAreDropped(t *testing.T) {
	c := NewContainer()
	capability := SubscriberCapability(orderType)
	require.NoError(t, c.Register(capability, Instance(nil), Singleton))
	require.NoError(t, c.Register(capability, Instance("kept"), Singleton))

	got, err := c.ResolveAll(context.Background(), capability)
	require.NoError(t, err)
	assert.Equal(t, []any{"kept"}, got)
}

func TestRegisterValidation(t *testing.T) {
	c := NewContainer()
	assert.Error(t, c.Register(HandlerCapability(orderType), nil, Singleton))
	assert.Error(t, c.Register(Capability{Name: "x"}, Instance(1), Singleton))
}

func TestBindings(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register(HandlerCapability(orderType), Instance(1), Singleton))
	require.NoError(t, c.Register(MiddlewareCapability(KindErrorMiddleware, "log"), Instance(2), Transient))

	bindings := c.Bindings()
	require.Len(t, bindings, 2)
	assert.Equal(t, "handler[resolver.order]", bindings[0].Capability.String())
	assert.Equal(t, "singleton", bindings[0].Lifetime.String())
	assert.Equal(t, "error_middleware[log]", bindings[1].Capability.String())
	assert.Equal(t, "transient", bindings[1].Lifetime.String())
}
