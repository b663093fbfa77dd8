package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pipeflow/internal/runtime/resolver"
)

func TestChainKindString(t *testing.T) {
	tests := []struct {
		kind ChainKind
		want string
	}{
		{ChainProcess, "process"},
		{ChainError, "error"},
		{ChainSubscription, "subscription"},
		{ChainKind(0), "ChainKind(0)"},
		{ChainKind(9), "ChainKind(9)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
			text, err := tt.kind.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(text))
		})
	}
}

func TestAssembleLastLinkIsOutermost(t *testing.T) {
	var trace []string
	terminal := func() { trace = append(trace, "terminal") }

	links := []string{"first", "second", "third"}
	run := assemble(terminal, links, func(name string, next func()) func() {
		return func() {
			trace = append(trace, name+">")
			next()
			trace = append(trace, "<"+name)
		}
	})
	run()

	assert.Equal(t, []string{
		"third>", "second>", "first>",
		"terminal",
		"<first", "<second", "<third",
	}, trace)
}

func TestAssembleWithoutLinksReturnsTerminal(t *testing.T) {
	called := false
	run := assemble(func() { called = true }, []string(nil), func(string, func()) func() {
		t.Fatal("wrap must not be called")
		return nil
	})
	run()
	assert.True(t, called)
}

func newTestChainBuilder(t *testing.T, logger *recordingLogger) (*chainBuilder, *resolver.Container) {
	t.Helper()
	container := resolver.NewContainer()
	return &chainBuilder{resolver: container, logger: logger}, container
}

func bindMiddleware(t *testing.T, b *chainBuilder, c *resolver.Container, kind ChainKind, name string, factory resolver.Factory) {
	t.Helper()
	require.NoError(t, b.chains.Add(MiddlewareDescriptor{Kind: kind, Name: name}))
	require.NoError(t, c.Register(resolver.MiddlewareCapability(kind.resolverKind(), name), factory, resolver.Transient))
}

func tracingProcessLink(trace *[]string, name string) ProcessMiddleware {
	return ProcessMiddlewareFunc(func(ctx context.Context, msg any, next ProcessNext) (any, error) {
		*trace = append(*trace, name)
		return next(ctx, msg)
	})
}

func TestChainBuilderProcessOrder(t *testing.T) {
	logger := newRecordingLogger()
	b, c := newTestChainBuilder(t, logger)

	var trace []string
	bindMiddleware(t, b, c, ChainProcess, "inner", resolver.Instance(tracingProcessLink(&trace, "inner")))
	bindMiddleware(t, b, c, ChainProcess, "outer", resolver.Instance(tracingProcessLink(&trace, "outer")))

	result, err := b.process(context.Background(), func(_ context.Context, msg any) (any, error) {
		trace = append(trace, "core")
		return msg.(string) + "!", nil
	})(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, "hi!", result)
	assert.Equal(t, []string{"outer", "inner", "core"}, trace)
}

func TestChainBuilderSkipsUnusableLinks(t *testing.T) {
	logger := newRecordingLogger()
	b, c := newTestChainBuilder(t, logger)

	var trace []string
	bindMiddleware(t, b, c, ChainProcess, "nil_instance", func(context.Context, resolver.Resolver) (any, error) {
		return nil, nil
	})
	bindMiddleware(t, b, c, ChainProcess, "broken_factory", func(context.Context, resolver.Resolver) (any, error) {
		return nil, errors.New("factory down")
	})
	bindMiddleware(t, b, c, ChainProcess, "wrong_contract", resolver.Instance(SubscriptionMiddlewareFunc(
		func(ctx context.Context, msg any, next SubscriptionNext) error { return next(ctx, msg) },
	)))
	bindMiddleware(t, b, c, ChainProcess, "working", resolver.Instance(tracingProcessLink(&trace, "working")))
	require.NoError(t, b.chains.Add(MiddlewareDescriptor{Kind: ChainProcess, Name: "unbound"}))

	_, err := b.process(context.Background(), func(context.Context, any) (any, error) {
		trace = append(trace, "core")
		return nil, nil
	})(context.Background(), "msg")

	require.NoError(t, err)
	assert.Equal(t, []string{"working", "core"}, trace)

	skipped := logger.find("Skipping middleware")
	require.Len(t, skipped, 2)
	assert.Equal(t, "broken_factory", skipped[0].fields["middleware"])
	assert.Equal(t, "wrong_contract", skipped[1].fields["middleware"])
	assert.Contains(t, skipped[1].err.Error(), "process middleware contract")
}

func TestChainBuilderNilCoresAreNeutral(t *testing.T) {
	b, _ := newTestChainBuilder(t, newRecordingLogger())
	ctx := context.Background()

	result, err := b.process(ctx, nil)(ctx, "msg")
	assert.NoError(t, err)
	assert.Nil(t, result)

	assert.NotPanics(t, func() { b.error(ctx, nil)(ctx, "msg", errors.New("boom")) })
	assert.NoError(t, b.subscription(ctx, nil)(ctx, "msg"))
}

func TestChainBuilderErrorAndSubscriptionChains(t *testing.T) {
	b, c := newTestChainBuilder(t, newRecordingLogger())

	var seen []string
	bindMiddleware(t, b, c, ChainError, "observer", resolver.Instance(ErrorMiddlewareFunc(
		func(ctx context.Context, msg any, err error, next ErrorNext) {
			seen = append(seen, "error:"+err.Error())
			next(ctx, msg, err)
		},
	)))
	bindMiddleware(t, b, c, ChainSubscription, "wrapper", resolver.Instance(SubscriptionMiddlewareFunc(
		func(ctx context.Context, msg any, next SubscriptionNext) error {
			seen = append(seen, "subscription")
			return next(ctx, msg)
		},
	)))

	ctx := context.Background()
	b.error(ctx, func(_ context.Context, _ any, err error) {
		seen = append(seen, "on_error")
	})(ctx, "msg", errors.New("boom"))

	err := b.subscription(ctx, func(context.Context, any) error {
		seen = append(seen, "subscriber")
		return errors.New("subscriber failed")
	})(ctx, "msg")

	assert.EqualError(t, err, "subscriber failed")
	assert.Equal(t, []string{"error:boom", "on_error", "subscription", "subscriber"}, seen)
}

func TestChainBuilderResolvesTransientLinksPerExecution(t *testing.T) {
	b, c := newTestChainBuilder(t, newRecordingLogger())

	builds := 0
	bindMiddleware(t, b, c, ChainProcess, "counted", func(context.Context, resolver.Resolver) (any, error) {
		builds++
		return ProcessMiddlewareFunc(func(ctx context.Context, msg any, next ProcessNext) (any, error) {
			return next(ctx, msg)
		}), nil
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := b.process(ctx, nil)(ctx, i)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, builds)
}
