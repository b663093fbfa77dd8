package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pipeflow/internal/runtime/ids"
)

type hookRecorder struct {
	mu     sync.Mutex
	starts []HookContext
	dones  []HookContext
	errs   []error
}

func (r *hookRecorder) hooks() Hooks {
	return Hooks{
		OnStart: func(hc HookContext) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.starts = append(r.starts, hc)
		},
		OnDone: func(hc HookContext) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.dones = append(r.dones, hc)
		},
		OnError: func(_ HookContext, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func TestHooksMiddlewareProcessChain(t *testing.T) {
	rec := &hookRecorder{}
	p := newTestPipeline(t, nil, withDeps(func(d *PipelineDependencies) {
		d.Middlewares = []MiddlewareRegistration{HooksMiddleware(rec.hooks())}
	}))

	boom := errors.New("boom")
	require.NoError(t, RegisterHandler(p, HandlerRegistration[Order]{
		Handler: HandlerFuncs[Order]{
			ProcessFunc: func(_ context.Context, o Order) (any, error) {
				if o.ID == "bad" {
					return nil, boom
				}
				return nil, nil
			},
		},
	}))

	ctx := ids.WithCorrelationID(context.Background(), "corr-h")
	_, err := p.Process(ctx, Order{ID: "good"})
	require.NoError(t, err)
	_, err = p.Process(ctx, Order{ID: "bad"})
	require.ErrorIs(t, err, boom)

	require.Len(t, rec.starts, 2)
	require.Len(t, rec.dones, 1)
	assert.Equal(t, []error{boom}, rec.errs)

	start := rec.starts[0]
	assert.Equal(t, ChainProcess, start.Chain)
	assert.Equal(t, "runtime.Order", start.MessageType)
	assert.Equal(t, "corr-h", start.CorrelationID)
	assert.Empty(t, start.Subscriber)
	assert.Equal(t, Order{ID: "good"}, start.Message)
	assert.False(t, start.StartedAt.IsZero())
	assert.GreaterOrEqual(t, rec.dones[0].Duration.Nanoseconds(), int64(0))
}

func TestSubscriptionHooksMiddleware(t *testing.T) {
	rec := &hookRecorder{}
	p := newTestPipeline(t, nil, withDeps(func(d *PipelineDependencies) {
		d.Middlewares = []MiddlewareRegistration{SubscriptionHooksMiddleware(rec.hooks())}
	}))

	require.NoError(t, RegisterSubscriber(p, SubscriberRegistration[Order]{
		Name:       "ok",
		Subscriber: SubscriberFunc[Order](func(context.Context, Order) error { return nil }),
	}))
	require.NoError(t, RegisterSubscriber(p, SubscriberRegistration[Order]{
		Name:       "failing",
		Subscriber: SubscriberFunc[Order](func(context.Context, Order) error { return errors.New("down") }),
	}))

	_, err := p.Process(context.Background(), Order{})
	require.NoError(t, err)
	waitFanout(t, p)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.starts, 2)
	assert.Equal(t, ChainSubscription, rec.starts[0].Chain)
	assert.Equal(t, "ok", rec.starts[0].Subscriber)
	assert.Equal(t, "failing", rec.starts[1].Subscriber)
	assert.NotEmpty(t, rec.starts[0].CorrelationID)
	require.Len(t, rec.dones, 1)
	require.Len(t, rec.errs, 1)
	assert.EqualError(t, rec.errs[0], "down")
}

func TestHooksMerge(t *testing.T) {
	var order []string
	a := Hooks{
		OnStart: func(HookContext) { order = append(order, "a.start") },
		OnError: func(HookContext, error) { order = append(order, "a.error") },
	}
	b := Hooks{
		OnStart: func(HookContext) { order = append(order, "b.start") },
		OnDone:  func(HookContext) { order = append(order, "b.done") },
	}

	merged := a.Merge(b)
	merged.start(HookContext{})
	merged.finish(HookContext{}, nil)
	merged.finish(HookContext{}, errors.New("x"))

	assert.Equal(t, []string{"a.start", "b.start", "b.done", "a.error"}, order)
	assert.Nil(t, Hooks{}.Merge(Hooks{}).OnStart)
}

func TestLoggingHooks(t *testing.T) {
	logger := newRecordingLogger()
	hooks := LoggingHooks(logger)

	hc := HookContext{Chain: ChainSubscription, MessageType: "runtime.Order", Subscriber: "audit", CorrelationID: "c"}
	hooks.OnStart(hc)
	hooks.OnDone(hc)
	hooks.OnError(hc, errors.New("boom"))

	started := logger.find("Execution started")
	require.Len(t, started, 1)
	assert.Equal(t, "subscription", started[0].fields["chain"])
	assert.Equal(t, "audit", started[0].fields["subscriber"])
	assert.Len(t, logger.find("Execution completed"), 1)

	failed := logger.find("Execution failed")
	require.Len(t, failed, 1)
	assert.EqualError(t, failed[0].err, "boom")
}

func TestMetricsAndAlertingHooks(t *testing.T) {
	counts := map[string]int{}
	hooks := MetricsHooks(
		func(mt, _ string) { counts["start:"+mt]++ },
		func(mt, _ string) { counts["done:"+mt]++ },
		func(mt, sub string) { counts["error:"+mt+":"+sub]++ },
	)
	hc := HookContext{MessageType: "runtime.Ping", Subscriber: "s"}
	hooks.OnStart(hc)
	hooks.OnDone(hc)
	hooks.OnError(hc, errors.New("x"))
	assert.Equal(t, map[string]int{"start:runtime.Ping": 1, "done:runtime.Ping": 1, "error:runtime.Ping:s": 1}, counts)

	assert.NotPanics(t, func() {
		nilHooks := MetricsHooks(nil, nil, nil)
		nilHooks.OnStart(hc)
		nilHooks.OnDone(hc)
		nilHooks.OnError(hc, errors.New("x"))
	})

	var alerted []error
	alerting := AlertingHooks(func(_ HookContext, err error) { alerted = append(alerted, err) })
	assert.Nil(t, alerting.OnStart)
	alerting.finish(hc, nil)
	alerting.finish(hc, errors.New("page"))
	require.Len(t, alerted, 1)
	assert.EqualError(t, alerted[0], "page")
}
