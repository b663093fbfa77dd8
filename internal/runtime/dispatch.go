package runtime

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"

	errspkg "github.com/drblury/pipeflow/internal/runtime/errors"
	"github.com/drblury/pipeflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/pipeflow/internal/runtime/logging"
	"github.com/drblury/pipeflow/internal/runtime/resolver"
)

type subscriberNameKey struct{}

// SubscriberName returns the registration name of the subscriber being
// notified, or "" outside a subscription chain.
func SubscriberName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(subscriberNameKey{}).(string)
	return name
}

func withSubscriberName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, subscriberNameKey{}, name)
}

// Dispatcher notifies the subscribers of a processed message on a detached
// goroutine. Failures of one subscriber never reach the caller or the other
// subscribers.
type Dispatcher struct {
	resolver   resolver.Resolver
	chains     *chainBuilder
	logger     loggingpkg.ServiceLogger
	stats      *statsRegistry
	metrics    *pipelineMetrics
	classifier ErrorClassifier

	mu       sync.Mutex
	draining bool
	running  int64

	// idle is closed when running drops to zero.
	idle chan struct{}
}

func newDispatcher(r resolver.Resolver, chains *chainBuilder, logger loggingpkg.ServiceLogger, stats *statsRegistry, metrics *pipelineMetrics, classifier ErrorClassifier) *Dispatcher {
	return &Dispatcher{
		resolver:   r,
		chains:     chains,
		logger:     logger,
		stats:      stats,
		metrics:    metrics,
		classifier: classifier,
	}
}

// schedule starts fan-out for msg and returns immediately. The goroutine keeps
// the context values of ctx but not its cancellation.
func (d *Dispatcher) schedule(ctx context.Context, msg any) {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		d.logger.Debug("Dropping fan-out after close", loggingpkg.LogFields{
			"message_type": messageTypeName(reflect.TypeOf(msg)),
		})
		return
	}
	if d.running == 0 {
		d.idle = make(chan struct{})
	}
	d.running++
	d.mu.Unlock()

	d.metrics.fanoutStarted()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer d.finished()
		defer d.metrics.fanoutFinished()
		d.dispatch(detached, msg)
	}()
}

func (d *Dispatcher) finished() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running--
	if d.running == 0 {
		close(d.idle)
	}
}

// dispatch notifies every subscriber bound for the message type, in order.
func (d *Dispatcher) dispatch(ctx context.Context, msg any) {
	msgType := reflect.TypeOf(msg)
	typeName := messageTypeName(msgType)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Fan-out aborted", &errspkg.PanicError{Value: r, Stack: debug.Stack()}, loggingpkg.LogFields{
				"message_type": typeName,
			})
		}
	}()

	ctx, _ = ids.EnsureCorrelationID(ctx)

	subscribers, err := d.resolver.ResolveAll(ctx, resolver.SubscriberCapability(msgType))
	if err != nil {
		d.logger.Error("Resolving subscribers failed", err, loggingpkg.LogFields{
			"message_type": typeName,
		})
		return
	}

	stats := d.stats.forType(msgType)
	for i, subscriber := range subscribers {
		name := componentName(subscriber, fmt.Sprintf("subscriber:%s#%d", typeName, i+1))
		err := d.notify(withSubscriberName(ctx, name), subscriber, msg)
		stats.recordNotification(err, d.classifier)
		if err != nil {
			d.logger.Error("Subscriber failed", err, loggingpkg.LogFields{
				"message_type":   typeName,
				"subscriber":     name,
				"correlation_id": ids.CorrelationID(ctx),
			})
		}
	}
}

// notify runs one subscription chain, converting panics into *PanicError.
func (d *Dispatcher) notify(ctx context.Context, subscriber any, msg any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errspkg.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	target, ok := subscriber.(MessageSubscriber)
	if !ok {
		return fmt.Errorf("pipeflow: %T does not implement MessageSubscriber", subscriber)
	}
	return d.chains.subscription(ctx, target.OnProcessed)(ctx, msg)
}

// drain stops accepting new fan-out and waits for running goroutines until ctx
// is done.
func (d *Dispatcher) drain(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()
	return d.Wait(ctx)
}

// Wait blocks until every scheduled fan-out has finished or ctx is done. It
// does not stop new fan-out from being scheduled.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	if d.running == 0 {
		d.mu.Unlock()
		return nil
	}
	idle := d.idle
	d.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports the number of running fan-out goroutines.
func (d *Dispatcher) InFlight() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
