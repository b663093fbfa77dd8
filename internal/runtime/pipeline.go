package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/pipeflow/internal/runtime/config"
	errspkg "github.com/drblury/pipeflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/pipeflow/internal/runtime/logging"
	"github.com/drblury/pipeflow/internal/runtime/resolver"
	transportpkg "github.com/drblury/pipeflow/transport"
)

const tracerName = "github.com/drblury/pipeflow"

// PipelineDependencies holds the optional collaborators of a Pipeline. Leave
// fields nil to use the defaults.
type PipelineDependencies struct {
	// Resolver supplies handlers, subscribers and middleware. Defaults to a new
	// resolver.Container. Registration helpers require it to also implement
	// resolver.Registrar.
	Resolver resolver.Resolver
	// Middlewares are registered after the default middlewares, in order.
	Middlewares []MiddlewareRegistration
	// Chains appends descriptors for middleware bound directly in Resolver.
	Chains Chains
	// DisableDefaultMiddlewares skips DefaultMiddlewares when true.
	DisableDefaultMiddlewares bool
	// Publisher is used by forwarders. It takes precedence over ForwardSystem
	// and is not closed by the pipeline.
	Publisher message.Publisher
	// TransportRegistry builds the forwarding publisher from the config.
	// Defaults to transport.DefaultRegistry.
	TransportRegistry *transportpkg.Registry
	ErrorClassifier   ErrorClassifier
	// MetricsRegisterer defaults to prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
	// TracerProvider defaults to the global otel provider.
	TracerProvider trace.TracerProvider
}

// Pipeline routes a submitted message to at most one handler and then fans it
// out to every subscriber of its type.
type Pipeline struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	resolver   resolver.Resolver
	chains     Chains
	builder    *chainBuilder
	dispatcher *Dispatcher

	stats           *statsRegistry
	resourceTracker *resourceTracker
	metrics         *pipelineMetrics
	registerer      prometheus.Registerer
	tracer          trace.Tracer
	classifier      ErrorClassifier

	publisher     message.Publisher
	ownsPublisher bool
	transportName string
	transportCaps transportpkg.Capabilities

	closed atomic.Bool

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
	running       []*http.Server
}

// NewPipeline constructs a Pipeline. Register handlers and subscribers on the
// returned Pipeline before processing messages.
func NewPipeline(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps PipelineDependencies) (*Pipeline, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	log.Info("Creating pipeline", loggingpkg.LogFields{
		"forward_system": conf.ForwardSystem,
		"config":         conf,
	})

	p := &Pipeline{
		Conf:            conf,
		Logger:          log,
		resolver:        deps.Resolver,
		stats:           newStatsRegistry(),
		resourceTracker: newResourceTracker(),
		classifier:      deps.ErrorClassifier,
		registerer:      deps.MetricsRegisterer,
	}
	if p.resolver == nil {
		p.resolver = resolver.NewContainer()
	}
	if p.classifier == nil {
		p.classifier = defaultErrorClassifier
	}
	if p.registerer == nil {
		p.registerer = prometheus.DefaultRegisterer
	}

	provider := deps.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	p.tracer = provider.Tracer(tracerName)

	if conf.MetricsEnabled {
		m, err := newPipelineMetrics(p.registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		p.metrics = m
		p.RegisterHTTPHandler(metricsPort(conf), "/metrics", p.metricsHandler())
	}

	if err := p.setupPublisher(ctx, deps); err != nil {
		return nil, err
	}

	if err := p.registerConfiguredMiddlewares(deps); err != nil {
		p.closePublisher()
		return nil, err
	}

	p.builder = &chainBuilder{resolver: p.resolver, chains: p.chains.Clone(), logger: log}
	p.dispatcher = newDispatcher(p.resolver, p.builder, log, p.stats, p.metrics, p.classifier)

	if conf.WebUIEnabled {
		p.registerWebUI()
	}

	return p, nil
}

func metricsPort(conf *configpkg.Config) int {
	if conf.MetricsPort == 0 {
		return configpkg.DefaultMetricsPort
	}
	return conf.MetricsPort
}

func (p *Pipeline) metricsHandler() http.Handler {
	if gatherer, ok := p.registerer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

func (p *Pipeline) setupPublisher(ctx context.Context, deps PipelineDependencies) error {
	registry := deps.TransportRegistry
	if registry == nil {
		registry = transportpkg.DefaultRegistry
	}

	pub := deps.Publisher
	switch {
	case pub != nil:
		p.transportName = p.Conf.ForwardSystem
		if p.transportName == "" {
			p.transportName = "custom"
		}
	case p.Conf.ForwardSystem != "":
		built, err := registry.Build(ctx, p.Conf, loggingpkg.NewWatermillAdapter(p.Logger))
		if err != nil {
			return err
		}
		pub = built
		p.ownsPublisher = true
		p.transportName = p.Conf.ForwardSystem
	default:
		return nil
	}

	p.transportCaps = registry.GetCapabilities(p.transportName)
	if provider, ok := pub.(transportpkg.CapabilitiesProvider); ok {
		p.transportCaps = provider.Capabilities()
	}

	if p.Conf.MetricsEnabled {
		decorated, err := metrics.NewPrometheusMetricsBuilder(p.registerer, metricsNamespace, "forward").DecoratePublisher(pub)
		if err != nil {
			if p.ownsPublisher {
				_ = pub.Close()
			}
			return fmt.Errorf("decorate publisher: %w", err)
		}
		pub = decorated
	}

	p.publisher = pub
	return nil
}

func (p *Pipeline) registerConfiguredMiddlewares(deps PipelineDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := p.registerMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}

	for _, kind := range []ChainKind{ChainProcess, ChainError, ChainSubscription} {
		for _, d := range deps.Chains.For(kind) {
			if d.Kind == 0 {
				d.Kind = kind
			}
			if err := p.chains.Add(d); err != nil {
				return fmt.Errorf("add %s descriptor: %w", kind, err)
			}
		}
	}
	return nil
}

func (p *Pipeline) registrar() (resolver.Registrar, error) {
	registrar, ok := p.resolver.(resolver.Registrar)
	if !ok {
		return nil, errspkg.ErrRegistrarUnavailable
	}
	return registrar, nil
}

// Resolver exposes the component resolver, for binding collaborators that
// handler factories resolve themselves.
func (p *Pipeline) Resolver() resolver.Resolver {
	return p.resolver
}

// Chains returns a copy of the descriptor lists.
func (p *Pipeline) Chains() Chains {
	return p.chains.Clone()
}

// Publisher returns the forwarding publisher, or nil when forwarding is off.
func (p *Pipeline) Publisher() message.Publisher {
	return p.publisher
}

// TransportCapabilities describes the forwarding transport.
func (p *Pipeline) TransportCapabilities() transportpkg.Capabilities {
	return p.transportCaps
}

// Dispatcher exposes the fan-out dispatcher, mostly so callers can wait for
// in-flight notifications.
func (p *Pipeline) Dispatcher() *Dispatcher {
	return p.dispatcher
}

// Stats returns a snapshot of every message type seen so far.
func (p *Pipeline) Stats() []TypeStatsSnapshot {
	return p.stats.snapshots()
}

// Closed reports whether Close was called.
func (p *Pipeline) Closed() bool {
	return p.closed.Load()
}

// RegisterHTTPHandler mounts handler on the server for port. Servers start with
// Serve.
func (p *Pipeline) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	p.httpServersMu.Lock()
	defer p.httpServersMu.Unlock()

	if p.httpServers == nil {
		p.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := p.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		p.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

// Serve runs the registered HTTP servers until ctx is cancelled, then shuts
// them down. It returns immediately when nothing is registered.
func (p *Pipeline) Serve(ctx context.Context) error {
	p.httpServersMu.Lock()
	ports := make([]int, 0, len(p.httpServers))
	for port := range p.httpServers {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	servers := make([]*http.Server, 0, len(ports))
	for _, port := range ports {
		servers = append(servers, &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: p.httpServers[port],
			BaseContext: func(net.Listener) context.Context {
				return context.WithoutCancel(ctx)
			},
		})
	}
	p.running = append(p.running, servers...)
	p.httpServersMu.Unlock()

	if len(servers) == 0 {
		return nil
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		p.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server %s: %w", srv.Addr, err)
				return
			}
			errCh <- nil
		}(srv)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if serveErr != nil {
			p.Logger.Error("HTTP server failed", serveErr, nil)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.Conf.ShutdownTimeoutOrDefault())
	defer cancel()
	return errors.Join(serveErr, p.shutdownHTTP(shutdownCtx))
}

func (p *Pipeline) shutdownHTTP(ctx context.Context) error {
	p.httpServersMu.Lock()
	servers := p.running
	p.running = nil
	p.httpServersMu.Unlock()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}

// Close rejects further Process calls, waits for in-flight fan-out (bounded by
// ctx, or by ShutdownTimeout when ctx has no deadline), then closes the owned
// publisher and the HTTP servers. Calling Close twice is a no-op.
func (p *Pipeline) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Conf.ShutdownTimeoutOrDefault())
		defer cancel()
	}

	p.Logger.Info("Closing pipeline", loggingpkg.LogFields{
		"fanout_in_flight": p.dispatcher.InFlight(),
	})

	var errs []error
	if err := p.dispatcher.drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain fan-out: %w", err))
	}
	if err := p.closePublisher(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := p.shutdownHTTP(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Pipeline) closePublisher() error {
	if p.publisher == nil || !p.ownsPublisher {
		return nil
	}
	return p.publisher.Close()
}
