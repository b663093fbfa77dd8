package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	configpkg "github.com/drblury/pipeflow/internal/runtime/config"
	loggingpkg "github.com/drblury/pipeflow/internal/runtime/logging"
)

type Order struct {
	ID    string  `json:"id" msgpack:"id"`
	Total float64 `json:"total" msgpack:"total"`
}

type Ping struct {
	Seq int `json:"seq"`
}

type Refund struct {
	OrderID string `json:"order_id"`
}

type logEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

type logStore struct {
	mu      sync.Mutex
	entries []logEntry
}

// recordingLogger keeps every entry so tests can assert on log output.
type recordingLogger struct {
	store *logStore
	base  loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{store: &logStore{}}
}

func (l *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := make(loggingpkg.LogFields, len(l.base)+len(fields))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &recordingLogger{store: l.store, base: merged}
}

func (l *recordingLogger) record(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := make(loggingpkg.LogFields, len(l.base)+len(fields))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.entries = append(l.store.entries, logEntry{level: level, msg: msg, err: err, fields: merged})
}

func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	l.record("debug", msg, nil, fields)
}

func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	l.record("info", msg, nil, fields)
}

func (l *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.record("error", msg, err, fields)
}

func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	l.record("trace", msg, nil, fields)
}

// find returns the entries logged with msg.
func (l *recordingLogger) find(msg string) []logEntry {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	var out []logEntry
	for _, e := range l.store.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

type testPublisher struct {
	mu       sync.Mutex
	messages map[string][]*message.Message
	err      error
	closed   bool
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.messages == nil {
		p.messages = make(map[string][]*message.Message)
	}
	p.messages[topic] = append(p.messages[topic], messages...)
	return nil
}

func (p *testPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *testPublisher) Messages(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.messages[topic]...)
}

func (p *testPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type recordedSpan struct {
	noop.Span

	mu     *sync.Mutex
	name   string
	attrs  []attribute.KeyValue
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordedSpan) End(...trace.SpanEndOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

func (s *recordedSpan) SetStatus(code codes.Code, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

func (s *recordedSpan) RecordError(err error, _ ...trace.EventOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordedSpan) attr(key string) string {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

// recordingTracerProvider hands out a tracer that keeps every started span.
type recordingTracerProvider struct {
	noop.TracerProvider

	mu    sync.Mutex
	spans []*recordedSpan
}

func (p *recordingTracerProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{provider: p}
}

func (p *recordingTracerProvider) Spans(name string) []*recordedSpan {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*recordedSpan
	for _, s := range p.spans {
		if s.name == name {
			out = append(out, s)
		}
	}
	return out
}

type recordingTracer struct {
	noop.Tracer
	provider *recordingTracerProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	span := &recordedSpan{mu: &t.provider.mu, name: name, attrs: cfg.Attributes()}
	t.provider.mu.Lock()
	t.provider.spans = append(t.provider.spans, span)
	t.provider.mu.Unlock()
	return trace.ContextWithSpan(ctx, span), span
}

type pipelineOption func(*configpkg.Config, *PipelineDependencies)

func withConfig(fn func(*configpkg.Config)) pipelineOption {
	return func(c *configpkg.Config, _ *PipelineDependencies) { fn(c) }
}

func withDeps(fn func(*PipelineDependencies)) pipelineOption {
	return func(_ *configpkg.Config, d *PipelineDependencies) { fn(d) }
}

// newTestPipeline builds a pipeline with an isolated metrics registry and a
// no-op tracer. The pipeline is closed when the test ends.
func newTestPipeline(t *testing.T, logger loggingpkg.ServiceLogger, opts ...pipelineOption) *Pipeline {
	t.Helper()
	if logger == nil {
		logger = newRecordingLogger()
	}
	conf := &configpkg.Config{}
	deps := PipelineDependencies{
		MetricsRegisterer: prometheus.NewRegistry(),
		TracerProvider:    noop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(conf, &deps)
	}

	p, err := NewPipeline(context.Background(), conf, logger, deps)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p
}

// waitFanout blocks until every scheduled notification has run.
func waitFanout(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Dispatcher().Wait(ctx))
}
