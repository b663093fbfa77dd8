package runtime

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sort"
	"sync"
	"time"

	errspkg "github.com/drblury/pipeflow/internal/runtime/errors"
	"github.com/drblury/pipeflow/internal/runtime/jsoncodec"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// TypeStats aggregates the outcomes observed for one message type.
type TypeStats struct {
	mu sync.Mutex

	snapshot         TypeStatsSnapshot
	latencyWindow    *latencyWindow
	throughputWindow *throughputWindow
}

// TypeStatsSnapshot is a point-in-time copy of TypeStats.
type TypeStatsSnapshot struct {
	MessageType string   `json:"message_type"`
	Handlers    []string `json:"handlers"`
	Subscribers []string `json:"subscribers"`

	MessagesProcessed    uint64    `json:"messages_processed"`
	MessagesFailed       uint64    `json:"messages_failed"`
	MessagesUnhandled    uint64    `json:"messages_unhandled"`
	AmbiguousRejections  uint64    `json:"ambiguous_rejections"`
	Notifications        uint64    `json:"notifications"`
	NotificationFailures uint64    `json:"notification_failures"`
	TotalProcessingTime  int64     `json:"total_processing_time_ns"`
	LastProcessedAt      time.Time `json:"last_processed_at"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Errors     ErrorBreakdown    `json:"errors"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	MessagesInWindow uint64  `json:"messages_in_window"`
	TotalMessages    uint64  `json:"total_messages"`
}

type ErrorBreakdown struct {
	Configuration uint64 `json:"configuration"`
	Validation    uint64 `json:"validation"`
	Panic         uint64 `json:"panic"`
	Downstream    uint64 `json:"downstream"`
	Other         uint64 `json:"other"`
	LastError     string `json:"last_error,omitempty"`
}

type ErrorCategory string

const (
	ErrorCategoryNone          ErrorCategory = "none"
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryPanic         ErrorCategory = "panic"
	ErrorCategoryDownstream    ErrorCategory = "downstream"
	ErrorCategoryOther         ErrorCategory = "other"
)

// ErrorClassifier maps a failure to a statistics category.
type ErrorClassifier func(error) ErrorCategory

func newTypeStats(messageType string) *TypeStats {
	return &TypeStats{
		snapshot:         TypeStatsSnapshot{MessageType: messageType},
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
	}
}

// Snapshot copies the current counters.
func (s *TypeStats) Snapshot() TypeStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.snapshot
	out.Handlers = append([]string(nil), s.snapshot.Handlers...)
	out.Subscribers = append([]string(nil), s.snapshot.Subscribers...)
	return out
}

func (s *TypeStats) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(s.Snapshot())
}

func (s *TypeStats) addHandler(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Handlers = append(s.snapshot.Handlers, name)
}

func (s *TypeStats) addSubscriber(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Subscribers = append(s.snapshot.Subscribers, name)
}

func (s *TypeStats) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshot.Subscribers)
}

// recordProcessed records one handler invocation, successful or not.
func (s *TypeStats) recordProcessed(duration time.Duration, err error, classifier ErrorClassifier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.snapshot.MessagesProcessed++
	if err != nil {
		s.snapshot.MessagesFailed++
	}
	s.snapshot.TotalProcessingTime += int64(duration)
	s.snapshot.LastProcessedAt = now.UTC()

	if s.latencyWindow != nil {
		s.latencyWindow.Add(duration)
		latency := s.latencyWindow.Snapshot()
		latency.LastNs = int64(duration)
		latency.AverageNs = s.snapshot.TotalProcessingTime / int64(s.snapshot.MessagesProcessed)
		s.snapshot.Latency = latency
	}
	s.recordThroughputLocked(now)

	s.snapshot.Errors.Record(classify(classifier, err), err)
}

// recordUnhandled counts a message that no handler was bound for.
func (s *TypeStats) recordUnhandled() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.snapshot.MessagesUnhandled++
	s.snapshot.LastProcessedAt = now.UTC()
	s.recordThroughputLocked(now)
}

func (s *TypeStats) recordAmbiguous(err error, classifier ErrorClassifier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.AmbiguousRejections++
	s.snapshot.Errors.Record(classify(classifier, err), err)
}

func (s *TypeStats) recordNotification(err error, classifier ErrorClassifier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Notifications++
	if err != nil {
		s.snapshot.NotificationFailures++
		s.snapshot.Errors.Record(classify(classifier, err), err)
	}
}

func (s *TypeStats) recordThroughputLocked(now time.Time) {
	total := s.snapshot.MessagesProcessed + s.snapshot.MessagesUnhandled
	if s.throughputWindow != nil {
		window := s.throughputWindow.AddAndSnapshot(now)
		s.snapshot.Throughput.CurrentRPS = window.CurrentRPS
		s.snapshot.Throughput.WindowSeconds = window.WindowSeconds
		s.snapshot.Throughput.MessagesInWindow = uint64(window.Count)
	}
	s.snapshot.Throughput.TotalMessages = total
}

func classify(classifier ErrorClassifier, err error) ErrorCategory {
	if classifier == nil {
		classifier = defaultErrorClassifier
	}
	return classifier(err)
}

func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	switch category {
	case ErrorCategoryNone:
		if err == nil {
			return
		}
		e.Other++
	case ErrorCategoryConfiguration:
		e.Configuration++
	case ErrorCategoryValidation:
		e.Validation++
	case ErrorCategoryPanic:
		e.Panic++
	case ErrorCategoryDownstream:
		e.Downstream++
	default:
		e.Other++
	}
	if err != nil {
		e.LastError = err.Error()
	}
}

// statsRegistry indexes TypeStats by dispatch key.
type statsRegistry struct {
	mu    sync.RWMutex
	types map[reflect.Type]*TypeStats
}

func newStatsRegistry() *statsRegistry {
	return &statsRegistry{types: make(map[reflect.Type]*TypeStats)}
}

func (r *statsRegistry) forType(t reflect.Type) *TypeStats {
	r.mu.RLock()
	stats, ok := r.types[t]
	r.mu.RUnlock()
	if ok {
		return stats
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if stats, ok = r.types[t]; ok {
		return stats
	}
	stats = newTypeStats(messageTypeName(t))
	r.types[t] = stats
	return stats
}

// snapshots returns every type's snapshot ordered by type name.
func (r *statsRegistry) snapshots() []TypeStatsSnapshot {
	r.mu.RLock()
	all := make([]*TypeStats, 0, len(r.types))
	for _, stats := range r.types {
		all = append(all, stats)
	}
	r.mu.RUnlock()

	out := make([]TypeStatsSnapshot, 0, len(all))
	for _, stats := range all {
		out = append(out, stats.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageType < out[j].MessageType })
	return out
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	if lw == nil || len(lw.samples) == 0 {
		return
	}
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	var metrics LatencyMetrics
	if lw == nil {
		return metrics
	}
	if lw.filled == 0 {
		metrics.LastNs = lw.last
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.AverageNs = sum / int64(len(samples))
	metrics.LastNs = lw.last
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{
		horizon: horizon,
		samples: make([]time.Time, 0, 64),
	}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	if tw == nil {
		return throughputSnapshot{}
	}
	tw.samples = append(tw.samples, now)
	tw.cleanup(now)
	return tw.snapshot(now)
}

func (tw *throughputWindow) cleanup(now time.Time) {
	if tw == nil || len(tw.samples) == 0 {
		return
	}
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		copy(tw.samples, tw.samples[idx:])
		tw.samples = tw.samples[:len(tw.samples)-idx]
	}
}

func (tw *throughputWindow) snapshot(now time.Time) throughputSnapshot {
	if tw == nil || len(tw.samples) == 0 {
		return throughputSnapshot{}
	}
	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	count := len(tw.samples)
	return throughputSnapshot{
		Count:         count,
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(count) / span.Seconds(),
	}
}

func defaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var configErr *errspkg.ConfigurationError
	if errors.As(err, &configErr) {
		return ErrorCategoryConfiguration
	}
	var panicErr *errspkg.PanicError
	if errors.As(err, &panicErr) {
		return ErrorCategoryPanic
	}
	var unprocessable *errspkg.UnprocessableMessageError
	if errors.As(err, &unprocessable) {
		return ErrorCategoryValidation
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, errspkg.ErrPayloadTooLarge) {
		return ErrorCategoryDownstream
	}
	return ErrorCategoryOther
}
