// Package gocloud forwards messages through gocloud.dev/pubsub, so any driver
// with a registered URL scheme can be targeted. The in-memory ("mem://") and
// Google Cloud Pub/Sub ("gcppubsub://") drivers are linked in.
package gocloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/gcppubsub"
	_ "gocloud.dev/pubsub/mempubsub"

	"github.com/drblury/pipeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "gocloud"

// TopicPlaceholder is replaced with the forwarded topic in the URL template.
const TopicPlaceholder = "{topic}"

// MetadataUUID carries the watermill message UUID.
const MetadataUUID = "pipeflow_uuid"

// ShutdownTimeout bounds flushing all topics on Close.
var ShutdownTimeout = 10 * time.Second

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("gocloud publisher is closed")

// OpenTopic allows overriding how topics are opened, for testing.
var OpenTopic = pubsub.OpenTopic

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.GoCloudCapabilities)
}

// Build creates a publisher for the configured URL template.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return NewPublisher(cfg.GetGoCloudURL(), logger)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.GoCloudCapabilities
}

// Publisher opens one gocloud topic per forwarded topic, lazily.
type Publisher struct {
	template string
	logger   watermill.LoggerAdapter

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	closed bool
}

// NewPublisher validates the URL template. Without the placeholder every
// forwarded topic goes to the same gocloud topic.
func NewPublisher(urlTemplate string, logger watermill.LoggerAdapter) (*Publisher, error) {
	if strings.TrimSpace(urlTemplate) == "" {
		return nil, errors.New("gocloud: URL is required")
	}
	if !strings.Contains(urlTemplate, "://") {
		return nil, fmt.Errorf("gocloud: URL %q has no scheme", urlTemplate)
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Publisher{
		template: urlTemplate,
		logger:   logger,
		topics:   make(map[string]*pubsub.Topic),
	}, nil
}

// TopicURL expands the template for topic.
func (p *Publisher) TopicURL(topic string) string {
	return strings.ReplaceAll(p.template, TopicPlaceholder, topic)
}

func (p *Publisher) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	u := p.TopicURL(name)
	if t, ok := p.topics[u]; ok {
		return t, nil
	}
	t, err := OpenTopic(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("open topic %s: %w", u, err)
	}
	p.topics[u] = t
	p.logger.Debug("Opened gocloud topic", watermill.LogFields{"url": u})
	return t, nil
}

// Publish sends messages one by one using each message's context.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		ctx := msg.Context()
		t, err := p.topic(ctx, topic)
		if err != nil {
			return err
		}

		md := make(map[string]string, len(msg.Metadata)+1)
		for k, v := range msg.Metadata {
			md[k] = v
		}
		md[MetadataUUID] = msg.UUID

		if err := t.Send(ctx, &pubsub.Message{Body: msg.Payload, Metadata: md}); err != nil {
			return fmt.Errorf("send %s: %w", msg.UUID, err)
		}
	}
	return nil
}

// Close shuts down every opened topic, flushing pending sends.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var errs []error
	for u, t := range p.topics {
		if err := t.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", u, err))
		}
	}
	p.topics = nil
	return errors.Join(errs...)
}
