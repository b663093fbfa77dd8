// Package jetstream forwards messages into a NATS JetStream stream.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/pipeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

const (
	// DefaultStream is used when the config names no stream.
	DefaultStream = "PIPEFLOW"

	// DefaultMaxAge bounds how long forwarded messages are retained.
	DefaultMaxAge = 7 * 24 * time.Hour
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("jetstream publisher is closed")

// Connect allows overriding the NATS connection for testing.
var Connect = func(url string, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, opts...)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
}

// Build connects to NATS and makes sure the stream exists.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return New(Config{
		URL:    cfg.GetNATSURL(),
		Stream: cfg.GetJetStreamStream(),
	}, logger)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

// Config holds JetStream specific settings.
type Config struct {
	URL string

	// Stream is the stream name; subjects are "<Stream>.<topic>".
	Stream string

	// MaxAge bounds message retention.
	MaxAge time.Duration

	// Replicas is the number of stream replicas (for clustering).
	Replicas int

	// Retention: "limits" (default), "interest", or "workqueue".
	Retention string
}

func (c Config) withDefaults() Config {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

func (c Config) streamConfig() *nats.StreamConfig {
	sc := &nats.StreamConfig{
		Name:     c.Stream,
		Subjects: []string{c.Stream + ".>"},
		MaxAge:   c.MaxAge,
		Replicas: c.Replicas,
	}
	switch c.Retention {
	case "interest":
		sc.Retention = nats.InterestPolicy
	case "workqueue":
		sc.Retention = nats.WorkQueuePolicy
	default:
		sc.Retention = nats.LimitsPolicy
	}
	return sc
}

// Publisher publishes into a JetStream stream and waits for the stream ack.
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// New connects to cfg.URL and creates or updates the stream.
func New(cfg Config, logger watermill.LoggerAdapter) (*Publisher, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	conn, err := Connect(cfg.URL, nats.Name("pipeflow-forwarder"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &Publisher{nc: conn, js: js, config: cfg, logger: logger}
	if err := p.ensureStream(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}
	return p, nil
}

func (p *Publisher) ensureStream() error {
	sc := p.config.streamConfig()
	_, err := p.js.AddStream(sc)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return err
	}
	if _, err := p.js.UpdateStream(sc); err != nil {
		p.logger.Info("JetStream stream exists with a different config", watermill.LogFields{
			"stream": p.config.Stream,
			"error":  err.Error(),
		})
	}
	return nil
}

// Publish sends messages in order, stopping at the first failure.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	for _, msg := range messages {
		if _, err := p.js.PublishMsg(p.toNATS(topic, msg)); err != nil {
			return fmt.Errorf("publish %s to JetStream: %w", msg.UUID, err)
		}
	}
	return nil
}

// Subject returns the stream subject for topic.
func (p *Publisher) Subject(topic string) string {
	return p.config.Stream + "." + topic
}

func (p *Publisher) toNATS(topic string, msg *message.Message) *nats.Msg {
	header := nats.Header{}
	for k, v := range msg.Metadata {
		header.Set(k, v)
	}
	// JetStream drops duplicates with the same id inside the dedup window.
	header.Set(nats.MsgIdHdr, msg.UUID)

	return &nats.Msg{
		Subject: p.Subject(topic),
		Data:    msg.Payload,
		Header:  header,
	}
}

// Close drains the connection. Further calls are no-ops.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// Capabilities reports the JetStream capabilities.
func (p *Publisher) Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}
