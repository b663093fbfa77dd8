// Package nats forwards messages to NATS Core subjects.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/pipeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a NATS Core publisher. Metadata is sent as NATS headers.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return PublisherFactory(PublisherConfig(cfg.GetNATSURL()), logger)
}

// PublisherConfig returns a core (non JetStream) publisher config for url.
func PublisherConfig(url string) nats.PublisherConfig {
	return nats.PublisherConfig{
		URL:       url,
		Marshaler: &nats.NATSMarshaler{},
		NatsOptions: []nc.Option{
			nc.Name("pipeflow-forwarder"),
			nc.MaxReconnects(-1),
		},
		JetStream: nats.JetStreamConfig{Disabled: true},
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
