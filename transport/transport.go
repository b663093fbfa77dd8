// Package transport defines how forwarding publishers are built. Each backend
// (kafka, rabbitmq, aws, ...) lives in its own sub-package and registers a
// Builder with the DefaultRegistry from init.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Builder creates the publisher used by forwarding subscribers.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error)

// Config provides the configuration values needed by transports without
// depending on the full config package.
type Config interface {
	// GetForwardSystem returns the transport name.
	GetForwardSystem() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaClientID() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string
	GetJetStreamStream() string

	// HTTP
	GetHTTPPublisherURL() string

	// IO
	GetIOFile() string

	// gocloud.dev
	GetGoCloudURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
	GetAWSSQSQueue() string
}

// CapabilitiesProvider is implemented by publishers that report their own
// capabilities instead of relying on the registry entry.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
