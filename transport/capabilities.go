package transport

// Capabilities describes what a forwarding transport guarantees.
type Capabilities struct {
	// Name is the registered transport name.
	Name string `json:"name"`

	// SupportsOrdering indicates messages published to one topic keep their order.
	SupportsOrdering bool `json:"supports_ordering"`

	// SupportsTracing indicates the transport carries metadata headers, so
	// correlation ids survive the hop.
	SupportsTracing bool `json:"supports_tracing"`

	// SupportsBatching indicates Publish accepts several messages efficiently.
	SupportsBatching bool `json:"supports_batching"`

	// SupportsPartitioning indicates topics are split into partitions.
	SupportsPartitioning bool `json:"supports_partitioning"`

	// MaxMessageSize is the maximum payload size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64 `json:"max_message_size"`
}

// Limits reports whether size exceeds MaxMessageSize.
func (c Capabilities) Limits(size int) bool {
	return c.MaxMessageSize > 0 && int64(size) > c.MaxMessageSize
}

// Predefined capability sets for the bundled transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsTracing:  true,
	}

	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsOrdering:     true,
		SupportsTracing:      true,
		SupportsBatching:     true,
		SupportsPartitioning: true,
		MaxMessageSize:       1048576, // broker default message.max.bytes
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsTracing:  true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	NATSJetStreamCapabilities = Capabilities{
		Name:             "nats-jetstream",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsBatching: true,
		MaxMessageSize:   1048576,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsTracing:  true,
		SupportsBatching: true,
		MaxMessageSize:   262144, // 256KB
	}

	AWSSQSCapabilities = Capabilities{
		Name:             "aws-sqs",
		SupportsTracing:  true,
		SupportsBatching: true,
		MaxMessageSize:   262144,
	}

	GoCloudCapabilities = Capabilities{
		Name:            "gocloud",
		SupportsTracing: true,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
	}
)

// GetCapabilities returns the capabilities registered for a transport name in
// the default registry.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
