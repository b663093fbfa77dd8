package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pipeflow/transport"
	"github.com/drblury/pipeflow/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.NATSCapabilities, transport.GetCapabilities(TransportName))
	assert.False(t, Capabilities().SupportsOrdering)
}

func TestPublisherConfig(t *testing.T) {
	cfg := PublisherConfig("nats://localhost:4222")

	assert.Equal(t, "nats://localhost:4222", cfg.URL)
	assert.True(t, cfg.JetStream.Disabled)
	assert.IsType(t, &nats.NATSMarshaler{}, cfg.Marshaler)
	assert.Len(t, cfg.NatsOptions, 2)
}

func TestBuild(t *testing.T) {
	original := PublisherFactory
	defer func() { PublisherFactory = original }()

	t.Run("uses factory", func(t *testing.T) {
		pub := &transporttest.Publisher{}
		PublisherFactory = func(cfg nats.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			assert.Equal(t, "nats://nats:4222", cfg.URL)
			return pub, nil
		}

		got, err := Build(context.Background(), &transporttest.Config{NATSURL: "nats://nats:4222"}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Same(t, pub, got)
	})

	t.Run("propagates factory error", func(t *testing.T) {
		PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("no servers available")
		}

		_, err := Build(context.Background(), &transporttest.Config{NATSURL: "nats://nats:4222"}, watermill.NopLogger{})
		assert.EqualError(t, err, "no servers available")
	})
}
