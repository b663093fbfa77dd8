package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockBuilder(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return &mockPublisher{}, nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.NotNil(t, reg.builders)
	assert.NotNil(t, reg.capabilities)
	assert.Empty(t, reg.Names())
}

func TestRegistryRegisterWithCapabilities(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterWithCapabilities("test-transport", mockBuilder, Capabilities{
		Name:           "test-transport",
		MaxMessageSize: 10,
	})

	assert.True(t, reg.Has("test-transport"))
	caps := reg.GetCapabilities("test-transport")
	assert.Equal(t, "test-transport", caps.Name)
	assert.Equal(t, int64(10), caps.MaxMessageSize)
}

func TestRegistryGetCapabilitiesUnknown(t *testing.T) {
	caps := NewRegistry().GetCapabilities("unknown")
	assert.Equal(t, Capabilities{Name: "unknown"}, caps)
}

func TestRegistryBuild(t *testing.T) {
	var gotLogger watermill.LoggerAdapter
	reg := NewRegistry()
	reg.Register("test-transport", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
		gotLogger = logger
		return &mockPublisher{}, nil
	})

	pub, err := reg.Build(context.Background(), &mockConfig{forwardSystem: "test-transport"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, pub)
	assert.NotNil(t, gotLogger, "nil logger is replaced by a no-op logger")
}

func TestRegistryBuildErrors(t *testing.T) {
	builderErr := errors.New("builder error")
	reg := NewRegistry()
	reg.Register("failing", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, builderErr
	})

	tests := []struct {
		name    string
		cfg     Config
		wantIs  error
		wantMsg string
	}{
		{name: "nil config", cfg: nil, wantMsg: "config is required"},
		{name: "unknown", cfg: &mockConfig{forwardSystem: "nope"}, wantIs: ErrUnknownTransport, wantMsg: `"nope"`},
		{name: "builder failure", cfg: &mockConfig{forwardSystem: "failing"}, wantIs: builderErr, wantMsg: "build failing transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Build(context.Background(), tt.cfg, nil)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("kafka", mockBuilder)
	reg.Register("aws", mockBuilder)
	reg.Register("io", mockBuilder)

	assert.Equal(t, []string{"aws", "io", "kafka"}, reg.Names())
	assert.False(t, reg.Has("nats"))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Register("transport", mockBuilder)
				reg.Has("transport")
				reg.Names()
				reg.GetCapabilities("transport")
			}
		}()
	}
	wg.Wait()

	assert.True(t, reg.Has("transport"))
}

func TestPackageLevelRegistry(t *testing.T) {
	RegisterWithCapabilities("test-pkg-transport", mockBuilder, Capabilities{Name: "test-pkg-transport", SupportsOrdering: true})

	assert.True(t, DefaultRegistry.Has("test-pkg-transport"))
	assert.True(t, GetCapabilities("test-pkg-transport").SupportsOrdering)

	_, err := Build(context.Background(), &mockConfig{forwardSystem: "nonexistent"}, nil)
	assert.ErrorIs(t, err, ErrUnknownTransport)
}
