// Package http forwards messages as HTTP POST requests to "<base URL>/<topic>".
package http

import (
	"context"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pipeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// DefaultTimeout bounds a single forward request.
const DefaultTimeout = 10 * time.Second

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates an HTTP publisher. The message UUID and metadata travel as
// request headers; responses with status >= 400 fail the publish.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return PublisherFactory(PublisherConfig(cfg.GetHTTPPublisherURL()), logger)
}

// PublisherConfig returns a publisher config posting to baseURL.
func PublisherConfig(baseURL string) http.PublisherConfig {
	return http.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
			return http.DefaultMarshalMessageFunc(TopicURL(baseURL, topic), msg)
		},
		Client: &nethttp.Client{Timeout: DefaultTimeout},
	}
}

// TopicURL joins baseURL and topic with exactly one slash.
func TopicURL(baseURL, topic string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(topic, "/")
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}
