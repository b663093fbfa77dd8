// Package transports links every bundled transport into the default registry.
// Import it for its side effects.
package transports

import (
	_ "github.com/drblury/pipeflow/transport/aws"
	_ "github.com/drblury/pipeflow/transport/channel"
	_ "github.com/drblury/pipeflow/transport/gocloud"
	_ "github.com/drblury/pipeflow/transport/http"
	_ "github.com/drblury/pipeflow/transport/io"
	_ "github.com/drblury/pipeflow/transport/jetstream"
	_ "github.com/drblury/pipeflow/transport/kafka"
	_ "github.com/drblury/pipeflow/transport/nats"
	_ "github.com/drblury/pipeflow/transport/rabbitmq"
)
