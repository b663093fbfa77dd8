// Package pipeflow is an in-process message pipeline built around a small
// resolver. A message passed to Pipeline.Process is routed by its concrete Go
// type to exactly one handler, wrapped by the process middleware chain. When the
// handler fails the error chain runs; when it succeeds (or no handler is
// registered) every subscriber for the type is notified in the background
// through the subscription chain.
//
// Handlers, subscribers and middleware are all components registered with the
// resolver. Handlers and subscribers are keyed by message type; middleware is
// keyed by the name recorded in a MiddlewareDescriptor. Chains are folded in
// registration order, so the last registered middleware runs outermost.
//
// A minimal setup fills Config, creates a Pipeline, registers handlers and
// subscribers, and calls Process:
//
//	p, err := pipeflow.NewPipeline(ctx, &pipeflow.Config{}, logger, pipeflow.PipelineDependencies{})
//	if err != nil {
//		return err
//	}
//	defer p.Close(ctx)
//
//	_ = pipeflow.RegisterHandler(p, pipeflow.HandlerRegistration[Order]{Handler: orderHandler})
//	_ = pipeflow.RegisterSubscriber(p, pipeflow.SubscriberRegistration[Order]{Subscriber: audit})
//	result, err := p.Process(ctx, Order{ID: "42"})
//
// # Middleware
//
// Three chains exist. The process chain wraps handler invocation and may
// replace the message or the result. The error chain observes handler
// failures. The subscription chain wraps every subscriber notification. The
// default set installs panic recovery, Prometheus metrics, OpenTelemetry
// tracing, correlation ids and error logging; HooksMiddleware adds
// OnStart/OnDone/OnError callbacks around either chain.
//
// # Forwarding
//
// RegisterForwarder installs a subscriber that encodes the message with a codec
// (json, protojson, proto or msgpack), optionally wraps it in a CloudEvents
// envelope, and publishes it through a Watermill publisher. The publisher is
// either supplied through PipelineDependencies or built from Config by one of
// the registered transports:
//   - channel: in-memory Go channels
//   - kafka: Kafka via Sarama
//   - rabbitmq: AMQP 0.9.1
//   - nats and nats-jetstream: NATS core and JetStream
//   - http: POST to a webhook URL
//   - io: JSON lines file
//   - gocloud: any gocloud.dev pubsub topic URL
//   - aws and aws-sqs: AWS SNS and SQS, LocalStack friendly
//
// Import github.com/drblury/pipeflow/transport/transports to register them all.
//
// # Observability
//
// Per message type statistics are available from Pipeline.Stats and from the
// optional web API (/api/types, /api/chains, /api/transport). Prometheus
// metrics are served on /metrics when enabled.
package pipeflow
