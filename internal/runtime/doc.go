/*
Package runtime implements the pipeflow message pipeline.

# Architecture Overview

A Pipeline accepts any Go value through Process. The dynamic type of the value
is the dispatch key: at most one handler processes it synchronously on the
caller's goroutine, then every subscriber bound for the type is notified on a
detached goroutine. Handlers, subscribers and middleware are looked up through
a resolver.Resolver on every call, so components may be transient.

# Package Structure

## Pipeline (pipeline.go, process.go)

The Pipeline owns:
  - the component resolver and the immutable Chains descriptor lists
  - the fan-out Dispatcher
  - per-type statistics, Prometheus collectors and the otel tracer
  - the optional forwarding publisher
  - HTTP servers for metrics and the web API

## Chains (chain.go, descriptors.go)

Three independent chains exist: process, error and subscription. Each chain
is rebuilt for every execution by folding the resolvable descriptors, in
registration order, over a terminal node. The last registered middleware is
the outermost one.

## Fan-out (dispatch.go)

Subscribers run one after another on a goroutine that keeps the caller's
context values but not its cancellation. A failing or panicking subscriber is
logged and counted; the others still run.

## Registration (registration.go, middleware.go, hooks.go)

RegisterHandler and RegisterSubscriber bind typed components. Middleware is
registered through PipelineDependencies.Middlewares or bound directly in the
resolver and listed in PipelineDependencies.Chains.

## Forwarding (forward.go)

RegisterForwarder adds a subscriber that encodes processed messages and
publishes them on the configured transport.

## Stats & Monitoring (stats.go, metrics.go, resources.go, webui.go)

Per-type counters, latency percentiles, throughput and error categories,
exposed on /api/types next to /api/chains and /api/transport.

# Sub-packages

  - cloudevents/: CloudEvents 1.0 envelope for forwarded payloads
  - codec/: payload codecs (json, protojson, proto, msgpack)
  - config/: pipeline configuration with validation
  - errors/: sentinel errors and error types
  - ids/: ULID generation and correlation ids
  - jsoncodec/: JSON marshaling on sonic
  - logging/: logger interface and adapters
  - metadata/: forwarded message headers
  - resolver/: the component resolver and its default container
*/
package runtime
