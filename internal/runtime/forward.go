package runtime

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pipeflow/internal/runtime/cloudevents"
	"github.com/drblury/pipeflow/internal/runtime/codec"
	errspkg "github.com/drblury/pipeflow/internal/runtime/errors"
	"github.com/drblury/pipeflow/internal/runtime/ids"
	"github.com/drblury/pipeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/pipeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/pipeflow/internal/runtime/metadata"
)

const defaultForwardSource = "pipeflow"

// ForwardOptions configures a forwarding subscriber. Zero fields fall back to
// the pipeline config.
type ForwardOptions struct {
	// Topic defaults to ForwardTopicPrefix followed by the message type name.
	Topic string
	// Codec names a registered codec; defaults to ForwardCodec, then "json".
	Codec string
	// CloudEvents wraps payloads in a CloudEvents envelope. ForwardCloudEvents
	// in the config enables it for every forwarder.
	CloudEvents bool
	// Source is the CloudEvents source; defaults to ForwardSource, then "pipeflow".
	Source string
	// Metadata is copied onto every forwarded message.
	Metadata metadatapkg.Metadata
}

type forwarder struct {
	publisher   message.Publisher
	topic       string
	codec       codec.Codec
	cloudEvents bool
	source      string
	metadata    metadatapkg.Metadata
	messageType string
	maxSize     int64
	metrics     *pipelineMetrics
	logger      loggingpkg.ServiceLogger
}

// RegisterForwarder subscribes a forwarder for T that publishes every
// successfully processed message to the pipeline publisher. Forwarding is
// best-effort: a failed publish is reported like any subscriber failure.
func RegisterForwarder[T any](p *Pipeline, opts ForwardOptions) error {
	if p == nil {
		return errspkg.ErrPipelineRequired
	}
	if p.publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	msgType, err := concreteType[T]()
	if err != nil {
		return err
	}

	fwd, err := p.newForwarder(msgType, opts)
	if err != nil {
		return err
	}

	return RegisterSubscriber(p, SubscriberRegistration[T]{
		Name: "forward:" + fwd.topic,
		Subscriber: SubscriberFunc[T](func(ctx context.Context, msg T) error {
			return fwd.forward(ctx, msg)
		}),
	})
}

func (p *Pipeline) newForwarder(msgType reflect.Type, opts ForwardOptions) (*forwarder, error) {
	codecName := opts.Codec
	if codecName == "" {
		codecName = p.Conf.ForwardCodec
	}
	c, err := codec.Lookup(codecName)
	if err != nil {
		return nil, err
	}

	topic := opts.Topic
	if topic == "" {
		topic = p.Conf.ForwardTopicPrefix + messageTypeName(msgType)
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}

	source := opts.Source
	if source == "" {
		source = p.Conf.ForwardSource
	}
	if source == "" {
		source = defaultForwardSource
	}

	return &forwarder{
		publisher:   p.publisher,
		topic:       topic,
		codec:       c,
		cloudEvents: opts.CloudEvents || p.Conf.ForwardCloudEvents,
		source:      source,
		metadata:    opts.Metadata.Clone(),
		messageType: messageTypeName(msgType),
		maxSize:     p.transportCaps.MaxMessageSize,
		metrics:     p.metrics,
		logger:      p.Logger,
	}, nil
}

func (f *forwarder) forward(ctx context.Context, msg any) error {
	wm, err := f.newMessage(ctx, msg)
	if err == nil {
		err = f.publisher.Publish(f.topic, wm)
	}
	f.metrics.observeForward(f.topic, err)
	if err != nil {
		return fmt.Errorf("forward %s to %s: %w", f.messageType, f.topic, err)
	}

	f.logger.Trace("Forwarded message", loggingpkg.LogFields{
		"message_type":   f.messageType,
		"topic":          f.topic,
		"message_uuid":   wm.UUID,
		"correlation_id": ids.CorrelationID(ctx),
	})
	return nil
}

// newMessage encodes msg into a watermill message carrying the standard
// forwarding metadata.
func (f *forwarder) newMessage(ctx context.Context, msg any) (*message.Message, error) {
	payload, err := f.codec.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode with %s: %w", f.codec.Name(), err)
	}
	contentType := f.codec.ContentType()
	correlationID := ids.CorrelationID(ctx)

	if f.cloudEvents {
		evt := cloudevents.New(f.messageType, f.source).
			WithData(contentType, payload).
			WithExtension(cloudevents.ExtMessageType, f.messageType)
		evt = cloudevents.WithCorrelationID(evt, correlationID)
		if subscriber := SubscriberName(ctx); subscriber != "" {
			evt = evt.WithExtension(cloudevents.ExtSubscriber, subscriber)
		}
		if err := evt.Validate(); err != nil {
			return nil, err
		}
		if payload, err = jsoncodec.Marshal(evt); err != nil {
			return nil, fmt.Errorf("encode cloudevent: %w", err)
		}
		contentType = cloudevents.ContentType
	}

	if f.maxSize > 0 && int64(len(payload)) > f.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", errspkg.ErrPayloadTooLarge, len(payload), f.maxSize)
	}

	md := f.metadata.
		With(metadatapkg.KeyMessageType, f.messageType).
		With(metadatapkg.KeyCorrelationID, correlationID).
		With(metadatapkg.KeyContentType, contentType).
		With(metadatapkg.KeySource, f.source)

	wm := message.NewMessage(ids.CreateULID(), payload)
	wm.Metadata = metadatapkg.ToWatermill(md)
	wm.SetContext(ctx)
	return wm, nil
}

// Publish encodes msg with the configured codec and publishes it once to
// topic, outside of any subscription. It uses the same envelope and metadata
// as forwarders.
func (p *Pipeline) Publish(ctx context.Context, topic string, msg any, md metadatapkg.Metadata) error {
	if p == nil {
		return errspkg.ErrPipelineRequired
	}
	if p.publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if msg == nil {
		return errspkg.ErrMessageRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fwd, err := p.newForwarder(reflect.TypeOf(msg), ForwardOptions{Topic: topic, Metadata: md})
	if err != nil {
		return err
	}
	return fwd.forward(ctx, msg)
}
