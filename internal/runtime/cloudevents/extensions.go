package cloudevents

// Extension attributes set by the forwarder. CloudEvents restricts extension
// names to lower-case alphanumerics.
const (
	ExtCorrelationID = "pfcorrelationid"
	ExtMessageType   = "pfmessagetype"
	ExtSubscriber    = "pfsubscriber"
)

// CorrelationID returns the correlation id extension.
func CorrelationID(evt Event) string {
	return evt.Extension(ExtCorrelationID)
}

// WithCorrelationID sets the correlation id extension. Empty ids are ignored.
func WithCorrelationID(evt Event, id string) Event {
	if id == "" {
		return evt
	}
	return evt.WithExtension(ExtCorrelationID, id)
}

// MessageType returns the Go message type recorded by the forwarder.
func MessageType(evt Event) string {
	return evt.Extension(ExtMessageType)
}
