package cloudevents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationIDExtension(t *testing.T) {
	evt := New("t", "s")
	assert.Equal(t, "", CorrelationID(evt))

	unchanged := WithCorrelationID(evt, "")
	assert.Nil(t, unchanged.Extensions)

	evt = WithCorrelationID(evt, "corr-1")
	assert.Equal(t, "corr-1", CorrelationID(evt))
	assert.NoError(t, evt.Validate())
}

func TestMessageTypeExtension(t *testing.T) {
	evt := New("t", "s").WithExtension(ExtMessageType, "*orders.Order")
	assert.Equal(t, "*orders.Order", MessageType(evt))
}

func TestExtensionNamesAreValid(t *testing.T) {
	for _, name := range []string{ExtCorrelationID, ExtMessageType, ExtSubscriber} {
		assert.True(t, validExtensionName(name), name)
	}
}
