package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToTopicSubscribers(t *testing.T) {
	h := newHub()
	sub := h.subscribe(topicForReport("r1"), 10)
	other := h.subscribe(topicForReport("r2"), 10)

	delivered := h.publish(topicForReport("r1"), ReportEvent{ReportID: "r1", Status: "ACKNOWLEDGED"})

	require.Equal(t, 1, delivered)
	event := <-sub.send
	assert.Equal(t, "r1", event.ReportID)
	assert.Equal(t, "ACKNOWLEDGED", event.Status)

	select {
	case <-other.send:
		t.Fatal("subscriber of another report received the event")
	default:
	}
}

func TestHubPreservesPublishOrderPerTopic(t *testing.T) {
	h := newHub()
	sub := h.subscribe(topicForReport("r1"), 10)

	for _, status := range []string{"ACKNOWLEDGED", "ML_PROCESSED", "RESOLVED"} {
		h.publish(topicForReport("r1"), ReportEvent{ReportID: "r1", Status: status})
	}

	assert.Equal(t, "ACKNOWLEDGED", (<-sub.send).Status)
	assert.Equal(t, "ML_PROCESSED", (<-sub.send).Status)
	assert.Equal(t, "RESOLVED", (<-sub.send).Status)
}

func TestHubLateSubscriberMissesEarlierEvents(t *testing.T) {
	h := newHub()

	delivered := h.publish(topicForReport("r1"), ReportEvent{ReportID: "r1", Status: "ACKNOWLEDGED"})
	require.Equal(t, 0, delivered)

	// No replay: a subscriber joining after the event sees nothing.
	sub := h.subscribe(topicForReport("r1"), 10)
	select {
	case <-sub.send:
		t.Fatal("late subscriber received a replayed event")
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := newHub()
	sub := h.subscribe(topicForReport("r1"), 1)

	h.unsubscribe(sub)

	_, open := <-sub.send
	assert.False(t, open)
	assert.Equal(t, 0, h.subscriberCount())

	// Publishing after the last unsubscribe reaches nobody.
	assert.Equal(t, 0, h.publish(topicForReport("r1"), ReportEvent{ReportID: "r1"}))
	// Double unsubscribe must not panic on the closed channel.
	h.unsubscribe(sub)
}

func TestHubSkipsFullSubscriber(t *testing.T) {
	h := newHub()
	full := h.subscribe(topicForReport("r1"), 1)
	healthy := h.subscribe(topicForReport("r1"), 10)

	h.publish(topicForReport("r1"), ReportEvent{ReportID: "r1", Status: "ACKNOWLEDGED"})
	delivered := h.publish(topicForReport("r1"), ReportEvent{ReportID: "r1", Status: "RESOLVED"})

	// The full subscriber is skipped rather than blocking the publisher.
	assert.Equal(t, 1, delivered)
	assert.Len(t, healthy.send, 2)
	assert.Len(t, full.send, 1)
}
