package main

import (
	"sync"
	"time"
)

// ReportEvent mirrors the payload the report service publishes on the
// reports exchange.
type ReportEvent struct {
	ReportID      string      `json:"reportId"`
	Status        string      `json:"status"`
	Type          string      `json:"type"`
	UserID        string      `json:"userId,omitempty"`
	Message       string      `json:"message"`
	UpdatedReport interface{} `json:"updatedReport,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// topicForReport names the broadcast topic carrying one report's events.
func topicForReport(reportID string) string {
	return "report-" + reportID
}

// topicForUser names the stream of notifications directed at one user.
func topicForUser(userID string) string {
	return "user-" + userID
}

type subscriber struct {
	topic string
	send  chan ReportEvent
}

// hub is an in-memory broadcast fanout. Delivery is best-effort and
// at-most-once per connected subscriber: there is no replay, and a
// subscriber whose buffer is full loses the event. Within one topic,
// events from a single publisher arrive in publish order.
type hub struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]bool
}

func newHub() *hub {
	return &hub{topics: make(map[string]map[*subscriber]bool)}
}

func (h *hub) subscribe(topic string, buffer int) *subscriber {
	sub := &subscriber{topic: topic, send: make(chan ReportEvent, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*subscriber]bool)
	}
	h.topics[topic][sub] = true
	return sub
}

func (h *hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[sub.topic]
	if !ok || !subs[sub] {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
	close(sub.send)
}

// publish delivers the event to every current subscriber of the topic and
// returns how many received it. Slow subscribers are skipped, not waited on.
func (h *hub) publish(topic string, event ReportEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.topics[topic] {
		select {
		case sub.send <- event:
			delivered++
		default:
			// Subscriber buffer full; the client falls back to a
			// pull query.
		}
	}
	return delivered
}

func (h *hub) subscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.topics {
		total += len(subs)
	}
	return total
}
