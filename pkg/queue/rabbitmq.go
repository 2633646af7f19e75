package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// ReportsExchange carries realtime report lifecycle events.
	ReportsExchange = "reports"
	// RoutingKeyReportUpdated is the routing key for report state changes.
	RoutingKeyReportUpdated = "report.updated"
	// ClassificationQueue holds pending classification jobs for the ML worker.
	ClassificationQueue = "classification_queue"
)

func ConnectRabbitMQ(uri string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return conn, ch, nil
}

// DeclareReportsExchange sets up the durable direct exchange used for
// realtime report events.
func DeclareReportsExchange(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ReportsExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}
