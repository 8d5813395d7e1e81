package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const DefaultAlertQueue = "signal_alerts"

// AMQPNotifier publishes alerts as persistent JSON messages to a durable
// RabbitMQ queue.
type AMQPNotifier struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
}

// NewAMQPNotifier connects to amqpURI, retrying a few times, and declares queue.
func NewAMQPNotifier(amqpURI, queue string) (*AMQPNotifier, error) {
	if queue == "" {
		queue = DefaultAlertQueue
	}

	var (
		conn *amqp091.Connection
		err  error
	)
	for i := 0; i < 5; i++ {
		conn, err = amqp091.Dial(amqpURI)
		if err == nil {
			break
		}
		log.Printf("[amqp] connection attempt %d failed: %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("amqp: connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		log.Printf("[amqp] publisher confirms unavailable: %v", err)
	}

	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp: declare queue %q: %w", queue, err)
	}

	log.Printf("[amqp] publishing alerts to queue %s", queue)
	return &AMQPNotifier{conn: conn, channel: ch, queue: queue}, nil
}

func (a *AMQPNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.Time.IsZero() {
		alert.Time = time.Now().UTC()
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("amqp: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	err = a.channel.PublishWithContext(ctx,
		"", // default exchange
		a.queue,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    alert.Time,
			Type:         string(alert.Kind),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp: publish: %w", err)
	}
	return nil
}

// Close closes the channel and connection.
func (a *AMQPNotifier) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.channel.Close(); err != nil {
		a.conn.Close()
		return err
	}
	return a.conn.Close()
}
