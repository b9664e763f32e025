package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"account_service/internal/lib/logger/sl"
	"account_service/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrConsumerClosed = errors.New("delivery channel closed")

type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

func New(urlForConn string, queueName string) (*RabbitMQClient, error) {
	const op = "rabbitmq.New"

	conn, err := amqp.Dial(urlForConn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	q, err := ch.QueueDeclare(
		queueName, true, false, false, false, nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: ch,
		queue:   q,
	}, nil
}

// * SendMessage publishes msg as persistent JSON; it implements verification.Publisher.
func (r *RabbitMQClient) SendMessage(ctx context.Context, msg models.Message) error {
	const op = "rabbitmq.SendMessage"

	body, err := encode(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		"",
		r.queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Handler processes one decoded message. A non-nil error rejects the delivery.
type Handler func(ctx context.Context, msg models.Message) error

// * StartReading consumes the queue until ctx is done or the broker closes the channel.
func (r *RabbitMQClient) StartReading(ctx context.Context, log *slog.Logger, handle Handler) error {
	const op = "rabbitmq.StartReading"

	if err := r.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	deliveries, err := r.channel.Consume(
		r.queue.Name, "", false, false, false, false, nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := consume(ctx, log, deliveries, handle); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func consume(ctx context.Context, log *slog.Logger, deliveries <-chan amqp.Delivery, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrConsumerClosed
			}

			handleDelivery(ctx, log, d, handle)
		}
	}
}

func handleDelivery(ctx context.Context, log *slog.Logger, d amqp.Delivery, handle Handler) {
	msg, err := decode(d.Body)
	if err != nil {
		log.Error("failed to unmarshal message", sl.Err(err))

		// malformed payloads never become valid, drop them
		if err := d.Reject(false); err != nil {
			log.Error("failed to reject message", sl.Err(err))
		}

		return
	}

	if err := handle(ctx, msg); err != nil {
		log.Error("failed to handle message", sl.Err(err))

		if err := d.Nack(false, !d.Redelivered); err != nil {
			log.Error("failed to nack message", sl.Err(err))
		}

		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("failed to ack message", sl.Err(err))
	}
}

func encode(msg models.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func decode(body []byte) (models.Message, error) {
	var msg models.Message

	if err := json.Unmarshal(body, &msg); err != nil {
		return models.Message{}, err
	}

	if msg.Email == "" {
		return models.Message{}, errors.New("message without recipient")
	}

	return msg, nil
}

func (r *RabbitMQClient) Close() {
	_ = r.channel.Close()
	_ = r.conn.Close()
}
