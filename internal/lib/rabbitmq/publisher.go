package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"github.com/curadoria-elite-travel/fulfillment/internal/models"
)

// Channel часть *amqp.Channel, нужная для публикации.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// PublishMessage публикует сообщение в RabbitMQ в формате JSON.
func PublishMessage(ch Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GrantPublisher публикует события о выдаче доступа в заданный exchange.
type GrantPublisher struct {
	ch         Channel
	exchange   string
	routingKey string
}

// NewGrantPublisher создает GrantPublisher.
func NewGrantPublisher(ch Channel, exchange, routingKey string) *GrantPublisher {
	return &GrantPublisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
	}
}

// PublishGrant публикует событие о выдаче доступа.
func (p *GrantPublisher) PublishGrant(ctx context.Context, event models.GrantEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return PublishMessage(p.ch, p.exchange, p.routingKey, event)
}
