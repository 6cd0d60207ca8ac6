package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"checkout/internal/usecase"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel は *amqp.Channel のうち使う部分だけ
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher は注文イベントをキューに流す
type AMQPPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    amqpChannel
	queue string
}

// DialAMQPPublisher は接続してキューを宣言する
func DialAMQPPublisher(url string, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func newAMQPPublisherWithChannel(ch amqpChannel, queue string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, queue: queue}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev usecase.OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	// Channel はgoroutineセーフではない
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.OrderID + ":" + string(ev.Type),
			Type:         string(ev.Type),
			Timestamp:    ev.OccurredAt,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
