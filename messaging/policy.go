package messaging

import (
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology defaults for the dead-letter retry cycle.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 30 * time.Second

	delayExchangeSuffix = ".dlx"
	delayQueueSuffix    = ".dlq"
)

// TopologyDeclarer declares exchanges, queues and bindings.
// *amqp091.Channel satisfies it.
type TopologyDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// RetryPolicy describes the dead-letter retry cycle for one queue. A
// rejected message dead-letters to the delay exchange, waits Delay on the
// delay queue, then re-enters the work queue through the default exchange.
type RetryPolicy struct {
	// Queue is the work queue the policy protects.
	Queue string

	// MaxRetries is the delivery-attempt ceiling consumers enforce through
	// Exceeded. The broker itself cycles messages indefinitely.
	MaxRetries int

	// Delay is how long a rejected message waits before redelivery.
	Delay time.Duration

	// Durable declares the exchange and queues as surviving broker
	// restarts.
	Durable bool
}

// NewRetryPolicy returns a retry policy for queue with default retry
// budget and delay.
func NewRetryPolicy(queue string) *RetryPolicy {
	return &RetryPolicy{
		Queue:      queue,
		MaxRetries: DefaultMaxRetries,
		Delay:      DefaultRetryDelay,
	}
}

// DelayExchange returns the name of the policy's dead-letter exchange.
func (p *RetryPolicy) DelayExchange() string {
	return p.Queue + delayExchangeSuffix
}

// DelayQueue returns the name of the policy's delay queue.
func (p *RetryPolicy) DelayQueue() string {
	return p.Queue + delayQueueSuffix
}

// Declare creates the retry topology on the broker: the delay exchange,
// the delay queue that dead-letters expired messages back to the work
// queue, the binding between them, and the work queue itself wired to
// dead-letter into the delay exchange. Declarations are idempotent as long
// as the parameters do not change.
func (p *RetryPolicy) Declare(ch TopologyDeclarer) error {
	if p.Queue == "" {
		return errors.New("messaging: retry policy requires a queue name")
	}

	delay := p.Delay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	if err := ch.ExchangeDeclare(p.DelayExchange(), "direct", p.Durable, false, false, false, nil); err != nil {
		return fmt.Errorf("declare delay exchange %s: %w", p.DelayExchange(), err)
	}

	if _, err := ch.QueueDeclare(p.DelayQueue(), p.Durable, false, false, false, amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": p.Queue,
	}); err != nil {
		return fmt.Errorf("declare delay queue %s: %w", p.DelayQueue(), err)
	}

	if err := ch.QueueBind(p.DelayQueue(), p.Queue, p.DelayExchange(), false, nil); err != nil {
		return fmt.Errorf("bind delay queue %s: %w", p.DelayQueue(), err)
	}

	if _, err := ch.QueueDeclare(p.Queue, p.Durable, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    p.DelayExchange(),
		"x-dead-letter-routing-key": p.Queue,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", p.Queue, err)
	}

	return nil
}

// Exceeded reports whether the delivery has died more times than the
// policy allows. Consumers use it to break the retry cycle, typically by
// acknowledging the message after parking it elsewhere.
func (p *RetryPolicy) Exceeded(d amqp.Delivery) bool {
	if p.MaxRetries <= 0 {
		return false
	}
	return DeathCount(d.Headers) >= int64(p.MaxRetries)
}

// DeathCount totals the broker's x-death records on a delivery. Each
// record carries a per-queue count; the sum is how many times the message
// has been dead-lettered.
func DeathCount(headers amqp.Table) int64 {
	if headers == nil {
		return 0
	}
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 0
	}

	var total int64
	for _, death := range deaths {
		entry, ok := death.(amqp.Table)
		if !ok {
			continue
		}
		if count, ok := entry["count"].(int64); ok {
			total += count
		}
	}
	return total
}
