package messaging

import (
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type declaredExchange struct {
	name    string
	kind    string
	durable bool
}

type declaredQueue struct {
	name    string
	durable bool
	args    amqp.Table
}

type declaredBinding struct {
	queue    string
	key      string
	exchange string
}

// fakeDeclarer records topology declarations and fails configured steps.
type fakeDeclarer struct {
	exchanges []declaredExchange
	queues    []declaredQueue
	bindings  []declaredBinding

	exchangeErr error
	queueErr    map[string]error
	bindErr     error
}

func (d *fakeDeclarer) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	if d.exchangeErr != nil {
		return d.exchangeErr
	}
	d.exchanges = append(d.exchanges, declaredExchange{name, kind, durable})
	return nil
}

func (d *fakeDeclarer) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	if err := d.queueErr[name]; err != nil {
		return amqp.Queue{}, err
	}
	d.queues = append(d.queues, declaredQueue{name, durable, args})
	return amqp.Queue{Name: name}, nil
}

func (d *fakeDeclarer) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	if d.bindErr != nil {
		return d.bindErr
	}
	d.bindings = append(d.bindings, declaredBinding{name, key, exchange})
	return nil
}

func TestNewRetryPolicy(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy("orders")
	assert.Equal(t, "orders", policy.Queue)
	assert.Equal(t, DefaultMaxRetries, policy.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, policy.Delay)
	assert.Equal(t, "orders.dlx", policy.DelayExchange())
	assert.Equal(t, "orders.dlq", policy.DelayQueue())
}

func TestRetryPolicy_Declare(t *testing.T) {
	t.Parallel()

	t.Run("declares the full retry topology", func(t *testing.T) {
		t.Parallel()
		declarer := &fakeDeclarer{}
		require.NoError(t, NewRetryPolicy("orders").Declare(declarer))

		require.Len(t, declarer.exchanges, 1)
		assert.Equal(t, declaredExchange{name: "orders.dlx", kind: "direct"}, declarer.exchanges[0])

		require.Len(t, declarer.queues, 2)

		delayQueue := declarer.queues[0]
		assert.Equal(t, "orders.dlq", delayQueue.name)
		assert.Equal(t, int64(30000), delayQueue.args["x-message-ttl"])
		assert.Equal(t, "", delayQueue.args["x-dead-letter-exchange"])
		assert.Equal(t, "orders", delayQueue.args["x-dead-letter-routing-key"])

		workQueue := declarer.queues[1]
		assert.Equal(t, "orders", workQueue.name)
		assert.Equal(t, "orders.dlx", workQueue.args["x-dead-letter-exchange"])
		assert.Equal(t, "orders", workQueue.args["x-dead-letter-routing-key"])

		require.Len(t, declarer.bindings, 1)
		assert.Equal(t, declaredBinding{queue: "orders.dlq", key: "orders", exchange: "orders.dlx"}, declarer.bindings[0])
	})

	t.Run("custom delay sets the queue ttl", func(t *testing.T) {
		t.Parallel()
		declarer := &fakeDeclarer{}
		policy := NewRetryPolicy("orders")
		policy.Delay = 5 * time.Second
		require.NoError(t, policy.Declare(declarer))

		assert.Equal(t, int64(5000), declarer.queues[0].args["x-message-ttl"])
	})

	t.Run("zero delay falls back to the default", func(t *testing.T) {
		t.Parallel()
		declarer := &fakeDeclarer{}
		policy := &RetryPolicy{Queue: "orders"}
		require.NoError(t, policy.Declare(declarer))

		assert.Equal(t, DefaultRetryDelay.Milliseconds(), declarer.queues[0].args["x-message-ttl"])
	})

	t.Run("durable flag applies everywhere", func(t *testing.T) {
		t.Parallel()
		declarer := &fakeDeclarer{}
		policy := NewRetryPolicy("orders")
		policy.Durable = true
		require.NoError(t, policy.Declare(declarer))

		assert.True(t, declarer.exchanges[0].durable)
		assert.True(t, declarer.queues[0].durable)
		assert.True(t, declarer.queues[1].durable)
	})

	t.Run("empty queue name is rejected", func(t *testing.T) {
		t.Parallel()
		err := (&RetryPolicy{}).Declare(&fakeDeclarer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue name")
	})

	t.Run("exchange declaration failure surfaces", func(t *testing.T) {
		t.Parallel()
		declareErr := errors.New("access refused")
		declarer := &fakeDeclarer{exchangeErr: declareErr}

		err := NewRetryPolicy("orders").Declare(declarer)
		require.ErrorIs(t, err, declareErr)
		assert.Contains(t, err.Error(), "orders.dlx")
	})

	t.Run("delay queue failure surfaces", func(t *testing.T) {
		t.Parallel()
		declareErr := errors.New("precondition failed")
		declarer := &fakeDeclarer{queueErr: map[string]error{"orders.dlq": declareErr}}

		err := NewRetryPolicy("orders").Declare(declarer)
		require.ErrorIs(t, err, declareErr)
		assert.Contains(t, err.Error(), "orders.dlq")
	})

	t.Run("binding failure surfaces", func(t *testing.T) {
		t.Parallel()
		bindErr := errors.New("not found")
		declarer := &fakeDeclarer{bindErr: bindErr}

		err := NewRetryPolicy("orders").Declare(declarer)
		require.ErrorIs(t, err, bindErr)
	})

	t.Run("work queue failure surfaces", func(t *testing.T) {
		t.Parallel()
		declareErr := errors.New("precondition failed")
		declarer := &fakeDeclarer{queueErr: map[string]error{"orders": declareErr}}

		err := NewRetryPolicy("orders").Declare(declarer)
		require.ErrorIs(t, err, declareErr)
	})
}

func TestDeathCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		headers  amqp.Table
		expected int64
	}{
		{
			name:     "nil headers",
			headers:  nil,
			expected: 0,
		},
		{
			name:     "no x-death entry",
			headers:  amqp.Table{"content-type": "application/json"},
			expected: 0,
		},
		{
			name:     "x-death with wrong type",
			headers:  amqp.Table{"x-death": "three"},
			expected: 0,
		},
		{
			name: "single death record",
			headers: amqp.Table{
				"x-death": []interface{}{
					amqp.Table{"queue": "orders", "count": int64(2)},
				},
			},
			expected: 2,
		},
		{
			name: "multiple death records sum",
			headers: amqp.Table{
				"x-death": []interface{}{
					amqp.Table{"queue": "orders", "count": int64(2)},
					amqp.Table{"queue": "orders.dlq", "count": int64(1)},
				},
			},
			expected: 3,
		},
		{
			name: "malformed entries are skipped",
			headers: amqp.Table{
				"x-death": []interface{}{
					"not-a-table",
					amqp.Table{"queue": "orders", "count": "two"},
					amqp.Table{"queue": "orders", "count": int64(1)},
				},
			},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, DeathCount(tt.headers))
		})
	}
}

func TestRetryPolicy_Exceeded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		maxRetries int
		deaths     int64
		expected   bool
	}{
		{name: "below the budget", maxRetries: 3, deaths: 2, expected: false},
		{name: "at the budget", maxRetries: 3, deaths: 3, expected: true},
		{name: "over the budget", maxRetries: 3, deaths: 5, expected: true},
		{name: "zero budget never exceeds", maxRetries: 0, deaths: 10, expected: false},
		{name: "negative budget never exceeds", maxRetries: -1, deaths: 10, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			policy := &RetryPolicy{Queue: "orders", MaxRetries: tt.maxRetries}
			d := amqp.Delivery{}
			if tt.deaths > 0 {
				d.Headers = amqp.Table{
					"x-death": []interface{}{
						amqp.Table{"queue": "orders", "count": tt.deaths},
					},
				}
			}
			assert.Equal(t, tt.expected, policy.Exceeded(d))
		})
	}
}
