// Package amqp publishes and consumes the worker queues on RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"finanzen/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// ErrPermanent marks handler errors that retrying cannot fix. Such deliveries
// are rejected instead of requeued.
var ErrPermanent = errors.New("permanent failure")

var (
	errCircuitOpen = errors.New("circuit breaker is open")
	errMalformed   = errors.New("malformed message")
)

// Client holds one connection to the broker with a publishing channel.
// Consumers open their own channels.
type Client struct {
	url          string
	exchangeName string
	importQueue  string
	syncQueue    string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient connects and declares a durable direct exchange with the import
// and sync queues bound by their names.
func NewClient(url, exchangeName, importQueue, syncQueue string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		importQueue:  importQueue,
		syncQueue:    syncQueue,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := c.setup(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}
	c.conn, c.channel = conn, ch
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(c.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	for _, q := range []string{c.importQueue, c.syncQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := ch.QueueBind(q, q, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

// ensureConnected redials when the connection or channel was closed.
func (c *Client) ensureConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn, c.channel = nil, nil
	return c.connectLocked()
}

// PublishStatementImport enqueues an import of the uploaded file.
func (c *Client) PublishStatementImport(ctx context.Context, fileID, userID string) error {
	body, err := NewStatementImportMessage(fileID, userID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.importQueue, body); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Published statement import message",
		log.FieldFileID, fileID, log.FieldUserID, userID, "queue", c.importQueue)
	return nil
}

// PublishTransactionSync enqueues a spreadsheet mirror of the transaction.
func (c *Client) PublishTransactionSync(ctx context.Context, transactionID, userID string, version int64) error {
	body, err := NewTransactionSyncMessage(transactionID, userID, version).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.syncQueue, body); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "Published transaction sync message",
		log.FieldTransactionID, transactionID, "version", version, "queue", c.syncQueue)
	return nil
}

func (c *Client) publish(ctx context.Context, queue string, body []byte) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %s: %w", queue, errCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.ensureConnected(); err != nil {
		c.recordFailure()
		return fmt.Errorf("reconnect: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	err := c.channel.PublishWithContext(ctx, c.exchangeName, queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	c.mu.Unlock()
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// ConsumeStatementImports handles import messages until ctx is done.
func (c *Client) ConsumeStatementImports(ctx context.Context, handler func(context.Context, *StatementImportMessage) error) error {
	return c.consume(ctx, c.importQueue, func(ctx context.Context, body []byte) (string, error) {
		msg, err := StatementImportMessageFromJSON(body)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errMalformed, err)
		}
		return msg.FileID, handler(ctx, msg)
	})
}

// ConsumeTransactionSyncs handles sync messages until ctx is done.
func (c *Client) ConsumeTransactionSyncs(ctx context.Context, handler func(context.Context, *TransactionSyncMessage) error) error {
	return c.consume(ctx, c.syncQueue, func(ctx context.Context, body []byte) (string, error) {
		msg, err := TransactionSyncMessageFromJSON(body)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errMalformed, err)
		}
		return msg.TransactionID, handler(ctx, msg)
	})
}

// consume reads queue with manual acks, reconnecting with backoff when the
// delivery channel closes. handle returns the message id and the handling error.
func (c *Client) consume(ctx context.Context, queue string, handle deliveryHandler) error {
	logger := c.logger.With("queue", queue)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := exponentialBackoff(attempt - 1)
			logger.WarnContext(ctx, "Reconnecting consumer", "attempt", attempt, "backoff", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		ch, msgs, err := c.openConsumer(queue)
		if err != nil {
			if !isConnectionError(err) && attempt > maxFailures {
				return err
			}
			logger.ErrorContext(ctx, "Failed to start consumer", log.FieldError, err)
			continue
		}
		logger.InfoContext(ctx, "Started consuming messages")
		attempt = 0

		err = c.deliver(ctx, logger, msgs, handle)
		ch.Close()
		if ctx.Err() != nil {
			logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		logger.WarnContext(ctx, "Delivery channel closed", log.FieldError, err)
	}
}

func (c *Client) openConsumer(queue string) (*amqp091.Channel, <-chan amqp091.Delivery, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	ch, err := c.conn.Channel()
	c.mu.Unlock()
	if err != nil {
		return nil, nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("start consuming: %w", err)
	}
	return ch, msgs, nil
}

type deliveryHandler func(ctx context.Context, body []byte) (id string, err error)

func (c *Client) deliver(ctx context.Context, logger *log.Logger, msgs <-chan amqp091.Delivery, handle deliveryHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return amqp091.ErrClosed
			}
			id, err := handle(ctx, d.Body)
			switch {
			case errors.Is(err, errMalformed):
				logger.ErrorContext(ctx, "Rejecting malformed message", log.FieldError, err)
				_ = d.Reject(false)
			case errors.Is(err, ErrPermanent):
				logger.ErrorContext(ctx, "Rejecting message after permanent failure", "id", id, log.FieldError, err)
				_ = d.Reject(false)
			case err != nil:
				logger.ErrorContext(ctx, "Failed to handle message, requeueing", "id", id, log.FieldError, err)
				_ = d.Nack(false, true)
			default:
				_ = d.Ack(false)
				logger.DebugContext(ctx, "Processed message", "id", id)
			}
		}
	}
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		last := c.lastFailure
		c.mu.Unlock()
		if time.Since(last) > openTimeout {
			atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network", "dial"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
