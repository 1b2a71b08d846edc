// Package messaging publishes finished analysis results to an AMQP queue.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"crm-value-server/pkg/config"
	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/metrics"
	"crm-value-server/pkg/multimodal"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// ResultMessage is the body of every published message
type ResultMessage struct {
	MessageID    string                     `json:"message_id"`
	RequestID    string                     `json:"request_id"`
	CustomerID   string                     `json:"customer_id"`
	AnalysisType string                     `json:"analysis_type"`
	Timestamp    time.Time                  `json:"timestamp"`
	Result       *multimodal.AnalysisResult `json:"result"`
	DeadLetter   bool                       `json:"dead_letter,omitempty"`
	Reason       string                     `json:"reason,omitempty"`
}

// amqpChannel is the subset of *amqp.Channel the publisher uses
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// ResultPublisher publishes analysis results to a durable queue and
// reconnects when the broker drops the connection
type ResultPublisher struct {
	logger         *logrus.Logger
	url            string
	queueName      string
	publishTimeout time.Duration

	conn      *amqp.Connection
	channel   amqpChannel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}

	now func() time.Time
}

// NewResultPublisher creates a publisher for cfg. Call Connect before publishing.
func NewResultPublisher(logger *logrus.Logger, cfg config.MessagingConfig) *ResultPublisher {
	return &ResultPublisher{
		logger:         logger,
		url:            cfg.URL,
		queueName:      cfg.QueueName,
		publishTimeout: 2 * time.Second,
		stopChan:       make(chan struct{}),
		now:            time.Now,
	}
}

// Connect establishes a connection to the AMQP server and declares the queue
func (p *ResultPublisher) Connect() error {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if p.connected {
		return nil
	}

	if p.url == "" || p.queueName == "" {
		return errors.NewInvalidInput("AMQP URL or queue name not configured")
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		return errors.Wrap(errors.ErrUnavailable, "failed to connect to AMQP server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to open AMQP channel")
	}

	if err := p.declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	p.conn = conn
	p.channel = ch
	p.connected = true
	p.stopChan = make(chan struct{})

	p.logger.WithField("queue", p.queueName).Info("Connected to AMQP server")

	go p.monitorConnection(conn)
	return nil
}

func (p *ResultPublisher) declare(ch amqpChannel) error {
	_, err := ch.QueueDeclare(
		p.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "failed to declare AMQP queue", map[string]interface{}{
			"queue": p.queueName,
		})
	}
	return nil
}

// Disconnect closes the AMQP connection
func (p *ResultPublisher) Disconnect() {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if !p.connected {
		return
	}

	close(p.stopChan)

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}

	p.connected = false
	p.logger.Info("Disconnected from AMQP server")
}

// PublishResult publishes one finished analysis
func (p *ResultPublisher) PublishResult(ctx context.Context, result *multimodal.AnalysisResult) error {
	if result == nil {
		return errors.NewInvalidInput("nil analysis result")
	}

	msg := ResultMessage{
		MessageID:    uuid.NewString(),
		RequestID:    result.RequestID,
		CustomerID:   result.CustomerID,
		AnalysisType: result.AnalysisType,
		Timestamp:    p.now(),
		Result:       result,
	}

	err := p.publish(ctx, p.queueName, msg, nil)
	if err != nil {
		metrics.RecordResultPublish(p.queueName, "error")
		// broker rejections are parked; a missing connection has nowhere to park
		if !errors.IsErrorType(err, errors.ErrUnavailable) {
			if dlqErr := p.PublishToDeadLetterQueue(ctx, result, err.Error()); dlqErr != nil {
				p.logger.WithError(dlqErr).WithField("request_id", result.RequestID).Warn("Failed to park result in dead letter queue")
			}
		}
		return err
	}

	metrics.RecordResultPublish(p.queueName, "success")
	p.logger.WithFields(logrus.Fields{
		"request_id":  result.RequestID,
		"customer_id": result.CustomerID,
		"message_id":  msg.MessageID,
	}).Debug("Published analysis result")
	return nil
}

// PublishToDeadLetterQueue parks a result that could not be delivered
func (p *ResultPublisher) PublishToDeadLetterQueue(ctx context.Context, result *multimodal.AnalysisResult, reason string) error {
	queue := p.queueName + ".dead_letter"

	msg := ResultMessage{
		MessageID:  uuid.NewString(),
		Timestamp:  p.now(),
		Result:     result,
		DeadLetter: true,
		Reason:     reason,
	}
	if result != nil {
		msg.RequestID = result.RequestID
		msg.CustomerID = result.CustomerID
		msg.AnalysisType = result.AnalysisType
	}

	p.connMutex.RLock()
	ch := p.channel
	p.connMutex.RUnlock()
	if ch != nil {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return errors.Wrap(err, "failed to declare dead letter queue")
		}
	}

	err := p.publish(ctx, queue, msg, amqp.Table{"x-dead-letter-reason": reason})
	if err != nil {
		metrics.RecordResultPublish(queue, "error")
		return err
	}

	metrics.RecordResultPublish(queue, "success")
	p.logger.WithFields(logrus.Fields{
		"customer_id":       msg.CustomerID,
		"dead_letter_queue": queue,
		"reason":            reason,
	}).Info("Result published to dead letter queue")
	return nil
}

func (p *ResultPublisher) publish(ctx context.Context, queue string, msg ResultMessage, headers amqp.Table) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal result message")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	publishChan := make(chan error, 1)
	go func() {
		p.connMutex.RLock()
		defer p.connMutex.RUnlock()

		if !p.connected || p.channel == nil {
			publishChan <- errors.Wrap(errors.ErrUnavailable, "not connected to AMQP server")
			return
		}

		publishChan <- p.channel.Publish(
			"",    // default exchange
			queue, // routing key
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				MessageId:    msg.MessageID,
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    msg.Timestamp,
				Headers:      headers,
			},
		)
	}()

	select {
	case err := <-publishChan:
		if err != nil {
			if errors.IsErrorType(err, errors.ErrUnavailable) {
				return err
			}
			return errors.Wrap(err, fmt.Sprintf("failed to publish to %s", queue))
		}
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrTimeout, fmt.Sprintf("publishing to %s timed out", queue))
	}
}

// monitorConnection reconnects with exponential backoff when conn closes
func (p *ResultPublisher) monitorConnection(conn *amqp.Connection) {
	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))

	p.connMutex.RLock()
	stop := p.stopChan
	p.connMutex.RUnlock()

	select {
	case <-stop:
		return
	case closeErr, ok := <-closeChan:
		if !ok {
			return
		}
		p.connMutex.Lock()
		p.connected = false
		p.connMutex.Unlock()

		p.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")
	}

	for attempt := 1; attempt <= 10; attempt++ {
		err := p.Connect()
		if err == nil {
			p.logger.WithField("attempt", attempt).Info("Reconnected to AMQP server")
			return
		}
		p.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")

		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}

		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}
	}
}
