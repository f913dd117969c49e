// Package kafka publishes tenant records to the message bus.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/logger"
)

const (
	// publishAttempts is the number of tries per record on top of the
	// writer's own broker-level retries.
	publishAttempts = 3
	// publishBackoffBase is the first retry delay; it doubles per attempt.
	publishBackoffBase = 1 * time.Second
	// writerMaxAttempts caps the writer's broker-level retries.
	writerMaxAttempts = 10
)

// ErrNilRecord is returned when a nil record is passed to PublishUser.
// A nil record is a programming error, not a transient condition.
var ErrNilRecord = errors.New("record cannot be nil")

// Publisher is the publish contract the executor depends on.
type Publisher interface {
	PublishUser(ctx context.Context, user *domain.User) error
}

// Config holds Kafka connection and topic settings.
type Config struct {
	Brokers           []string
	Topic             string
	Partitions        int
	ReplicationFactor int
	// WriteTimeout bounds each publish call; expired calls count as failures.
	WriteTimeout time.Duration
}

// Producer writes user records to the configured topic. Writes are keyed by
// client and user so a tenant's records route to a consistent partition, and
// the writer requires acks from all replicas before reporting success.
type Producer struct {
	writer *kafka.Writer
	cfg    Config
	logger logger.Interface
}

// NewProducer creates a producer for the given brokers and topic.
func NewProducer(cfg Config, log logger.Interface) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  writerMaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Producer{
		writer: writer,
		cfg:    cfg,
		logger: log.WithComponent("kafka"),
	}
}

// PublishUser publishes one user record. The message key is
// "<client_id>-<user_id>" and the value is the record serialized as JSON.
// Failed writes are retried with exponential backoff before the error is
// surfaced to the caller.
func (p *Producer) PublishUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return ErrNilRecord
	}

	value, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to serialize user %s: %w", user.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(user.ClientID + "-" + user.ID),
		Value: value,
	}

	backoff := publishBackoffBase
	var writeErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		writeErr = p.writer.WriteMessages(ctx, msg)
		if writeErr == nil {
			p.logger.Debug("Published user record",
				"user_id", user.ID,
				"client_id", user.ClientID,
				"topic", p.cfg.Topic)
			return nil
		}

		if ctx.Err() != nil {
			break
		}

		p.logger.Warn("Publish attempt failed",
			"user_id", user.ID,
			"attempt", attempt,
			"error", writeErr)

		if attempt < publishAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish cancelled for user %s: %w", user.ID, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("failed to publish user %s: %w", user.ID, writeErr)
}

// EnsureTopic creates the topic if it does not already exist. Callers treat
// errors as non-fatal; brokers with auto-creation enabled don't need it.
func (p *Producer) EnsureTopic(ctx context.Context) error {
	if len(p.cfg.Brokers) == 0 {
		return errors.New("no brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", p.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to resolve controller: %w", err)
	}

	controllerConn, err := kafka.DialContext(ctx, "tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfig := kafka.TopicConfig{
		Topic:             p.cfg.Topic,
		NumPartitions:     p.cfg.Partitions,
		ReplicationFactor: p.cfg.ReplicationFactor,
	}

	if createErr := controllerConn.CreateTopics(topicConfig); createErr != nil {
		return fmt.Errorf("failed to create topic %s: %w", p.cfg.Topic, createErr)
	}

	p.logger.Info("Kafka topic ensured",
		"topic", p.cfg.Topic,
		"partitions", p.cfg.Partitions)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
