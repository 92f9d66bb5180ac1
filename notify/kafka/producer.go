// Package kafka publishes notifications to Kafka for a downstream mailer.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/notify"
)

// DefaultTopic receives every notification unless Config.Topic is set.
const DefaultTopic = "auth.notifications"

// Config holds producer settings.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
	Now      func() time.Time
}

// Message is the JSON value written to the topic. The key is the user id so
// messages for one user stay ordered on one partition.
type Message struct {
	Kind      notify.Kind `json:"kind"`
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	Name      string      `json:"name,omitempty"`
	Secret    string      `json:"secret"`
	CreatedAt time.Time   `json:"created_at"`
}

// Producer implements notify.Notifier on top of a sarama.SyncProducer.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
	logger   *zap.Logger
}

// NewSaramaConfig returns the producer configuration used by Dial.
func NewSaramaConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// Dial connects to the brokers in cfg.
func Dial(cfg Config, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return New(producer, cfg, logger), nil
}

// New wraps an existing producer.
func New(producer sarama.SyncProducer, cfg Config, logger *zap.Logger) *Producer {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		producer: producer,
		topic:    cfg.Topic,
		now:      cfg.Now,
		logger:   logger.Named("kafka"),
	}
}

func (p *Producer) SendOTP(ctx context.Context, to notify.Recipient, code string) error {
	return p.publish(ctx, notify.KindOTP, to, code)
}

func (p *Producer) SendVerification(ctx context.Context, to notify.Recipient, token string) error {
	return p.publish(ctx, notify.KindVerification, to, token)
}

func (p *Producer) publish(ctx context.Context, kind notify.Kind, to notify.Recipient, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(Message{
		Kind:      kind,
		UserID:    to.UserID,
		Email:     to.Email,
		Name:      to.Name,
		Secret:    secret,
		CreatedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(to.UserID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", notify.ErrDeliveryFailed, err)
	}

	p.logger.Debug("notification published",
		zap.String("kind", string(kind)),
		zap.String("user_id", to.UserID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
