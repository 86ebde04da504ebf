package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/farellandr/lunchticket/internal/ticket"
	"github.com/rs/zerolog"
)

// KafkaPublisher writes ticket lifecycle events to one topic per event type,
// keyed by user so a user's events stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func ProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	return config
}

// Connect dials the brokers, retrying while Kafka starts up.
func Connect(brokers []string, attempts int, delay time.Duration, log zerolog.Logger) (*KafkaPublisher, error) {
	var (
		producer sarama.SyncProducer
		err      error
	)
	for i := 1; i <= attempts; i++ {
		producer, err = sarama.NewSyncProducer(brokers, ProducerConfig())
		if err == nil {
			log.Info().Strs("brokers", brokers).Msg("kafka producer initialized")
			return NewKafkaPublisher(producer), nil
		}
		log.Warn().Err(err).Int("attempt", i).Int("attempts", attempts).Msg("waiting for kafka")
		if i < attempts {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("failed to start kafka producer after %d attempts: %w", attempts, err)
}

func (p *KafkaPublisher) Publish(ctx context.Context, event ticket.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: string(event.Type),
		Key:   sarama.StringEncoder(strconv.FormatInt(event.UserID, 10)),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send %s event: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
