package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/farellandr/lunchticket/internal/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWritesJSONEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, ProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var got ticket.Event
		if err := json.Unmarshal(value, &got); err != nil {
			return err
		}
		if got.Type != ticket.EventVerified || got.UserID != 11 || got.Confirmed != 3 {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	p := NewKafkaPublisher(producer)
	err := p.Publish(context.Background(), ticket.Event{
		Type:          ticket.EventVerified,
		TransactionID: 7,
		UserID:        11,
		ActorID:       1,
		Confirmed:     3,
		At:            time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublishReportsSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, ProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisher(producer)
	err := p.Publish(context.Background(), ticket.Event{Type: ticket.EventCharged, UserID: 11})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Contains(t, err.Error(), "ticket.charged")
	require.NoError(t, p.Close())
}

func TestPublishHonorsCancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, ProducerConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewKafkaPublisher(producer)
	assert.ErrorIs(t, p.Publish(ctx, ticket.Event{Type: ticket.EventCharged}), context.Canceled)
	require.NoError(t, p.Close())
}
