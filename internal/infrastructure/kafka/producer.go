package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/pkg/kafka/producer"
)

type EventProducer struct {
	*producer.Producer
	topic string
}

func NewEventProducer(producer *producer.Producer, topic string) *EventProducer {
	return &EventProducer{
		producer,
		topic,
	}
}

// PublishEvents отправляет по сообщению на событие. Ключ сообщения -
// тип агрегата, поэтому события одного агрегата попадают в одну
// партицию и сохраняют относительный порядок; header event_id -
// ключ дедупликации для консьюмеров.
func (ep *EventProducer) PublishEvents(ctx context.Context, events []dto.Event) error {
	var msgsToSend []kafka.Message

	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("EventProducer - PublishEvents - json.Marshal: %w", err)
		}

		msg := kafka.Message{
			Topic: ep.topic,
			Key:   []byte(event.AggregateType),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(event.EventID)},
			},
		}
		msgsToSend = append(msgsToSend, msg)
	}

	if len(msgsToSend) == 0 {
		return nil
	}

	err := ep.Writer.WriteMessages(ctx, msgsToSend...)
	if err != nil {
		return fmt.Errorf("EventProducer - PublishEvents - ep.Writer.WriteMessages: %w", err)
	}

	return nil
}

func (ep *EventProducer) Close() error {
	err := ep.Producer.Close()
	if err != nil {
		return fmt.Errorf("EventProducer - Close: %w", err)
	}

	return nil
}
