package infrastructure

import (
	"context"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
)

type (
	EventPublisher interface {
		PublishEvents(ctx context.Context, events []dto.Event) error
		Close() error
	}

	Alerter interface {
		Alert(eventID, eventType, errorMessage string)
	}
)
