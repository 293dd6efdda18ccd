package persistent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/pkg/s3client"
)

type EventArchiveRepo struct {
	*s3client.S3Client
	bucket string
}

func NewEventArchiveRepo(s3c *s3client.S3Client, bucket string) *EventArchiveRepo {
	return &EventArchiveRepo{s3c, bucket}
}

type archiveEnvelope struct {
	dto.Event
	ArchivedAt time.Time `json:"archived_at"`
}

// Put кладет сырое событие под ключ из даты создания и идентификаторов.
// Ключ детерминированный - повторная запись того же события перезапишет
// тот же объект.
func (r *EventArchiveRepo) Put(ctx context.Context, event dto.Event, archivedAt time.Time) (string, error) {
	key := fmt.Sprintf("events/%04d/%02d/%02d/%s/%s.json",
		event.CreatedAt.Year(), event.CreatedAt.Month(), event.CreatedAt.Day(),
		event.AggregateType, event.EventID)

	body, err := json.Marshal(archiveEnvelope{Event: event, ArchivedAt: archivedAt})
	if err != nil {
		return "", fmt.Errorf("EventArchiveRepo - Put - json.Marshal: %w", err)
	}

	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("EventArchiveRepo - Put - r.Client.PutObject: %w", err)
	}

	return key, nil
}
