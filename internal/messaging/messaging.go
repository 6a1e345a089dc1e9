package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	IngestQueue     = "ingest_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type IngestTaskPayload struct {
	UploadId  uuid.UUID
	ObjectKey string
}

type Publisher interface {
	PublishIngestTask(ctx context.Context, payload IngestTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
