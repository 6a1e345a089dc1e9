package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/messaging"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/storage"
	"gorm.io/gorm"
)

// TaskProcessor is the worker side of the ingestion flow: it drains the
// ingest queue, streams each upload's CSV out of object storage, and runs
// the pipeline on it.
type TaskProcessor struct {
	db       *gorm.DB
	storage  storage.ObjectStore
	reciever messaging.Reciever

	pipeline *Pipeline
}

func NewTaskProcessor(db *gorm.DB, store storage.ObjectStore, reciever messaging.Reciever) *TaskProcessor {
	return &TaskProcessor{
		db:       db,
		storage:  store,
		reciever: reciever,
		pipeline: NewPipeline(db),
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.reciever.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {

	case messaging.IngestQueue:
		var payload messaging.IngestTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling ingest task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processIngestTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil { // reject unknown message type
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) processIngestTask(ctx context.Context, payload messaging.IngestTaskPayload) error {
	stream, err := proc.storage.GetObject(ctx, storage.UploadBucket, payload.ObjectKey)
	if err != nil {
		// The CSV is gone, so the upload can never complete. Mark it failed
		// instead of redelivering forever. The claim moves it out of pending
		// so the terminal update applies.
		if claimErr := proc.pipeline.claim(ctx, payload.UploadId); claimErr != nil && !errors.Is(claimErr, ErrAlreadyRunning) {
			slog.Error("could not claim upload with missing object", "upload_id", payload.UploadId, "error", claimErr)
			return err
		}
		return proc.pipeline.fail(ctx, payload.UploadId, err)
	}
	defer stream.Close()

	if err := proc.pipeline.Run(ctx, payload.UploadId, stream); err != nil {
		// Redelivered tasks for an upload that already ran are acked, not
		// retried, so duplicate deliveries are harmless.
		if errors.Is(err, ErrAlreadyRunning) {
			slog.Warn("skipping duplicate ingest task", "upload_id", payload.UploadId)
			return nil
		}
		return err
	}

	return nil
}
