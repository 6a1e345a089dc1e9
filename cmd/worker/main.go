package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/cmd"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/ingest"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/messaging"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/storage"
	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL       string        `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string        `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string        `env:"S3_ENDPOINT_URL,notEmpty,required"`
	S3AccessKeyID     string        `env:"AWS_ACCESS_KEY_ID,notEmpty,required"`
	S3SecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY,notEmpty,required"`
	S3Region          string        `env:"AWS_REGION,notEmpty,required"`
	StaleUploadAfter  time.Duration `env:"STALE_UPLOAD_AFTER" envDefault:"30m"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("Worker: Failed to create object store: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to create RabbitMQ receiver: %v", err)
	}

	if err := cmd.RequeueInterruptedUploads(context.Background(), db, publisher, cfg.StaleUploadAfter); err != nil {
		log.Printf("WARNING: failed to requeue interrupted uploads: %v", err)
	}

	processor := ingest.NewTaskProcessor(db, store, reciever)
	go processor.Start()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping worker...")

	processor.Stop()

	log.Println("Worker process stopped.")
}
