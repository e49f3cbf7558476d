// The webhook-ingress binary receives webhook calls from the talk management
// system, verifies their HMAC signature, and enqueues them for the indexer
// worker. It does no processing of its own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"

	"github.com/confsearch/talk-indexer/pkg/config"
	"github.com/confsearch/talk-indexer/pkg/messagepipeline"
	"github.com/confsearch/talk-indexer/pkg/webhook"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "webhook-ingress").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration.")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	if cfg.WebhookSecret == "" {
		logger.Fatal().Msg("WEBHOOK_SECRET must be set.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load AWS configuration.")
	}
	publisher := messagepipeline.NewSQSPublisher(cfg.QueueURL, sqs.NewFromConfig(awsCfg), logger)

	server := webhook.NewServer(webhook.ServerConfig{
		HTTPPort:      cfg.HTTPPort,
		WebhookSecret: cfg.WebhookSecret,
	}, publisher, logger)

	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start HTTP server.")
	}
	logger.Info().Str("port", server.GetHTTPPort()).Msg("Webhook ingress running.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed.")
	}
}
