// The indexer-worker binary drains the webhook event queue and keeps the
// talk search index in sync with the talk management system. It can also run
// a bulk reindex sweep at startup before polling begins.
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

	"github.com/confsearch/talk-indexer/pkg/cache"
	"github.com/confsearch/talk-indexer/pkg/config"
	"github.com/confsearch/talk-indexer/pkg/esstore"
	"github.com/confsearch/talk-indexer/pkg/events"
	"github.com/confsearch/talk-indexer/pkg/indexer"
	"github.com/confsearch/talk-indexer/pkg/messagepipeline"
	"github.com/confsearch/talk-indexer/pkg/reindex"
	"github.com/confsearch/talk-indexer/pkg/talkapi"
)

// processedEventTTL bounds how long a handled eventId suppresses duplicate
// deliveries. Redeliveries arrive within the visibility window, so a few
// hours is ample.
const processedEventTTL = 6 * time.Hour

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "indexer-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration.")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer, err := esstore.NewESWriter(esstore.ESWriterConfig{
		Addresses: []string{cfg.ElasticsearchURL},
		Username:  cfg.ElasticsearchUsername,
		Password:  cfg.ElasticsearchPassword,
		Index:     cfg.ElasticsearchIndex,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Elasticsearch writer.")
	}

	apiClient := talkapi.NewClient(talkapi.ClientConfig{
		BaseURL:  cfg.TalkAPIURL,
		Username: cfg.TalkAPIUsername,
		Password: cfg.TalkAPIPassword,
	}, logger)

	var processorOpts []indexer.ProcessorOption
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache[string, time.Time](ctx, &cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			CacheTTL: processedEventTTL,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis.")
		}
		defer redisCache.Close()
		tracker := indexer.NewCachedEventTracker(redisCache, logger)
		processorOpts = append(processorOpts, indexer.WithProcessedEventCache(tracker))
	}

	processor := indexer.NewProcessor(apiClient, writer, logger, processorOpts...)

	if cfg.ReindexOnStart {
		ids := cfg.ConferenceIDs()
		if len(ids) == 0 {
			logger.Warn().Msg("REINDEX_ON_START is set but REINDEX_CONFERENCE_IDS is empty, skipping reindex.")
		} else {
			reindex.NewOrchestrator(apiClient, writer, logger).Reindex(ctx, ids)
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load AWS configuration.")
	}

	consumerCfg := messagepipeline.LoadDefaultSQSConsumerConfig(cfg.QueueURL)
	consumerCfg.MaxMessages = int32(cfg.MaxMessagesPerPoll)
	consumerCfg.PollInterval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	consumer := messagepipeline.NewSQSConsumer(consumerCfg, sqs.NewFromConfig(awsCfg), logger)

	service, err := messagepipeline.NewStreamingService[events.TalkEvent](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumWorkers},
		consumer,
		processor.Transformer(),
		processor.Process,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build streaming service.")
	}

	if err := service.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start streaming service.")
	}
	logger.Info().Int("workers", cfg.NumWorkers).Msg("Indexer worker polling for events.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := service.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Streaming service shutdown failed.")
	}
}
