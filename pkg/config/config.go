// Package config builds the single immutable configuration struct for both
// the webhook ingress and the indexer worker. It is loaded once at startup
// and passed explicitly into component constructors; nothing else in the
// repository reads the environment.
package config

import (
	"errors"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config contains process configuration for both deployables. Fields map to
// environment variables by their koanf tag, upper-cased (e.g. SQS_QUEUE_URL).
type Config struct {
	LogLevel string `koanf:"log_level"`
	HTTPPort string `koanf:"http_port"`

	// Queue transport.
	AWSRegion           string `koanf:"aws_region"`
	QueueURL            string `koanf:"sqs_queue_url"`
	PollIntervalSeconds int    `koanf:"poll_interval_seconds"`
	MaxMessagesPerPoll  int    `koanf:"max_messages_per_poll"`
	NumWorkers          int    `koanf:"num_workers"`

	// Ingress.
	WebhookSecret string `koanf:"webhook_secret"`

	// Upstream talk-data API.
	TalkAPIURL      string `koanf:"talk_api_url"`
	TalkAPIUsername string `koanf:"talk_api_username"`
	TalkAPIPassword string `koanf:"talk_api_password"`

	// Search engine.
	ElasticsearchURL      string `koanf:"elasticsearch_url"`
	ElasticsearchUsername string `koanf:"elasticsearch_username"`
	ElasticsearchPassword string `koanf:"elasticsearch_password"`
	ElasticsearchIndex    string `koanf:"elasticsearch_index"`

	// Optional processed-event cache. Duplicate suppression only; disabled
	// when the address is empty.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`

	// Bulk reindex on worker startup.
	ReindexOnStart       bool   `koanf:"reindex_on_start"`
	ReindexConferenceIDs string `koanf:"reindex_conference_ids"`
}

// defaults returns a Config pre-populated with the values used when the
// corresponding environment variables are unset.
func defaults() *Config {
	return &Config{
		LogLevel:            "info",
		HTTPPort:            ":8080",
		AWSRegion:           "eu-west-1",
		PollIntervalSeconds: 5,
		MaxMessagesPerPoll:  10,
		NumWorkers:          1,
		ElasticsearchIndex:  "talks",
	}
}

// Load layers environment variables over defaults and validates the result.
// Env keys map to koanf tags by lower-casing: SQS_QUEUE_URL -> sqs_queue_url.
func Load() (*Config, error) {
	cfg := *defaults()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, err
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = 5
	}
	if cfg.MaxMessagesPerPoll <= 0 || cfg.MaxMessagesPerPoll > 10 {
		cfg.MaxMessagesPerPoll = 10
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.QueueURL == "" {
		return nil, errors.New("SQS_QUEUE_URL must be set")
	}
	return &cfg, nil
}

// ConferenceIDs splits the comma-separated reindex id list, dropping empty
// entries and surrounding whitespace.
func (c *Config) ConferenceIDs() []string {
	if c.ReindexConferenceIDs == "" {
		return nil
	}
	parts := strings.Split(c.ReindexConferenceIDs, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if id := strings.TrimSpace(p); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
