package esstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"
)

// DocumentWriter is the write surface of the search index. Both operations
// address a single document by id; there are no cross-document transactions.
type DocumentWriter interface {
	// Upsert replaces the full document at the given id (index-or-overwrite).
	Upsert(ctx context.Context, id string, doc *SearchDocument) error
	// Patch merges only the given fields into an existing document. Callers
	// must only use it for talks that are already indexed.
	Patch(ctx context.Context, id string, fields map[string]any) error
}

// ESWriterConfig holds the Elasticsearch connection settings.
type ESWriterConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	// Transport overrides the HTTP transport; used by tests.
	Transport http.RoundTripper
}

// ESWriter writes search documents to one configured Elasticsearch index.
type ESWriter struct {
	es     *elasticsearch.Client
	index  string
	logger zerolog.Logger
}

// NewESWriter creates a new ESWriter.
func NewESWriter(cfg ESWriterConfig, logger zerolog.Logger) (*ESWriter, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("index name cannot be empty")
	}

	logger.Info().Strs("addresses", cfg.Addresses).Str("index", cfg.Index).Msg("Elasticsearch writer initialized.")
	return &ESWriter{
		es:     es,
		index:  cfg.Index,
		logger: logger.With().Str("component", "ESWriter").Str("index", cfg.Index).Logger(),
	}, nil
}

// Upsert indexes the document under the talk id, overwriting any previous
// version.
func (w *ESWriter) Upsert(ctx context.Context, id string, doc *SearchDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", id, err)
	}

	req := esapi.IndexRequest{
		Index:      w.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, w.es)
	if err != nil {
		return fmt.Errorf("index write failed for document %s: %w", id, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("index write rejected for document %s: %s", id, res.String())
	}

	w.logger.Debug().Str("doc_id", id).Msg("Indexed document.")
	return nil
}

// Patch merges the given fields into the existing document via a partial
// update. Elasticsearch rejects the update when the document does not exist.
func (w *ESWriter) Patch(ctx context.Context, id string, fields map[string]any) error {
	body, err := json.Marshal(map[string]any{"doc": fields})
	if err != nil {
		return fmt.Errorf("failed to marshal partial update for document %s: %w", id, err)
	}

	req := esapi.UpdateRequest{
		Index:      w.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, w.es)
	if err != nil {
		return fmt.Errorf("partial update failed for document %s: %w", id, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("partial update rejected for document %s: %s", id, res.String())
	}

	w.logger.Debug().Str("doc_id", id).Msg("Updated document fields.")
	return nil
}
