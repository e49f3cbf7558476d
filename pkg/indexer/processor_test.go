package indexer_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confsearch/talk-indexer/pkg/cache"
	"github.com/confsearch/talk-indexer/pkg/esstore"
	"github.com/confsearch/talk-indexer/pkg/indexer"
	"github.com/confsearch/talk-indexer/pkg/messagepipeline"
	"github.com/confsearch/talk-indexer/pkg/talkapi"
)

type mockFetcher struct {
	mu       sync.Mutex
	talks    map[string]*talkapi.TalkRecord
	fetchErr error
	calls    []string
}

func (m *mockFetcher) FetchTalk(_ context.Context, talkID string) (*talkapi.TalkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, talkID)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	talk, ok := m.talks[talkID]
	if !ok {
		return nil, &talkapi.StatusError{StatusCode: 404, Body: "not found"}
	}
	return talk, nil
}

type upsertCall struct {
	id  string
	doc *esstore.SearchDocument
}

type patchCall struct {
	id     string
	fields map[string]any
}

type mockWriter struct {
	mu        sync.Mutex
	upserts   []upsertCall
	patches   []patchCall
	upsertErr error
	patchErr  error
}

func (m *mockWriter) Upsert(_ context.Context, id string, doc *esstore.SearchDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts = append(m.upserts, upsertCall{id: id, doc: doc})
	return nil
}

func (m *mockWriter) Patch(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.patchErr != nil {
		return m.patchErr
	}
	m.patches = append(m.patches, patchCall{id: id, fields: fields})
	return nil
}

func testTalk(id string) *talkapi.TalkRecord {
	title := talkapi.FlexString("Test Talk")
	return &talkapi.TalkRecord{
		ID:           id,
		ConferenceID: "conf-1",
		Status:       "SUBMITTED",
		LastUpdated:  "2025-06-01T10:00:00Z",
		Data:         talkapi.TalkData{Title: &talkapi.Field{Value: &title}},
	}
}

func fixedClock() func() time.Time {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func message(body string, attrs map[string]string) messagepipeline.Message {
	return messagepipeline.Message{
		MessageData: messagepipeline.MessageData{ID: "m-1", Payload: []byte(body)},
		Attributes:  attrs,
		Ack:         func() {},
		Nack:        func() {},
	}
}

func TestProcessor_FetchEventsIndexFullDocument(t *testing.T) {
	for _, eventType := range []string{"talk.created", "talk.updated", "talk.published"} {
		t.Run(eventType, func(t *testing.T) {
			fetcher := &mockFetcher{talks: map[string]*talkapi.TalkRecord{"talk-1": testTalk("talk-1")}}
			writer := &mockWriter{}
			p := indexer.NewProcessor(fetcher, writer, zerolog.Nop(), indexer.WithClock(fixedClock()))

			msg := message(`{"eventType":"`+eventType+`","entityId":"talk-1"}`, nil)
			evt, skip, err := p.Transformer()(context.Background(), &msg)
			require.NoError(t, err)
			require.False(t, skip)

			require.NoError(t, p.Process(context.Background(), msg, evt))

			assert.Equal(t, []string{"talk-1"}, fetcher.calls)
			require.Len(t, writer.upserts, 1)
			assert.Equal(t, "talk-1", writer.upserts[0].id)
			assert.Equal(t, "Test Talk", *writer.upserts[0].doc.Title)
			assert.Empty(t, writer.patches)
		})
	}
}

func TestProcessor_UnpublishedPatchesStatusOnly(t *testing.T) {
	fetcher := &mockFetcher{}
	writer := &mockWriter{}
	p := indexer.NewProcessor(fetcher, writer, zerolog.Nop())

	msg := message(`{"eventType":"talk.unpublished","entityId":"talk-9"}`, nil)
	evt, skip, err := p.Transformer()(context.Background(), &msg)
	require.NoError(t, err)
	require.False(t, skip)

	require.NoError(t, p.Process(context.Background(), msg, evt))

	assert.Empty(t, fetcher.calls, "unpublish must never fetch")
	assert.Empty(t, writer.upserts, "unpublish must never full-upsert")
	require.Len(t, writer.patches, 1)
	assert.Equal(t, "talk-9", writer.patches[0].id)
	assert.Equal(t, map[string]any{"status": "DRAFT"}, writer.patches[0].fields)
}

func TestProcessor_UnknownEventTypeIsSkipped(t *testing.T) {
	fetcher := &mockFetcher{}
	writer := &mockWriter{}
	p := indexer.NewProcessor(fetcher, writer, zerolog.Nop())

	msg := message(`{"eventType":"speaker.updated","entityId":"spk-1"}`, nil)
	_, skip, err := p.Transformer()(context.Background(), &msg)
	require.NoError(t, err)
	assert.True(t, skip)
	assert.Empty(t, fetcher.calls)
	assert.Empty(t, writer.upserts)
	assert.Empty(t, writer.patches)
}

func TestProcessor_MalformedBodyIsAnError(t *testing.T) {
	p := indexer.NewProcessor(&mockFetcher{}, &mockWriter{}, zerolog.Nop())

	for _, body := range []string{`not-json`, `{"entityId":"t-1"}`, `{"eventType":"talk.created"}`} {
		msg := message(body, nil)
		_, _, err := p.Transformer()(context.Background(), &msg)
		require.Error(t, err, "body=%q", body)
	}
}

func TestProcessor_FetchFailureSurfaces(t *testing.T) {
	fetcher := &mockFetcher{fetchErr: errors.New("upstream down")}
	writer := &mockWriter{}
	p := indexer.NewProcessor(fetcher, writer, zerolog.Nop())

	msg := message(`{"eventType":"talk.updated","entityId":"talk-1"}`, nil)
	evt, _, err := p.Transformer()(context.Background(), &msg)
	require.NoError(t, err)

	err = p.Process(context.Background(), msg, evt)
	require.Error(t, err)
	assert.Empty(t, writer.upserts)
}

func TestProcessor_WriteFailureSurfaces(t *testing.T) {
	fetcher := &mockFetcher{talks: map[string]*talkapi.TalkRecord{"talk-1": testTalk("talk-1")}}
	writer := &mockWriter{upsertErr: errors.New("index rejected write")}
	p := indexer.NewProcessor(fetcher, writer, zerolog.Nop())

	msg := message(`{"eventType":"talk.updated","entityId":"talk-1"}`, nil)
	evt, _, err := p.Transformer()(context.Background(), &msg)
	require.NoError(t, err)

	require.Error(t, p.Process(context.Background(), msg, evt))
}

func TestProcessor_IdempotentReprocessing(t *testing.T) {
	fetcher := &mockFetcher{talks: map[string]*talkapi.TalkRecord{"talk-1": testTalk("talk-1")}}
	writer := &mockWriter{}
	p := indexer.NewProcessor(fetcher, writer, zerolog.Nop(), indexer.WithClock(fixedClock()))

	msg := message(`{"eventType":"talk.updated","entityId":"talk-1"}`, nil)
	for i := 0; i < 2; i++ {
		evt, _, err := p.Transformer()(context.Background(), &msg)
		require.NoError(t, err)
		require.NoError(t, p.Process(context.Background(), msg, evt))
	}

	require.Len(t, writer.upserts, 2)
	first, err := json.Marshal(writer.upserts[0].doc)
	require.NoError(t, err)
	second, err := json.Marshal(writer.upserts[1].doc)
	require.NoError(t, err)
	assert.Equal(t, first, second, "reprocessing must produce a byte-identical document")
	assert.Equal(t, writer.upserts[0].id, writer.upserts[1].id)
}

func TestProcessor_DuplicateDeliverySuppressedByEventCache(t *testing.T) {
	fetcher := &mockFetcher{talks: map[string]*talkapi.TalkRecord{"talk-1": testTalk("talk-1")}}
	writer := &mockWriter{}
	tracker := indexer.NewCachedEventTracker(cache.NewInMemoryCache[string, time.Time](), zerolog.Nop())
	p := indexer.NewProcessor(fetcher, writer, zerolog.Nop(), indexer.WithProcessedEventCache(tracker))

	msg := message(`{"eventType":"talk.updated","entityId":"talk-1"}`, map[string]string{"eventId": "evt-1"})

	evt, skip, err := p.Transformer()(context.Background(), &msg)
	require.NoError(t, err)
	require.False(t, skip)
	require.NoError(t, p.Process(context.Background(), msg, evt))

	// The second delivery of the same event id is dropped before any fetch.
	_, skip, err = p.Transformer()(context.Background(), &msg)
	require.NoError(t, err)
	assert.True(t, skip)
	assert.Equal(t, []string{"talk-1"}, fetcher.calls)
}

func TestProcessor_FailedEventIsNotMarkedProcessed(t *testing.T) {
	fetcher := &mockFetcher{fetchErr: errors.New("upstream down")}
	writer := &mockWriter{}
	tracker := indexer.NewCachedEventTracker(cache.NewInMemoryCache[string, time.Time](), zerolog.Nop())
	p := indexer.NewProcessor(fetcher, writer, zerolog.Nop(), indexer.WithProcessedEventCache(tracker))

	msg := message(`{"eventType":"talk.updated","entityId":"talk-1"}`, map[string]string{"eventId": "evt-1"})

	evt, _, err := p.Transformer()(context.Background(), &msg)
	require.NoError(t, err)
	require.Error(t, p.Process(context.Background(), msg, evt))

	// Redelivery must not be suppressed after a failure.
	_, skip, err := p.Transformer()(context.Background(), &msg)
	require.NoError(t, err)
	assert.False(t, skip)
}
