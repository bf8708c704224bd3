package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/ternarybob/respondeo/internal/services/answers"
	"github.com/ternarybob/respondeo/internal/services/chunker"
	"github.com/ternarybob/respondeo/internal/services/embed"
	"github.com/ternarybob/respondeo/internal/services/index"
	"github.com/ternarybob/respondeo/internal/services/llm"
	"github.com/ternarybob/respondeo/internal/services/prompt"
	"github.com/ternarybob/respondeo/internal/services/retrieval"
	"github.com/ternarybob/respondeo/internal/services/verify"
)

// memoryStorage is an in-memory StorageManager for pipeline tests.
type memoryStorage struct {
	mu      sync.Mutex
	docs    map[string]*models.Document
	chunks  map[string]*models.Chunk
	answers map[string]*models.CachedAnswer
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{
		docs:    make(map[string]*models.Document),
		chunks:  make(map[string]*models.Chunk),
		answers: make(map[string]*models.CachedAnswer),
	}
}

func (m *memoryStorage) DocumentStorage() interfaces.DocumentStorage       { return m }
func (m *memoryStorage) ChunkStorage() interfaces.ChunkStorage             { return m }
func (m *memoryStorage) AnswerCacheStorage() interfaces.AnswerCacheStorage { return m }
func (m *memoryStorage) Close() error                                      { return nil }

func (m *memoryStorage) SaveDocument(doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *memoryStorage) GetDocument(id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrDocumentNotFound, id)
	}
	return doc, nil
}

func (m *memoryStorage) ListDocuments(limit, offset int) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, nil
}

func (m *memoryStorage) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memoryStorage) CountDocuments() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs), nil
}

func (m *memoryStorage) SaveChunks(chunks []*models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *memoryStorage) GetChunk(id string) (*models.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[id]
	if !ok {
		return nil, fmt.Errorf("chunk not found: %s", id)
	}
	return c, nil
}

func (m *memoryStorage) GetChunksByDocument(documentID string) ([]*models.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Chunk
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryStorage) ListChunks() ([]*models.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryStorage) DeleteChunksByDocument(documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.DocumentID == documentID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *memoryStorage) CountChunks() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks), nil
}

func (m *memoryStorage) GetCachedAnswer(key string) (*models.CachedAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answers[key], nil
}

func (m *memoryStorage) PutCachedAnswer(entry *models.CachedAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[entry.Key] = entry
	return nil
}

func (m *memoryStorage) PurgeCachedAnswersBefore(indexVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.answers {
		if entry.IndexVersion < indexVersion {
			delete(m.answers, key)
		}
	}
	return nil
}

func (m *memoryStorage) cachedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.answers)
}

// countingLLM wraps another LLM backend and counts Generate calls; it can
// also force generation failures.
type countingLLM struct {
	interfaces.LLMService
	mu        sync.Mutex
	generates int
	genErr    error
}

func (c *countingLLM) Generate(ctx context.Context, p string) (string, error) {
	c.mu.Lock()
	c.generates++
	c.mu.Unlock()
	if c.genErr != nil {
		return "", c.genErr
	}
	return c.LLMService.Generate(ctx, p)
}

func (c *countingLLM) generateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generates
}

type testEnv struct {
	storage  *memoryStorage
	llm      *countingLLM
	query    *QueryPipeline
	ingester *Ingester
	idx      *index.Index
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	cfg.Index.Dimension = 64
	cfg.Chunking.ChunkSize = 200
	cfg.Chunking.Overlap = 40

	offline, err := llm.NewOfflineService(cfg.Index.Dimension, logger)
	require.NoError(t, err)
	counting := &countingLLM{LLMService: offline}

	embedder, err := embed.NewService(counting, &cfg.Index, logger)
	require.NoError(t, err)
	chunkerSvc, err := chunker.NewService(&cfg.Chunking, chunker.KeepAllPolicy(), logger)
	require.NoError(t, err)
	idx := index.New()
	builder, err := index.NewBuilder(&cfg.Index, logger)
	require.NoError(t, err)
	retriever, err := retrieval.NewRetriever(embedder, idx, &cfg.Retrieval, &cfg.Index, logger)
	require.NoError(t, err)
	assembler, err := prompt.NewAssembler(&cfg.Prompt, logger)
	require.NoError(t, err)
	verifier, err := verify.NewVerifier(&cfg.Verify, logger)
	require.NoError(t, err)

	storage := newMemoryStorage()
	cache := answers.NewCache(storage, logger)

	return &testEnv{
		storage:  storage,
		llm:      counting,
		idx:      idx,
		query:    NewQueryPipeline(retriever, assembler, counting, verifier, cache, idx, &cfg.Retrieval, logger),
		ingester: NewIngester(chunkerSvc, embedder, builder, idx, storage, cache, logger),
	}
}

func widgetCorpus() []models.RawDocument {
	return []models.RawDocument{
		{
			Title:  "Widget History",
			Source: "https://example.com/widgets",
			Text:   "Widgets were invented in 1990 by a small team. Production began the following year. Early widgets were made of brass.",
		},
		{
			Title:  "Gadget Overview",
			Source: "https://example.com/gadgets",
			Text:   "Gadgets run on batteries and are unrelated to widgets. They appeared on the market decades later.",
		},
	}
}

func TestIngestThenAskWithCitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	report, err := env.ingester.Ingest(ctx, widgetCorpus())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Accepted)
	assert.Empty(t, report.Rejected)
	assert.Greater(t, report.Chunks, 0)
	assert.Equal(t, report.IndexVersion, env.idx.Version())

	record, err := env.query.Ask(ctx, &interfaces.QueryRequest{Query: "When were widgets invented?"})
	require.NoError(t, err)

	assert.Contains(t, record.Answer, "1990")
	require.NotEmpty(t, record.Citations)
	assert.Equal(t, "Widget History", record.Citations[0].Title)
	assert.True(t, record.Supported)
	assert.Greater(t, record.Confidence, 0.0)
	assert.Equal(t, report.IndexVersion, record.IndexVersion)
	assert.NotEmpty(t, record.Prompt)
}

func TestAskUnrelatedQueryReturnsExactSentinel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingester.Ingest(ctx, widgetCorpus())
	require.NoError(t, err)

	record, err := env.query.Ask(ctx, &interfaces.QueryRequest{Query: "How do jellyfish navigate ocean currents?"})
	require.NoError(t, err)

	assert.Equal(t, common.NoAnswerSentinel, record.Answer)
	assert.Empty(t, record.Citations)
	assert.Equal(t, 0.0, record.Confidence)
}

func TestAskUsesCacheOnRepeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingester.Ingest(ctx, widgetCorpus())
	require.NoError(t, err)

	first, err := env.query.Ask(ctx, &interfaces.QueryRequest{Query: "When were widgets invented?"})
	require.NoError(t, err)
	callsAfterFirst := env.llm.generateCalls()

	second, err := env.query.Ask(ctx, &interfaces.QueryRequest{Query: "  when WERE widgets invented?  "})
	require.NoError(t, err)

	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, callsAfterFirst, env.llm.generateCalls(), "cache hit must not call the generator")
}

func TestReindexInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingester.Ingest(ctx, widgetCorpus())
	require.NoError(t, err)

	_, err = env.query.Ask(ctx, &interfaces.QueryRequest{Query: "When were widgets invented?"})
	require.NoError(t, err)
	calls := env.llm.generateCalls()

	_, err = env.ingester.Reindex(ctx)
	require.NoError(t, err)

	_, err = env.query.Ask(ctx, &interfaces.QueryRequest{Query: "When were widgets invented?"})
	require.NoError(t, err)
	assert.Greater(t, env.llm.generateCalls(), calls, "a reindex must invalidate cached answers")
}

func TestDeleteDocumentRemovesItsContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	report, err := env.ingester.Ingest(ctx, widgetCorpus())
	require.NoError(t, err)

	record, err := env.query.Ask(ctx, &interfaces.QueryRequest{Query: "When were widgets invented?"})
	require.NoError(t, err)
	assert.Contains(t, record.Answer, "1990")

	var widgetID string
	env.storage.mu.Lock()
	for id, doc := range env.storage.docs {
		if doc.Title == "Widget History" {
			widgetID = id
		}
	}
	env.storage.mu.Unlock()
	require.NotEmpty(t, widgetID)

	version, err := env.ingester.DeleteDocument(ctx, widgetID)
	require.NoError(t, err)
	assert.Greater(t, version, report.IndexVersion, "deletion must publish a new snapshot")

	record, err = env.query.Ask(ctx, &interfaces.QueryRequest{Query: "When were widgets invented?"})
	require.NoError(t, err)
	assert.NotContains(t, record.Answer, "1990", "deleted content must not answer queries")
	for _, c := range record.Citations {
		assert.NotEqual(t, "Widget History", c.Title)
	}

	chunks, err := env.storage.ChunkStorage().GetChunksByDocument(widgetID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDeleteDocumentUnknownIDFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingester.Ingest(ctx, widgetCorpus())
	require.NoError(t, err)

	_, err = env.ingester.DeleteDocument(ctx, "no-such-document")
	require.Error(t, err)
	assert.True(t, common.IsNotFound(err))

	_, err = env.ingester.DeleteDocument(ctx, "  ")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestGeneratorFailureIsServiceUnavailableAndNothingCached(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingester.Ingest(ctx, widgetCorpus())
	require.NoError(t, err)
	cachedBefore := env.storage.cachedCount()

	env.llm.genErr = &common.StageError{
		Stage:    "generate",
		Attempts: 3,
		Err:      common.ErrGenerationService,
	}

	_, err = env.query.Ask(ctx, &interfaces.QueryRequest{Query: "When were widgets invented?"})
	require.Error(t, err)
	assert.True(t, common.IsServiceUnavailable(err))
	assert.Equal(t, cachedBefore, env.storage.cachedCount(), "failed queries must not write to the cache")
}

func TestCancelledContextStopsBeforeGeneration(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ingester.Ingest(context.Background(), widgetCorpus())
	require.NoError(t, err)
	cachedBefore := env.storage.cachedCount()
	callsBefore := env.llm.generateCalls()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = env.query.Ask(ctx, &interfaces.QueryRequest{Query: "When were widgets invented?"})
	require.Error(t, err)
	assert.Equal(t, callsBefore, env.llm.generateCalls(), "cancelled queries must not reach the generator")
	assert.Equal(t, cachedBefore, env.storage.cachedCount())
}

func TestConflictingSourcesAreFlagged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	docs := []models.RawDocument{
		{Title: "Widget History", Text: "Widgets were invented in 1990 by a small team working in a garage."},
		{Title: "Widget Revision", Text: "Widgets were invented in 1985 according to recently found records."},
	}
	_, err := env.ingester.Ingest(ctx, docs)
	require.NoError(t, err)

	record, err := env.query.Ask(ctx, &interfaces.QueryRequest{Query: "When were widgets invented?"})
	require.NoError(t, err)

	// Both conflicting claims must surface in the answer with their own
	// citations rather than one being silently picked.
	assert.Contains(t, record.Answer, "1990")
	assert.Contains(t, record.Answer, "1985")
	assert.Contains(t, record.Answer, "disagree")
	titles := make(map[string]bool)
	for _, c := range record.Citations {
		titles[c.Title] = true
	}
	assert.True(t, titles["Widget History"] && titles["Widget Revision"],
		"both sources must be cited: %v", record.Citations)
}

func TestIngestRejectsInvalidDocumentsIndividually(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	docs := []models.RawDocument{
		{Title: "Valid", Text: "Widgets were invented in 1990 and this document is fine."},
		{Title: "", Text: "Missing a title."},
		{Title: "Empty", Text: "   "},
	}

	report, err := env.ingester.Ingest(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Len(t, report.Rejected, 2)
}

func TestIngestHTMLDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	docs := []models.RawDocument{{
		Title: "Widget Page",
		HTML:  "<html><body><nav>Menu</nav><p>Widgets were invented in 1990.</p></body></html>",
	}}

	report, err := env.ingester.Ingest(ctx, docs)
	require.NoError(t, err)
	require.Equal(t, 1, report.Accepted)

	record, err := env.query.Ask(ctx, &interfaces.QueryRequest{Query: "When were widgets invented?"})
	require.NoError(t, err)
	assert.Contains(t, record.Answer, "1990")
}

func TestIngestEmptyBatchRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ingester.Ingest(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestAskValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.query.Ask(ctx, nil)
	assert.True(t, common.IsValidation(err))

	_, err = env.query.Ask(ctx, &interfaces.QueryRequest{Query: ""})
	assert.True(t, common.IsValidation(err))

	_, err = env.ingester.Ingest(ctx, widgetCorpus())
	require.NoError(t, err)

	_, err = env.query.Ask(ctx, &interfaces.QueryRequest{Query: "widgets", K: 500})
	assert.True(t, common.IsValidation(err), "k above max_k is a caller error")
}
