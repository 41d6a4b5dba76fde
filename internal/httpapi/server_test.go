package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap/zaptest"

	"github.com/parchmentlabs/parchment/internal/agents"
	"github.com/parchmentlabs/parchment/internal/circuitbreaker"
	"github.com/parchmentlabs/parchment/internal/config"
	"github.com/parchmentlabs/parchment/internal/contentcache"
	"github.com/parchmentlabs/parchment/internal/embeddings"
	"github.com/parchmentlabs/parchment/internal/ingest"
	"github.com/parchmentlabs/parchment/internal/metadata"
	"github.com/parchmentlabs/parchment/internal/models"
	"github.com/parchmentlabs/parchment/internal/notion"
	"github.com/parchmentlabs/parchment/internal/retrieval"
	"github.com/parchmentlabs/parchment/internal/session"
	"github.com/parchmentlabs/parchment/internal/storage"
	"github.com/parchmentlabs/parchment/internal/streaming"
	"github.com/parchmentlabs/parchment/internal/vectordb"
	"github.com/parchmentlabs/parchment/internal/workflows"
)

// fakeRun satisfies client.WorkflowRun with a canned result.
type fakeRun struct {
	id     string
	result workflows.ChatResult
	err    error
}

func (f *fakeRun) GetID() string    { return f.id }
func (f *fakeRun) GetRunID() string { return f.id }

func (f *fakeRun) Get(_ context.Context, valuePtr interface{}) error {
	if f.err != nil {
		return f.err
	}
	*(valuePtr.(*workflows.ChatResult)) = f.result
	return nil
}

func (f *fakeRun) GetWithOptions(ctx context.Context, valuePtr interface{}, _ client.WorkflowRunGetOptions) error {
	return f.Get(ctx, valuePtr)
}

type fakeStarter struct {
	result   workflows.ChatResult
	err      error
	lastID   string
	lastArgs []interface{}
}

func (f *fakeStarter) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastID = options.ID
	f.lastArgs = args
	return &fakeRun{id: options.ID, result: f.result}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeVectors struct{}

func (fakeVectors) EnsureCollection(context.Context, string) error { return nil }
func (fakeVectors) Upsert(context.Context, string, []vectordb.UpsertItem) error {
	return nil
}
func (fakeVectors) DeleteCollection(context.Context, string) error { return nil }

type fakeTagger struct{}

func (fakeTagger) Tag(context.Context, string, string) models.AutoMetadata {
	return models.AutoMetadata{}
}

type fakeLLM struct{ answer string }

func (f fakeLLM) Complete(context.Context, string) (string, error) { return f.answer, nil }
func (f fakeLLM) Chat(context.Context, []models.Message) (string, error) {
	return f.answer, nil
}

type fakeBundler struct{}

func (fakeBundler) Retrieve(context.Context, string, []string) (*retrieval.Bundle, error) {
	return nil, retrieval.ErrNoContext
}

type testServer struct {
	server   *Server
	starter  *fakeStarter
	sessions *session.Manager
	meta     metadata.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	wrapper := circuitbreaker.NewRedisWrapper(redisClient, circuitbreaker.DefaultSettings(), logger)
	sessions := session.NewManager(wrapper, config.SessionConfig{}, logger)

	store := storage.NewMemoryStore()
	meta := metadata.NewBlobStore(store, logger)
	cache := contentcache.New(meta, store, time.Minute, logger)

	ingestor := ingest.New(
		embeddings.NewChunker(50, 5),
		fakeEmbedder{},
		fakeVectors{},
		fakeTagger{},
		meta,
		cache,
		nil,
		logger,
	)

	starter := &fakeStarter{result: workflows.ChatResult{Status: workflows.StatusCompleted, Result: "final answer"}}
	hub := streaming.NewHub(16)
	simple := agents.NewSimpleChat(fakeBundler{}, fakeLLM{answer: "simple answer"}, agents.DefaultPrompts(), logger)

	srv := NewServer(starter, sessions, cache, ingestor,
		notion.NewCacher(nil, ingestor, logger), simple, nil, hub, logger)
	return &testServer{server: srv, starter: starter, sessions: sessions, meta: meta}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.server.Routes().ServeHTTP(rec, req)
	return rec
}

func TestChatStartsWorkflow(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/chat", map[string]any{
		"prompt":    "what grows in shade?",
		"index_ids": []string{"idx-1"},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "final answer", resp.Result)
	assert.NotEmpty(t, resp.RunID)

	require.Len(t, ts.starter.lastArgs, 1)
	input := ts.starter.lastArgs[0].(workflows.ChatInput)
	assert.Equal(t, "what grows in shade?", input.Prompt)
	assert.Equal(t, []string{"idx-1"}, input.IndexIDs)
}

func TestChatRequiresPrompt(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/chat", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatLoadsSessionHistory(t *testing.T) {
	ts := newTestServer(t)
	sess, err := ts.sessions.Create(context.Background(), "u", []string{"idx-9"})
	require.NoError(t, err)
	require.NoError(t, ts.sessions.AppendExchange(context.Background(), sess.ID, "earlier q", "earlier a"))

	rec := ts.do(t, http.MethodPost, "/api/chat", map[string]any{
		"prompt":     "follow up",
		"session_id": sess.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	input := ts.starter.lastArgs[0].(workflows.ChatInput)
	assert.Len(t, input.History, 2)
	assert.Equal(t, []string{"idx-9"}, input.IndexIDs, "session indexes used when request has none")
}

func TestChatUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/chat", map[string]any{
		"prompt":     "q",
		"session_id": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatErrorResultMapsToBadGateway(t *testing.T) {
	ts := newTestServer(t)
	ts.starter.result = workflows.ChatResult{Status: workflows.StatusError, Message: "research failed"}

	rec := ts.do(t, http.MethodPost, "/api/chat", map[string]any{"prompt": "q"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "research failed")
}

func TestSimpleChat(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/chat/simple", map[string]any{"prompt": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "simple answer")
}

func TestRestructure(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/chat/restructure", map[string]any{
		"text":        "b then a",
		"instruction": "alphabetize the sections",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "simple answer")

	rec = ts.do(t, http.MethodPost, "/api/chat/restructure", map[string]any{"text": "only text"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"user_id": "u-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadAndList(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("shade plants like hostas and ferns"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("folder", "/garden"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/content/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.server.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var idx models.ContentIndex
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &idx))
	assert.Equal(t, "notes", idx.Title)
	assert.Equal(t, "/garden", idx.Folder)

	rec = ts.do(t, http.MethodGet, "/api/content", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), idx.ID)
}

func TestFolderEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/folders", map[string]any{"folder": "/projects"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/folders", map[string]any{"folder": "/projects"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/folders/rename", map[string]any{"from": "/projects", "to": "/archive"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/folders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/archive")
	assert.NotContains(t, rec.Body.String(), "/projects")

	rec = ts.do(t, http.MethodDelete, "/api/folders", map[string]any{"folder": "/"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSSERequiresRunID(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/stream/sse", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSEStreamsEvents(t *testing.T) {
	ts := newTestServer(t)
	hub := ts.server.hub
	hub.Publish("run-1", streaming.Event{Type: streaming.EventStepStarted, Step: "research"})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream/sse?run_id=run-1&last_event_id=0", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.server.Routes().ServeHTTP(rec, req)
	}()

	// replay events write immediately; then close the stream
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "connected to run run-1"), body)
}
