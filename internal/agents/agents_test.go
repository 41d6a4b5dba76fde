package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parchmentlabs/parchment/internal/metadata"
	"github.com/parchmentlabs/parchment/internal/models"
	"github.com/parchmentlabs/parchment/internal/ranking"
	"github.com/parchmentlabs/parchment/internal/retrieval"
)

// fakeLLM scripts responses per call and records every prompt it saw.
type fakeLLM struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeLLM) next(prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("fakeLLM: no scripted response")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	return f.next(prompt)
}

func (f *fakeLLM) Chat(_ context.Context, messages []models.Message) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return f.next(b.String())
}

type fakeMetaStore struct {
	indexes map[string]*models.ContentIndex
}

func (f *fakeMetaStore) Get(_ context.Context, id string) (*models.ContentIndex, error) {
	idx, ok := f.indexes[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return idx, nil
}

func (f *fakeMetaStore) Put(context.Context, *models.ContentIndex) error { return nil }
func (f *fakeMetaStore) Delete(context.Context, string) error            { return nil }

func (f *fakeMetaStore) List(context.Context) ([]*models.ContentIndex, error) {
	out := make([]*models.ContentIndex, 0, len(f.indexes))
	for _, idx := range f.indexes {
		out = append(out, idx)
	}
	return out, nil
}

type fakeBundler struct {
	bundle *retrieval.Bundle
	err    error
	calls  int
	gotIDs []string
}

func (f *fakeBundler) Retrieve(_ context.Context, _ string, ids []string) (*retrieval.Bundle, error) {
	f.calls++
	f.gotIDs = ids
	return f.bundle, f.err
}

type fakeSearcher struct {
	result string
	err    error
	calls  int
}

func (f *fakeSearcher) Search(context.Context, string) (string, error) {
	f.calls++
	return f.result, f.err
}

func history(pairs ...string) []models.Message {
	msgs := make([]models.Message, 0, len(pairs))
	for i, p := range pairs {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs = append(msgs, models.Message{Role: role, Content: p})
	}
	return msgs
}

func TestHistoryCheckerEmptyHistorySkipsLLM(t *testing.T) {
	llm := &fakeLLM{responses: []string{"YES, it is all there"}}
	checker := NewHistoryChecker(llm, DefaultPrompts(), zaptest.NewLogger(t))

	res := checker.NeedsSearch(context.Background(), "what is the capital of France?", nil)
	assert.True(t, res.NeedsSearch)
	assert.Equal(t, 0, llm.calls)
}

func TestHistoryCheckerYesPrefix(t *testing.T) {
	cases := []struct {
		resp        string
		needsSearch bool
	}{
		{"YES, the history covers it.", false},
		{"  YES", false},
		{"NO, new research is needed.", true},
		{"yes but only partially", true}, // lowercase is not a YES
		{"I am not sure.", true},
		{"", true},
	}
	for _, tc := range cases {
		llm := &fakeLLM{responses: []string{tc.resp}}
		checker := NewHistoryChecker(llm, DefaultPrompts(), zaptest.NewLogger(t))
		res := checker.NeedsSearch(context.Background(), "q", history("hi", "hello"))
		assert.Equal(t, tc.needsSearch, res.NeedsSearch, "response %q", tc.resp)
		assert.Equal(t, 1, llm.calls)
	}
}

func TestHistoryCheckerErrorFailsToSearch(t *testing.T) {
	llm := &fakeLLM{err: errors.New("llm down")}
	checker := NewHistoryChecker(llm, DefaultPrompts(), zaptest.NewLogger(t))

	res := checker.NeedsSearch(context.Background(), "q", history("hi", "hello"))
	assert.True(t, res.NeedsSearch)
}

func newQueryAgent(t *testing.T, llm *fakeLLM, meta metadata.Store, bundler *fakeBundler, web *fakeSearcher) *QueryAgent {
	t.Helper()
	logger := zaptest.NewLogger(t)
	prompts := DefaultPrompts()
	checker := NewHistoryChecker(llm, prompts, logger)
	ranker := ranking.NewRanker(logger)
	return NewQueryAgent(checker, ranker, meta, bundler, web, llm, prompts, logger)
}

func TestQueryAgentAnswersFromHistory(t *testing.T) {
	llm := &fakeLLM{responses: []string{"YES, covered.", "Paris."}}
	bundler := &fakeBundler{}
	web := &fakeSearcher{}
	agent := newQueryAgent(t, llm, &fakeMetaStore{}, bundler, web)

	out, err := agent.Run(context.Background(), "capital of France?",
		[]string{"idx-1"}, history("The capital of France is Paris.", "Noted."))
	require.NoError(t, err)
	assert.True(t, out.Answered)
	assert.Equal(t, "Paris.", out.Answer)
	assert.Equal(t, SourceHistory, out.Source)
	assert.Equal(t, 0, bundler.calls)
	assert.Equal(t, 0, web.calls)
}

func TestQueryAgentIndexesBeforeWeb(t *testing.T) {
	meta := &fakeMetaStore{indexes: map[string]*models.ContentIndex{
		"idx-1": {
			ID:    "idx-1",
			Title: "garden soil preparation",
			Auto:  models.AutoMetadata{Keywords: []string{"soil", "compost"}},
		},
	}}
	bundler := &fakeBundler{bundle: &retrieval.Bundle{
		Best: retrieval.Result{IndexID: "idx-1", Text: "Mix compost into the soil.", SimilarityScore: 0.9},
		Top: []retrieval.Result{
			{IndexID: "idx-1", Text: "Mix compost into the soil.", SimilarityScore: 0.9},
		},
		Total: 1,
	}}
	web := &fakeSearcher{result: "web digest"}
	llm := &fakeLLM{}
	agent := newQueryAgent(t, llm, meta, bundler, web)

	out, err := agent.Run(context.Background(), "how to prepare garden soil", []string{"idx-1"}, nil)
	require.NoError(t, err)
	assert.False(t, out.Answered)
	assert.Equal(t, SourceIndex, out.Source)
	assert.Equal(t, "Mix compost into the soil.", out.Brief)
	assert.Equal(t, []string{"idx-1"}, bundler.gotIDs)
	assert.Equal(t, 0, web.calls, "web search must not run when index retrieval succeeds")
	assert.Equal(t, 0, llm.calls, "no history means no sufficiency call")
}

func TestQueryAgentFallsBackToWebOnNoContext(t *testing.T) {
	meta := &fakeMetaStore{indexes: map[string]*models.ContentIndex{
		"idx-1": {
			ID:    "idx-1",
			Title: "garden soil preparation",
			Auto:  models.AutoMetadata{Keywords: []string{"soil"}},
		},
	}}
	bundler := &fakeBundler{err: retrieval.ErrNoContext}
	web := &fakeSearcher{result: "web digest"}
	agent := newQueryAgent(t, &fakeLLM{}, meta, bundler, web)

	out, err := agent.Run(context.Background(), "garden soil", []string{"idx-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceWeb, out.Source)
	assert.Equal(t, "web digest", out.Brief)
	assert.Equal(t, 1, bundler.calls)
	assert.Equal(t, 1, web.calls)
}

func TestQueryAgentSkipsMissingMetadata(t *testing.T) {
	// no metadata at all means ranking has no candidates, so the agent
	// falls through to web search without touching the retriever
	meta := &fakeMetaStore{}
	bundler := &fakeBundler{}
	web := &fakeSearcher{result: "web digest"}
	agent := newQueryAgent(t, &fakeLLM{}, meta, bundler, web)

	out, err := agent.Run(context.Background(), "anything at all", []string{"ghost-1", "ghost-2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceWeb, out.Source)
	assert.Equal(t, 0, bundler.calls)
}

func TestQueryAgentWebFailureBecomesErrorBrief(t *testing.T) {
	web := &fakeSearcher{err: errors.New("search api unreachable")}
	agent := newQueryAgent(t, &fakeLLM{}, &fakeMetaStore{}, &fakeBundler{}, web)

	out, err := agent.Run(context.Background(), "anything", nil, nil)
	require.NoError(t, err, "web failure must not abort the run")
	assert.Equal(t, SourceError, out.Source)
	assert.Contains(t, out.Brief, "Research unavailable")
	assert.Contains(t, out.Brief, "search api unreachable")
}

func TestReviewAgentPreWriteDirectAnswer(t *testing.T) {
	llm := &fakeLLM{responses: []string{"DIRECT_ANSWER: The answer is 42."}}
	agent := NewReviewAgent(llm, DefaultPrompts(), zaptest.NewLogger(t))

	res, err := agent.PreWrite(context.Background(), "q", "research")
	require.NoError(t, err)
	assert.True(t, res.Direct)
	assert.Equal(t, "The answer is 42.", res.Answer)
	assert.NotContains(t, res.Answer, DirectAnswerMarker)
}

func TestReviewAgentPreWriteGuidance(t *testing.T) {
	llm := &fakeLLM{responses: []string{"Missing: the word count requirement is not addressed."}}
	agent := NewReviewAgent(llm, DefaultPrompts(), zaptest.NewLogger(t))

	res, err := agent.PreWrite(context.Background(), "q", "research")
	require.NoError(t, err)
	assert.False(t, res.Direct)
	assert.Equal(t, "Missing: the word count requirement is not addressed.", res.Guidance)
}

func TestReviewAgentClassifyRetryExactMatch(t *testing.T) {
	cases := []struct {
		resp  string
		retry bool
	}{
		{"RETRY", true},
		{"CONTINUE", false},
		{"retry", false},
		{"RETRY.", false},
		{" RETRY", false},
		{"RETRY\n", false},
		{"Maybe RETRY", false},
	}
	for _, tc := range cases {
		llm := &fakeLLM{responses: []string{tc.resp}}
		agent := NewReviewAgent(llm, DefaultPrompts(), zaptest.NewLogger(t))
		assert.Equal(t, tc.retry, agent.ClassifyRetry(context.Background(), "review"), "response %q", tc.resp)
	}
}

func TestReviewAgentClassifyRetryErrorContinues(t *testing.T) {
	llm := &fakeLLM{err: errors.New("llm down")}
	agent := NewReviewAgent(llm, DefaultPrompts(), zaptest.NewLogger(t))
	assert.False(t, agent.ClassifyRetry(context.Background(), "review"))
}

func TestWriteAgentFirstDraftUsesGuidance(t *testing.T) {
	llm := &fakeLLM{responses: []string{"draft text"}}
	agent := NewWriteAgent(llm, DefaultPrompts(), zaptest.NewLogger(t))

	draft, err := agent.Write(context.Background(), WriteRequest{
		Prompt:   "explain photosynthesis",
		Research: "plants convert light",
		Guidance: "mention chlorophyll",
	})
	require.NoError(t, err)
	assert.Equal(t, "draft text", draft)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "mention chlorophyll")
	assert.NotContains(t, llm.prompts[0], "previous draft")
}

func TestWriteAgentRewriteUsesFeedback(t *testing.T) {
	llm := &fakeLLM{responses: []string{"second draft"}}
	agent := NewWriteAgent(llm, DefaultPrompts(), zaptest.NewLogger(t))

	draft, err := agent.Write(context.Background(), WriteRequest{
		Prompt:   "explain photosynthesis",
		Research: "plants convert light",
		Feedback: "the draft omits the role of water",
	})
	require.NoError(t, err)
	assert.Equal(t, "second draft", draft)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "the draft omits the role of water")
}

func TestSpecialistKindString(t *testing.T) {
	assert.Equal(t, "writing", WritingAgent.String())
	assert.Equal(t, "reviewing", ReviewingAgent.String())
	assert.Equal(t, "structural", StructuralAgent.String())
	assert.Equal(t, "unknown", SpecialistKind(99).String())
}

func TestSpecialistUnknownKindErrors(t *testing.T) {
	s := NewSpecialist(SpecialistKind(99), &fakeLLM{responses: []string{"x"}}, DefaultPrompts(), zaptest.NewLogger(t))
	_, err := s.Execute(context.Background(), "do something")
	assert.Error(t, err)
}

func TestSpecialistRoleDispatch(t *testing.T) {
	llm := &fakeLLM{responses: []string{"ok"}}
	s := NewSpecialist(ReviewingAgent, llm, DefaultPrompts(), zaptest.NewLogger(t))
	_, err := s.Execute(context.Background(), "review this")
	require.NoError(t, err)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "reviewing agent")
}

func TestSimpleChatDegradesWithoutContext(t *testing.T) {
	llm := &fakeLLM{responses: []string{"plain answer"}}
	bundler := &fakeBundler{err: retrieval.ErrNoContext}
	chat := NewSimpleChat(bundler, llm, DefaultPrompts(), zaptest.NewLogger(t))

	answer, err := chat.Answer(context.Background(), "q", []string{"idx-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain answer", answer)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "no reference material")
}

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript(history("hi", "hello"))
	assert.Equal(t, "user: hi\nassistant: hello", got)
}
