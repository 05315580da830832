package answer

import (
	"context"
	"sync"
	"testing"

	"github.com/ragcore-dev/docrag/internal/convmemory"
	"github.com/ragcore-dev/docrag/internal/llm"
	"github.com/ragcore-dev/docrag/internal/retrieval"
	"github.com/ragcore-dev/docrag/internal/urlvalidator"
	"github.com/ragcore-dev/docrag/internal/vectorstore"
)

type memStore struct {
	mu     sync.Mutex
	states map[string]*convmemory.State
}

func newMemStore() *memStore { return &memStore{states: map[string]*convmemory.State{}} }

func (s *memStore) Load(ctx context.Context, id string) (*convmemory.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[id], nil
}

func (s *memStore) Save(ctx context.Context, state *convmemory.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ConversationID] = state
	return nil
}

type stubLLM struct {
	response string
	stream   []string
}

func (s stubLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	return s.response, nil
}

func (s stubLLM) GenerateStream(ctx context.Context, prompt string, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	out := make(chan llm.StreamChunk, len(s.stream)+1)
	for _, tok := range s.stream {
		out <- llm.StreamChunk{Token: tok}
	}
	out <- llm.StreamChunk{Done: true}
	close(out)
	return out, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return []float32{0.1}, nil }
func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}
func (stubEmbedder) Dimension() int    { return 1 }
func (stubEmbedder) ModelName() string { return "stub" }

type stubStore struct{}

func (stubStore) EnsureCollection(ctx context.Context, dimension int) error       { return nil }
func (stubStore) EnsureHybridCollection(ctx context.Context, dimension int) error { return nil }
func (stubStore) Upsert(ctx context.Context, records []vectorstore.Record) error  { return nil }
func (stubStore) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return []vectorstore.SearchResult{{ID: "1", Content: "docs say X", Score: 0.9, Metadata: map[string]string{"repository": "docs"}}}, nil
}
func (stubStore) HybridSearch(ctx context.Context, dense []float32, sparse *vectorstore.SparseVector, topK int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (stubStore) Delete(ctx context.Context, filter vectorstore.Filter) error { return nil }
func (stubStore) DeleteByIDs(ctx context.Context, ids []string) error        { return nil }

func newTestOrchestrator(response string) *Orchestrator {
	mem := convmemory.New(newMemStore(), stubLLM{response: response}, convmemory.Config{})
	retrievalSvc := retrieval.New(stubEmbedder{}, stubStore{}, nil, retrieval.Config{})
	validator := urlvalidator.New(nil, urlvalidator.Config{})
	return New(mem, retrievalSvc, stubLLM{response: response}, validator, Config{})
}

func TestAsk_ReturnsAnswerAndCitations(t *testing.T) {
	o := newTestOrchestrator("the answer is X.")

	got, err := o.Ask(context.Background(), "conv-1", "what is X?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "the answer is X." {
		t.Errorf("unexpected answer text: %q", got.Text)
	}
	if len(got.Citations) != 1 || got.Citations[0].Repository != "docs" {
		t.Errorf("unexpected citations: %+v", got.Citations)
	}
	if got.ConversationID != "conv-1" {
		t.Errorf("unexpected conversation id: %q", got.ConversationID)
	}
}

func TestAskStream_AccumulatesTokensAndPersists(t *testing.T) {
	mem := convmemory.New(newMemStore(), stubLLM{}, convmemory.Config{})
	retrievalSvc := retrieval.New(stubEmbedder{}, stubStore{}, nil, retrieval.Config{})
	validator := urlvalidator.New(nil, urlvalidator.Config{})
	llmClient := stubLLM{stream: []string{"hel", "lo"}}
	o := New(mem, retrievalSvc, llmClient, validator, Config{})

	events, err := o.AskStream(context.Background(), "conv-2", "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var tokens string
	var final Answer
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		tokens += ev.Token
		if ev.Done {
			final = ev.Final
		}
	}
	if tokens != "hello" {
		t.Errorf("expected accumulated tokens %q, got %q", "hello", tokens)
	}
	if final.Text != "hello" {
		t.Errorf("expected final answer %q, got %q", "hello", final.Text)
	}
}

func TestAskStream_CancellationRetainsUserMessageOnly(t *testing.T) {
	store := newMemStore()
	mem := convmemory.New(store, stubLLM{}, convmemory.Config{})
	retrievalSvc := retrieval.New(stubEmbedder{}, stubStore{}, nil, retrieval.Config{})
	validator := urlvalidator.New(nil, urlvalidator.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	llmClient := stubLLM{stream: []string{"partial"}}
	o := New(mem, retrievalSvc, llmClient, validator, Config{})

	cancel()
	events, err := o.AskStream(ctx, "conv-3", "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range events {
	}

	state, _ := store.Load(context.Background(), "conv-3")
	if state == nil {
		t.Fatal("expected state to exist")
	}
	for _, m := range state.Messages {
		if m.Role == convmemory.RoleAssistant {
			t.Errorf("expected no assistant message persisted after cancellation, got %+v", m)
		}
	}
}
