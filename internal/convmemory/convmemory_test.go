package convmemory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ragcore-dev/docrag/internal/llm"
)

type stubLLM struct {
	err  error
	resp string
}

func (s *stubLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.resp, nil
}

func (s *stubLLM) GenerateStream(ctx context.Context, prompt string, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func TestAppend_NoSummarizationBelowBounds(t *testing.T) {
	store := NewInMemoryStore()
	mem := New(store, &stubLLM{}, Config{MaxMessages: 20})

	state, err := mem.LoadOrCreate(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mem.Append(context.Background(), state, RoleUser, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(state.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(state.Messages))
	}
	if state.Summary != nil {
		t.Errorf("expected no summary below bounds")
	}
}

// TestSummarizationFallback checks that, with the LLM stubbed to always
// fail, after 25 appended messages the conversation state contains exactly
// one leading synthetic system summary message whose content starts with
// "User discussed: ".
func TestSummarizationFallback(t *testing.T) {
	store := NewInMemoryStore()
	mem := New(store, &stubLLM{err: errors.New("no capacity")}, Config{MaxMessages: 20, MaxSummarizationRetries: 1})

	state, err := mem.LoadOrCreate(context.Background(), "conv-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 25; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := mem.Append(context.Background(), state, role, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("append %d: unexpected error: %v", i, err)
		}
	}

	if state.Summary == nil {
		t.Fatal("expected a summary after exceeding max messages")
	}
	if got := state.Summary.Content; len(got) < len("User discussed: ") || got[:len("User discussed: ")] != "User discussed: " {
		t.Errorf("expected fallback summary to start with %q, got %q", "User discussed: ", got)
	}

	snapshot := mem.Snapshot(state)
	if snapshot[0].Role != RoleSystem {
		t.Errorf("expected leading system summary message, got role %q", snapshot[0].Role)
	}

	if len(state.Messages)+1 > 21 {
		t.Errorf("expected len(messages_in_prompt) <= max_messages+1, got %d", len(state.Messages)+1)
	}
}

func TestSummarizationSuccess(t *testing.T) {
	store := NewInMemoryStore()
	llmResp := `{"summary": "discussed deployment", "topics_covered": ["deploy"], "key_questions": ["where?"], "important_decisions": ["use region X"]}`
	mem := New(store, &stubLLM{resp: llmResp}, Config{MaxMessages: 4})

	state, _ := mem.LoadOrCreate(context.Background(), "conv-3")
	for i := 0; i < 6; i++ {
		if err := mem.Append(context.Background(), state, RoleUser, fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if state.Summary == nil {
		t.Fatal("expected a summary")
	}
	// Six appends with MaxMessages 4 summarize twice (after the 5th and the
	// 6th message); mergeSummary joins the two LLM summaries.
	if state.Summary.Content != "discussed deployment\ndiscussed deployment" {
		t.Errorf("expected LLM summary content, got %q", state.Summary.Content)
	}
	if len(state.Summary.TopicsCovered) != 2 || state.Summary.TopicsCovered[0] != "deploy" || state.Summary.TopicsCovered[1] != "deploy" {
		t.Errorf("expected topics_covered to carry through, got %v", state.Summary.TopicsCovered)
	}
}

func TestLock_SerializesPerConversation(t *testing.T) {
	mem := New(NewInMemoryStore(), &stubLLM{}, Config{})
	unlock := mem.Lock("conv-4")
	done := make(chan struct{})
	go func() {
		defer close(done)
		unlock2 := mem.Lock("conv-4")
		unlock2()
	}()
	unlock()
	<-done
}
