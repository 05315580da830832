// Package answer implements the AnswerOrchestrator: load conversation
// state, retrieve context, compose a prompt, call the LLM (sync or
// streaming), post-process URLs, and persist the exchange.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragcore-dev/docrag/internal/convmemory"
	"github.com/ragcore-dev/docrag/internal/docmodel"
	"github.com/ragcore-dev/docrag/internal/llm"
	"github.com/ragcore-dev/docrag/internal/retrieval"
	"github.com/ragcore-dev/docrag/internal/urlvalidator"
	"github.com/ragcore-dev/docrag/internal/vectorstore"
)

// defaultSystemPrompt identifies the assistant and its allowed scope.
const defaultSystemPrompt = `You are a documentation assistant for this platform's engineering knowledge base.
Use only the provided context to answer factual questions; if the context does not contain the answer, say so plainly.
When referencing a repository, use its canonical URL.
If a question is out of scope for this platform's documentation, politely decline and redirect the user to ask about the platform instead.`

// Config tunes prompt composition and LLM call parameters.
type Config struct {
	SystemPrompt string
	Model        string
	Temperature  float32
	MaxTokens    int
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	return c
}

// Orchestrator answers a question within a conversation.
type Orchestrator struct {
	memory      *convmemory.Memory
	retrieval   *retrieval.Service
	llmClient   llm.LLM
	urlValidator *urlvalidator.Validator
	cfg         Config
}

func New(memory *convmemory.Memory, retrievalSvc *retrieval.Service, llmClient llm.LLM, validator *urlvalidator.Validator, cfg Config) *Orchestrator {
	return &Orchestrator{
		memory:       memory,
		retrieval:    retrievalSvc,
		llmClient:    llmClient,
		urlValidator: validator,
		cfg:          cfg.withDefaults(),
	}
}

// Answer is the result of Ask: the final answer text, its citations, and
// the conversation it belongs to.
type Answer struct {
	Text           string
	Citations      []docmodel.Citation
	ConversationID string
}

// Ask implements the synchronous ask path: load/append state, retrieve,
// compose, generate, rewrite, persist.
func (o *Orchestrator) Ask(ctx context.Context, conversationID, question string, filter vectorstore.Filter) (Answer, error) {
	unlock := o.memory.Lock(conversationID)
	defer unlock()

	state, err := o.memory.LoadOrCreate(ctx, conversationID)
	if err != nil {
		return Answer{}, fmt.Errorf("loading conversation: %w", err)
	}
	if err := o.memory.Append(ctx, state, convmemory.RoleUser, question); err != nil {
		return Answer{}, fmt.Errorf("appending user message: %w", err)
	}

	result, err := o.retrieval.Retrieve(ctx, question, filter)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving context: %w", err)
	}

	prompt := o.buildPrompt(state, result.ContextText, question)
	genOpts := llm.GenerateOptions{
		Model:        o.cfg.Model,
		SystemPrompt: o.cfg.SystemPrompt,
		Temperature:  o.cfg.Temperature,
		MaxTokens:    o.cfg.MaxTokens,
	}

	raw, err := o.llmClient.Generate(ctx, prompt, genOpts)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}
	final := o.urlValidator.RewriteText(ctx, raw)

	if err := o.memory.Append(ctx, state, convmemory.RoleAssistant, final); err != nil {
		return Answer{}, fmt.Errorf("appending assistant message: %w", err)
	}

	return Answer{Text: final, Citations: result.Citations, ConversationID: conversationID}, nil
}

// StreamEvent is one token emitted by AskStream, or the terminal event
// carrying the finished Answer.
type StreamEvent struct {
	Token string
	Done  bool
	Final Answer
	Err   error
}

// AskStream implements the streaming ask path. Tokens arrive on an
// unbuffered channel as they are generated; the full text accumulates
// server-side and is only persisted once generation completes. If ctx is
// cancelled mid-stream, the partial assistant message is discarded but the
// user message already appended is retained.
func (o *Orchestrator) AskStream(ctx context.Context, conversationID, question string, filter vectorstore.Filter) (<-chan StreamEvent, error) {
	unlock := o.memory.Lock(conversationID)

	state, err := o.memory.LoadOrCreate(ctx, conversationID)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if err := o.memory.Append(ctx, state, convmemory.RoleUser, question); err != nil {
		unlock()
		return nil, fmt.Errorf("appending user message: %w", err)
	}

	result, err := o.retrieval.Retrieve(ctx, question, filter)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	prompt := o.buildPrompt(state, result.ContextText, question)
	genOpts := llm.GenerateOptions{
		Model:        o.cfg.Model,
		SystemPrompt: o.cfg.SystemPrompt,
		Temperature:  o.cfg.Temperature,
		MaxTokens:    o.cfg.MaxTokens,
	}

	tokenChan, err := o.llmClient.GenerateStream(ctx, prompt, genOpts)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	out := make(chan StreamEvent)
	go func() {
		defer unlock()
		defer close(out)

		var full strings.Builder
		for {
			select {
			case <-ctx.Done():
				out <- StreamEvent{Err: ctx.Err()}
				return
			default:
			}

			select {
			case <-ctx.Done():
				out <- StreamEvent{Err: ctx.Err()}
				return
			case chunk, ok := <-tokenChan:
				if !ok {
					final := o.urlValidator.RewriteText(ctx, full.String())
					if err := o.memory.Append(ctx, state, convmemory.RoleAssistant, final); err != nil {
						out <- StreamEvent{Err: err}
						return
					}
					out <- StreamEvent{Done: true, Final: Answer{Text: final, Citations: result.Citations, ConversationID: conversationID}}
					return
				}
				if chunk.Error != nil {
					out <- StreamEvent{Err: chunk.Error}
					return
				}
				if chunk.Token != "" {
					full.WriteString(chunk.Token)
					out <- StreamEvent{Token: chunk.Token}
				}
			}
		}
	}()

	return out, nil
}

// buildPrompt composes the fixed system guidance, the conversation
// snapshot, and a final user message combining context and question.
func (o *Orchestrator) buildPrompt(state *convmemory.State, contextText, question string) string {
	var sb strings.Builder

	sb.WriteString(o.cfg.SystemPrompt)
	sb.WriteString("\n\n")

	history := o.memory.Snapshot(state)
	if len(history) > 1 {
		sb.WriteString("## Conversation History\n")
		for _, msg := range history[:len(history)-1] {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Context\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\n")

	sb.WriteString("## Question\n")
	sb.WriteString(question)
	sb.WriteString("\n\n## Answer (be brief and direct)\n")

	return sb.String()
}
