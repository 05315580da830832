// Package convmemory holds bounded, per-conversation message history with
// LLM-assisted summarization and a deterministic fallback when the LLM
// fails.
package convmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkoukk/tiktoken-go"

	"github.com/ragcore-dev/docrag/internal/llm"
)

// Roles a Message may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of a conversation.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Summary replaces a summarized prefix of Messages.
type Summary struct {
	Content                string
	TopicsCovered          []string
	KeyQuestions           []string
	ImportantDecisions     []string
	MessageCountSummarized int
}

// State is the persisted shape for one conversation.
type State struct {
	ConversationID string
	Messages       []Message
	Summary        *Summary
}

// Store is the opaque persistence boundary for conversation state.
type Store interface {
	Load(ctx context.Context, conversationID string) (*State, error)
	Save(ctx context.Context, state *State) error
}

// Config holds ConversationMemory's tunables.
type Config struct {
	MaxMessages             int // default 20
	MaxHistoryTokens        int // default 4000
	MaxSummarizationRetries int // negative selects the default of 2; 0 means no retry
	SummarizationDisabled   bool
}

func (c Config) withDefaults() Config {
	if c.MaxMessages <= 0 {
		c.MaxMessages = 20
	}
	if c.MaxHistoryTokens <= 0 {
		c.MaxHistoryTokens = 4000
	}
	if c.MaxSummarizationRetries < 0 {
		c.MaxSummarizationRetries = 2
	}
	return c
}

// Memory implements bounded conversation history with summarization
// fallback. Each conversation has its own mutex, taken through Lock; callers
// hold it for a whole ask, including any LLM streaming. Append itself does
// not lock.
type Memory struct {
	store Store
	llm   llm.LLM
	cfg   Config
	locks sync.Map // conversationID -> *sync.Mutex
	enc   *tiktoken.Tiktoken
}

// New creates a Memory backed by store, using llmClient for summarization.
func New(store Store, llmClient llm.LLM, cfg Config) *Memory {
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Memory{store: store, llm: llmClient, cfg: cfg.withDefaults(), enc: enc}
}

// Lock acquires the per-conversation mutex, returning the unlock func. The
// caller must hold it for the full duration of an ask() call.
func (m *Memory) Lock(conversationID string) func() {
	lockIface, _ := m.locks.LoadOrStore(conversationID, &sync.Mutex{})
	lock := lockIface.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

// LoadOrCreate returns the conversation's state, creating a fresh one if it
// does not exist yet.
func (m *Memory) LoadOrCreate(ctx context.Context, conversationID string) (*State, error) {
	state, err := m.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation state: %w", err)
	}
	if state == nil {
		state = &State{ConversationID: conversationID}
	}
	return state, nil
}

// Append appends a message, triggers maybe_summarize, and persists the
// result.
func (m *Memory) Append(ctx context.Context, state *State, role, content string) error {
	state.Messages = append(state.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})

	// Summarization failures never fail append: maybeSummarize already
	// falls back to a deterministic summary and still trims state.Messages
	// back under bounds.
	_ = m.maybeSummarize(ctx, state)

	return m.store.Save(ctx, state)
}

// Snapshot returns the messages to feed the prompt builder: the summary (if
// any) as a leading system message, followed by the recent messages.
func (m *Memory) Snapshot(state *State) []Message {
	if state.Summary == nil {
		return state.Messages
	}
	lead := Message{
		Role:      RoleSystem,
		Content:   formatSummary(state.Summary),
		Timestamp: time.Time{},
	}
	out := make([]Message, 0, len(state.Messages)+1)
	out = append(out, lead)
	out = append(out, state.Messages...)
	return out
}

func formatSummary(s *Summary) string {
	var sb strings.Builder
	sb.WriteString(s.Content)
	if len(s.TopicsCovered) > 0 {
		sb.WriteString("\nTopics covered: ")
		sb.WriteString(strings.Join(s.TopicsCovered, ", "))
	}
	if len(s.KeyQuestions) > 0 {
		sb.WriteString("\nKey questions: ")
		sb.WriteString(strings.Join(s.KeyQuestions, "; "))
	}
	if len(s.ImportantDecisions) > 0 {
		sb.WriteString("\nDecisions: ")
		sb.WriteString(strings.Join(s.ImportantDecisions, "; "))
	}
	return sb.String()
}

// maybeSummarize checks the bound: when len(messages) exceeds MaxMessages,
// or estimated tokens exceed MaxHistoryTokens, the oldest messages that
// would bring the state back under bounds are summarized via the LLM and
// replaced with a single synthetic summary.
func (m *Memory) maybeSummarize(ctx context.Context, state *State) error {
	if len(state.Messages) <= m.cfg.MaxMessages && m.estimateTokens(state.Messages) <= m.cfg.MaxHistoryTokens {
		return nil
	}

	n := len(state.Messages) - m.cfg.MaxMessages
	if n < 1 {
		n = 1
	}
	for n < len(state.Messages) && m.estimateTokens(state.Messages[n:]) > m.cfg.MaxHistoryTokens {
		n++
	}
	toSummarize := state.Messages[:n]

	var (
		summary *Summary
		retErr  error
	)
	if m.cfg.SummarizationDisabled {
		summary = m.deterministicSummary(toSummarize)
	} else if s, err := m.summarizeWithRetry(ctx, toSummarize); err != nil {
		summary = m.deterministicSummary(toSummarize)
		retErr = err
	} else {
		summary = s
	}

	// Messages are trimmed back under bounds regardless of which summary
	// source produced the result, so a permanently failing LLM still
	// enforces len(messages) <= MaxMessages + 1.
	state.Summary = m.mergeSummary(state.Summary, summary, n)
	state.Messages = state.Messages[n:]
	return retErr
}

type summarizeResponse struct {
	Summary            string   `json:"summary"`
	TopicsCovered      []string `json:"topics_covered"`
	KeyQuestions       []string `json:"key_questions"`
	ImportantDecisions []string `json:"important_decisions"`
}

// summarizeWithRetry asks the LLM for a structured summary of messages,
// retrying with exponential backoff up to MaxSummarizationRetries times.
func (m *Memory) summarizeWithRetry(ctx context.Context, messages []Message) (*Summary, error) {
	var resp summarizeResponse

	op := func() error {
		prompt := buildSummarizePrompt(messages)
		text, err := m.llm.Generate(ctx, prompt, llm.GenerateOptions{Temperature: 0})
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(extractJSON(text)), &resp)
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(m.cfg.MaxSummarizationRetries))
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("summarization failed after retries: %w", err)
	}

	return &Summary{
		Content:            resp.Summary,
		TopicsCovered:      resp.TopicsCovered,
		KeyQuestions:       resp.KeyQuestions,
		ImportantDecisions: resp.ImportantDecisions,
	}, nil
}

func buildSummarizePrompt(messages []Message) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following conversation as JSON with fields ")
	sb.WriteString(`{"summary": "...", "topics_covered": [...], "key_questions": [...], "important_decisions": [...]}.`)
	sb.WriteString(" Output only the JSON object.\n\n")
	for _, msg := range messages {
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func extractJSON(text string) string {
	if m := jsonObjectPattern.FindString(text); m != "" {
		return m
	}
	return text
}

// deterministicSummary is the non-LLM fallback: "User discussed: <comma
// separated first-user-message snippets>" with empty metadata lists.
func (m *Memory) deterministicSummary(messages []Message) *Summary {
	var snippets []string
	for _, msg := range messages {
		if msg.Role != RoleUser {
			continue
		}
		snippet := msg.Content
		if len(snippet) > 60 {
			snippet = snippet[:60]
		}
		snippets = append(snippets, snippet)
	}
	return &Summary{Content: "User discussed: " + strings.Join(snippets, ", ")}
}

// mergeSummary folds a freshly produced summary into any existing one,
// since a conversation may be summarized more than once over its lifetime.
func (m *Memory) mergeSummary(existing, fresh *Summary, countSummarized int) *Summary {
	if existing == nil {
		fresh.MessageCountSummarized = countSummarized
		return fresh
	}
	return &Summary{
		Content:                existing.Content + "\n" + fresh.Content,
		TopicsCovered:          append(existing.TopicsCovered, fresh.TopicsCovered...),
		KeyQuestions:           append(existing.KeyQuestions, fresh.KeyQuestions...),
		ImportantDecisions:     append(existing.ImportantDecisions, fresh.ImportantDecisions...),
		MessageCountSummarized: existing.MessageCountSummarized + countSummarized,
	}
}

// estimateTokens sums a cl100k_base token count across messages. Falls back
// to a conservative char/4 heuristic if the encoder failed to load.
func (m *Memory) estimateTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		if m.enc != nil {
			total += len(m.enc.Encode(msg.Content, nil, nil))
		} else {
			total += len(msg.Content) / 4
		}
	}
	return total
}
