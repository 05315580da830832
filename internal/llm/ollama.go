package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTransient marks an Ollama failure worth retrying (connection refused,
// 5xx, timeout) as opposed to a malformed request or a cancelled context.
var ErrTransient = errors.New("llm: transient ollama error")

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultModel         = "llama3.2"
	// DefaultTemperature favors deterministic, factual output for RAG answers.
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 0

	defaultGenerateTimeout = 5 * time.Minute
	defaultMaxRetries      = 2
)

// OllamaClient implements LLM against Ollama's /api/generate endpoint.
type OllamaClient struct {
	baseURL    string
	model      string
	client     *http.Client
	maxRetries uint64
}

// OllamaOption configures an OllamaClient at construction time.
type OllamaOption func(*OllamaClient)

func WithBaseURL(url string) OllamaOption {
	return func(c *OllamaClient) { c.baseURL = strings.TrimSuffix(url, "/") }
}

func WithHTTPClient(client *http.Client) OllamaOption {
	return func(c *OllamaClient) { c.client = client }
}

func WithModel(model string) OllamaOption {
	return func(c *OllamaClient) { c.model = model }
}

// WithMaxRetries overrides the number of retry attempts for a transient
// Generate failure (default 2).
func WithMaxRetries(n int) OllamaOption {
	return func(c *OllamaClient) {
		if n >= 0 {
			c.maxRetries = uint64(n)
		}
	}
}

func NewOllamaClient(opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		baseURL:    DefaultOllamaBaseURL,
		client:     &http.Client{Timeout: defaultGenerateTimeout},
		model:      DefaultModel,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends prompt to Ollama and retries transient failures with
// exponential backoff up to maxRetries times.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var out string
	op := func() error {
		text, err := c.generateOnce(ctx, prompt, opts)
		if err != nil {
			if errors.Is(err, ErrTransient) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = text
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		slog.Warn("ollama generate failed after retries", "error", err, "model", c.resolveModel(opts))
		return "", err
	}
	return out, nil
}

func (c *OllamaClient) generateOnce(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	req, err := c.buildRequest(ctx, prompt, opts, false)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama status %d: %s", ErrTransient, resp.StatusCode, body)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, body)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return result.Response, nil
}

// GenerateStream sends prompt to Ollama and streams the response as it is
// generated. Streaming is not retried: a partial stream is already
// surfaced to the caller, so replaying it on a mid-stream failure would
// duplicate tokens already delivered.
func (c *OllamaClient) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error) {
	req, err := c.buildRequest(ctx, prompt, opts, true)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	streamClient := &http.Client{} // context handles cancellation; no blanket timeout
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, body)
	}

	chunks := make(chan StreamChunk)
	go c.pumpStream(ctx, resp.Body, chunks)
	return chunks, nil
}

func (c *OllamaClient) pumpStream(ctx context.Context, body io.ReadCloser, chunks chan<- StreamChunk) {
	defer close(chunks)
	defer body.Close()

	reader := bufio.NewReader(body)
	for {
		select {
		case <-ctx.Done():
			chunks <- StreamChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return
			}
			chunks <- StreamChunk{Error: fmt.Errorf("reading stream: %w", err), Done: true}
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var piece generateResponse
		if err := json.Unmarshal(line, &piece); err != nil {
			chunks <- StreamChunk{Error: fmt.Errorf("parsing stream response: %w", err), Done: true}
			return
		}

		select {
		case <-ctx.Done():
			chunks <- StreamChunk{Error: ctx.Err(), Done: true}
			return
		case chunks <- StreamChunk{Token: piece.Response, Done: piece.Done}:
		}
		if piece.Done {
			return
		}
	}
}

func (c *OllamaClient) resolveModel(opts GenerateOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

func (c *OllamaClient) buildRequest(ctx context.Context, prompt string, opts GenerateOptions, stream bool) (*http.Request, error) {
	reqBody := generateRequest{
		Model:   c.resolveModel(opts),
		Prompt:  prompt,
		System:  opts.SystemPrompt,
		Stream:  stream,
		Options: generateOptionsMap(opts),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func generateOptionsMap(opts GenerateOptions) map[string]any {
	m := make(map[string]any, 2)
	if opts.Temperature > 0 {
		m["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		m["num_predict"] = opts.MaxTokens
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

var _ LLM = (*OllamaClient)(nil)
