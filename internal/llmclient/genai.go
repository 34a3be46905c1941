// Package llmclient provides the production LLM Client adapter: a thin
// wrapper over google.golang.org/genai satisfying adapter.LLMClient,
// grounded on the teacher's minimal LLMClient contract
// (internal/core/llm_client.go: Complete/CompleteWithSystem).
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/logging"
)

// ErrGenerationFailed is the single error kind the LLM Client fails with
// when a call cannot produce text, per spec.md §6.
var ErrGenerationFailed = errors.New("llmclient: generation failed")

// GenAIClient calls the Gemini API via google.golang.org/genai.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient constructs a client against the given API key and model
// name (e.g. "gemini-2.0-flash").
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llmclient: creating genai client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GenAIClient{client: client, model: model}, nil
}

// Generate implements adapter.LLMClient. It bounds the call to timeoutMs
// and wraps any failure (including context deadline) as
// ErrGenerationFailed, matching the "fails with a single error kind"
// contract.
func (c *GenAIClient) Generate(ctx context.Context, prompt string, timeoutMs int64) (adapter.Completion, error) {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryPlanner, "llm_generate")
	defer timer.Stop()

	result, err := c.client.Models.GenerateContent(callCtx, c.model, genai.Text(prompt), nil)
	if err != nil {
		logging.PlannerWarn("genai generate failed: %v", err)
		return adapter.Completion{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return adapter.Completion{}, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	text := result.Text()
	if text == "" {
		return adapter.Completion{}, fmt.Errorf("%w: no text in response", ErrGenerationFailed)
	}

	completion := adapter.Completion{Text: text}
	if result.UsageMetadata != nil {
		completion.TokensIn = int(result.UsageMetadata.PromptTokenCount)
		completion.TokensOut = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return completion, nil
}
