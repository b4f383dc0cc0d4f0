package llmservice

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"study-buddy-rag/internal/config"
	"study-buddy-rag/internal/models"
)

// Provider turns a prompt into generated text.
type Provider interface {
	Name() models.Provider
	Generate(ctx context.Context, prompt string) (string, error)
}

// openAIProvider calls the chat completions API with the prompt as a single
// user message.
type openAIProvider struct {
	llm         llms.Model
	temperature float64
}

func newOpenAI(pc models.ProviderConfig, cfg *config.LLMConfig, hc *http.Client) (Provider, error) {
	log.Debug().Interface("provider", pc.Redacted()).Msg("Creating OpenAI client")
	llm, err := openai.New(
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithToken(pc.APIKey),
		openai.WithModel(pc.Model),
		openai.WithHTTPClient(hc),
	)
	if err != nil {
		return nil, err
	}
	return &openAIProvider{llm: llm, temperature: cfg.Temperature}, nil
}

func (p *openAIProvider) Name() models.Provider { return models.ProviderOpenAI }

func (p *openAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, p.llm, prompt, llms.WithTemperature(p.temperature))
}

// anthropicProvider calls the messages API with a bounded token budget.
type anthropicProvider struct {
	llm       llms.Model
	maxTokens int
}

func newAnthropic(pc models.ProviderConfig, cfg *config.LLMConfig, hc *http.Client) (Provider, error) {
	log.Debug().Interface("provider", pc.Redacted()).Msg("Creating Anthropic client")
	llm, err := anthropic.New(
		anthropic.WithBaseURL(cfg.AnthropicBaseURL),
		anthropic.WithToken(pc.APIKey),
		anthropic.WithModel(pc.Model),
		anthropic.WithHTTPClient(hc),
	)
	if err != nil {
		return nil, err
	}
	return &anthropicProvider{llm: llm, maxTokens: cfg.MaxTokens}, nil
}

func (p *anthropicProvider) Name() models.Provider { return models.ProviderAnthropic }

func (p *anthropicProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, p.llm, prompt, llms.WithMaxTokens(p.maxTokens))
}
