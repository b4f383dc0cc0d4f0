// Package llmservice dispatches prompts to the LLM provider a caller selected.
//
// Every provider call is bounded by the configured timeout, throttled by a
// per-credential rate limiter and guarded by a circuit breaker. Calls are never
// retried here.
package llmservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"study-buddy-rag/internal/config"
	"study-buddy-rag/internal/models"
	"study-buddy-rag/internal/telemetry"
)

type Generator struct {
	cfg    config.LLMConfig
	client *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	limiters map[string]*rate.Limiter
}

func NewGenerator(cfg config.LLMConfig) *Generator {
	// provider calls are bounded by the context deadline set in Generate
	return &Generator{
		cfg:      cfg,
		client:   &http.Client{},
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
	}
}

// NewProvider checks the credentials for pc and builds its adapter. No
// network call is made.
func (g *Generator) NewProvider(pc models.ProviderConfig) (Provider, error) {
	switch pc.Provider {
	case models.ProviderOpenAI:
		if pc.APIKey == "" {
			return nil, fmt.Errorf("%w: OpenAI API key not configured", models.ErrCredentialsMissing)
		}
		return newOpenAI(pc, &g.cfg, g.client)
	case models.ProviderAnthropic:
		if pc.APIKey == "" {
			return nil, fmt.Errorf("%w: Anthropic API key not configured", models.ErrCredentialsMissing)
		}
		return newAnthropic(pc, &g.cfg, g.client)
	case models.ProviderCustom:
		if pc.Endpoint == "" {
			return nil, fmt.Errorf("%w: custom LLM endpoint not configured", models.ErrCredentialsMissing)
		}
		return &customProvider{
			endpoint:    pc.Endpoint,
			apiKey:      pc.APIKey,
			model:       pc.Model,
			temperature: g.cfg.Temperature,
			client:      g.client,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedProvider, pc.Provider)
	}
}

// breakerKey gives every credential its own breaker and limiter, so one
// user's revoked key or broken endpoint does not trip the breaker for
// everybody else. The key itself is hashed.
func breakerKey(pc models.ProviderConfig) string {
	sum := sha256.Sum256([]byte(pc.APIKey))
	key := string(pc.Provider)
	if pc.Provider == models.ProviderCustom {
		key += "|" + pc.Endpoint
	}
	return key + "|" + hex.EncodeToString(sum[:8])
}

// langchaingo reports provider HTTP failures only in the error text
var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

func statusCode(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

// countsAsSuccess reports whether err says nothing about the provider's
// health: the caller gave up, or the request itself was rejected. Timeouts
// and rate limiting still count as failures.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	code := statusCode(err)
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

func (g *Generator) guards(key string) (*gobreaker.CircuitBreaker, *rate.Limiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[key]
	if !ok {
		bc := g.cfg.Breaker
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        key,
			MaxRequests: bc.MaxRequests,
			Interval:    bc.Interval,
			Timeout:     bc.Timeout,
			IsSuccessful: countsAsSuccess,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= bc.MinRequests && failureRatio >= bc.FailureThreshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
			},
		})
		g.breakers[key] = cb
	}
	lim, ok := g.limiters[key]
	if !ok {
		limit := rate.Inf
		if g.cfg.RatePerSecond > 0 {
			limit = rate.Limit(g.cfg.RatePerSecond)
		}
		lim = rate.NewLimiter(limit, g.cfg.RateBurst)
		g.limiters[key] = lim
	}
	return cb, lim
}

// Generate sends prompt to the provider described by pc. Credential and
// provider errors are returned as is; everything that goes wrong once the
// provider is contacted is a *models.GenerationError.
func (g *Generator) Generate(ctx context.Context, pc models.ProviderConfig, prompt string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", string(pc.Provider)),
		attribute.String("llm.model", pc.Model),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)

	p, err := g.NewProvider(pc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	cb, lim := g.guards(breakerKey(pc))
	if err := lim.Wait(ctx); err != nil {
		return "", g.fail(span, pc.Provider, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	result, err := cb.Execute(func() (interface{}, error) {
		return p.Generate(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("llm.circuit_breaker_open", true))
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %v", models.ErrTimeout, g.cfg.Timeout, err)
		}
		return "", g.fail(span, pc.Provider, err)
	}

	answer := result.(string)
	log.Debug().Str("provider", string(pc.Provider)).Int("answer_chars", len(answer)).Msg("Generated answer")
	return answer, nil
}

func (g *Generator) fail(span trace.Span, provider models.Provider, err error) error {
	span.SetStatus(codes.Error, err.Error())
	log.Error().Err(err).Str("provider", string(provider)).Msg("Generation failed")
	return &models.GenerationError{Provider: provider, Err: err}
}
