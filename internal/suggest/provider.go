package suggest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/metrics"
	"github.com/Clark-Hu/movieweb/internal/resilience"
)

const serviceName = "suggest"

// GenerateOptions are the sampling knobs for one completion.
type GenerateOptions struct {
	Temperature float32
	MaxTokens   int
}

// Provider is a free-text generator. An empty reply is not an error.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint
// (OpenRouter by default).
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewOpenAIClient builds a client for baseURL. timeout bounds each request.
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration, logger zerolog.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.With().Str("component", serviceName).Logger(),
	}
}

// Generate sends prompt as a single user message and returns the first
// choice's content.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	start := time.Now()
	temperature := opts.Temperature
	if temperature == 0 {
		// The request field is omitempty; a literal zero would fall back to
		// the provider default.
		temperature = math.SmallestNonzeroFloat32
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		metrics.ObserveProvider(serviceName, "error", start)
		reason := failureReason(err)
		c.logger.Warn().Err(err).Str("reason", reason).Msg("completion failed")
		return "", domain.External(serviceName, reason, err)
	}
	metrics.ObserveProvider(serviceName, "success", start)
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func failureReason(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
			return "api key missing, invalid, or quota exceeded"
		case http.StatusTooManyRequests:
			return "rate limited"
		}
		return fmt.Sprintf("api error %d", apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
			return "api key missing, invalid, or quota exceeded"
		}
		return fmt.Sprintf("upstream returned %d", reqErr.HTTPStatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return "failed to connect"
}

type breakerProvider struct {
	next    Provider
	breaker *resilience.Breaker[string]
}

// WithBreaker guards next with a circuit breaker.
func WithBreaker(next Provider, s resilience.Settings) Provider {
	return &breakerProvider{
		next:    next,
		breaker: resilience.NewBreaker[string](serviceName, s),
	}
}

func (b *breakerProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return b.breaker.Execute(func() (string, error) {
		return b.next.Generate(ctx, prompt, opts)
	})
}
