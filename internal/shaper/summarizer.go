package shaper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/telemetry"
)

const (
	summarizerMaxRetries     = 3
	summarizerInitialBackoff = 1 * time.Second
	summarizerMaxInputChars  = 8000
)

// errAPIKeyRequired mirrors the teacher's compact package: a summarizer
// cannot be built without a key, and this bridge never invents one.
var errAPIKeyRequired = errors.New("ANTHROPIC_API_KEY required for document summarization")

// AnthropicSummarizer compacts a long rich-document preview into a
// short synopsis via the Anthropic API (spec SPEC_FULL D.2), grounded
// directly on the teacher's internal/compact/haiku.go retry-with-
// backoff-and-otel-span pattern. Disabled unless ANTHROPIC_API_KEY is
// set; construction fails closed rather than silently degrading so the
// caller notices misconfiguration at startup, not mid-request.
type AnthropicSummarizer struct {
	client     anthropic.Client
	model      anthropic.Model
	maxRetries int
	backoff    time.Duration
}

// NewAnthropicSummarizer builds a summarizer. apiKey is used only if
// the ANTHROPIC_API_KEY environment variable is unset.
func NewAnthropicSummarizer(apiKey, model string) (*AnthropicSummarizer, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}

	summarizerMetricsOnce.Do(initSummarizerMetrics)

	return &AnthropicSummarizer{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:      anthropic.Model(model),
		maxRetries: summarizerMaxRetries,
		backoff:    summarizerInitialBackoff,
	}, nil
}

var (
	summarizerMetricsOnce sync.Once
	summarizerMetrics     struct {
		inputTokens  metric.Int64Counter
		outputTokens metric.Int64Counter
		duration     metric.Float64Histogram
	}
)

func initSummarizerMetrics() {
	m := telemetry.Meter("github.com/Grupo-AFAL/smartsuite-bridge/shaper")
	summarizerMetrics.inputTokens, _ = m.Int64Counter("ssbridge.shaper.summarize.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed by document summarization"),
		metric.WithUnit("{token}"),
	)
	summarizerMetrics.outputTokens, _ = m.Int64Counter("ssbridge.shaper.summarize.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated by document summarization"),
		metric.WithUnit("{token}"),
	)
	summarizerMetrics.duration, _ = m.Float64Histogram("ssbridge.shaper.summarize.duration",
		metric.WithDescription("document summarization request duration"),
		metric.WithUnit("ms"),
	)
}

// Summarize implements Summarizer. It never returns a longer string
// than it was given; callers that get an error should keep using the
// unsummarized preview (shaper.go already does this).
func (s *AnthropicSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if len(text) > summarizerMaxInputChars {
		text = text[:summarizerMaxInputChars]
	}

	tracer := telemetry.Tracer("github.com/Grupo-AFAL/smartsuite-bridge/shaper")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(attribute.String("ssbridge.shaper.model", string(s.model)))

	prompt := "Summarize the following document in 2-3 short sentences, preserving the key facts and decisions:\n\n" + text

	params := anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			wait := s.backoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := s.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			modelAttr := attribute.String("ssbridge.shaper.model", string(s.model))
			if summarizerMetrics.inputTokens != nil {
				summarizerMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
				summarizerMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
				summarizerMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			}
			if len(message.Content) > 0 && message.Content[0].Type == "text" {
				if summary := message.Content[0].Text; len(summary) <= len(text) {
					return summary, nil
				}
				return text, nil
			}
			return "", fmt.Errorf("unexpected response: no text block")
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryableSummarizerErr(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("non-retryable summarizer error: %w", err)
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", fmt.Errorf("summarizer failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

func isRetryableSummarizerErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
