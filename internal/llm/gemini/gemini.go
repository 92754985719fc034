// Package gemini adapts Google's Gemini models to the generator interface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/cpage-pivotal/ipzs/internal/retry"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("gemini: empty response")

// Config configures the Gemini generator.
type Config struct {
	APIKeyEnv         string
	Model             string
	Temperature       float32
	SystemInstruction string
	MaxRetries        int
}

// Generator produces completions with a Gemini model.
type Generator struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	maxRetries int
	log        *slog.Logger
}

// NewClient opens a Gemini API client with the key read from apiKeyEnv.
func NewClient(ctx context.Context, apiKeyEnv string) (*genai.Client, error) {
	if apiKeyEnv == "" {
		apiKeyEnv = "GEMINI_API_KEY"
	}
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("gemini: missing API key in env %s", apiKeyEnv)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return client, nil
}

// New creates a generator on an existing client. The caller owns the client.
func New(client *genai.Client, cfg Config, log *slog.Logger) *Generator {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if log == nil {
		log = slog.Default()
	}
	m := client.GenerativeModel(cfg.Model)
	m.SetTemperature(cfg.Temperature)
	if cfg.SystemInstruction != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(cfg.SystemInstruction)}}
	}
	return &Generator{client: client, model: m, maxRetries: max(cfg.MaxRetries, 0), log: log}
}

// Complete returns the whole completion for prompt, retrying transient
// failures a bounded number of times.
func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			g.log.Warn("gemini: retrying generation", "attempt", attempt, "error", lastErr)
			if err := retry.Sleep(ctx, retry.Delay(attempt-1)); err != nil {
				return "", err
			}
		}
		resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = fmt.Errorf("gemini: generate: %w", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
		lastErr = ErrEmptyResponse
	}
	return "", lastErr
}

// Stream relays partial completions as the model produces them.
func (g *Generator) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		it := g.model.GenerateContentStream(ctx, genai.Text(prompt))
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("gemini: stream: %w", err))
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		// First candidate only.
		break
	}
	return b.String()
}
