package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
)

var errNoValues = errors.New("gemini: embedding has no values")

// Embedder embeds text with a Gemini embedding model.
type Embedder struct {
	model *genai.EmbeddingModel
	name  string
}

// NewEmbedder creates an embedder on an existing client. The caller owns the client.
func NewEmbedder(client *genai.Client, model string) *Embedder {
	if model == "" {
		model = "text-embedding-004"
	}
	return &Embedder{model: client.EmbeddingModel(model), name: model}
}

func (e *Embedder) Name() string { return "gemini:" + e.name }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errNoValues
	}
	return res.Embedding.Values, nil
}
