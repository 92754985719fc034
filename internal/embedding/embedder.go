package embedding

import "context"

// Embedder converts text into dense vectors.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Preparer is implemented by embedders whose vector space depends on the
// corpus. Prepare must be called with every stored text before Embed.
type Preparer interface {
	Prepare(corpus []string) error
}
