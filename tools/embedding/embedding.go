package embedding

import (
	"context"
)

// Client is the slice of the LLM provider the embedder needs.
type Client interface {
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

// Vec pairs a document ID with its embedding vector.
type Vec struct {
	DocID string
	Vec   []float32
}

// Embedder produces vectors for corpus documents and queries.
type Embedder struct {
	client Client
	model  string
}

func New(client Client, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

// Enabled reports whether an embedding model is configured.
func (e *Embedder) Enabled() bool {
	return e != nil && e.client != nil && e.model != ""
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.client.Embed(ctx, e.model, texts)
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}
