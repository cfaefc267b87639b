// Package vectorstore provides nearest-neighbor search from question text into
// an image embedding index.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/IDEA-FinAI/RagLLaVA/internal/embedder"
)

// Neighbor is one search hit: the index-internal position of an image and its
// similarity to the query.
type Neighbor struct {
	Position int64
	Score    float32
}

// Index defines text-to-image similarity search.
type Index interface {
	// Search returns up to k neighbors of the query, best first.
	Search(ctx context.Context, query string, k int) ([]Neighbor, error)
}

// VectorSearcher searches a named collection by a precomputed vector.
type VectorSearcher interface {
	SearchVector(ctx context.Context, collection string, vector []float32, k int) ([]Neighbor, error)
}

// TextToImage embeds the query with a text encoder and searches the image
// collection with the resulting vector.
type TextToImage struct {
	embedder   embedder.Embedder
	store      VectorSearcher
	collection string
}

// NewTextToImage creates an Index over one image collection.
func NewTextToImage(e embedder.Embedder, store VectorSearcher, collection string) *TextToImage {
	return &TextToImage{embedder: e, store: store, collection: collection}
}

// Search embeds the query and returns its k nearest images.
func (t *TextToImage) Search(ctx context.Context, query string, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	vector, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	neighbors, err := t.store.SearchVector(ctx, t.collection, vector, k)
	if err != nil {
		return nil, err
	}
	return neighbors, nil
}

// Ensure TextToImage implements Index.
var _ Index = (*TextToImage)(nil)
