package engine

import "context"

// Match is one similarity-search result from the external vector index.
type Match struct {
	Text     string
	Score    float64
	Metadata map[string]string
}

// VectorIndex is the external similarity-search collaborator. The engine
// treats its absence as a degraded-but-functioning mode, never a fatal
// error; this subsystem implements no similarity math of its own.
type VectorIndex interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]Match, error)
	AddTexts(ctx context.Context, texts []string, metadatas []map[string]string, ids []string) error
	Delete(ctx context.Context, ids []string) error
}
