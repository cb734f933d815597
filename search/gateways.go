package search

import "context"

// DocumentHit is one chunk returned by a document similarity search.
type DocumentHit struct {
	SourceID string  // originating filename
	Content  string
	Score    float32 // cosine similarity against the query vector
}

// WebHit is one snippet returned by a web search provider.
type WebHit struct {
	SourceURL string
	Content   string
	Score     float32 // rank-derived relevance in [0,1]
}

// DocumentRetriever searches one document space by query vector. An empty
// spaceID means every space the caller may access. Implementations must be
// safe for concurrent use.
type DocumentRetriever interface {
	SimilaritySearch(ctx context.Context, spaceID string, queryVector []float32, threshold float32) ([]DocumentHit, error)
}

// FileScopedRetriever is implemented by document retrievers that can restrict
// a search to specific files. The coordinator upgrades to it when the query
// carries file IDs.
type FileScopedRetriever interface {
	DocumentRetriever
	SimilaritySearchFiles(ctx context.Context, spaceID string, fileIDs []string, queryVector []float32, threshold float32) ([]DocumentHit, error)
}

// WebRetriever searches the open web. Implementations must be safe for
// concurrent use.
type WebRetriever interface {
	Search(ctx context.Context, query string) ([]WebHit, error)
}
