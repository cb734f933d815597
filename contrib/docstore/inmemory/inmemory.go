// Package inmemory implements the document retriever on an in-process map.
// Intended for tests and small single-node deployments.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/citeseek/citeseek/search"
	"github.com/citeseek/citeseek/vector"
)

// Chunk is one embedded document fragment.
type Chunk struct {
	ID       string
	SpaceID  string
	FileID   string
	SourceID string
	Content  string
	Vector   []float32
}

// Store keeps chunks in memory. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	chunks map[string]*Chunk
}

var _ search.FileScopedRetriever = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{chunks: make(map[string]*Chunk)}
}

// AddChunk inserts or replaces one chunk.
func (s *Store) AddChunk(_ context.Context, chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("chunk cannot be nil")
	}
	if chunk.ID == "" {
		return fmt.Errorf("chunk ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *chunk
	s.chunks[chunk.ID] = &clone
	return nil
}

// SimilaritySearch implements search.DocumentRetriever.
func (s *Store) SimilaritySearch(_ context.Context, spaceID string, queryVector []float32, threshold float32) ([]search.DocumentHit, error) {
	return s.search(spaceID, nil, queryVector, threshold), nil
}

// SimilaritySearchFiles implements search.FileScopedRetriever.
func (s *Store) SimilaritySearchFiles(_ context.Context, spaceID string, fileIDs []string, queryVector []float32, threshold float32) ([]search.DocumentHit, error) {
	return s.search(spaceID, fileIDs, queryVector, threshold), nil
}

func (s *Store) search(spaceID string, fileIDs []string, queryVector []float32, threshold float32) []search.DocumentHit {
	allowed := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		allowed[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []search.DocumentHit
	for _, chunk := range s.chunks {
		if spaceID != "" && chunk.SpaceID != spaceID {
			continue
		}
		if len(allowed) > 0 && !allowed[chunk.FileID] {
			continue
		}
		score := vector.CosineSimilarity(queryVector, chunk.Vector)
		if score <= threshold {
			continue
		}
		hits = append(hits, search.DocumentHit{
			SourceID: chunk.SourceID,
			Content:  chunk.Content,
			Score:    score,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits
}

// DeleteFile removes every chunk of one file within a space.
func (s *Store) DeleteFile(_ context.Context, spaceID, fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, chunk := range s.chunks {
		if chunk.SpaceID == spaceID && chunk.FileID == fileID {
			delete(s.chunks, id)
		}
	}
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}
