package inmemory

import (
	"context"
	"testing"
)

func addChunk(t *testing.T, s *Store, id, spaceID, fileID, sourceID string, vec []float32) {
	t.Helper()
	err := s.AddChunk(context.Background(), &Chunk{
		ID:       id,
		SpaceID:  spaceID,
		FileID:   fileID,
		SourceID: sourceID,
		Content:  "content of " + id,
		Vector:   vec,
	})
	if err != nil {
		t.Fatalf("AddChunk(%s): %v", id, err)
	}
}

func TestSimilaritySearchRanksAndFilters(t *testing.T) {
	s := New()
	addChunk(t, s, "c1", "space-a", "f1", "guide.md", []float32{1, 0})
	addChunk(t, s, "c2", "space-a", "f1", "notes.md", []float32{0.7, 0.7})
	addChunk(t, s, "c3", "space-a", "f2", "faq.md", []float32{0, 1})
	addChunk(t, s, "c4", "space-b", "f3", "other.md", []float32{1, 0})

	hits, err := s.SimilaritySearch(context.Background(), "space-a", []float32{1, 0}, 0.5)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 (orthogonal and other-space chunks excluded)", len(hits))
	}
	if hits[0].SourceID != "guide.md" {
		t.Errorf("top hit = %s, want guide.md", hits[0].SourceID)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits not sorted by descending score")
	}
}

func TestSimilaritySearchEmptySpaceMeansAll(t *testing.T) {
	s := New()
	addChunk(t, s, "c1", "space-a", "f1", "a.md", []float32{1, 0})
	addChunk(t, s, "c2", "space-b", "f2", "b.md", []float32{1, 0})

	hits, err := s.SimilaritySearch(context.Background(), "", []float32{1, 0}, 0.5)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("hits = %d, want chunks from both spaces", len(hits))
	}
}

func TestSimilaritySearchFilesScopes(t *testing.T) {
	s := New()
	addChunk(t, s, "c1", "space-a", "f1", "a.md", []float32{1, 0})
	addChunk(t, s, "c2", "space-a", "f2", "b.md", []float32{1, 0})

	hits, err := s.SimilaritySearchFiles(context.Background(), "space-a", []string{"f2"}, []float32{1, 0}, 0.5)
	if err != nil {
		t.Fatalf("SimilaritySearchFiles: %v", err)
	}
	if len(hits) != 1 || hits[0].SourceID != "b.md" {
		t.Errorf("hits = %+v, want only b.md", hits)
	}
}

func TestDeleteFile(t *testing.T) {
	s := New()
	addChunk(t, s, "c1", "space-a", "f1", "a.md", []float32{1, 0})
	addChunk(t, s, "c2", "space-a", "f1", "a.md", []float32{0, 1})
	addChunk(t, s, "c3", "space-a", "f2", "b.md", []float32{1, 0})

	s.DeleteFile(context.Background(), "space-a", "f1")
	if s.Count() != 1 {
		t.Errorf("count = %d, want 1 after deleting f1", s.Count())
	}
}

func TestAddChunkValidation(t *testing.T) {
	s := New()
	if err := s.AddChunk(context.Background(), nil); err == nil {
		t.Error("nil chunk accepted")
	}
	if err := s.AddChunk(context.Background(), &Chunk{}); err == nil {
		t.Error("chunk without ID accepted")
	}
}
