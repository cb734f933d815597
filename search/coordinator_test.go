package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
)

func newTestCoordinator(docs DocumentRetriever, web WebRetriever, opts ...Option) *coordinator {
	cfg := applyOptions(defaultConfig(), opts)
	return newCoordinator(&stubEmbedder{}, docs, web, cfg, slog.New(slog.DiscardHandler))
}

func TestRetrieveFiltersBelowThreshold(t *testing.T) {
	docs := &stubDocs{hits: []DocumentHit{
		{SourceID: "keep.md", Content: "relevant", Score: 0.9},
		{SourceID: "edge.md", Content: "at the floor", Score: 0.35},
		{SourceID: "drop.md", Content: "noise", Score: 0.1},
	}}
	web := &stubWeb{hits: []WebHit{
		{SourceURL: "https://a", Content: "good", Score: 0.5},
		{SourceURL: "https://b", Content: "bad", Score: 0.2},
	}}
	c := newTestCoordinator(docs, web)

	set := c.retrieve(context.Background(), RetrievalPlan{
		DocQueries: []string{"q1"},
		WebQueries: []string{"q2"},
	}, Query{Mode: ModeSpace, SpaceIDs: []string{"s"}})

	if len(set.DocResults) != 1 || set.DocResults[0].SourceID != "keep.md" {
		t.Errorf("doc results = %+v, want only keep.md", set.DocResults)
	}
	if len(set.WebResults) != 1 || set.WebResults[0].SourceID != "https://a" {
		t.Errorf("web results = %+v, want only https://a", set.WebResults)
	}
	if set.Failures != 0 || set.Attempts != 2 {
		t.Errorf("attempts/failures = %d/%d, want 2/0", set.Attempts, set.Failures)
	}
}

func TestRetrieveDedupesAcrossSubQueries(t *testing.T) {
	// both sub-queries surface the same chunk with different scores
	docs := &stubDocs{byLen: map[int][]DocumentHit{
		2: {{SourceID: "dup.md", Content: "same chunk", Score: 0.6}},
		4: {{SourceID: "dup.md", Content: "same chunk", Score: 0.8},
			{SourceID: "other.md", Content: "different", Score: 0.5}},
	}}
	c := newTestCoordinator(docs, &stubWeb{})

	set := c.retrieve(context.Background(), RetrievalPlan{
		DocQueries: []string{"aa", "bbbb"},
	}, Query{Mode: ModeSpace, SpaceIDs: []string{"s"}})

	if len(set.DocResults) != 2 {
		t.Fatalf("doc results = %d, want 2 after dedupe", len(set.DocResults))
	}
	for _, item := range set.DocResults {
		if item.SourceID == "dup.md" && item.Score != 0.8 {
			t.Errorf("dedupe kept score %v, want the higher 0.8", item.Score)
		}
	}
}

func TestRetrieveKeepsIssueOrder(t *testing.T) {
	docs := &stubDocs{byLen: map[int][]DocumentHit{
		2: {{SourceID: "first-low.md", Content: "a", Score: 0.5},
			{SourceID: "first-high.md", Content: "b", Score: 0.9}},
		4: {{SourceID: "second.md", Content: "c", Score: 0.99}},
	}}
	c := newTestCoordinator(docs, &stubWeb{})

	set := c.retrieve(context.Background(), RetrievalPlan{
		DocQueries: []string{"aa", "bbbb"},
	}, Query{Mode: ModeSpace, SpaceIDs: []string{"s"}})

	want := []string{"first-high.md", "first-low.md", "second.md"}
	if len(set.DocResults) != len(want) {
		t.Fatalf("doc results = %d, want %d", len(set.DocResults), len(want))
	}
	for i, id := range want {
		if set.DocResults[i].SourceID != id {
			t.Errorf("result[%d] = %s, want %s", i, set.DocResults[i].SourceID, id)
		}
	}
}

func TestRetrieveToleratesPartialFailure(t *testing.T) {
	docs := &stubDocs{hits: []DocumentHit{{SourceID: "ok.md", Content: "x", Score: 0.7}}}
	web := &stubWeb{err: errors.New("engine unreachable")}
	c := newTestCoordinator(docs, web)

	set := c.retrieve(context.Background(), RetrievalPlan{
		DocQueries: []string{"q"},
		WebQueries: []string{"w"},
	}, Query{Mode: ModeSpace, SpaceIDs: []string{"s"}})

	if len(set.DocResults) != 1 {
		t.Errorf("doc results = %d, want 1 despite web failure", len(set.DocResults))
	}
	if set.Failures != 1 || set.Attempts != 2 {
		t.Errorf("attempts/failures = %d/%d, want 2/1", set.Attempts, set.Failures)
	}
	if set.AllFailed() {
		t.Error("AllFailed = true with one successful sub-query")
	}
}

func TestRetrieveAllFailedBookkeeping(t *testing.T) {
	docs := &stubDocs{err: errors.New("db down")}
	web := &stubWeb{err: errors.New("engine down")}
	c := newTestCoordinator(docs, web)

	set := c.retrieve(context.Background(), RetrievalPlan{
		DocQueries: []string{"q"},
		WebQueries: []string{"w"},
	}, Query{Mode: ModeSpace, SpaceIDs: []string{"s"}})

	if !set.Empty() {
		t.Error("expected no evidence")
	}
	if !set.AllFailed() {
		t.Errorf("AllFailed = false, attempts/failures = %d/%d", set.Attempts, set.Failures)
	}
}

func TestRetrieveEmptyResultIsNotFailure(t *testing.T) {
	c := newTestCoordinator(&stubDocs{}, &stubWeb{})

	set := c.retrieve(context.Background(), RetrievalPlan{
		DocQueries: []string{"q"},
	}, Query{Mode: ModeSpace, SpaceIDs: []string{"s"}})

	if !set.Empty() {
		t.Error("expected empty evidence")
	}
	if set.Failures != 0 {
		t.Errorf("failures = %d, want 0 for a clean empty search", set.Failures)
	}
	if set.AllFailed() {
		t.Error("empty-but-successful retrieval must not count as all failed")
	}
}

func TestRetrieveSearchesEverySpace(t *testing.T) {
	docs := &stubDocs{hits: []DocumentHit{{SourceID: "n.md", Content: "x", Score: 0.7}}}
	c := newTestCoordinator(docs, &stubWeb{})

	set := c.retrieve(context.Background(), RetrievalPlan{
		DocQueries: []string{"q"},
	}, Query{Mode: ModeSpace, SpaceIDs: []string{"alpha", "beta"}})

	if docs.callCount() != 2 {
		t.Errorf("space searches = %d, want 2", docs.callCount())
	}
	seen := map[string]bool{}
	for _, item := range set.DocResults {
		seen[item.SpaceID] = true
	}
	if !seen["alpha"] || !seen["beta"] {
		t.Errorf("evidence spaces = %v, want both alpha and beta", seen)
	}
}

func TestRetrieveEmptySpaceListMeansAllAccessible(t *testing.T) {
	docs := &stubDocs{hits: []DocumentHit{{SourceID: "n.md", Content: "x", Score: 0.7}}}
	c := newTestCoordinator(docs, &stubWeb{})

	c.retrieve(context.Background(), RetrievalPlan{
		DocQueries: []string{"q"},
	}, Query{Mode: ModeSpace})

	if docs.callCount() != 1 {
		t.Fatalf("space searches = %d, want 1", docs.callCount())
	}
	if docs.spaces[0] != "" {
		t.Errorf("space id = %q, want empty meaning all accessible", docs.spaces[0])
	}
}

// fileScopedDocs records whether the file-scoped search path was taken.
type fileScopedDocs struct {
	stubDocs
	mu          sync.Mutex
	scopedCalls int
	lastFileIDs []string
}

func (d *fileScopedDocs) SimilaritySearchFiles(ctx context.Context, spaceID string, fileIDs []string, queryVector []float32, threshold float32) ([]DocumentHit, error) {
	d.mu.Lock()
	d.scopedCalls++
	d.lastFileIDs = fileIDs
	d.mu.Unlock()
	return d.SimilaritySearch(ctx, spaceID, queryVector, threshold)
}

func TestRetrieveUsesFileScopeWhenAvailable(t *testing.T) {
	docs := &fileScopedDocs{stubDocs: stubDocs{hits: []DocumentHit{{SourceID: "f.md", Content: "x", Score: 0.7}}}}
	c := newTestCoordinator(docs, &stubWeb{})

	c.retrieve(context.Background(), RetrievalPlan{
		DocQueries: []string{"q"},
	}, Query{Mode: ModeSpace, SpaceIDs: []string{"s"}, FileIDs: []string{"file-1", "file-2"}})

	if docs.scopedCalls != 1 {
		t.Errorf("scoped calls = %d, want 1", docs.scopedCalls)
	}
	if len(docs.lastFileIDs) != 2 {
		t.Errorf("file ids = %v, want 2 entries", docs.lastFileIDs)
	}
}

func TestRetrieveCustomThreshold(t *testing.T) {
	docs := &stubDocs{hits: []DocumentHit{
		{SourceID: "a.md", Content: "x", Score: 0.4},
		{SourceID: "b.md", Content: "y", Score: 0.6},
	}}
	c := newTestCoordinator(docs, &stubWeb{}, WithScoreThreshold(0.5))

	set := c.retrieve(context.Background(), RetrievalPlan{
		DocQueries: []string{"q"},
	}, Query{Mode: ModeSpace, SpaceIDs: []string{"s"}})

	if len(set.DocResults) != 1 || set.DocResults[0].SourceID != "b.md" {
		t.Errorf("doc results = %+v, want only b.md above 0.5", set.DocResults)
	}
}
