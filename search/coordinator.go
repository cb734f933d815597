package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/citeseek/citeseek/vector"
)

// coordinator fans planned sub-queries out to the document and web retrievers.
// All sub-queries run concurrently with an individual deadline; a failing
// sub-query is logged and dropped, never aborts the whole retrieval.
type coordinator struct {
	embedder  vector.Embedder
	docs      DocumentRetriever
	web       WebRetriever
	threshold float32
	timeout   time.Duration
	logger    *slog.Logger
}

func newCoordinator(emb vector.Embedder, docs DocumentRetriever, web WebRetriever, cfg *Config, logger *slog.Logger) *coordinator {
	return &coordinator{
		embedder:  emb,
		docs:      docs,
		web:       web,
		threshold: cfg.ScoreThreshold,
		timeout:   cfg.SubQueryTimeout,
		logger:    logger.With("stage", "retrieval"),
	}
}

// retrieve executes the plan and collects surviving evidence. Within each
// result list, items keep the issue order of their originating sub-query,
// then descend by score inside a sub-query. Empty evidence is a valid
// outcome, not an error.
func (c *coordinator) retrieve(ctx context.Context, plan RetrievalPlan, query Query) *EvidenceSet {
	set := &EvidenceSet{}
	docSlots := make([][]Evidence, len(plan.DocQueries))
	webSlots := make([][]Evidence, len(plan.WebQueries))

	var (
		mu       sync.Mutex
		failures int
	)
	markFailure := func() {
		mu.Lock()
		failures++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i, subQuery := range plan.DocQueries {
		wg.Add(1)
		go func(slot int, sub string) {
			defer wg.Done()
			subCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			items, err := c.runDocQuery(subCtx, sub, query)
			if err != nil {
				c.logger.Warn("doc sub-query failed", "query", trimForLog(sub, 80), "error", err)
				markFailure()
				return
			}
			docSlots[slot] = items
		}(i, subQuery)
	}
	for i, subQuery := range plan.WebQueries {
		wg.Add(1)
		go func(slot int, sub string) {
			defer wg.Done()
			subCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			items, err := c.runWebQuery(subCtx, sub)
			if err != nil {
				c.logger.Warn("web sub-query failed", "query", trimForLog(sub, 80), "error", err)
				markFailure()
				return
			}
			webSlots[slot] = items
		}(i, subQuery)
	}
	wg.Wait()

	set.Attempts = len(plan.DocQueries) + len(plan.WebQueries)
	set.Failures = failures

	set.DocResults = mergeSlots(docSlots)
	set.WebResults = mergeSlots(webSlots)

	c.logger.Info("retrieval completed",
		"doc_results", len(set.DocResults),
		"web_results", len(set.WebResults),
		"attempts", set.Attempts,
		"failures", set.Failures,
	)
	return set
}

func (c *coordinator) runDocQuery(ctx context.Context, subQuery string, query Query) ([]Evidence, error) {
	if c.docs == nil {
		return nil, fmt.Errorf("no document retriever configured")
	}
	if c.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	queryVector, err := c.embedder.Embed(ctx, subQuery)
	if err != nil {
		return nil, fmt.Errorf("embed sub-query: %w", err)
	}

	spaces := query.SpaceIDs
	if len(spaces) == 0 {
		// empty space list means all accessible spaces
		spaces = []string{""}
	}

	var items []Evidence
	failedSpaces := 0
	for _, spaceID := range spaces {
		hits, err := c.searchSpace(ctx, spaceID, query.FileIDs, queryVector)
		if err != nil {
			c.logger.Warn("space search failed", "space", spaceID, "error", err)
			failedSpaces++
			continue
		}
		for _, hit := range hits {
			// enforce the floor here even if the retriever already filtered
			if hit.Score <= c.threshold {
				continue
			}
			items = append(items, Evidence{
				SourceKind: SourceDocument,
				SourceID:   hit.SourceID,
				Content:    hit.Content,
				Score:      hit.Score,
				SpaceID:    spaceID,
			})
		}
	}
	if failedSpaces == len(spaces) {
		// no space produced anything but errors
		return nil, fmt.Errorf("all %d space searches failed", failedSpaces)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	return items, nil
}

func (c *coordinator) searchSpace(ctx context.Context, spaceID string, fileIDs []string, queryVector []float32) ([]DocumentHit, error) {
	if len(fileIDs) > 0 {
		if scoped, ok := c.docs.(FileScopedRetriever); ok {
			return scoped.SimilaritySearchFiles(ctx, spaceID, fileIDs, queryVector, c.threshold)
		}
	}
	return c.docs.SimilaritySearch(ctx, spaceID, queryVector, c.threshold)
}

func (c *coordinator) runWebQuery(ctx context.Context, subQuery string) ([]Evidence, error) {
	if c.web == nil {
		return nil, fmt.Errorf("no web retriever configured")
	}

	hits, err := c.web.Search(ctx, subQuery)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	var items []Evidence
	for _, hit := range hits {
		if hit.Score <= c.threshold {
			continue
		}
		items = append(items, Evidence{
			SourceKind: SourceWeb,
			SourceID:   hit.SourceURL,
			Content:    hit.Content,
			Score:      hit.Score,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	return items, nil
}

// mergeSlots concatenates per-sub-query results in issue order, deduplicating
// identical (source, content) pairs and keeping the higher score.
func mergeSlots(slots [][]Evidence) []Evidence {
	type key struct {
		source  string
		content string
	}
	index := make(map[key]int)
	var merged []Evidence
	for _, slot := range slots {
		for _, item := range slot {
			k := key{source: item.SourceID, content: item.Content}
			if at, ok := index[k]; ok {
				if item.Score > merged[at].Score {
					merged[at].Score = item.Score
				}
				continue
			}
			index[k] = len(merged)
			merged = append(merged, item)
		}
	}
	return merged
}
