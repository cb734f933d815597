package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/citeseek/citeseek/llm"
	"github.com/citeseek/citeseek/message"
)

type queryPlanner struct {
	llm        llm.Client
	prompt     string
	maxDoc     int
	maxWeb     int
	requireDoc bool
	logger     *slog.Logger
}

func newQueryPlanner(client llm.Client, cfg *Config, logger *slog.Logger) *queryPlanner {
	return &queryPlanner{
		llm:        client,
		prompt:     cfg.PlannerPrompt,
		maxDoc:     cfg.MaxDocQueries,
		maxWeb:     cfg.MaxWebQueries,
		requireDoc: cfg.RequireDocQueries,
		logger:     logger.With("stage", "planner"),
	}
}

// plan decomposes the query into bounded sub-queries. Invalid LLM output is
// retried once; a second failure falls back to a deterministic single-query
// plan so retrieval always makes forward progress.
func (p *queryPlanner) plan(ctx context.Context, queryText string, mode Mode) RetrievalPlan {
	webOnly := wantsWebOnly(queryText)
	docsOnly := wantsDocsOnly(queryText)

	if p.llm != nil {
		systemPrompt := strings.ReplaceAll(p.prompt, "{{max_doc}}", strconv.Itoa(p.maxDoc))
		systemPrompt = strings.ReplaceAll(systemPrompt, "{{max_web}}", strconv.Itoa(p.maxWeb))

		userPrompt := fmt.Sprintf("Search mode: %s\nQuestion: %s\nReturn JSON only.", mode, queryText)

		for attempt := 1; attempt <= 2; attempt++ {
			resp, err := p.llm.Generate(ctx, []*message.Message{
				message.NewMessage(message.RoleSystem, systemPrompt),
				message.NewMessage(message.RoleUser, userPrompt),
			})
			if err != nil {
				p.logger.Warn("planner generation failed", "attempt", attempt, "error", err)
				continue
			}

			plan, err := decodeJSON[RetrievalPlan](resp.Text())
			if err != nil {
				p.logger.Warn("planner output invalid", "attempt", attempt, "error", err)
				continue
			}

			if err := p.applyPolicy(plan, mode, webOnly, docsOnly); err != nil {
				p.logger.Warn("planner output rejected by mode policy", "attempt", attempt, "error", err)
				continue
			}

			p.logger.Debug("plan generated",
				"doc_queries", len(plan.DocQueries),
				"web_queries", len(plan.WebQueries),
			)
			return *plan
		}
	}

	fallback := p.fallback(queryText, mode, webOnly)
	p.logger.Info("planner falling back to raw query plan",
		"doc_queries", len(fallback.DocQueries),
		"web_queries", len(fallback.WebQueries),
	)
	return fallback
}

// applyPolicy clamps bounds and enforces the mode constraints in place.
func (p *queryPlanner) applyPolicy(plan *RetrievalPlan, mode Mode, webOnly, docsOnly bool) error {
	plan.DocQueries = dropEmptyQueries(plan.DocQueries)
	plan.WebQueries = dropEmptyQueries(plan.WebQueries)

	if len(plan.DocQueries) > p.maxDoc {
		plan.DocQueries = plan.DocQueries[:p.maxDoc]
	}
	if len(plan.WebQueries) > p.maxWeb {
		plan.WebQueries = plan.WebQueries[:p.maxWeb]
	}

	if webOnly {
		plan.DocQueries = nil
	}
	if docsOnly {
		plan.WebQueries = nil
	}
	if mode == ModeSpace && p.requireDoc && !webOnly && len(plan.DocQueries) == 0 {
		return fmt.Errorf("space mode plan must contain at least one doc query")
	}
	if len(plan.DocQueries) == 0 && len(plan.WebQueries) == 0 {
		return fmt.Errorf("plan contains no queries")
	}
	return nil
}

func (p *queryPlanner) fallback(queryText string, mode Mode, webOnly bool) RetrievalPlan {
	if mode == ModeSpace && !webOnly {
		return RetrievalPlan{DocQueries: []string{queryText}}
	}
	return RetrievalPlan{WebQueries: []string{queryText}}
}

func dropEmptyQueries(queries []string) []string {
	out := queries[:0]
	for _, q := range queries {
		if strings.TrimSpace(q) != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var webOnlyPhrases = []string{
	"web only",
	"only web",
	"only the internet",
	"internet only",
	"only use the internet",
	"use only the internet",
	"only search the web",
	"search the web only",
	"仅搜索网络",
	"只搜索网络",
}

var docsOnlyPhrases = []string{
	"documents only",
	"docs only",
	"only my documents",
	"only the documents",
	"only search my documents",
	"do not search the web",
	"don't search the web",
	"仅搜索文档",
	"只搜索文档",
}

func wantsWebOnly(queryText string) bool {
	return containsAny(queryText, webOnlyPhrases)
}

func wantsDocsOnly(queryText string) bool {
	return containsAny(queryText, docsOnlyPhrases)
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
