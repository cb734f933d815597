package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cserrors "github.com/citeseek/citeseek/errors"
	"github.com/citeseek/citeseek/llm"
	"github.com/citeseek/citeseek/pkg/logging"
	"github.com/citeseek/citeseek/pkg/telemetry"
	"github.com/citeseek/citeseek/vector"
)

// Clients holds the completion clients for each pipeline stage. Default is
// required; the per-stage entries override it when set, so callers can route
// cheap classification to a small model and synthesis to a large one.
type Clients struct {
	Default     llm.Client
	Strategy    llm.Client
	Planner     llm.Client
	Synthesizer llm.Client
}

func pickClient(primary, fallback llm.Client) llm.Client {
	if primary != nil {
		return primary
	}
	return fallback
}

// searchState tracks progress through a single search run. Every run walks
// the same transitions; which branch it takes after the strategy decision is
// the only fork.
type searchState string

const (
	stateStart           searchState = "START"
	stateStrategyDecided searchState = "STRATEGY_DECIDED"
	stateDirectAnswered  searchState = "DIRECT_ANSWERED"
	statePlanned         searchState = "PLANNED"
	stateRetrieved       searchState = "RETRIEVED"
	stateSynthesized     searchState = "SYNTHESIZED"
	stateDone            searchState = "DONE"
)

// Engine runs the full search pipeline: strategy selection, query planning,
// retrieval fan-out, and answer synthesis.
type Engine struct {
	cfg         *Config
	selector    *strategySelector
	planner     *queryPlanner
	coordinator *coordinator
	synthesizer *synthesizer
	logger      *slog.Logger
	tracer      trace.Tracer
}

// New builds an Engine. The embedder and document retriever may be nil only
// when every query is expected to resolve via the web or a direct answer;
// retrieval against documents reports sub-query failures in that case rather
// than panicking.
func New(clients Clients, embedder vector.Embedder, docs DocumentRetriever, web WebRetriever, opts ...Option) (*Engine, error) {
	cfg := applyOptions(defaultConfig(), opts)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("search: invalid config: %w", err)
	}
	if clients.Default == nil {
		return nil, fmt.Errorf("search: %w: default client is required", cserrors.ErrInvalidInput)
	}

	logger := logging.WithComponent("search").With("engine", cfg.Name)
	return &Engine{
		cfg:         cfg,
		selector:    newStrategySelector(pickClient(clients.Strategy, clients.Default), cfg, logger),
		planner:     newQueryPlanner(pickClient(clients.Planner, clients.Default), cfg, logger),
		coordinator: newCoordinator(embedder, docs, web, cfg, logger),
		synthesizer: newSynthesizer(pickClient(clients.Synthesizer, clients.Default), cfg, logger),
		logger:      logger,
		tracer:      otel.Tracer("citeseek/search"),
	}, nil
}

// RunSearch executes one query end to end and returns the final result.
// Failures inside a stage degrade according to that stage's policy; the only
// errors returned here are invalid input and context cancellation.
func (e *Engine) RunSearch(ctx context.Context, query Query) (*Result, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, fmt.Errorf("search: %w: query text is empty", cserrors.ErrInvalidInput)
	}

	ctx, span := e.tracer.Start(ctx, "search.run",
		trace.WithAttributes(
			attribute.String("search.mode", string(query.Mode)),
			attribute.Int("search.spaces", len(query.SpaceIDs)),
		))
	result, err := e.run(ctx, query)
	telemetry.End(span, err)
	return result, err
}

func (e *Engine) run(ctx context.Context, query Query) (*Result, error) {
	var (
		state    = stateStart
		decision StrategyDecision
		plan     RetrievalPlan
		evidence *EvidenceSet
		result   *Result
	)

	for state != stateDone {
		if err := ctx.Err(); err != nil {
			e.logger.Info("search cancelled", "state", string(state))
			return nil, fmt.Errorf("search: cancelled in state %s: %w", state, err)
		}

		switch state {
		case stateStart:
			decision = e.decideStrategy(ctx, query)
			state = stateStrategyDecided

		case stateStrategyDecided:
			if decision.Strategy == StrategyDirect {
				result = e.directResult(decision)
				state = stateDirectAnswered
			} else {
				plan = e.planQueries(ctx, query)
				state = statePlanned
			}

		case stateDirectAnswered:
			state = stateDone

		case statePlanned:
			evidence = e.retrieveEvidence(ctx, plan, query)
			state = stateRetrieved

		case stateRetrieved:
			result = e.synthesizeAnswer(ctx, query, evidence)
			state = stateSynthesized

		case stateSynthesized:
			state = stateDone

		default:
			return nil, fmt.Errorf("search: %w: unexpected state %s", cserrors.ErrInternal, state)
		}
	}

	return result, nil
}

func (e *Engine) decideStrategy(ctx context.Context, query Query) StrategyDecision {
	ctx, span := e.tracer.Start(ctx, "search.strategy")
	decision := e.selector.decide(ctx, query.Text, query.History)
	span.SetAttributes(attribute.String("search.strategy", string(decision.Strategy)))
	telemetry.End(span, nil)
	return decision
}

func (e *Engine) planQueries(ctx context.Context, query Query) RetrievalPlan {
	ctx, span := e.tracer.Start(ctx, "search.plan")
	plan := e.planner.plan(ctx, query.Text, query.Mode)
	span.SetAttributes(
		attribute.Int("search.doc_queries", len(plan.DocQueries)),
		attribute.Int("search.web_queries", len(plan.WebQueries)),
	)
	telemetry.End(span, nil)
	return plan
}

func (e *Engine) retrieveEvidence(ctx context.Context, plan RetrievalPlan, query Query) *EvidenceSet {
	ctx, span := e.tracer.Start(ctx, "search.retrieve")
	evidence := e.coordinator.retrieve(ctx, plan, query)
	span.SetAttributes(
		attribute.Int("search.evidence", evidence.Len()),
		attribute.Int("search.failed_subqueries", evidence.Failures),
	)
	telemetry.End(span, nil)
	return evidence
}

func (e *Engine) synthesizeAnswer(ctx context.Context, query Query, evidence *EvidenceSet) *Result {
	ctx, span := e.tracer.Start(ctx, "search.synthesize")
	result := e.synthesizer.synthesize(ctx, query.Text, query.History, evidence, strategyHint(evidence))
	span.SetAttributes(attribute.String("search.answer_strategy", string(result.Strategy)))
	telemetry.End(span, nil)
	return result
}

// directResult wraps an in-knowledge answer without touching retrieval.
func (e *Engine) directResult(decision StrategyDecision) *Result {
	e.logger.Info("answering directly without retrieval")
	return &Result{
		Answer:              decision.DirectAnswer,
		Reasoning:           "answered from the model's own knowledge, no retrieval needed",
		FollowupSuggestions: directFollowups(),
		Strategy:            AnswerFocused,
		Confidence:          e.cfg.DirectConfidence,
	}
}

func directFollowups() []string {
	return []string{
		"Ask a follow-up question for more detail",
		"Search your documents if you need sourced evidence",
	}
}
