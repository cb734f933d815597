package search

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/citeseek/citeseek/llm"
)

func newTestPlanner(client llm.Client, opts ...Option) *queryPlanner {
	cfg := applyOptions(defaultConfig(), opts)
	return newQueryPlanner(client, cfg, slog.New(slog.DiscardHandler))
}

func TestPlanValidOutput(t *testing.T) {
	client := &stubLLM{responses: []string{planJSON}}
	planner := newTestPlanner(client)

	plan := planner.plan(context.Background(), "When does the rollout start?", ModeSpace)
	want := RetrievalPlan{
		DocQueries: []string{"release timeline", "rollout decisions"},
		WebQueries: []string{"project rollout news"},
	}
	if !reflect.DeepEqual(plan, want) {
		t.Errorf("plan = %+v, want %+v", plan, want)
	}
	if client.callCount() != 1 {
		t.Errorf("calls = %d, want 1", client.callCount())
	}
}

func TestPlanClampsBounds(t *testing.T) {
	client := &stubLLM{responses: []string{
		`{"doc_queries":["a","b","c","d","e","f","g"],"web_queries":["w1","w2","w3","w4"]}`,
	}}
	planner := newTestPlanner(client)

	plan := planner.plan(context.Background(), "broad question", ModeSpace)
	if len(plan.DocQueries) != 5 {
		t.Errorf("doc queries = %d, want 5", len(plan.DocQueries))
	}
	if len(plan.WebQueries) != 2 {
		t.Errorf("web queries = %d, want 2", len(plan.WebQueries))
	}
}

func TestPlanDropsBlankQueries(t *testing.T) {
	client := &stubLLM{responses: []string{
		`{"doc_queries":["  ","real query",""],"web_queries":["\t"]}`,
	}}
	planner := newTestPlanner(client)

	plan := planner.plan(context.Background(), "question", ModeSpace)
	if !reflect.DeepEqual(plan.DocQueries, []string{"real query"}) {
		t.Errorf("doc queries = %v, want [real query]", plan.DocQueries)
	}
	if plan.WebQueries != nil {
		t.Errorf("web queries = %v, want nil", plan.WebQueries)
	}
}

func TestPlanWebOnlyStripsDocQueries(t *testing.T) {
	client := &stubLLM{responses: []string{planJSON}}
	planner := newTestPlanner(client)

	plan := planner.plan(context.Background(), "Only search the web: latest framework release?", ModeSpace)
	if plan.DocQueries != nil {
		t.Errorf("doc queries = %v, want nil under web-only restriction", plan.DocQueries)
	}
	if len(plan.WebQueries) == 0 {
		t.Error("web queries missing")
	}
}

func TestPlanDocsOnlyStripsWebQueries(t *testing.T) {
	client := &stubLLM{responses: []string{planJSON}}
	planner := newTestPlanner(client)

	plan := planner.plan(context.Background(), "Only my documents please: what did the design review say?", ModeSpace)
	if plan.WebQueries != nil {
		t.Errorf("web queries = %v, want nil under docs-only restriction", plan.WebQueries)
	}
	if len(plan.DocQueries) == 0 {
		t.Error("doc queries missing")
	}
}

func TestPlanSpaceModeRequiresDocQueries(t *testing.T) {
	// model keeps answering with web queries only; space mode rejects both
	// attempts and the fallback turns the raw question into a doc query
	client := &stubLLM{responses: []string{`{"doc_queries":[],"web_queries":["w"]}`}}
	planner := newTestPlanner(client)

	plan := planner.plan(context.Background(), "what did the review say?", ModeSpace)
	if client.callCount() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", client.callCount())
	}
	want := RetrievalPlan{DocQueries: []string{"what did the review say?"}}
	if !reflect.DeepEqual(plan, want) {
		t.Errorf("plan = %+v, want fallback %+v", plan, want)
	}
}

func TestPlanRequireDocQueriesDisabled(t *testing.T) {
	client := &stubLLM{responses: []string{`{"doc_queries":[],"web_queries":["w"]}`}}
	planner := newTestPlanner(client, WithRequireDocQueries(false))

	plan := planner.plan(context.Background(), "what did the review say?", ModeSpace)
	if client.callCount() != 1 {
		t.Errorf("calls = %d, want 1", client.callCount())
	}
	if !reflect.DeepEqual(plan.WebQueries, []string{"w"}) {
		t.Errorf("plan = %+v, want the model's web-only plan", plan)
	}
}

func TestPlanRetriesOnceThenFallsBack(t *testing.T) {
	client := &stubLLM{responses: []string{"not json at all"}}
	planner := newTestPlanner(client)

	plan := planner.plan(context.Background(), "what changed?", ModeGeneral)
	if client.callCount() != 2 {
		t.Errorf("calls = %d, want 2", client.callCount())
	}
	want := RetrievalPlan{WebQueries: []string{"what changed?"}}
	if !reflect.DeepEqual(plan, want) {
		t.Errorf("plan = %+v, want %+v", plan, want)
	}
}

func TestPlanFallbackRespectsWebOnly(t *testing.T) {
	client := &stubLLM{err: errors.New("provider down")}
	planner := newTestPlanner(client)

	plan := planner.plan(context.Background(), "web only: what changed?", ModeSpace)
	want := RetrievalPlan{WebQueries: []string{"web only: what changed?"}}
	if !reflect.DeepEqual(plan, want) {
		t.Errorf("plan = %+v, want %+v", plan, want)
	}
}

func TestPlanNilClientFallsBack(t *testing.T) {
	planner := newTestPlanner(nil)

	plan := planner.plan(context.Background(), "question", ModeSpace)
	want := RetrievalPlan{DocQueries: []string{"question"}}
	if !reflect.DeepEqual(plan, want) {
		t.Errorf("plan = %+v, want %+v", plan, want)
	}
}

func TestPlanSubstitutesBoundsInPrompt(t *testing.T) {
	client := &stubLLM{responses: []string{planJSON}}
	planner := newTestPlanner(client, WithMaxDocQueries(3), WithMaxWebQueries(1))

	plan := planner.plan(context.Background(), "question", ModeSpace)
	system := client.lastMsgs[0].Text()
	if !strings.Contains(system, "at most 3 doc_queries") || !strings.Contains(system, "at most 1 web_queries") {
		t.Errorf("prompt bounds not substituted: %q", system)
	}
	if len(plan.WebQueries) != 1 {
		t.Errorf("web queries = %d, want clamped to 1", len(plan.WebQueries))
	}
}
