package search

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	cserrors "github.com/citeseek/citeseek/errors"
	"github.com/citeseek/citeseek/message"
)

// streamLLM yields scripted fragments followed by a completed message, or a
// mid-stream error when streamErr is set.
type streamLLM struct {
	stubLLM
	fragments   []string
	streamErr   error
	streamCalls int
}

func (s *streamLLM) GenerateStream(_ context.Context, msgs []*message.Message) iter.Seq2[*message.Message, error] {
	s.streamCalls++
	s.lastMsgs = msgs
	return func(yield func(*message.Message, error) bool) {
		var full strings.Builder
		for _, fragment := range s.fragments {
			full.WriteString(fragment)
			if !yield(message.NewMessage(message.RoleAssistant, fragment), nil) {
				return
			}
		}
		if s.streamErr != nil {
			yield(nil, s.streamErr)
			return
		}
		final := message.NewMessage(message.RoleAssistant, full.String())
		final.Completed = true
		yield(final, nil)
	}
}

func collect(t *testing.T, seq iter.Seq2[*StreamChunk, error]) ([]*StreamChunk, error) {
	t.Helper()
	var chunks []*StreamChunk
	var failure error
	seq(func(chunk *StreamChunk, err error) bool {
		if err != nil {
			failure = err
			return false
		}
		chunks = append(chunks, chunk)
		return true
	})
	return chunks, failure
}

func checkTrailer(t *testing.T, chunks []*StreamChunk) *Result {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatal("no chunks emitted")
	}
	var answer strings.Builder
	for i, chunk := range chunks {
		if i == len(chunks)-1 {
			if !chunk.Final || chunk.Result == nil {
				t.Fatalf("last chunk = %+v, want Final with a Result", chunk)
			}
			continue
		}
		if chunk.Final {
			t.Fatalf("chunk %d is Final but not last", i)
		}
		answer.WriteString(chunk.Text)
	}
	trailer := chunks[len(chunks)-1]
	if answer.String() != trailer.Result.Answer {
		t.Errorf("fragments reassemble to %q, trailer answer is %q", answer.String(), trailer.Result.Answer)
	}
	return trailer.Result
}

func TestStreamingReplaysStructuredAnswer(t *testing.T) {
	engine := newTestEngine(t, Clients{
		Default:     &stubLLM{},
		Strategy:    &stubLLM{responses: []string{retrieveJSON}},
		Planner:     &stubLLM{responses: []string{planJSON}},
		Synthesizer: &stubLLM{responses: []string{answerJSON}},
	},
		&stubDocs{hits: []DocumentHit{{SourceID: "notes.md", Content: "rollout starts in March", Score: 0.91}}},
		&stubWeb{hits: []WebHit{{SourceURL: "https://example.com/news", Content: "coverage", Score: 0.7}}},
	)

	chunks, err := collect(t, engine.RunSearchStreaming(context.Background(), Query{Text: "when?", Mode: ModeSpace, SpaceIDs: []string{"s"}}))
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	result := checkTrailer(t, chunks)
	if result.Strategy != AnswerHybrid {
		t.Errorf("trailer strategy = %q, want hybrid", result.Strategy)
	}
	if len(chunks) < 2 {
		t.Errorf("chunks = %d, want the answer split across fragments plus a trailer", len(chunks))
	}
}

func TestStreamingWithStreamClient(t *testing.T) {
	synth := &streamLLM{fragments: []string{"According to doc notes.md, ", "the rollout starts in March."}}
	engine := newTestEngine(t, Clients{
		Default:     &stubLLM{},
		Strategy:    &stubLLM{responses: []string{retrieveJSON}},
		Planner:     &stubLLM{responses: []string{planJSON}},
		Synthesizer: synth,
	},
		&stubDocs{hits: []DocumentHit{{SourceID: "notes.md", Content: "rollout starts in March", Score: 0.91}}},
		&stubWeb{hits: []WebHit{{SourceURL: "https://example.com/news", Content: "coverage", Score: 0.7}}},
	)

	chunks, err := collect(t, engine.RunSearchStreaming(context.Background(), Query{Text: "when?", Mode: ModeSpace, SpaceIDs: []string{"s"}}))
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	result := checkTrailer(t, chunks)
	if synth.streamCalls != 1 {
		t.Errorf("stream calls = %d, want 1", synth.streamCalls)
	}
	if synth.callCount() != 0 {
		t.Errorf("blocking Generate called %d times on a streaming client", synth.callCount())
	}
	if result.Answer != "According to doc notes.md, the rollout starts in March." {
		t.Errorf("trailer answer = %q", result.Answer)
	}
	if result.Confidence <= 0 || result.Confidence > 0.9 {
		t.Errorf("trailer confidence = %v, want within (0, 0.9]", result.Confidence)
	}
	if n := len(result.FollowupSuggestions); n < 1 || n > 3 {
		t.Errorf("trailer followups = %d, want 1 to 3", n)
	}
}

func TestStreamingIsLazy(t *testing.T) {
	strategy := &stubLLM{responses: []string{retrieveJSON}}
	engine := newTestEngine(t, Clients{
		Default:  &stubLLM{},
		Strategy: strategy,
		Planner:  &stubLLM{responses: []string{planJSON}},
	}, &stubDocs{}, &stubWeb{})

	seq := engine.RunSearchStreaming(context.Background(), Query{Text: "when?", Mode: ModeGeneral})
	if strategy.callCount() != 0 {
		t.Fatal("pipeline ran before the sequence was consumed")
	}
	seq(func(*StreamChunk, error) bool { return false })
	if strategy.callCount() == 0 {
		t.Error("consuming the sequence did not start the pipeline")
	}
}

func TestStreamingMidstreamFailureClosesHonestly(t *testing.T) {
	synth := &streamLLM{
		fragments: []string{"Partial answer before "},
		streamErr: errors.New("connection reset"),
	}
	engine := newTestEngine(t, Clients{
		Default:     &stubLLM{},
		Strategy:    &stubLLM{responses: []string{retrieveJSON}},
		Planner:     &stubLLM{responses: []string{planJSON}},
		Synthesizer: synth,
	},
		&stubDocs{hits: []DocumentHit{{SourceID: "n.md", Content: "x", Score: 0.9}}},
		&stubWeb{},
	)

	chunks, err := collect(t, engine.RunSearchStreaming(context.Background(), Query{Text: "when?", Mode: ModeSpace, SpaceIDs: []string{"s"}}))
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	result := checkTrailer(t, chunks)
	if result.Strategy != AnswerError {
		t.Errorf("trailer strategy = %q, want error after mid-stream failure", result.Strategy)
	}
	if !strings.Contains(result.Answer, "Partial answer") {
		t.Errorf("trailer dropped the already delivered text: %q", result.Answer)
	}
}

func TestStreamingDirectAnswer(t *testing.T) {
	engine := newTestEngine(t, Clients{
		Default:  &stubLLM{},
		Strategy: &stubLLM{responses: []string{`{"strategy":"direct","answer":"Seven."}`}},
	}, &stubDocs{}, &stubWeb{})

	chunks, err := collect(t, engine.RunSearchStreaming(context.Background(), Query{Text: "days in a week?", Mode: ModeGeneral}))
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	result := checkTrailer(t, chunks)
	if result.Answer != "Seven." {
		t.Errorf("answer = %q", result.Answer)
	}
}

func TestStreamingHonestGap(t *testing.T) {
	synth := &streamLLM{fragments: []string{"should never stream"}}
	engine := newTestEngine(t, Clients{
		Default:     &stubLLM{},
		Strategy:    &stubLLM{responses: []string{retrieveJSON}},
		Planner:     &stubLLM{responses: []string{planJSON}},
		Synthesizer: synth,
	}, &stubDocs{}, &stubWeb{})

	chunks, err := collect(t, engine.RunSearchStreaming(context.Background(), Query{Text: "when?", Mode: ModeSpace, SpaceIDs: []string{"s"}}))
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	result := checkTrailer(t, chunks)
	if synth.streamCalls != 0 {
		t.Error("streamed against the model despite an honest knowledge gap")
	}
	if !strings.Contains(result.Answer, "could not find") {
		t.Errorf("answer = %q, want the no-evidence message", result.Answer)
	}
}

func TestStreamingRejectsEmptyQuery(t *testing.T) {
	engine := newTestEngine(t, Clients{Default: &stubLLM{}}, &stubDocs{}, &stubWeb{})

	_, err := collect(t, engine.RunSearchStreaming(context.Background(), Query{Text: ""}))
	if !errors.Is(err, cserrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSplitFragmentsReassembles(t *testing.T) {
	texts := []string{
		"short",
		strings.Repeat("a long sentence about rollouts and evidence thresholds ", 10),
		"带有中文字符的混合内容 mixed with latin words repeated to exceed the fragment size and split cleanly somewhere",
	}
	for _, text := range texts {
		fragments := splitFragments(text, streamFragmentSize)
		if strings.Join(fragments, "") != text {
			t.Errorf("fragments do not reassemble input %q", text)
		}
	}
	if got := splitFragments("", streamFragmentSize); got != nil {
		t.Errorf("splitFragments(empty) = %v, want nil", got)
	}
	long := strings.Repeat("x", 500)
	if fragments := splitFragments(long, 64); len(fragments) < 2 {
		t.Errorf("unbroken text produced %d fragments, want several", len(fragments))
	}
}

func TestCoverageConfidence(t *testing.T) {
	doc := func(n int) []Evidence {
		out := make([]Evidence, n)
		for i := range out {
			out[i] = Evidence{SourceKind: SourceDocument, SourceID: "notes.md", Content: "chunk", Score: 0.8}
		}
		return out
	}
	cases := []struct {
		name     string
		evidence *EvidenceSet
		want     float64
	}{
		{"empty", &EvidenceSet{Attempts: 2}, 0},
		{"single hit", &EvidenceSet{DocResults: doc(1), Attempts: 1}, 0.5},
		{"broad coverage capped", &EvidenceSet{DocResults: doc(8), Attempts: 3}, 0.9},
		{"partial failure penalty", &EvidenceSet{DocResults: doc(2), Attempts: 3, Failures: 1}, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := &Result{Confidence: coverageConfidence(tc.evidence)}
			if diff := result.Confidence - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("confidence = %v, want %v", result.Confidence, tc.want)
			}
		})
	}
}
