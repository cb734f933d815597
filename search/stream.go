package search

import (
	"context"
	"fmt"
	"iter"
	"strings"

	cserrors "github.com/citeseek/citeseek/errors"
	"github.com/citeseek/citeseek/llm"
	"github.com/citeseek/citeseek/message"
)

// streamFragmentSize is the rough rune length of each fragment emitted when
// an answer is produced whole and replayed as a stream.
const streamFragmentSize = 64

// StreamChunk is one element of a streaming search. Intermediate chunks carry
// answer text; the final chunk has Final set and carries the full Result,
// whose Answer equals the concatenation of every fragment before it.
type StreamChunk struct {
	Text   string
	Final  bool
	Result *Result
}

// RunSearchStreaming executes one query and yields the answer incrementally.
// No work happens until the sequence is consumed. When the synthesizer client
// supports token streaming the fragments arrive as the model produces them;
// otherwise the finished answer is replayed in fragments. Either way the
// sequence ends with a single Final chunk carrying the complete Result.
func (e *Engine) RunSearchStreaming(ctx context.Context, query Query) iter.Seq2[*StreamChunk, error] {
	return func(yield func(*StreamChunk, error) bool) {
		if strings.TrimSpace(query.Text) == "" {
			yield(nil, fmt.Errorf("search: %w: query text is empty", cserrors.ErrInvalidInput))
			return
		}

		decision := e.decideStrategy(ctx, query)
		if decision.Strategy == StrategyDirect {
			e.replayResult(ctx, e.directResult(decision), yield)
			return
		}

		plan := e.planQueries(ctx, query)
		evidence := e.retrieveEvidence(ctx, plan, query)

		streamer, ok := e.synthesizer.llm.(llm.StreamClient)
		if !ok || (evidence.Empty() && !evidence.AllFailed()) {
			result := e.synthesizeAnswer(ctx, query, evidence)
			e.replayResult(ctx, result, yield)
			return
		}
		e.streamSynthesis(ctx, streamer, query, evidence, yield)
	}
}

// streamSynthesis runs the text-mode synthesis prompt against a streaming
// client and forwards fragments as they arrive. The trailer Result is
// assembled from the accumulated text since token streams cannot be
// schema-checked mid-flight.
func (e *Engine) streamSynthesis(ctx context.Context, streamer llm.StreamClient, query Query, evidence *EvidenceSet, yield func(*StreamChunk, error) bool) {
	msgs := make([]*message.Message, 0, len(query.History)+2)
	msgs = append(msgs, message.NewMessage(message.RoleSystem, e.cfg.StreamSynthesisPrompt))
	msgs = append(msgs, query.History...)
	msgs = append(msgs, message.NewMessage(message.RoleUser, e.synthesizer.buildInput(query.Text, evidence)))

	var answer strings.Builder
	for msg, err := range streamer.GenerateStream(ctx, msgs) {
		if err != nil {
			e.logger.Error("streaming synthesis failed", "error", err)
			if answer.Len() == 0 {
				e.replayResult(ctx, e.synthesizer.errorResult(), yield)
				return
			}
			// partial answer already delivered, close it out honestly
			yield(&StreamChunk{Final: true, Result: &Result{
				Answer:              answer.String(),
				Reasoning:           "answer was cut short by a provider failure",
				FollowupSuggestions: errorFollowups(),
				Strategy:            AnswerError,
				Confidence:          0,
			}}, nil)
			return
		}
		if err := ctx.Err(); err != nil {
			yield(nil, fmt.Errorf("search: cancelled during synthesis: %w", err))
			return
		}
		if msg.Completed {
			break
		}
		text := msg.Text()
		if text == "" {
			continue
		}
		answer.WriteString(text)
		if !yield(&StreamChunk{Text: text}, nil) {
			return
		}
	}

	full := answer.String()
	if strings.TrimSpace(full) == "" {
		e.replayResult(ctx, e.synthesizer.errorResult(), yield)
		return
	}
	yield(&StreamChunk{Final: true, Result: &Result{
		Answer:              full,
		Reasoning:           "answer grounded in the retrieved evidence",
		FollowupSuggestions: followupsFromEvidence(evidence),
		Strategy:            strategyHint(evidence),
		Confidence:          coverageConfidence(evidence),
	}}, nil)
}

// replayResult emits an already-complete result as fragments plus a trailer.
func (e *Engine) replayResult(ctx context.Context, result *Result, yield func(*StreamChunk, error) bool) {
	for _, fragment := range splitFragments(result.Answer, streamFragmentSize) {
		if err := ctx.Err(); err != nil {
			yield(nil, fmt.Errorf("search: cancelled during streaming: %w", err))
			return
		}
		if !yield(&StreamChunk{Text: fragment}, nil) {
			return
		}
	}
	yield(&StreamChunk{Final: true, Result: result}, nil)
}

// splitFragments cuts text into fragments of roughly size runes, breaking on
// word boundaries where possible. Concatenating the fragments reproduces the
// input exactly.
func splitFragments(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var fragments []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			fragments = append(fragments, string(runes[start:]))
			break
		}
		cut := end
		for cut > start && runes[cut] != ' ' && runes[cut] != '\n' {
			cut--
		}
		if cut == start {
			cut = end
		}
		fragments = append(fragments, string(runes[start:cut]))
		start = cut
	}
	return fragments
}

// followupsFromEvidence picks suggestions matching the evidence mix.
func followupsFromEvidence(evidence *EvidenceSet) []string {
	switch {
	case len(evidence.DocResults) > 0 && len(evidence.WebResults) > 0:
		return []string{
			"Ask for a deeper comparison between your documents and the web sources",
			"Narrow the question to one source for more detail",
		}
	case len(evidence.WebResults) > 0:
		return []string{
			"Ask to cross-check these web findings against your documents",
			"Request more recent coverage of the same topic",
		}
	default:
		return []string{
			"Ask about a specific document mentioned in the answer",
			"Broaden the search to the web for outside context",
		}
	}
}

// coverageConfidence scores trailer confidence from evidence breadth alone.
func coverageConfidence(evidence *EvidenceSet) float64 {
	if evidence.Empty() {
		return 0
	}
	n := evidence.Len()
	if n > 5 {
		n = 5
	}
	score := 0.4 + 0.1*float64(n)
	if evidence.Failures > 0 {
		score -= 0.1
	}
	if score > 0.9 {
		score = 0.9
	}
	return score
}
