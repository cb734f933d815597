package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/citeseek/citeseek/llm"
	"github.com/citeseek/citeseek/message"
	"github.com/citeseek/citeseek/tokenizer"
)

type synthesizer struct {
	llm          llm.Client
	prompt       string
	streamPrompt string
	tok          tokenizer.Tokenizer
	budget       int
	noEvidence   string
	errorMessage string
	logger       *slog.Logger
}

func newSynthesizer(client llm.Client, cfg *Config, logger *slog.Logger) *synthesizer {
	return &synthesizer{
		llm:          client,
		prompt:       cfg.SynthesisPrompt,
		streamPrompt: cfg.StreamSynthesisPrompt,
		tok:          cfg.tok,
		budget:       cfg.EvidenceTokenBudget,
		noEvidence:   cfg.NoEvidenceMessage,
		errorMessage: cfg.ErrorMessage,
		logger:       logger.With("stage", "synthesis"),
	}
}

// synthesize composes the cited answer. Schema violations get one corrective
// retry; a second failure or a provider error lands in the terminal error
// result, never an escaping exception.
func (s *synthesizer) synthesize(ctx context.Context, queryText string, history []*message.Message, evidence *EvidenceSet, hint AnswerStrategy) *Result {
	if evidence.Empty() && !evidence.AllFailed() {
		// retrieval worked and found nothing: answer the gap honestly
		// without giving the model a chance to fabricate
		s.logger.Info("no evidence retrieved, returning honest gap answer")
		return &Result{
			Answer:              s.noEvidence,
			Reasoning:           "retrieval completed but no evidence passed the relevance threshold",
			FollowupSuggestions: gapFollowups(),
			Strategy:            AnswerFocused,
			Confidence:          0,
		}
	}
	if s.llm == nil {
		s.logger.Error("no synthesizer client configured")
		return s.errorResult()
	}

	userPrompt := s.buildInput(queryText, evidence)

	corrective := ""
	for attempt := 1; attempt <= 2; attempt++ {
		msgs := make([]*message.Message, 0, len(history)+2)
		msgs = append(msgs, message.NewMessage(message.RoleSystem, s.prompt+corrective))
		msgs = append(msgs, history...)
		msgs = append(msgs, message.NewMessage(message.RoleUser, userPrompt))

		resp, err := s.llm.Generate(ctx, msgs)
		if err != nil {
			s.logger.Error("synthesis generation failed", "attempt", attempt, "error", err)
			return s.errorResult()
		}

		result, err := decodeJSON[Result](resp.Text())
		if err == nil {
			if verr := result.validate(); verr == nil {
				result.Strategy = reconcileStrategy(result.Strategy, hint)
				s.logger.Info("synthesis completed", "attempt", attempt, "strategy", result.Strategy)
				return result
			} else {
				err = verr
			}
		}
		s.logger.Warn("synthesis output rejected", "attempt", attempt, "error", err)
		corrective = fmt.Sprintf("\n\nYour previous reply was rejected: %v. Return only the JSON object described above.", err)
	}

	return s.errorResult()
}

func (s *synthesizer) errorResult() *Result {
	return &Result{
		Answer:              s.errorMessage,
		Reasoning:           "answer synthesis did not complete",
		FollowupSuggestions: errorFollowups(),
		Strategy:            AnswerError,
		Confidence:          0,
	}
}

// buildInput renders the question plus evidence, separated into document and
// web sections, trimmed to the configured token budget.
func (s *synthesizer) buildInput(queryText string, evidence *EvidenceSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\n", queryText)

	b.WriteString("## Document Results\n")
	if len(evidence.DocResults) == 0 {
		b.WriteString("(none)\n")
	}
	for _, item := range evidence.DocResults {
		if item.SpaceID != "" {
			fmt.Fprintf(&b, "[doc: %s] (space %s, score %.2f)\n%s\n---\n", item.SourceID, item.SpaceID, item.Score, item.Content)
		} else {
			fmt.Fprintf(&b, "[doc: %s] (score %.2f)\n%s\n---\n", item.SourceID, item.Score, item.Content)
		}
	}

	b.WriteString("\n## Web Results\n")
	if len(evidence.WebResults) == 0 {
		b.WriteString("(none)\n")
	}
	for _, item := range evidence.WebResults {
		fmt.Fprintf(&b, "[url: %s] (score %.2f)\n%s\n---\n", item.SourceID, item.Score, item.Content)
	}

	return tokenizer.TrimToBudget(s.tok, b.String(), s.budget)
}

// reconcileStrategy keeps the model's label when legal, otherwise the hint.
func reconcileStrategy(got, hint AnswerStrategy) AnswerStrategy {
	switch got {
	case AnswerComprehensive, AnswerFocused, AnswerHybrid:
		return got
	}
	if hint == "" {
		return AnswerFocused
	}
	return hint
}

// strategyHint derives the expected composition style from the evidence mix.
func strategyHint(evidence *EvidenceSet) AnswerStrategy {
	switch {
	case len(evidence.DocResults) > 0 && len(evidence.WebResults) > 0:
		return AnswerHybrid
	case evidence.Len() >= 3:
		return AnswerComprehensive
	default:
		return AnswerFocused
	}
}

func gapFollowups() []string {
	return []string{
		"Try rephrasing the question with more specific terms",
		"Broaden the search scope to more spaces or the web",
	}
}

func errorFollowups() []string {
	return []string{
		"Try the question again in a moment",
		"Rephrase the question if the problem persists",
	}
}
