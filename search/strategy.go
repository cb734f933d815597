package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/citeseek/citeseek/llm"
	"github.com/citeseek/citeseek/message"
)

type strategySelector struct {
	llm    llm.Client
	prompt string
	logger *slog.Logger
}

func newStrategySelector(client llm.Client, cfg *Config, logger *slog.Logger) *strategySelector {
	if client != nil {
		client.SetTemperature(cfg.StrategyTemperature)
	}
	return &strategySelector{
		llm:    client,
		prompt: cfg.StrategyPrompt,
		logger: logger.With("stage", "strategy"),
	}
}

// decide routes the query. It fails closed: any provider error or malformed
// output yields StrategyRetrieve, never a fabricated direct answer.
func (s *strategySelector) decide(ctx context.Context, queryText string, history []*message.Message) StrategyDecision {
	retrieve := StrategyDecision{Strategy: StrategyRetrieve}

	if s.llm == nil {
		s.logger.Debug("no strategy client configured, defaulting to retrieve")
		return retrieve
	}

	msgs := make([]*message.Message, 0, len(history)+2)
	msgs = append(msgs, message.NewMessage(message.RoleSystem, s.prompt))
	for _, turn := range history {
		msgs = append(msgs, turn)
	}
	msgs = append(msgs, message.NewMessage(message.RoleUser,
		fmt.Sprintf("Question: %s\nReturn JSON only.", queryText)))

	resp, err := s.llm.Generate(ctx, msgs)
	if err != nil {
		s.logger.Warn("strategy generation failed, failing closed to retrieve", "error", err)
		return retrieve
	}

	decision, err := decodeJSON[StrategyDecision](resp.Text())
	if err != nil {
		s.logger.Warn("strategy output invalid, failing closed to retrieve", "error", err)
		return retrieve
	}

	switch decision.Strategy {
	case StrategyDirect:
		if decision.DirectAnswer == "" {
			s.logger.Warn("direct strategy without answer, failing closed to retrieve")
			return retrieve
		}
		return *decision
	case StrategyRetrieve:
		decision.DirectAnswer = ""
		return *decision
	default:
		s.logger.Warn("unknown strategy, failing closed to retrieve", "strategy", decision.Strategy)
		return retrieve
	}
}
