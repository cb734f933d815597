package search

import (
	"strings"
	"time"

	"github.com/citeseek/citeseek/config"
	"github.com/citeseek/citeseek/tokenizer"
)

// Config controls behaviour of the search orchestrator and its stages.
// It groups prompt knobs and retrieval policy so callers can construct
// reproducible orchestrators from a single struct.
type Config struct {
	Name string // Logical name for tracing/logging

	MaxDocQueries int // Upper bound for planner-emitted document sub-queries
	MaxWebQueries int // Upper bound for planner-emitted web sub-queries

	// ScoreThreshold is the relevance floor for retained evidence. The
	// surrounding application historically used both 0.3 and 0.5; 0.35 is
	// the documented default here and deployments tune it per corpus.
	ScoreThreshold float32

	SubQueryTimeout time.Duration // Per sub-query deadline inside retrieval fan-out

	// RequireDocQueries forces space-mode plans to carry at least one doc
	// query unless the user explicitly restricted the search to the web.
	RequireDocQueries bool

	EvidenceTokenBudget int     // Token cap for the evidence block fed to synthesis
	StrategyTemperature float64 // Temperature applied to the strategy client
	DirectConfidence    float64 // Confidence reported for direct answers

	StrategyPrompt        string // System prompt for the strategy selector
	PlannerPrompt         string // System prompt for the query planner
	SynthesisPrompt       string // System prompt for the structured synthesizer
	StreamSynthesisPrompt string // System prompt for text-mode streamed synthesis
	NoEvidenceMessage     string // Answer emitted when retrieval finds nothing
	ErrorMessage          string // User-safe answer for the terminal error state

	tok tokenizer.Tokenizer // Token counter used for evidence budgeting
}

// Option customises the orchestrator configuration.
type Option func(*Config)

// WithName sets the logical orchestrator name used in logs.
func WithName(name string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(name) != "" {
			cfg.Name = name
		}
	}
}

// WithMaxDocQueries caps how many document sub-queries a plan may carry.
func WithMaxDocQueries(max int) Option {
	return func(cfg *Config) {
		if max > 0 {
			cfg.MaxDocQueries = max
		}
	}
}

// WithMaxWebQueries caps how many web sub-queries a plan may carry.
func WithMaxWebQueries(max int) Option {
	return func(cfg *Config) {
		if max >= 0 {
			cfg.MaxWebQueries = max
		}
	}
}

// WithScoreThreshold sets the relevance floor for retained evidence.
func WithScoreThreshold(threshold float32) Option {
	return func(cfg *Config) {
		if threshold >= 0 && threshold <= 1 {
			cfg.ScoreThreshold = threshold
		}
	}
}

// WithSubQueryTimeout bounds each retrieval sub-query.
func WithSubQueryTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.SubQueryTimeout = d
		}
	}
}

// WithRequireDocQueries toggles whether space-mode plans must include at
// least one document sub-query.
func WithRequireDocQueries(require bool) Option {
	return func(cfg *Config) {
		cfg.RequireDocQueries = require
	}
}

// WithEvidenceTokenBudget caps the evidence block size fed to synthesis.
func WithEvidenceTokenBudget(budget int) Option {
	return func(cfg *Config) {
		if budget > 0 {
			cfg.EvidenceTokenBudget = budget
		}
	}
}

// WithDirectConfidence sets the confidence reported for direct answers.
func WithDirectConfidence(confidence float64) Option {
	return func(cfg *Config) {
		if confidence >= 0 && confidence <= 1 {
			cfg.DirectConfidence = confidence
		}
	}
}

// WithStrategyPrompt sets the strategy selector system prompt.
func WithStrategyPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.StrategyPrompt = prompt
		}
	}
}

// WithPlannerPrompt sets the query planner system prompt.
func WithPlannerPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.PlannerPrompt = prompt
		}
	}
}

// WithSynthesisPrompt sets the structured synthesis system prompt.
func WithSynthesisPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.SynthesisPrompt = prompt
		}
	}
}

// WithNoEvidenceMessage customises the answer used when retrieval succeeds
// but finds nothing relevant.
func WithNoEvidenceMessage(msg string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(msg) != "" {
			cfg.NoEvidenceMessage = msg
		}
	}
}

// WithErrorMessage customises the user-safe answer of the terminal error state.
func WithErrorMessage(msg string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(msg) != "" {
			cfg.ErrorMessage = msg
		}
	}
}

// WithTokenizer plugs in an exact token counter (e.g. the tiktoken adapter)
// instead of the heuristic default.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(cfg *Config) {
		if t != nil {
			cfg.tok = t
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Name:                "search",
		MaxDocQueries:       5,
		MaxWebQueries:       2,
		ScoreThreshold:      0.35,
		SubQueryTimeout:     12 * time.Second,
		RequireDocQueries:   true,
		EvidenceTokenBudget: 6000,
		StrategyTemperature: 0.1,
		DirectConfidence:    0.8,
		StrategyPrompt: `You are the routing strategist for a retrieval-augmented answer engine. Decide whether the user's question can be answered confidently from general knowledge alone or requires searching their documents and the web.
Return strict JSON only: {"strategy":"direct|retrieve","answer":"..."}.
Rules:
- Choose "direct" only for stable general knowledge you are certain about, and put the complete answer in "answer".
- Choose "retrieve" for anything touching the user's own documents, recent events, specific figures, or whenever you are unsure; leave "answer" empty.
- Weigh the conversation history: follow-ups that refer to earlier retrieved material require "retrieve".
- Mirror the user's language in "answer" (Chinese input -> Chinese answer, otherwise English).`,
		PlannerPrompt: `You are the retrieval planner for a retrieval-augmented answer engine. Decompose the user's question into document-search and web-search queries.
Return strict JSON only: {"doc_queries":["..."],"web_queries":["..."]}.
Rules:
- Emit at most {{max_doc}} doc_queries and at most {{max_web}} web_queries.
- doc_queries search the user's private document spaces; web_queries go to a public search engine.
- If the user restricts the search to the web only, emit no doc_queries; if restricted to their documents only, emit no web_queries.
- Keep each query under 18 words, concrete and lexically diverse; drop duplicates and vague boilerplate.
- Write the queries in the user's language (Chinese stays Chinese, otherwise English).`,
		SynthesisPrompt: `You are the research writer for a retrieval-augmented answer engine. Answer the user's question using only the evidence supplied below.
Return strict JSON only: {"answer":"...","reasoning":"...","followup_suggestions":["..."],"strategy":"comprehensive|focused|hybrid","confidence":0.0}.
Rules:
- Every factual claim must be directly supported by the evidence and cited inline: "According to doc <source>" for document evidence, "Based on URL <url>" for web evidence.
- If the evidence does not answer the question, state explicitly that no relevant information was found; never guess.
- "reasoning" is a short note on how the evidence supports the answer.
- Provide 1 to 3 followup_suggestions the user might ask next.
- "strategy" is "hybrid" when documents and web both contributed, "comprehensive" for broad multi-source coverage, otherwise "focused".
- "confidence" in [0,1] reflects how well the evidence covers the question.
- Respond in the user's language (Chinese input -> Chinese output, otherwise English).`,
		StreamSynthesisPrompt: `You are the research writer for a retrieval-augmented answer engine. Answer the user's question in plain prose using only the evidence supplied below.
Rules:
- Every factual claim must be directly supported by the evidence and cited inline: "According to doc <source>" for document evidence, "Based on URL <url>" for web evidence.
- If the evidence does not answer the question, state explicitly that no relevant information was found; never guess.
- Respond in the user's language (Chinese input -> Chinese output, otherwise English).`,
		NoEvidenceMessage: "I could not find any relevant information in your documents or on the web for this question. Try rephrasing it or broadening the search scope.",
		ErrorMessage:      "I'm sorry, something went wrong while composing this answer. Please try again in a moment, or rephrase your question.",
		tok:               tokenizer.NewHeuristic(),
	}
}

func applyOptions(cfg *Config, opts []Option) *Config {
	if cfg == nil {
		cfg = defaultConfig()
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (cfg *Config) validate() error {
	v := config.NewValidator()
	v.RequireNonEmpty("name", cfg.Name)
	v.ValidateRange("maxDocQueries", cfg.MaxDocQueries, 1, 5)
	v.ValidateRange("maxWebQueries", cfg.MaxWebQueries, 0, 2)
	v.ValidateFloatRange("scoreThreshold", float64(cfg.ScoreThreshold), 0, 1)
	v.RequirePositive("subQueryTimeoutMs", int(cfg.SubQueryTimeout.Milliseconds()))
	v.RequirePositive("evidenceTokenBudget", cfg.EvidenceTokenBudget)
	v.ValidateFloatRange("directConfidence", cfg.DirectConfidence, 0, 1)
	v.RequireNonEmpty("noEvidenceMessage", cfg.NoEvidenceMessage)
	v.RequireNonEmpty("errorMessage", cfg.ErrorMessage)
	return v.Error()
}
