package search

import (
	"fmt"

	cserrors "github.com/citeseek/citeseek/errors"
	"github.com/citeseek/citeseek/message"
)

// Mode scopes a query to the open web, the user's document spaces, or both.
type Mode string

const (
	// ModeGeneral answers from general knowledge and the open web.
	ModeGeneral Mode = "general"
	// ModeSpace grounds the answer in the user's document spaces, optionally
	// supplemented by web results.
	ModeSpace Mode = "space"
)

// Query is a single incoming question with its conversational context and
// retrieval scope. History is read-only; the core never mutates it.
type Query struct {
	Text     string             `json:"text"`
	Mode     Mode               `json:"mode"`
	SpaceIDs []string           `json:"space_ids,omitempty"` // empty in space mode means "all accessible"
	FileIDs  []string           `json:"file_ids,omitempty"`
	History  []*message.Message `json:"history,omitempty"`
	UserTime string             `json:"user_time,omitempty"`
}

// Strategy is the routing decision for a query.
type Strategy string

const (
	StrategyDirect   Strategy = "direct"
	StrategyRetrieve Strategy = "retrieve"
)

// StrategyDecision captures whether the query is answerable without
// retrieval. DirectAnswer is present iff Strategy is StrategyDirect.
type StrategyDecision struct {
	Strategy     Strategy `json:"strategy"`
	DirectAnswer string   `json:"answer,omitempty"`
}

// RetrievalPlan is the bounded set of sub-queries emitted by the planner.
type RetrievalPlan struct {
	DocQueries []string `json:"doc_queries"`
	WebQueries []string `json:"web_queries"`
}

// SourceKind distinguishes document evidence from web evidence.
type SourceKind string

const (
	SourceDocument SourceKind = "document"
	SourceWeb      SourceKind = "web"
)

// Evidence is one retrieved chunk or snippet that passed the relevance
// threshold. SourceID is a filename for documents and a URL for web results.
type Evidence struct {
	SourceKind SourceKind `json:"source_kind"`
	SourceID   string     `json:"source_id"`
	Content    string     `json:"content"`
	Score      float32    `json:"score"`
	SpaceID    string     `json:"space_id,omitempty"`
}

// EvidenceSet holds the evidence collected for one query. Attempts and
// Failures count sub-queries so downstream stages can tell "searched and
// found nothing" apart from "every retrieval call failed".
type EvidenceSet struct {
	DocResults []Evidence
	WebResults []Evidence

	Attempts int
	Failures int
}

// Empty reports whether no evidence survived retrieval.
func (s *EvidenceSet) Empty() bool {
	return s == nil || (len(s.DocResults) == 0 && len(s.WebResults) == 0)
}

// Len returns the total number of evidence items.
func (s *EvidenceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.DocResults) + len(s.WebResults)
}

// AllFailed reports whether every dispatched sub-query failed.
func (s *EvidenceSet) AllFailed() bool {
	return s != nil && s.Attempts > 0 && s.Failures == s.Attempts
}

// AnswerStrategy labels how the final answer was composed.
type AnswerStrategy string

const (
	AnswerComprehensive AnswerStrategy = "comprehensive"
	AnswerFocused       AnswerStrategy = "focused"
	AnswerHybrid        AnswerStrategy = "hybrid"
	AnswerError         AnswerStrategy = "error"
)

// Result is the structured answer returned to the caller. It is always
// well-formed: on unrecoverable faults Strategy is AnswerError with
// Confidence 0, never a raw error.
type Result struct {
	Answer              string         `json:"answer"`
	Reasoning           string         `json:"reasoning"`
	FollowupSuggestions []string       `json:"followup_suggestions"`
	Strategy            AnswerStrategy `json:"strategy"`
	Confidence          float64        `json:"confidence"`
}

// validate enforces the synthesis output schema on LLM-produced results.
func (r *Result) validate() error {
	if r == nil {
		return fmt.Errorf("%w: result is nil", cserrors.ErrSchemaValidation)
	}
	if r.Answer == "" {
		return fmt.Errorf("%w: answer cannot be empty", cserrors.ErrSchemaValidation)
	}
	switch r.Strategy {
	case AnswerComprehensive, AnswerFocused, AnswerHybrid:
	default:
		return fmt.Errorf("%w: strategy must be one of comprehensive, focused, hybrid; got %q", cserrors.ErrSchemaValidation, r.Strategy)
	}
	if n := len(r.FollowupSuggestions); n < 1 || n > 3 {
		return fmt.Errorf("%w: followup_suggestions must contain 1 to 3 entries, got %d", cserrors.ErrSchemaValidation, n)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be within [0,1], got %v", cserrors.ErrSchemaValidation, r.Confidence)
	}
	return nil
}
