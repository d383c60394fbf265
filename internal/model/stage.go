package model

// ValidationResult is stage 1's structured output: whether the question is
// in scope for the configured data sources, which databases it touches,
// and (when out of scope) a canned response to return instead of
// proceeding further.
type ValidationResult struct {
	IsRelevant         bool     `json:"is_relevant"`
	RelevantDatabases  []string `json:"relevant_databases"`
	Reasoning          string   `json:"reasoning"`
	SuggestedResponse  string   `json:"suggested_response,omitempty"`
}

// DecisionAction is stage 2's chosen course of action.
type DecisionAction string

const (
	ActionAnswerDirectly   DecisionAction = "answer_directly"
	ActionAskClarification DecisionAction = "ask_clarification"
	ActionCreatePlan       DecisionAction = "create_plan"
	ActionReject           DecisionAction = "reject"
)

// DecisionResult is stage 2's structured output.
type DecisionResult struct {
	Action    DecisionAction `json:"action"`
	Reasoning string         `json:"reasoning"`
	Message   string         `json:"message,omitempty"`
}

// ClarificationQuestion is one question the planner needs answered before
// it can build a QueryPlan.
type ClarificationQuestion struct {
	Question string `json:"question"`
	Reason   string `json:"reason,omitempty"`
}

// PlanResult extends QueryPlan with the planner's clarification gate:
// when NeedsClarification is true, Steps is empty and the caller should
// surface ClarificationQuestions instead of executing anything.
type PlanResult struct {
	QueryPlan
	NeedsClarification    bool                    `json:"needs_clarification"`
	ClarificationQuestions []ClarificationQuestion `json:"clarification_questions,omitempty"`
	ExpectedOutput        string                  `json:"expected_output,omitempty"`
}

// SQLGenerationResult is the executor's per-attempt SQL generation output.
type SQLGenerationResult struct {
	SQL      string `json:"sql"`
	Database string `json:"database"`
}

// ErrorAnalysisResult is the executor's error-analysis output, deciding
// whether a failed attempt is worth retrying and, if so, how.
type ErrorAnalysisResult struct {
	IsRecoverable bool          `json:"is_recoverable"`
	ErrorType     ErrorCategory `json:"error_type"`
	Reasoning     string        `json:"reasoning"`
	SuggestedSQL  string        `json:"suggested_sql,omitempty"`
}

// SummaryResult is the final stage's structured output: the natural
// language answer derived from the plan's execution results.
type SummaryResult struct {
	Answer     string     `json:"answer"`
	Confidence Confidence `json:"confidence"`
}
