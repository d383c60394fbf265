package model

// Operation enumerates the kind of work a PlanStep performs.
type Operation string

const (
	OpLookup      Operation = "lookup"
	OpAggregation Operation = "aggregation"
	OpJoin        Operation = "join"
	OpFilter      Operation = "filter"
	OpSort        Operation = "sort"
	OpOther       Operation = "other"
)

// QueryPlan is an ordered list of PlanSteps produced by the planning stage.
// Step numbers are 1..N contiguous; every db id referenced by a step must
// exist in the SchemaCatalog — both are validated by internal/orchestrator
// before the plan is accepted.
type QueryPlan struct {
	Summary  string     `json:"summary"`
	Language string     `json:"language"`
	Steps    []PlanStep `json:"steps"`
}

// PlanStep is one unit of work in a QueryPlan. Databases must all belong to
// the same datasource — checked by datasource.Manager.ValidateScope before
// execution — and DependsOnSteps must reference strictly lower step numbers.
type PlanStep struct {
	StepNumber     int       `json:"step_number"`
	Description    string    `json:"description"`
	Databases      []string  `json:"databases"`
	Tables         []string  `json:"tables"`
	Operation      Operation `json:"operation"`
	DependsOnSteps []int     `json:"depends_on_steps,omitempty"`
}

// ErrorCategory classifies a SQL execution failure. Syntax and schema
// errors are typically recoverable by rewriting the statement; permission
// and connection errors typically are not. The executor's retry decision
// rests on the error analyzer's IsRecoverable flag, not on the category.
type ErrorCategory string

const (
	ErrCategorySyntax     ErrorCategory = "syntax"
	ErrCategorySchema     ErrorCategory = "schema"
	ErrCategoryPermission ErrorCategory = "permission"
	ErrCategoryConnection ErrorCategory = "connection"
	ErrCategoryData       ErrorCategory = "data"
	ErrCategoryOther      ErrorCategory = "other"
)

// StepResult is the outcome of running one PlanStep through the agentic
// retry loop in internal/executor.
type StepResult struct {
	StepNumber  int            `json:"step_number"`
	Success     bool           `json:"success"`
	FinalSQL    string         `json:"final_sql"`
	ResultValue *string        `json:"result_value,omitempty"`
	ResultData  []map[string]any `json:"result_data,omitempty"`
	Error       string         `json:"error,omitempty"`
	Category    ErrorCategory  `json:"category,omitempty"`
	Attempts    int            `json:"attempts"`
}

// Confidence is the summarizer's self-reported reliability of an answer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)
