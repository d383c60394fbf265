// Package orchestrator implements the five-stage question-answering
// pipeline, grounded on
// original_source/backend/app/llm/orchestrator.py's QueryOrchestrator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sqlorc/core/internal/catalog"
	"github.com/sqlorc/core/internal/datasource"
	"github.com/sqlorc/core/internal/executor"
	"github.com/sqlorc/core/internal/llm"
	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/prompts"
	"github.com/sqlorc/core/internal/session"
)

var tracer = otel.Tracer("sqlorc/orchestrator")

// Tag is the outcome category of one ProcessQuestion turn.
type Tag string

const (
	TagRejected        Tag = "rejected"
	TagClarification   Tag = "clarification"
	TagAnswerDirect    Tag = "answer_direct"
	TagAnswer          Tag = "answer"
	TagPlanError       Tag = "plan_error"
	TagExecutionError  Tag = "execution_error"
)

// Result is ProcessQuestion's return value. It never carries an error for a
// domain-level outcome — those are encoded in Tag. A non-nil error from
// ProcessQuestion itself means an infrastructure failure (store unreachable,
// context canceled), not a rejected or unanswerable question.
type Result struct {
	Tag         Tag
	Message     string
	Plan        *model.QueryPlan
	StepResults []model.StepResult
	// UsedDatabases is the subset of the thread's running used-db set this
	// turn actually touched (validation's RelevantDatabases), satisfying
	// the invariant that an answer's data_sources_used is a subset of the
	// thread's used-db set.
	UsedDatabases []string
	// Confidence is only meaningful when Tag is TagAnswer; it carries the
	// summarize stage's self-reported reliability.
	Confidence model.Confidence
	TokenUsage llm.Usage
	DebugInfo  []llm.DebugRecord
}

// Deps bundles the Orchestrator's collaborators.
type Deps struct {
	Catalog     *catalog.Catalog
	Prompts     *prompts.Registry
	LLM         llm.Completer
	Datasources *datasource.Manager
	Sessions    session.Store
	Executor    *executor.Executor
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogger overrides the default logger, slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTurnDeadline bounds one ProcessQuestion call's total wall time.
// Zero (the default) means no deadline beyond the caller's context.
func WithTurnDeadline(d time.Duration) Option {
	return func(o *Orchestrator) { o.turnDeadline = d }
}

// defaultHistoryWindow is the number of trailing user/server message pairs
// included as prompt context, used when WithHistoryWindow is not given.
const defaultHistoryWindow = 10

// WithHistoryWindow overrides defaultHistoryWindow, the number of trailing
// user/server message pairs included as prompt context in each stage.
func WithHistoryWindow(pairs int) Option {
	return func(o *Orchestrator) { o.historyWindow = pairs }
}

// Orchestrator runs the five-stage pipeline for one thread at a time.
// A single instance is shared across threads and concurrent requests — all
// per-turn state lives in ProcessQuestion's local variables.
type Orchestrator struct {
	catalog     *catalog.Catalog
	prompts     *prompts.Registry
	llm         llm.Completer
	datasources *datasource.Manager
	sessions    session.Store
	executor    *executor.Executor

	logger        *slog.Logger
	turnDeadline  time.Duration
	historyWindow int
}

// New constructs an Orchestrator from deps, grounded on akashi.go's App
// construction and options.go's functional-options idiom.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:     deps.Catalog,
		prompts:     deps.Prompts,
		llm:         deps.LLM,
		datasources: deps.Datasources,
		sessions:    deps.Sessions,
		executor:      deps.Executor,
		logger:        slog.Default(),
		historyWindow: defaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessQuestion runs question through the five-stage pipeline for
// threadID, persisting token usage and used databases as it goes. It does
// not append the user's question or its own answer to the thread's message
// history — that's the caller's job, so a transport layer can decide how
// (and whether) to record the turn around the call.
func (o *Orchestrator) ProcessQuestion(ctx context.Context, threadID uuid.UUID, question string) (Result, error) {
	if o.turnDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.turnDeadline)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "ProcessQuestion",
		trace.WithAttributes(attribute.String("sqlorc.thread_id", threadID.String())),
	)
	defer span.End()

	history, err := o.sessions.GetMessages(ctx, threadID)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: load history: %w", err)
	}

	var total llm.Usage

	validation, usage, err := o.validateQuestion(ctx, question, history)
	total = total.Add(usage)
	if err != nil {
		o.persistTurn(ctx, threadID, total)
		return Result{}, fmt.Errorf("orchestrator: validate: %w", err)
	}

	if !validation.IsRelevant {
		msg := validation.SuggestedResponse
		if msg == "" {
			msg = "I can only help with queries about the configured data sources. Your question appears to be outside this scope."
		}
		o.persistTurn(ctx, threadID, total)
		return Result{Tag: TagRejected, Message: msg, UsedDatabases: validation.RelevantDatabases, TokenUsage: total, DebugInfo: o.llm.DrainDebugRecords()}, nil
	}

	if bad := o.unknownDatabases(validation.RelevantDatabases); len(bad) > 0 {
		o.persistTurn(ctx, threadID, total)
		msg := fmt.Sprintf("validator returned unknown database id(s): %s", strings.Join(bad, ", "))
		return Result{Tag: TagRejected, Message: msg, TokenUsage: total, DebugInfo: o.llm.DrainDebugRecords()}, nil
	}

	if len(validation.RelevantDatabases) > 0 {
		if err := o.sessions.AddUsedDatabases(ctx, threadID, validation.RelevantDatabases); err != nil {
			o.logger.Warn("orchestrator: record used databases", "thread_id", threadID, "error", err)
		}
	}

	decision, usage, err := o.decideAction(ctx, question, validation, history)
	total = total.Add(usage)
	if err != nil {
		o.persistTurn(ctx, threadID, total)
		return Result{}, fmt.Errorf("orchestrator: decide: %w", err)
	}

	switch decision.Action {
	case model.ActionReject:
		o.persistTurn(ctx, threadID, total)
		return Result{Tag: TagRejected, Message: decision.Message, UsedDatabases: validation.RelevantDatabases, TokenUsage: total, DebugInfo: o.llm.DrainDebugRecords()}, nil

	case model.ActionAnswerDirectly:
		o.persistTurn(ctx, threadID, total)
		return Result{Tag: TagAnswerDirect, Message: decision.Message, UsedDatabases: validation.RelevantDatabases, TokenUsage: total, DebugInfo: o.llm.DrainDebugRecords()}, nil

	case model.ActionAskClarification:
		o.persistTurn(ctx, threadID, total)
		return Result{Tag: TagClarification, Message: decision.Message, UsedDatabases: validation.RelevantDatabases, TokenUsage: total, DebugInfo: o.llm.DrainDebugRecords()}, nil

	case model.ActionCreatePlan:
		plan, usage, err := o.createPlan(ctx, question, validation, history)
		total = total.Add(usage)
		if err != nil {
			o.persistTurn(ctx, threadID, total)
			return Result{}, fmt.Errorf("orchestrator: plan: %w", err)
		}

		if plan.NeedsClarification {
			o.persistTurn(ctx, threadID, total)
			return Result{Tag: TagClarification, Message: formatClarificationQuestions(plan.ClarificationQuestions), UsedDatabases: validation.RelevantDatabases, TokenUsage: total, DebugInfo: o.llm.DrainDebugRecords()}, nil
		}

		if err := o.validatePlan(plan.QueryPlan); err != nil {
			o.persistTurn(ctx, threadID, total)
			return Result{Tag: TagPlanError, Message: err.Error(), UsedDatabases: validation.RelevantDatabases, TokenUsage: total, DebugInfo: o.llm.DrainDebugRecords()}, nil
		}

		results, usage, err := o.executor.ExecutePlan(ctx, question, plan.QueryPlan)
		total = total.Add(usage)
		if err != nil {
			o.persistTurn(ctx, threadID, total)
			return Result{}, fmt.Errorf("orchestrator: execute: %w", err)
		}

		if failed := lastFailed(results); failed != nil {
			o.persistTurn(ctx, threadID, total)
			return Result{
				Tag: TagExecutionError, Message: failed.Error, Plan: &plan.QueryPlan,
				StepResults: results, UsedDatabases: validation.RelevantDatabases, TokenUsage: total, DebugInfo: o.llm.DrainDebugRecords(),
			}, nil
		}

		summary, usage, err := o.executor.GenerateSummary(ctx, question, plan.QueryPlan, results)
		total = total.Add(usage)
		if err != nil {
			o.persistTurn(ctx, threadID, total)
			return Result{}, fmt.Errorf("orchestrator: summarize: %w", err)
		}

		o.persistTurn(ctx, threadID, total)
		return Result{
			Tag: TagAnswer, Message: summary.Answer, Plan: &plan.QueryPlan,
			StepResults: results, UsedDatabases: validation.RelevantDatabases,
			Confidence: summary.Confidence, TokenUsage: total, DebugInfo: o.llm.DrainDebugRecords(),
		}, nil
	}

	o.persistTurn(ctx, threadID, total)
	return Result{Tag: TagPlanError, Message: "unrecognized pipeline decision", UsedDatabases: validation.RelevantDatabases, TokenUsage: total, DebugInfo: o.llm.DrainDebugRecords()}, nil
}

func (o *Orchestrator) persistTurn(ctx context.Context, threadID uuid.UUID, usage llm.Usage) {
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		return
	}
	delta := model.TokenUsage{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.InputTokens + usage.OutputTokens,
		CallCount:    1,
	}
	if err := o.sessions.AddTokenUsage(ctx, threadID, delta); err != nil {
		o.logger.Warn("orchestrator: record token usage", "thread_id", threadID, "error", err)
	}
}

func (o *Orchestrator) validateQuestion(ctx context.Context, question string, history []model.Message) (model.ValidationResult, llm.Usage, error) {
	ctx, span := tracer.Start(ctx, "validate")
	defer span.End()

	tmpl, err := o.prompts.Load("validate_question")
	if err != nil {
		return model.ValidationResult{}, llm.Usage{}, err
	}
	vars := map[string]string{
		"question":             question,
		"data_sources":          o.formatDataSources(),
		"conversation_history":  formatConversationHistory(history, o.historyWindow),
	}
	result, usage, err := llm.CompleteStructured[model.ValidationResult](ctx, o.llm, tmpl, vars)
	span.SetAttributes(attribute.Bool("sqlorc.is_relevant", result.IsRelevant))
	return result, usage, err
}

func (o *Orchestrator) decideAction(ctx context.Context, question string, validation model.ValidationResult, history []model.Message) (model.DecisionResult, llm.Usage, error) {
	ctx, span := tracer.Start(ctx, "decide")
	defer span.End()

	tmpl, err := o.prompts.Load("decide_action")
	if err != nil {
		return model.DecisionResult{}, llm.Usage{}, err
	}
	vars := map[string]string{
		"question":              question,
		"is_relevant":           fmt.Sprintf("%t", validation.IsRelevant),
		"relevant_databases":    strings.Join(validation.RelevantDatabases, ", "),
		"validation_reasoning":  validation.Reasoning,
		"data_sources":          o.formatDataSources(),
		"conversation_history":  formatConversationHistory(history, o.historyWindow),
	}
	result, usage, err := llm.CompleteStructured[model.DecisionResult](ctx, o.llm, tmpl, vars)
	span.SetAttributes(attribute.String("sqlorc.action", string(result.Action)))
	return result, usage, err
}

func (o *Orchestrator) createPlan(ctx context.Context, question string, validation model.ValidationResult, history []model.Message) (model.PlanResult, llm.Usage, error) {
	ctx, span := tracer.Start(ctx, "plan")
	defer span.End()

	tmpl, err := o.prompts.Load("create_plan")
	if err != nil {
		return model.PlanResult{}, llm.Usage{}, err
	}
	vars := map[string]string{
		"question":              question,
		"relevant_databases":    strings.Join(validation.RelevantDatabases, ", "),
		"database_schemas":       o.catalog.FormatForPrompt(validation.RelevantDatabases, model.ModePlanning),
		"conversation_history":   formatConversationHistory(history, o.historyWindow),
	}
	result, usage, err := llm.CompleteStructured[model.PlanResult](ctx, o.llm, tmpl, vars)
	span.SetAttributes(attribute.Int("sqlorc.step_count", len(result.Steps)))
	return result, usage, err
}

func (o *Orchestrator) formatDataSources() string {
	var b strings.Builder
	for _, s := range o.catalog.ListSources() {
		fmt.Fprintf(&b, "- %s (%s): %s\n", s.Name, s.DBID, s.Description)
	}
	return b.String()
}

// formatConversationHistory renders the last pairs user/server message pairs
// for prompt context. A pair is two messages (one user, one server), so the
// window keeps at most 2*pairs trailing messages.
func formatConversationHistory(history []model.Message, pairs int) string {
	if len(history) == 0 {
		return "No previous conversation."
	}
	limit := pairs * 2
	start := 0
	if limit > 0 && len(history) > limit {
		start = len(history) - limit
	}
	var b strings.Builder
	for _, m := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(m.Sender)), m.Content)
	}
	return b.String()
}

func formatClarificationQuestions(questions []model.ClarificationQuestion) string {
	var b strings.Builder
	b.WriteString("I need some clarification to answer your question:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "\n%d. %s", i+1, q.Question)
	}
	return b.String()
}

// unknownDatabases returns the subset of dbIDs absent from the catalog.
// validateQuestion's RelevantDatabases must come entirely from the
// catalog — a hallucinated id here is a validator error, surfaced as a
// rejection rather than left to fail later at plan acceptance or, worse,
// never checked at all if no plan step happens to reference it.
func (o *Orchestrator) unknownDatabases(dbIDs []string) []string {
	var bad []string
	for _, id := range dbIDs {
		if !o.catalog.HasDatabase(id) {
			bad = append(bad, id)
		}
	}
	return bad
}

// validatePlan enforces plan acceptance: a zero-step plan is rejected; step
// numbers run 1..N contiguous; depends_on_steps references only strictly
// lower step numbers; every step's databases stay within one datasource
// (cross-database joins are rejected per step, not across the whole turn);
// and every referenced table exists in one of that step's databases.
func (o *Orchestrator) validatePlan(plan model.QueryPlan) error {
	if len(plan.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	for i, step := range plan.Steps {
		want := i + 1
		if step.StepNumber != want {
			return fmt.Errorf("step %d: expected step_number %d, got %d", i+1, want, step.StepNumber)
		}
		for _, dep := range step.DependsOnSteps {
			if dep >= step.StepNumber {
				return fmt.Errorf("step %d: depends_on_steps must reference a strictly lower step number, got %d", step.StepNumber, dep)
			}
		}
		scope := o.datasources.ValidateScope(step.Databases)
		if !scope.OK {
			return fmt.Errorf("step %d: %s", step.StepNumber, scope.Error)
		}
		for _, table := range step.Tables {
			found := false
			for _, dbID := range step.Databases {
				if o.catalog.HasTable(dbID, table) {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("step %d: table %q not found in databases %v", step.StepNumber, table, step.Databases)
			}
		}
	}
	return nil
}

func lastFailed(results []model.StepResult) *model.StepResult {
	if len(results) == 0 {
		return nil
	}
	last := results[len(results)-1]
	if !last.Success {
		return &last
	}
	return nil
}
