// Package executor runs a QueryPlan's steps with agentic SQL generation and
// error recovery, grounded on
// original_source/backend/app/llm/executor.py's StepExecutor.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlorc/core/internal/catalog"
	"github.com/sqlorc/core/internal/datasource"
	"github.com/sqlorc/core/internal/llm"
	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/prompts"
)

// MaxRetryAttempts bounds the agentic generate/execute/analyze loop per
// step. Fixed at 5 total attempts, not per error category.
const MaxRetryAttempts = 5

// Executor runs one QueryPlan's steps against a datasource.Manager, using
// prompts loaded from a prompts.Registry and structured completions from an
// llm.Client.
type Executor struct {
	client      llm.Completer
	prompts     *prompts.Registry
	datasources *datasource.Manager
	catalog     *catalog.Catalog
}

// New constructs an Executor from its dependencies.
func New(client llm.Completer, registry *prompts.Registry, datasources *datasource.Manager, cat *catalog.Catalog) *Executor {
	return &Executor{client: client, prompts: registry, datasources: datasources, catalog: cat}
}

type attempt struct {
	sql string
	err string
}

// ExecutePlan runs every step of plan in order, stopping at the first
// failed step — matching execute_plan's early-exit behavior. It returns the
// results produced so far (a failed step's result is included) and the
// total token usage spent across every LLM call made along the way.
func (e *Executor) ExecutePlan(ctx context.Context, question string, plan model.QueryPlan) ([]model.StepResult, llm.Usage, error) {
	var results []model.StepResult
	var total llm.Usage

	for _, step := range plan.Steps {
		result, usage, err := e.executeStepWithRetry(ctx, question, step, results)
		total = total.Add(usage)
		if err != nil {
			return results, total, err
		}
		results = append(results, result)
		if !result.Success {
			break
		}
	}
	return results, total, nil
}

func (e *Executor) executeStepWithRetry(ctx context.Context, question string, step model.PlanStep, previous []model.StepResult) (model.StepResult, llm.Usage, error) {
	var total llm.Usage
	var attempts []attempt
	var currentSQL, database string

	for attemptNum := 1; attemptNum <= MaxRetryAttempts; attemptNum++ {
		if attemptNum == 1 {
			gen, usage, err := e.generateSQL(ctx, question, step, previous)
			total = total.Add(usage)
			if err != nil {
				return model.StepResult{}, total, fmt.Errorf("executor: generate sql: %w", err)
			}
			currentSQL, database = gen.SQL, gen.Database
		}

		queryResult, err := e.datasources.Execute(ctx, currentSQL, database)
		if err != nil {
			return model.StepResult{}, total, fmt.Errorf("executor: execute sql: %w", err)
		}

		if queryResult.OK {
			return stepSuccess(step, currentSQL, queryResult, attemptNum), total, nil
		}

		attempts = append(attempts, attempt{sql: currentSQL, err: queryResult.Error})

		var last *attempt
		if len(attempts) >= 2 {
			last = &attempts[len(attempts)-2]
		}
		analysis, usage, err := e.analyzeError(ctx, question, step, currentSQL, queryResult.Error, attemptNum, last)
		total = total.Add(usage)
		if err != nil {
			return model.StepResult{}, total, fmt.Errorf("executor: analyze error: %w", err)
		}

		if !analysis.IsRecoverable {
			return model.StepResult{
				StepNumber: step.StepNumber,
				Success:    false,
				FinalSQL:   currentSQL,
				Error:      fmt.Sprintf("non-recoverable error (%s): %s", analysis.ErrorType, analysis.Reasoning),
				Category:   analysis.ErrorType,
				Attempts:   attemptNum,
			}, total, nil
		}
		if analysis.SuggestedSQL == "" {
			return model.StepResult{
				StepNumber: step.StepNumber,
				Success:    false,
				FinalSQL:   currentSQL,
				Error:      fmt.Sprintf("error analysis declared recoverable but provided no corrected sql: %s", analysis.Reasoning),
				Category:   analysis.ErrorType,
				Attempts:   attemptNum,
			}, total, nil
		}

		// An analyzer that marks the final attempt recoverable still gets no
		// 6th try — MaxRetryAttempts bounds total attempts, not recoverable
		// ones.
		if attemptNum == MaxRetryAttempts {
			return model.StepResult{
				StepNumber: step.StepNumber,
				Success:    false,
				FinalSQL:   currentSQL,
				Error:      fmt.Sprintf("failed after %d attempts: %s", MaxRetryAttempts, queryResult.Error),
				Category:   analysis.ErrorType,
				Attempts:   attemptNum,
			}, total, nil
		}
		currentSQL = analysis.SuggestedSQL
	}

	return model.StepResult{
		StepNumber: step.StepNumber,
		Success:    false,
		Error:      "maximum retry attempts exceeded",
		Attempts:   MaxRetryAttempts,
	}, total, nil
}

func stepSuccess(step model.PlanStep, sql string, qr model.QueryResult, attempts int) model.StepResult {
	result := model.StepResult{
		StepNumber: step.StepNumber,
		Success:    true,
		FinalSQL:   sql,
		Attempts:   attempts,
	}
	if len(qr.Rows) == 1 && len(qr.Columns) == 1 {
		v := fmt.Sprintf("%v", qr.Rows[0][qr.Columns[0]])
		result.ResultValue = &v
	} else if len(qr.Rows) > 0 {
		result.ResultData = qr.Rows
	}
	return result
}

func (e *Executor) generateSQL(ctx context.Context, question string, step model.PlanStep, previous []model.StepResult) (model.SQLGenerationResult, llm.Usage, error) {
	tmpl, err := e.prompts.Load("generate_sql")
	if err != nil {
		return model.SQLGenerationResult{}, llm.Usage{}, err
	}

	schemas := e.catalog.FormatForPrompt(step.Databases, model.ModeGeneration)
	vars := map[string]string{
		"original_question": question,
		"step_number":       fmt.Sprintf("%d", step.StepNumber),
		"step_description":  step.Description,
		"step_databases":    strings.Join(step.Databases, ", "),
		"step_tables":       strings.Join(step.Tables, ", "),
		"step_operation":    string(step.Operation),
		"previous_results":  formatPreviousResults(previous),
		"database_schemas":  schemas,
	}
	return llm.CompleteStructured[model.SQLGenerationResult](ctx, e.client, tmpl, vars)
}

func (e *Executor) analyzeError(ctx context.Context, question string, step model.PlanStep, failedSQL, errMsg string, attemptNum int, last *attempt) (model.ErrorAnalysisResult, llm.Usage, error) {
	tmpl, err := e.prompts.Load("analyze_error")
	if err != nil {
		return model.ErrorAnalysisResult{}, llm.Usage{}, err
	}

	schemas := e.catalog.FormatForPrompt(step.Databases, model.ModeGeneration)
	vars := map[string]string{
		"original_question": question,
		"step_number":       fmt.Sprintf("%d", step.StepNumber),
		"step_description":  step.Description,
		"failed_sql":        failedSQL,
		"error_message":     errMsg,
		"attempt_number":    fmt.Sprintf("%d", attemptNum),
		"previous_attempts": formatLastAttempt(last),
		"database_schemas":  schemas,
	}
	return llm.CompleteStructured[model.ErrorAnalysisResult](ctx, e.client, tmpl, vars)
}

// GenerateSummary produces the final natural-language answer from a plan's
// execution results. Called once per turn, after ExecutePlan completes (or
// stops early on a failed step).
func (e *Executor) GenerateSummary(ctx context.Context, question string, plan model.QueryPlan, results []model.StepResult) (model.SummaryResult, llm.Usage, error) {
	tmpl, err := e.prompts.Load("write_summary")
	if err != nil {
		return model.SummaryResult{}, llm.Usage{}, err
	}

	vars := map[string]string{
		"original_question": question,
		"plan_summary":      plan.Summary,
		"execution_results": formatExecutionResults(plan, results),
	}
	return llm.CompleteStructured[model.SummaryResult](ctx, e.client, tmpl, vars)
}

func formatPreviousResults(results []model.StepResult) string {
	if len(results) == 0 {
		return "No previous results available."
	}
	var b strings.Builder
	b.WriteString("Previous step results:")
	for _, r := range results {
		fmt.Fprintf(&b, "\n\nStep %d:\nSuccess: %t\n", r.StepNumber, r.Success)
		if !r.Success {
			fmt.Fprintf(&b, "Error: %s", r.Error)
			continue
		}
		switch {
		case r.ResultValue != nil:
			fmt.Fprintf(&b, "Result: %s", *r.ResultValue)
		case len(r.ResultData) > 0:
			fmt.Fprintf(&b, "Rows returned: %d\nSample data:\n", len(r.ResultData))
			for i, row := range r.ResultData {
				if i >= 3 {
					fmt.Fprintf(&b, "  ... and %d more rows\n", len(r.ResultData)-3)
					break
				}
				fmt.Fprintf(&b, "  Row %d: %v\n", i+1, row)
			}
		}
	}
	return b.String()
}

func formatLastAttempt(a *attempt) string {
	if a == nil {
		return "This is the first attempt."
	}
	return fmt.Sprintf("Previous SQL:\n%s\n\nPrevious Error:\n%s", a.sql, a.err)
}

func formatExecutionResults(plan model.QueryPlan, results []model.StepResult) string {
	byStep := make(map[int]model.PlanStep, len(plan.Steps))
	for _, s := range plan.Steps {
		byStep[s.StepNumber] = s
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "\n**Step %d**\n", r.StepNumber)
		if s, ok := byStep[r.StepNumber]; ok {
			fmt.Fprintf(&b, "Description: %s\n", s.Description)
		}
		status := "Failed"
		if r.Success {
			status = "Success"
		}
		fmt.Fprintf(&b, "Status: %s\n", status)
		if !r.Success {
			fmt.Fprintf(&b, "Error: %s\n", r.Error)
			continue
		}
		switch {
		case r.ResultValue != nil:
			fmt.Fprintf(&b, "Result: %s\n", *r.ResultValue)
		case len(r.ResultData) > 0:
			fmt.Fprintf(&b, "Rows returned: %d\n", len(r.ResultData))
			cols := columnsOf(r.ResultData[0])
			fmt.Fprintf(&b, "| %s |\n", strings.Join(cols, " | "))
			fmt.Fprintf(&b, "|%s|\n", strings.Repeat("---|", len(cols)))
			for i, row := range r.ResultData {
				if i >= 10 {
					fmt.Fprintf(&b, "... and %d more rows\n", len(r.ResultData)-10)
					break
				}
				vals := make([]string, len(cols))
				for j, c := range cols {
					vals[j] = fmt.Sprintf("%v", row[c])
				}
				fmt.Fprintf(&b, "| %s |\n", strings.Join(vals, " | "))
			}
		}
		fmt.Fprintf(&b, "SQL executed:\n```sql\n%s\n```\n", r.FinalSQL)
	}
	return b.String()
}

func columnsOf(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	return cols
}
