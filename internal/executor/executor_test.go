package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sqlorc/core/internal/model"
)

func TestStepSuccessSingleValue(t *testing.T) {
	step := model.PlanStep{StepNumber: 1}
	qr := model.QueryResult{OK: true, Columns: []string{"n"}, Rows: []map[string]any{{"n": int64(42)}}}

	result := stepSuccess(step, "SELECT COUNT(*) AS n FROM t", qr, 1)

	assert.True(t, result.Success)
	assert.NotNil(t, result.ResultValue)
	assert.Equal(t, "42", *result.ResultValue)
	assert.Nil(t, result.ResultData)
}

func TestStepSuccessDataset(t *testing.T) {
	step := model.PlanStep{StepNumber: 1}
	qr := model.QueryResult{OK: true, Columns: []string{"id", "name"}, Rows: []map[string]any{
		{"id": 1, "name": "ann"}, {"id": 2, "name": "bo"},
	}}

	result := stepSuccess(step, "SELECT id, name FROM t", qr, 2)

	assert.True(t, result.Success)
	assert.Nil(t, result.ResultValue)
	assert.Len(t, result.ResultData, 2)
	assert.Equal(t, 2, result.Attempts)
}

func TestFormatPreviousResultsEmpty(t *testing.T) {
	assert.Equal(t, "No previous results available.", formatPreviousResults(nil))
}

func TestFormatPreviousResultsIncludesErrorAndSuccess(t *testing.T) {
	val := "7"
	results := []model.StepResult{
		{StepNumber: 1, Success: true, ResultValue: &val},
		{StepNumber: 2, Success: false, Error: "syntax error"},
	}
	out := formatPreviousResults(results)
	assert.Contains(t, out, "Step 1:")
	assert.Contains(t, out, "Result: 7")
	assert.Contains(t, out, "Step 2:")
	assert.Contains(t, out, "Error: syntax error")
}

func TestFormatLastAttemptFirstAttempt(t *testing.T) {
	assert.Equal(t, "This is the first attempt.", formatLastAttempt(nil))
}

func TestFormatLastAttemptRenders(t *testing.T) {
	a := &attempt{sql: "SELECT 1", err: "boom"}
	out := formatLastAttempt(a)
	assert.Contains(t, out, "SELECT 1")
	assert.Contains(t, out, "boom")
}

func TestFormatExecutionResultsTableAndFailure(t *testing.T) {
	plan := model.QueryPlan{Steps: []model.PlanStep{
		{StepNumber: 1, Description: "count customers"},
		{StepNumber: 2, Description: "list accounts"},
	}}
	results := []model.StepResult{
		{StepNumber: 1, Success: true, FinalSQL: "SELECT 1", ResultData: []map[string]any{{"id": 1}}},
		{StepNumber: 2, Success: false, Error: "connection refused"},
	}

	out := formatExecutionResults(plan, results)
	assert.Contains(t, out, "count customers")
	assert.Contains(t, out, "Status: Success")
	assert.Contains(t, out, "Status: Failed")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "SELECT 1")
}

func TestMaxRetryAttemptsIsFive(t *testing.T) {
	assert.Equal(t, 5, MaxRetryAttempts)
}
