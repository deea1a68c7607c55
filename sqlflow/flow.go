package sqlflow

import (
	"context"
	"strings"

	"github.com/praxisworks/tabula/llm"
	"github.com/praxisworks/tabula/o11y"
	"github.com/praxisworks/tabula/schema"
)

// Flow is the SQL-generation sub-machine: generate, check-run, correct in a
// bounded loop, optimize with a rollback point, recheck only when the
// optimizer changed something, then verify.
type Flow struct {
	agents     agents
	checker    Checker
	executor   Executor
	maxRetries int
	logger     *o11y.Logger
}

// NewFlow creates the sub-flow. maxRetries bounds the correction loop.
func NewFlow(chat llm.ChatModel, executor Executor, maxRetries int, logger *o11y.Logger) *Flow {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if logger == nil {
		logger = o11y.NewLogger()
	}
	return &Flow{
		agents:     agents{chat: chat},
		executor:   executor,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// checkAndRun validates statically and, only when the statement is valid and
// safe, executes it.
func (f *Flow) checkAndRun(ctx context.Context, db schema.SQLDatabase, sqlText string) CheckRunResult {
	isValid, isSafe, errs, warnings := f.checker.Check(sqlText)
	result := CheckRunResult{IsValid: isValid, IsSafe: isSafe, Errors: errs, Warnings: warnings}
	if isValid && isSafe {
		result.Execution = f.executor.Execute(ctx, db, sqlText)
	}
	return result
}

// Run drives the sub-flow for one query. Step events stream through notify.
func (f *Flow) Run(ctx context.Context, query string, intent Intent, tables []TableInfo, db schema.SQLDatabase, notify StepFunc) (FlowResult, error) {
	if notify == nil {
		notify = nopStep
	}

	// Step 1: generation.
	notify(FlowStepGeneration, schema.StepStart, nil)
	generation, err := f.agents.Generate(ctx, query, db.Dialect, intent, tables)
	if err != nil {
		notify(FlowStepGeneration, schema.StepFailed, map[string]any{"error": err.Error()})
		return FlowResult{}, schema.NewError("sqlflow.generate", schema.KindPipelineFatal, "SQL generation failed", err)
	}
	currentSQL := generation.SQL
	notify(FlowStepGeneration, schema.StepCompleted, map[string]any{
		"sql":          currentSQL,
		"explanation":  generation.Explanation,
		"columns_used": generation.ColumnsUsed,
	})

	// Step 2: check and run.
	notify(FlowStepCheckRun, schema.StepStart, nil)
	check := f.checkAndRun(ctx, db, currentSQL)
	notify(FlowStepCheckRun, schema.StepCompleted, check)

	// Step 3: correction loop. Runs only while something is wrong; exits on
	// success, a fixed point, a corrector error, or exhausted retries.
	if !check.IsValid || !check.IsSafe || !check.Execution.Executed {
		notify(FlowStepCorrection, schema.StepStart, nil)
		var corrections []string

		for retry := 0; retry < f.maxRetries; retry++ {
			correction, err := f.agents.Correct(ctx, currentSQL, query, db.Dialect,
				check.Errors, check.Warnings, check.Execution.Error, tables)
			if err != nil {
				f.logger.Warn(ctx, "correction agent failed", "retry", retry, "error", err)
				break
			}
			if correction.CorrectedSQL == "" || correction.CorrectedSQL == currentSQL {
				// Fixed point: the corrector has nothing more to offer.
				break
			}
			currentSQL = correction.CorrectedSQL
			corrections = append(corrections, correction.Corrections...)

			check = f.checkAndRun(ctx, db, currentSQL)
			if check.IsValid && check.IsSafe && check.Execution.Executed {
				break
			}
		}

		notify(FlowStepCorrection, schema.StepCompleted, map[string]any{
			"corrected_sql":    currentSQL,
			"corrections":      corrections,
			"is_valid":         check.IsValid,
			"is_safe":          check.IsSafe,
			"execution_result": check.Execution,
		})
	}

	// The loop's exhaustion is reported, not retried.
	if !check.IsValid || !check.IsSafe {
		return FlowResult{SQL: currentSQL}, schema.NewError("sqlflow.correct", schema.KindRetryExhausted,
			"SQL still invalid after correction: "+strings.Join(check.Errors, "; "), nil)
	}

	// Step 4: optimization, with the pre-optimization state as rollback.
	sqlBefore := currentSQL
	executionBefore := check.Execution

	optimization, err := f.agents.Optimize(ctx, currentSQL, query, db.Dialect, check.Execution, tables)
	optimizedSQL := currentSQL
	if err == nil && optimization.OptimizedSQL != "" {
		optimizedSQL = optimization.OptimizedSQL
	}
	notify(FlowStepOptimization, schema.StepCompleted, map[string]any{
		"optimized_sql":            optimizedSQL,
		"optimizations":            optimization.Optimizations,
		"performance_improvements": optimization.PerformanceImprovements,
	})

	// Step 5: recheck, only when the optimizer changed the statement.
	finalExecution := executionBefore
	if optimizedSQL != sqlBefore {
		notify(FlowStepRecheckRun, schema.StepStart, nil)
		recheck := f.checkAndRun(ctx, db, optimizedSQL)
		notify(FlowStepRecheckRun, schema.StepCompleted, recheck)

		if recheck.IsValid && recheck.IsSafe && recheck.Execution.Executed {
			currentSQL = optimizedSQL
			finalExecution = recheck.Execution
		} else {
			// Roll back to the pre-optimization statement and result.
			currentSQL = sqlBefore
			finalExecution = executionBefore
		}
	} else {
		notify(FlowStepRecheckRun, schema.StepSkipped, map[string]any{
			"reason":           "SQL unchanged by optimization",
			"execution_result": finalExecution,
		})
	}

	// Step 6: verification. Advisory only; the flow never loops on it.
	notify(FlowStepVerification, schema.StepStart, nil)
	verification, err := f.agents.Verify(ctx, currentSQL, query, finalExecution, intent)
	if err != nil {
		verification = VerificationResult{IsSatisfied: true, SatisfactionScore: 1.0}
	}
	notify(FlowStepVerification, schema.StepCompleted, verification)

	return FlowResult{
		SQL:               currentSQL,
		Execution:         finalExecution,
		IsSatisfied:       verification.IsSatisfied,
		SatisfactionScore: verification.SatisfactionScore,
		ColumnsUsed:       generation.ColumnsUsed,
	}, nil
}
