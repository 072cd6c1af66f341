// Package reflexion closes the learning loop: every attempt is evaluated,
// classified and written to episodic memory as exactly one record. The
// failure class decides which protocol tier, if any, picks the task up.
package reflexion

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/telos-ai/telos/pkg/errors"
)

// FailureClass is the evaluator's verdict on one attempt.
type FailureClass string

const (
	ClassSuccess           FailureClass = "success"
	ClassMissingDependency FailureClass = "missing-dependency"
	ClassPermission        FailureClass = "permission"
	ClassSyntax            FailureClass = "syntax"
	ClassTimeout           FailureClass = "timeout"
	// ClassAmbiguous resolves to neither success nor a known failure mode.
	// Primary trigger for Tree-of-Thoughts escalation.
	ClassAmbiguous FailureClass = "ambiguous"
	// ClassCapabilityGap means a required tool is absent or untrusted.
	// Routed to Tier 2, never retried by Tier 1.
	ClassCapabilityGap FailureClass = "capability-gap"
)

// Transient reports whether the class is a Tier-1 eligible failure: a known,
// classifiable failure mode that a corrective action might clear.
func (c FailureClass) Transient() bool {
	switch c {
	case ClassMissingDependency, ClassPermission, ClassSyntax, ClassTimeout:
		return true
	}
	return false
}

// Attempt is the evaluator's view of one executed step.
type Attempt struct {
	MissionID   string
	TaskID      string
	Tool        string
	Action      string
	Observation string
	Err         error
}

// EvaluationResult is the outcome of evaluating an attempt. Score is in
// [0, 10]; 10 is unambiguous success.
type EvaluationResult struct {
	Score      float64
	Class      FailureClass
	Reflection string
}

// Evaluator scores one attempt. The boolean reports whether this evaluator
// could judge the attempt at all; a false lets the chain continue.
type Evaluator interface {
	Evaluate(ctx context.Context, attempt Attempt) (EvaluationResult, bool)
}

// Chain runs evaluators in order and returns the first verdict. When nothing
// can judge the attempt the verdict is ambiguous, which is itself a signal.
type Chain []Evaluator

// Evaluate implements Evaluator over the whole chain.
func (c Chain) Evaluate(ctx context.Context, attempt Attempt) (EvaluationResult, bool) {
	for _, evaluator := range c {
		if result, ok := evaluator.Evaluate(ctx, attempt); ok {
			return result, true
		}
	}
	return EvaluationResult{
		Score:      3,
		Class:      ClassAmbiguous,
		Reflection: "no evaluator could classify the observation: " + firstLine(attempt.Observation),
	}, true
}

// ErrorEvaluator classifies attempts whose gateway error already carries a
// typed code. It runs first in the default chain because typed errors are
// the most reliable signal available.
type ErrorEvaluator struct{}

// Evaluate implements Evaluator.
func (ErrorEvaluator) Evaluate(_ context.Context, attempt Attempt) (EvaluationResult, bool) {
	if attempt.Err == nil {
		return EvaluationResult{}, false
	}
	switch errors.CodeOf(attempt.Err) {
	case errors.CodeCapabilityGap:
		return EvaluationResult{
			Score:      0,
			Class:      ClassCapabilityGap,
			Reflection: "required capability is missing: " + attempt.Err.Error(),
		}, true
	case errors.CodeTimeout:
		return EvaluationResult{
			Score:      1,
			Class:      ClassTimeout,
			Reflection: "action timed out: " + attempt.Err.Error(),
		}, true
	case errors.CodeUnauthorized:
		return EvaluationResult{
			Score:      1,
			Class:      ClassPermission,
			Reflection: "action was not authorized: " + attempt.Err.Error(),
		}, true
	case errors.CodeNotFound:
		return EvaluationResult{
			Score:      1,
			Class:      ClassMissingDependency,
			Reflection: "a required resource was missing: " + attempt.Err.Error(),
		}, true
	case errors.CodeToolFailure:
		if class, ok := classifyText(attempt.Err.Error() + " " + attempt.Observation); ok {
			return EvaluationResult{
				Score:      1,
				Class:      class,
				Reflection: "tool failed (" + string(class) + "): " + firstLine(attempt.Err.Error()),
			}, true
		}
		return EvaluationResult{
			Score:      2,
			Class:      ClassAmbiguous,
			Reflection: "tool failed without a recognizable pattern: " + firstLine(attempt.Err.Error()),
		}, true
	}
	return EvaluationResult{}, false
}

var exitCodeRe = regexp.MustCompile(`exit (?:code|status)[ :]+(\d+)`)

// ExitCodeEvaluator judges observations that report a process exit code.
type ExitCodeEvaluator struct{}

// Evaluate implements Evaluator.
func (ExitCodeEvaluator) Evaluate(_ context.Context, attempt Attempt) (EvaluationResult, bool) {
	match := exitCodeRe.FindStringSubmatch(strings.ToLower(attempt.Observation))
	if match == nil {
		return EvaluationResult{}, false
	}
	code, err := strconv.Atoi(match[1])
	if err != nil {
		return EvaluationResult{}, false
	}
	if code == 0 {
		return EvaluationResult{
			Score:      10,
			Class:      ClassSuccess,
			Reflection: "command exited cleanly",
		}, true
	}
	if class, ok := classifyText(attempt.Observation); ok {
		return EvaluationResult{
			Score:      1,
			Class:      class,
			Reflection: "command failed with exit code " + match[1] + " (" + string(class) + ")",
		}, true
	}
	return EvaluationResult{
		Score:      2,
		Class:      ClassAmbiguous,
		Reflection: "command failed with exit code " + match[1] + " and no recognizable cause",
	}, true
}

var testSummaryRe = regexp.MustCompile(`(\d+) passed[, ]+(\d+) failed`)

// TestSummaryEvaluator judges observations carrying a test-run summary.
type TestSummaryEvaluator struct{}

// Evaluate implements Evaluator.
func (TestSummaryEvaluator) Evaluate(_ context.Context, attempt Attempt) (EvaluationResult, bool) {
	match := testSummaryRe.FindStringSubmatch(strings.ToLower(attempt.Observation))
	if match == nil {
		return EvaluationResult{}, false
	}
	passed, _ := strconv.Atoi(match[1])
	failed, _ := strconv.Atoi(match[2])
	total := passed + failed
	if total == 0 {
		return EvaluationResult{}, false
	}
	if failed == 0 {
		return EvaluationResult{
			Score:      10,
			Class:      ClassSuccess,
			Reflection: "all " + match[1] + " tests passed",
		}, true
	}
	return EvaluationResult{
		Score:      10 * float64(passed) / float64(total),
		Class:      ClassSyntax,
		Reflection: match[2] + " of " + strconv.Itoa(total) + " tests failed",
	}, true
}

// SuccessMarkerEvaluator judges observations with unambiguous success or
// failure phrasing. It is the last deterministic evaluator in the default
// chain.
type SuccessMarkerEvaluator struct{}

// Evaluate implements Evaluator.
func (SuccessMarkerEvaluator) Evaluate(_ context.Context, attempt Attempt) (EvaluationResult, bool) {
	lower := strings.ToLower(attempt.Observation)
	for _, marker := range []string{"success", "completed", "created", "written"} {
		if strings.Contains(lower, marker) {
			if class, failed := classifyText(lower); failed {
				return EvaluationResult{
					Score:      1,
					Class:      class,
					Reflection: "observation mixes success phrasing with a " + string(class) + " failure",
				}, true
			}
			return EvaluationResult{
				Score:      9,
				Class:      ClassSuccess,
				Reflection: "observation reports completion",
			}, true
		}
	}
	if class, ok := classifyText(lower); ok {
		return EvaluationResult{
			Score:      1,
			Class:      class,
			Reflection: "observation matches a known " + string(class) + " failure pattern",
		}, true
	}
	return EvaluationResult{}, false
}

// DefaultChain is the evaluator order used by the orchestrator.
func DefaultChain() Chain {
	return Chain{
		ErrorEvaluator{},
		ExitCodeEvaluator{},
		TestSummaryEvaluator{},
		SuccessMarkerEvaluator{},
	}
}

// classifyText maps raw observation text onto a transient failure class.
func classifyText(text string) (FailureClass, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "access denied"),
		strings.Contains(lower, "operation not permitted"):
		return ClassPermission, true
	case strings.Contains(lower, "command not found"),
		strings.Contains(lower, "no such file"),
		strings.Contains(lower, "module not found"),
		strings.Contains(lower, "cannot find package"),
		strings.Contains(lower, "missing dependency"):
		return ClassMissingDependency, true
	case strings.Contains(lower, "timed out"),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "deadline exceeded"):
		return ClassTimeout, true
	case strings.Contains(lower, "syntax error"),
		strings.Contains(lower, "parse error"),
		strings.Contains(lower, "compilation failed"),
		strings.Contains(lower, "undefined:"):
		return ClassSyntax, true
	}
	return "", false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
