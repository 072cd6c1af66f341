// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"testing"
)

func TestNewCarriesCodeAndCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := New(CodeToolFailure, "tool run failed", cause)

	if err.Code != CodeToolFailure {
		t.Fatalf("unexpected code: %s", err.Code)
	}
	if !stderrors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	want := "[TOOL_FAILURE] tool run failed: disk full"
	if err.Error() != want {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestWithContextAndAttributes(t *testing.T) {
	err := New(CodeCapabilityGap, "no registry entry", nil).
		WithContext("tool", "http_call").
		WithAttribute("task.id", "t1").
		WithRecoverable(true)

	if err.Context["tool"] != "http_call" {
		t.Fatalf("context not recorded")
	}
	if err.Attributes["task.id"] != "t1" {
		t.Fatalf("attribute not recorded")
	}
	if !err.Recoverable {
		t.Fatalf("expected recoverable")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Fatalf("nil error should have empty code")
	}
	if CodeOf(stderrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped error should map to internal")
	}
	if CodeOf(New(CodeInvalidPlan, "cycle", nil)) != CodeInvalidPlan {
		t.Fatalf("typed error should keep its code")
	}
}

func TestHasCodeTraversesChain(t *testing.T) {
	inner := New(CodeTimeout, "tool timed out", nil)
	outer := New(CodeToolFailure, "step failed", inner)

	if !HasCode(outer, CodeTimeout) {
		t.Fatalf("expected timeout code in chain")
	}
	if HasCode(outer, CodeCapabilityGap) {
		t.Fatalf("did not expect capability gap in chain")
	}
}

func TestAsTelosErrorWrapsUnknown(t *testing.T) {
	plain := stderrors.New("boom")
	te := AsTelosError(plain)
	if te.Code != CodeInternal {
		t.Fatalf("expected internal wrap, got %s", te.Code)
	}
	if AsTelosError(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}
