package errors

import (
	stderrors "errors"
	"testing"
)

func TestErrorIncludesCauseWhenWrapped(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(ErrCacheIO, "writing entry", cause)
	if err.Error() == "" {
		t.Fatalf("expected non-empty error string")
	}
	if !stderrors.Is(err, cause) {
		t.Fatalf("expected errors.Is to unwrap to the cause")
	}
}

func TestNewHasNoCause(t *testing.T) {
	err := New(ErrConfigInvalid, "bad config")
	if err.Unwrap() != nil {
		t.Fatalf("expected New() to produce no cause")
	}
}

func TestWithFixesAttachesSuggestions(t *testing.T) {
	err := New(ErrVCSUnavailable, "no git").WithFixes(FixAction{
		Type:        RunCommand,
		Command:     "git status",
		Description: "check the repo",
	})
	if len(err.SuggestedFixes) != 1 {
		t.Fatalf("expected 1 suggested fix, got %d", len(err.SuggestedFixes))
	}
}
