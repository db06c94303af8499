package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindPropagatesThroughWrapping(t *testing.T) {
	base := New(NotFound, "issue %s not found", "PROJ-1")
	wrapped := fmt.Errorf("fetch story: %w", base)

	if KindOf(wrapped) != NotFound {
		t.Fatalf("kind = %v", KindOf(wrapped))
	}
	if !Is(wrapped, NotFound) {
		t.Fatal("Is(wrapped, NotFound) = false")
	}
	if Is(wrapped, Upstream) {
		t.Fatal("Is(wrapped, Upstream) = true")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Upstream, cause, "jira request")

	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	if KindOf(err) != Upstream {
		t.Fatalf("kind = %v", KindOf(err))
	}
	if err.Error() != "upstream: jira request: connection refused" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("plain error should have no kind")
	}
	if KindOf(nil) != "" {
		t.Fatal("nil error should have no kind")
	}
}
