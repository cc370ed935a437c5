package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrValidation, "missing payload")
	if err.Code != ErrValidation {
		t.Errorf("Code = %s, want %s", err.Code, ErrValidation)
	}
	if !strings.Contains(err.Error(), "VALIDATION_ERROR") {
		t.Errorf("Error() = %q, want it to carry the code", err.Error())
	}
	if !strings.Contains(err.Error(), "missing payload") {
		t.Errorf("Error() = %q, want it to carry the message", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(ErrQueueStore, "failed to persist mutation", cause)

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Error() = %q, want it to include the cause", err.Error())
	}
}

func TestIs(t *testing.T) {
	err := New(ErrSyncOffline, "backend unreachable")

	if !Is(err, ErrSyncOffline) {
		t.Error("Is should match the error's own code")
	}
	if Is(err, ErrSyncBusy) {
		t.Error("Is should not match a different code")
	}
	if Is(stderrors.New("plain"), ErrSyncOffline) {
		t.Error("Is should reject non-AppError errors")
	}
	if Is(nil, ErrSyncOffline) {
		t.Error("Is should reject nil")
	}
}
