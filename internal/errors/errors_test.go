package errors

import (
	stderrors "errors"
	"testing"
)

func TestCodedErrorMessage(t *testing.T) {
	err := New(CodeAuthInvalidToken, "token rejected")
	want := "auth.invalid_token: token rejected"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCodedErrorWithCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(CodeServerBindFailed, "listen failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if GetCode(err) != CodeServerBindFailed {
		t.Errorf("GetCode = %q, want %q", GetCode(err), CodeServerBindFailed)
	}
}

func TestGetCodeFallsBackToUnknown(t *testing.T) {
	err := stderrors.New("some random error")
	if GetCode(err) != CodeUnknown {
		t.Errorf("GetCode = %q, want %q", GetCode(err), CodeUnknown)
	}
}

func TestGetCodeNil(t *testing.T) {
	if GetCode(nil) != "" {
		t.Errorf("GetCode(nil) = %q, want empty", GetCode(nil))
	}
}

func TestToCodeAndMessage(t *testing.T) {
	code, msg := ToCodeAndMessage(New(CodeServerNotRunning, "not running"))
	if code != CodeServerNotRunning || msg != "not running" {
		t.Errorf("ToCodeAndMessage = (%q, %q)", code, msg)
	}

	code, msg = ToCodeAndMessage(stderrors.New("plain"))
	if code != CodeUnknown || msg != "plain" {
		t.Errorf("ToCodeAndMessage plain = (%q, %q)", code, msg)
	}
}

func TestIsCode(t *testing.T) {
	err := NotFound("device abc")
	if !IsCode(err, CodeStorageNotFound) {
		t.Error("expected IsCode to match storage.not_found")
	}
	if IsCode(err, CodeAuthRequired) {
		t.Error("unexpected IsCode match")
	}
}

func TestNextActionCoverage(t *testing.T) {
	// Every auth/token/server code with user-facing impact should have a
	// recovery action so the CLI never prints an empty hint.
	codes := []string{
		CodeAuthInvalidToken,
		CodeAuthRateLimited,
		CodeTokenNotRunning,
		CodeServerBindFailed,
	}
	for _, code := range codes {
		if GetNextAction(code) == "" {
			t.Errorf("code %s has no next action", code)
		}
	}
}
