package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCodeAndCause(t *testing.T) {
	cause := stdErrors.New("rpc unavailable")
	err := Wrap(CodeWalletFailure, cause, "sign message")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through errors.Is")
	}
	if !stdErrors.Is(fmt.Errorf("outer: %w", err), New(CodeWalletFailure, "")) {
		t.Fatalf("expected code comparison through wrapping")
	}
	if CodeOf(fmt.Errorf("outer: %w", err)) != CodeWalletFailure {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	if got := err.Error(); got != "[WALLET_FAILURE] sign message: rpc unavailable" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestAttributesDefaults(t *testing.T) {
	err := New(CodeInvalidParameters, "")
	if err.Message() != "invalid tool parameters" {
		t.Fatalf("expected default message, got %q", err.Message())
	}
	if err.Retryable() || err.ShouldAlert() {
		t.Fatalf("validation failures must not be retried or alerted")
	}
	if SeverityOf(err) != SeverityInfo {
		t.Fatalf("unexpected severity %s", SeverityOf(err))
	}

	overridden := New(CodeInvalidParameters, "", WithRetryable(true), WithSeverity(SeverityCritical))
	if !overridden.Retryable() || overridden.Severity() != SeverityCritical {
		t.Fatalf("options should override registry defaults")
	}

	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors should map to UNKNOWN")
	}
	if AttributesOf("NOT_REGISTERED").Message != "unknown error" {
		t.Fatalf("unregistered codes fall back to UNKNOWN attributes")
	}
}

func TestDetailsAndMetadata(t *testing.T) {
	err := New(CodeInvalidParameters, "bad input",
		WithDetails([]string{"message: is required"}),
		WithMetadata("tool", "sign_message"),
	)
	details, ok := err.Details().([]string)
	if !ok || len(details) != 1 {
		t.Fatalf("unexpected details %#v", err.Details())
	}
	meta := err.Metadata()
	meta["tool"] = "mutated"
	if err.Metadata()["tool"] != "sign_message" {
		t.Fatalf("metadata must be returned as a copy")
	}
}

func TestSentinelResolvesLateRegistration(t *testing.T) {
	const code Code = "LATE_REGISTERED"
	sentinel := New(code, "")
	Register(code, Attributes{Message: "registered later", Severity: SeverityInfo, Retryable: true})

	if sentinel.Message() != "registered later" || !sentinel.Retryable() || sentinel.ShouldAlert() {
		t.Fatalf("sentinel should follow the registry, got %q retry=%v alert=%v",
			sentinel.Message(), sentinel.Retryable(), sentinel.ShouldAlert())
	}
	if got := sentinel.Error(); got != "[LATE_REGISTERED] registered later" {
		t.Fatalf("unexpected message %q", got)
	}
}
