package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIINationalID(t *testing.T) {
	out, changed := RedactPII("我的身分證是 A123456789 喔")
	if !changed || !strings.Contains(out, "[REDACTED_ID]") {
		t.Fatalf("RedactPII() = %q, %v, want national id masked", out, changed)
	}
}

func TestRedactPIILeavesPlainTextAlone(t *testing.T) {
	in := "今天天氣如何？"
	out, changed := RedactPII(in)
	if changed || out != in {
		t.Fatalf("RedactPII(%q) = %q, %v, want unchanged", in, out, changed)
	}
}

func TestRedactorDisabledPassesThrough(t *testing.T) {
	in := "sam@example.com"
	if got := (Redactor{}).Apply(in); got != in {
		t.Fatalf("Apply() = %q, want %q", got, in)
	}
	if got := (Redactor{Enabled: true}).Apply(in); got != "[REDACTED_EMAIL]" {
		t.Fatalf("Apply() = %q, want [REDACTED_EMAIL]", got)
	}
}
