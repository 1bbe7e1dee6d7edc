package domainutil

import "testing"

func TestRepairString_PlainASCIIUnchanged(t *testing.T) {
	in := "running shoes 2026"
	if got := RepairString(in); got != in {
		t.Errorf("RepairString(%q) = %q, want unchanged", in, got)
	}
}

func TestRepairString_RecoversMojibakeCJK(t *testing.T) {
	original := "中文测试"
	mojibake := latin1Mojibake(original)

	got := RepairString(mojibake)
	if got != original {
		t.Errorf("RepairString(%q) = %q, want %q", mojibake, got, original)
	}
}

func TestRepairString_Idempotent(t *testing.T) {
	original := "中文测试"
	mojibake := latin1Mojibake(original)

	once := RepairString(mojibake)
	twice := RepairString(once)
	if once != twice {
		t.Errorf("RepairString is not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestRepairBytes_ValidUTF8Passthrough(t *testing.T) {
	in := []byte("hello world")
	if got := RepairBytes(in); got != "hello world" {
		t.Errorf("RepairBytes(%q) = %q, want unchanged", in, got)
	}
}

func TestRepairBytes_Empty(t *testing.T) {
	if got := RepairBytes(nil); got != "" {
		t.Errorf("RepairBytes(nil) = %q, want empty", got)
	}
}

// latin1Mojibake reproduces the corruption this package repairs: UTF-8
// bytes whose individual byte values were each reinterpreted as a Latin-1
// codepoint of the same ordinal.
func latin1Mojibake(s string) string {
	b := []byte(s)
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
