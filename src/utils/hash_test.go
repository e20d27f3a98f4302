package utils

import (
	"strings"
	"testing"
)

func TestRowHashDeterministic(t *testing.T) {
	a := RowHash(3, "2024-01-15", "ACME Corp", "invoice 42", -12540, "ref-1", "posted", "chase")
	b := RowHash(3, "2024-01-15", "ACME Corp", "invoice 42", -12540, "ref-1", "posted", "chase")
	if a != b {
		t.Fatalf("same tuple produced different hashes: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256 digest, got %d chars", len(a))
	}
}

func TestRowHashCanonicalization(t *testing.T) {
	base := RowHash(1, "2024-01-15", "acme corp", "coffee", -450, "", "", "")

	// payee case and surrounding whitespace are normalized
	if got := RowHash(1, " 2024-01-15 ", "  ACME CORP ", " coffee ", -450, "", "", ""); got != base {
		t.Error("whitespace and payee case should not change the hash")
	}
	// any field change must change the hash
	if got := RowHash(2, "2024-01-15", "acme corp", "coffee", -450, "", "", ""); got == base {
		t.Error("row number change should change the hash")
	}
	if got := RowHash(1, "2024-01-15", "acme corp", "coffee", -451, "", "", ""); got == base {
		t.Error("amount change should change the hash")
	}
	if got := RowHash(1, "2024-01-15", "acme corp", "Coffee", -450, "", "", ""); got == base {
		t.Error("description is case-sensitive and should change the hash")
	}
}

func TestSyntheticSourceHash(t *testing.T) {
	a := SyntheticSourceHash(7, "2024-02-01", "Monthly Fee", -1200)
	b := SyntheticSourceHash(7, "2024-02-01", "MONTHLY FEE", -1200)
	if a != b {
		t.Error("description case should be normalized")
	}
	if c := SyntheticSourceHash(8, "2024-02-01", "Monthly Fee", -1200); c == a {
		t.Error("statement id should change the hash")
	}
}

func TestFileChecksum(t *testing.T) {
	sum1, n, err := FileChecksum(strings.NewReader("Date,Amount\n2024-01-01,5.00\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 28 {
		t.Errorf("byte count = %d, want 28", n)
	}
	sum2, _, _ := FileChecksum(strings.NewReader("Date,Amount\n2024-01-01,5.00\n"))
	if sum1 != sum2 {
		t.Error("same content should yield the same checksum")
	}
	sum3, _, _ := FileChecksum(strings.NewReader("Date,Amount\n2024-01-01,5.01\n"))
	if sum3 == sum1 {
		t.Error("different content should yield a different checksum")
	}
}
