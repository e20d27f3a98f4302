package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// RowHash generates the idempotency digest for one import row. The tuple is
// canonicalized (trimmed, payee lower-cased, fixed field order) so the same
// logical row always yields the same hash regardless of source formatting.
func RowHash(rowNumber int, date, payee, description string, amountCents int64, reference, status, sourceSystem string) string {
	input := fmt.Sprintf("%d|%s|%s|%s|%d|%s|%s|%s",
		rowNumber,
		strings.TrimSpace(date),
		strings.ToLower(strings.TrimSpace(payee)),
		strings.TrimSpace(description),
		amountCents,
		strings.TrimSpace(reference),
		strings.TrimSpace(status),
		strings.TrimSpace(sourceSystem),
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// SyntheticSourceHash derives a source hash for a ledger transaction created
// from an unmatched extracted statement row.
func SyntheticSourceHash(statementID int64, date, description string, amountCents int64) string {
	input := fmt.Sprintf("statement:%d|%s|%s|%d",
		statementID,
		strings.TrimSpace(date),
		strings.ToLower(strings.TrimSpace(description)),
		amountCents,
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// FileChecksum returns the SHA-256 of an uploaded file's content, used to
// dedupe re-uploads of the same file.
func FileChecksum(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing file content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
