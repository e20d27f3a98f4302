package validation

import (
	"bytes"
	"testing"

	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

func TestValidateClientContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		kind        FileKind
		wantErr     bool
	}{
		{"csv plain", "text/csv", KindCSV, false},
		{"csv with charset", "text/csv; charset=utf-8", KindCSV, false},
		{"excel export", "application/vnd.ms-excel", KindCSV, false},
		{"empty header allowed", "", KindCSV, false},
		{"pdf ok", "application/pdf", KindPDF, false},
		{"pdf rejected for csv", "application/pdf", KindCSV, true},
		{"html rejected", "text/html", KindPDF, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClientContentType(tt.contentType, tt.kind)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClientContentType(%q, %q) error = %v, wantErr %v", tt.contentType, tt.kind, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFileContentByMagicBytes(t *testing.T) {
	csvContent := []byte("Date,Description,Amount\n2024-01-15,Coffee,-4.50\n")
	pdfContent := []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

	t.Run("csv content accepted", func(t *testing.T) {
		r := bytes.NewReader(csvContent)
		if _, err := ValidateFileContentByMagicBytes(r, KindCSV); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// pointer must be reset for the parser
		buf := make([]byte, 4)
		if _, err := r.Read(buf); err != nil || string(buf) != "Date" {
			t.Errorf("read pointer not reset, got %q err %v", buf, err)
		}
	})

	t.Run("pdf content accepted", func(t *testing.T) {
		if _, err := ValidateFileContentByMagicBytes(bytes.NewReader(pdfContent), KindPDF); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("csv rejected as pdf", func(t *testing.T) {
		detected, err := ValidateFileContentByMagicBytes(bytes.NewReader(csvContent), KindPDF)
		if err == nil {
			t.Fatalf("expected error, detected %q", detected)
		}
	})

	t.Run("nil file", func(t *testing.T) {
		if _, err := ValidateFileContentByMagicBytes(nil, KindCSV); err == nil {
			t.Fatal("expected error for nil file")
		}
	})
}

func TestSanitizeForFormulaInjection(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ACME PAYROLL", "ACME PAYROLL"},
		{"=SUM(A1:A9)", "'=SUM(A1:A9)"},
		{"+1-800-FLOWERS", "'+1-800-FLOWERS"},
		{"-DEBIT MEMO", "'-DEBIT MEMO"},
		{"@mention", "'@mention"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeForFormulaInjection(tt.in); got != tt.want {
			t.Errorf("SanitizeForFormulaInjection(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripUnprintable(t *testing.T) {
	if got := StripUnprintable("AC\x00ME\x07 CORP\n"); got != "ACME CORP\n" {
		t.Errorf("StripUnprintable = %q", got)
	}
}
