package utils

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"plain decimal", "42.50", 4250, false},
		{"negative", "-125.40", -12540, false},
		{"explicit plus", "+10.00", 1000, false},
		{"thousands separator", "1,500.00", 150000, false},
		{"dollar sign", "$99.99", 9999, false},
		{"euro sign", "€12.34", 1234, false},
		{"parenthesized negative", "(15.00)", -1500, false},
		{"parens with symbol", "($2,000.00)", -200000, false},
		{"whitespace", "  7.25  ", 725, false},
		{"no decimals", "300", 30000, false},
		{"single decimal place", "4.5", 450, false},
		{"empty", "", 0, true},
		{"whitespace only", "   ", 0, true},
		{"letters", "abc", 0, true},
		{"bare minus", "-", 0, true},
		{"double dot", "1.2.3", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseAmount(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestCentsFromFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{42.50, 4250},
		{-42.50, -4250},
		{0.005, 1},    // half rounds away from zero
		{-0.005, -1},
		{19.999, 2000},
		{0, 0},
	}
	for _, tt := range tests {
		if got := CentsFromFloat(tt.in); got != tt.want {
			t.Errorf("CentsFromFloat(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{4250, "42.50"},
		{-4200, "-42.00"},
		{5, "0.05"},
		{-5, "-0.05"},
		{0, "0.00"},
		{100000, "1000.00"},
	}
	for _, tt := range tests {
		if got := FormatCents(tt.in); got != tt.want {
			t.Errorf("FormatCents(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
