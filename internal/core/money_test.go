package core

import (
	"encoding/json"
	"testing"
)

func TestParseAmountToCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"blank normalizes to zero", "", 0, false},
		{"whitespace normalizes to zero", "   ", 0, false},
		{"zero", "0", 0, false},
		{"integer", "45", 4500, false},
		{"two decimals dot", "45.20", 4520, false},
		{"two decimals comma", "45,20", 4520, false},
		{"one decimal", "30.5", 3050, false},
		{"leading dot", ".75", 75, false},
		{"third decimal rounds down", "12.344", 1234, false},
		{"third decimal rounds up", "12.345", 1235, false},
		{"negative rejected", "-3", 0, true},
		{"explicit plus rejected", "+3", 0, true},
		{"letters rejected", "abc", 0, true},
		{"mixed rejected", "12x", 0, true},
		{"two separators rejected", "1.2.3", 0, true},
		{"lone separator rejected", ".", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmountToCents(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmountToCents(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmountToCents(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAmountToCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{"blank normalizes to zero", "", 0, false},
		{"integer", "320", 320, false},
		{"fractional", "12.345", 12.345, false},
		{"comma separator", "12,5", 12.5, false},
		{"negative rejected", "-1", 0, true},
		{"letters rejected", "therms", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuantity(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseQuantity(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQuantity(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseQuantity(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(Money{Cents: 4520})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "45.2" {
		t.Errorf("marshal = %s, want 45.2", b)
	}

	var m Money
	if err := json.Unmarshal([]byte("100.20"), &m); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if m.Cents != 10020 {
		t.Errorf("unmarshal number = %d cents, want 10020", m.Cents)
	}

	if err := json.Unmarshal([]byte(`"30.00"`), &m); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if m.Cents != 3000 {
		t.Errorf("unmarshal string = %d cents, want 3000", m.Cents)
	}

	if err := json.Unmarshal([]byte("null"), &m); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if m.Cents != 0 {
		t.Errorf("unmarshal null = %d cents, want 0", m.Cents)
	}
}
