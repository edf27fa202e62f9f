package service

import (
	"testing"

	"github.com/calvin/shopsearch/internal/domain"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Linen Shirt", "linen-shirt"},
		{"  Padded  Jacket  ", "padded-jacket"},
		{"Shirt (Blue) / XL", "shirt-blue-xl"},
		{"100% Cotton!", "100-cotton"},
		{"---", ""},
		{"", ""},
		{"Ærø Tee", "ærø-tee"},
	}
	for _, tc := range tests {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.ProductStatus
		wantErr bool
	}{
		{"active", domain.ProductStatusActive, false},
		{"draft", domain.ProductStatusDraft, false},
		{"archived", domain.ProductStatusArchived, false},
		{"", domain.ProductStatusActive, false},
		{"published", "", true},
	}
	for _, tc := range tests {
		got, err := parseStatus(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseStatus(%q) should fail", tc.in)
			} else if kind := domain.KindOf(err); kind != domain.KindValidation {
				t.Errorf("parseStatus(%q) error kind = %q", tc.in, kind)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseStatus(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
