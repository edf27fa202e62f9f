package service

import (
	"testing"

	"github.com/calvin/shopsearch/internal/domain"
)

func TestGenerateVariantsCartesianOrder(t *testing.T) {
	opts := []OptionInput{
		{Name: "Size", Values: []string{"S", "M"}},
		{Name: "Color", Values: []string{"Red", "Blue"}},
	}

	variants, err := GenerateVariants(opts, 19.99, nil)
	if err != nil {
		t.Fatalf("GenerateVariants failed: %v", err)
	}

	wantTitles := []string{"S / Red", "S / Blue", "M / Red", "M / Blue"}
	if len(variants) != len(wantTitles) {
		t.Fatalf("got %d variants, want %d", len(variants), len(wantTitles))
	}
	for i, want := range wantTitles {
		v := variants[i]
		if v.Title != want {
			t.Errorf("variant %d title = %q, want %q", i, v.Title, want)
		}
		if v.Price != 19.99 {
			t.Errorf("variant %q price = %v, want base price", v.Title, v.Price)
		}
		if v.InventoryQuantity != 0 || v.SKUCode != "" || v.Barcode != "" {
			t.Errorf("variant %q should have zero-value defaults", v.Title)
		}
		if v.Position != i+1 {
			t.Errorf("variant %q position = %d, want %d", v.Title, v.Position, i+1)
		}
	}

	// Option slots follow option order
	if variants[0].Option1 != "S" || variants[0].Option2 != "Red" || variants[0].Option3 != "" {
		t.Errorf("unexpected option slots: %+v", variants[0])
	}
}

func TestGenerateVariantsThreeOptions(t *testing.T) {
	opts := []OptionInput{
		{Name: "Size", Values: []string{"S", "M"}},
		{Name: "Color", Values: []string{"Red"}},
		{Name: "Material", Values: []string{"Cotton", "Linen"}},
	}
	variants, err := GenerateVariants(opts, 10, nil)
	if err != nil {
		t.Fatalf("GenerateVariants failed: %v", err)
	}
	if len(variants) != 4 {
		t.Fatalf("got %d variants, want 4", len(variants))
	}
	if variants[0].Title != "S / Red / Cotton" {
		t.Errorf("first variant title = %q", variants[0].Title)
	}
	if variants[3].Title != "M / Red / Linen" {
		t.Errorf("last variant title = %q", variants[3].Title)
	}
	if variants[1].Option3 != "Linen" {
		t.Errorf("option3 = %q, want Linen", variants[1].Option3)
	}
}

func TestGenerateVariantsDeterministic(t *testing.T) {
	opts := []OptionInput{
		{Name: "Size", Values: []string{"S", "M", "L"}},
		{Name: "Color", Values: []string{"Red", "Blue"}},
	}
	first, err := GenerateVariants(opts, 5, nil)
	if err != nil {
		t.Fatalf("GenerateVariants failed: %v", err)
	}
	second, err := GenerateVariants(opts, 5, nil)
	if err != nil {
		t.Fatalf("GenerateVariants failed: %v", err)
	}
	for i := range first {
		if first[i].Title != second[i].Title {
			t.Errorf("run order differs at %d: %q vs %q", i, first[i].Title, second[i].Title)
		}
	}
}

func TestGenerateVariantsReconciliation(t *testing.T) {
	opts := []OptionInput{
		{Name: "Size", Values: []string{"S", "M", "L"}},
	}
	prior := []domain.Variant{
		{ID: 7, Title: "S", Price: 24.99, SKUCode: "SKU-S", Barcode: "111", InventoryQuantity: 12},
		{ID: 8, Title: "XL", Price: 29.99, SKUCode: "SKU-XL", InventoryQuantity: 3},
	}

	variants, err := GenerateVariants(opts, 19.99, prior)
	if err != nil {
		t.Fatalf("GenerateVariants failed: %v", err)
	}
	if len(variants) != 3 {
		t.Fatalf("got %d variants, want 3", len(variants))
	}

	// "S" matched an existing variant and keeps its edits
	s := variants[0]
	if s.ID != 7 || s.Price != 24.99 || s.SKUCode != "SKU-S" || s.Barcode != "111" || s.InventoryQuantity != 12 {
		t.Errorf("reconciled variant lost prior values: %+v", s)
	}

	// "M" and "L" are new
	for _, v := range variants[1:] {
		if v.ID != 0 || v.Price != 19.99 || v.InventoryQuantity != 0 {
			t.Errorf("new variant %q should use defaults: %+v", v.Title, v)
		}
	}
}

func TestGenerateVariantsDeduplicatesValues(t *testing.T) {
	opts := []OptionInput{
		{Name: "Size", Values: []string{"S", "S", " S ", "M"}},
		{Name: "Color", Values: []string{"Red", "Red"}},
	}
	variants, err := GenerateVariants(opts, 10, nil)
	if err != nil {
		t.Fatalf("GenerateVariants failed: %v", err)
	}
	wantTitles := []string{"S / Red", "M / Red"}
	if len(variants) != len(wantTitles) {
		t.Fatalf("got %d variants, want %d: %+v", len(variants), len(wantTitles), variants)
	}
	seen := make(map[string]int)
	for i, v := range variants {
		if v.Title != wantTitles[i] {
			t.Errorf("variant %d title = %q, want %q", i, v.Title, wantTitles[i])
		}
		seen[v.Title]++
	}
	for title, n := range seen {
		if n > 1 {
			t.Errorf("title %q generated %d times", title, n)
		}
	}
}

func TestGenerateVariantsValidation(t *testing.T) {
	tests := []struct {
		name     string
		opts     []OptionInput
		wantKind domain.ErrorKind
	}{
		{
			name: "named option without values",
			opts: []OptionInput{
				{Name: "Size", Values: []string{" ", ""}},
			},
			wantKind: domain.KindValidation,
		},
		{
			name: "too many options",
			opts: []OptionInput{
				{Name: "A", Values: []string{"1"}},
				{Name: "B", Values: []string{"1"}},
				{Name: "C", Values: []string{"1"}},
				{Name: "D", Values: []string{"1"}},
			},
			wantKind: domain.KindTooManyOptions,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := GenerateVariants(tc.opts, 10, nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if kind := domain.KindOf(err); kind != tc.wantKind {
				t.Errorf("error kind = %q, want %q", kind, tc.wantKind)
			}
		})
	}
}

func TestGenerateVariantsSkipsNamelessOptions(t *testing.T) {
	opts := []OptionInput{
		{Name: "  ", Values: []string{"ignored", "also ignored"}},
		{Name: "Color", Values: []string{"Red"}},
	}
	variants, err := GenerateVariants(opts, 10, nil)
	if err != nil {
		t.Fatalf("GenerateVariants failed: %v", err)
	}
	if len(variants) != 1 || variants[0].Title != "Red" {
		t.Fatalf("unexpected variants: %+v", variants)
	}
	if variants[0].Option2 != "" {
		t.Errorf("skipped option leaked into slot 2: %+v", variants[0])
	}
}

func TestGenerateVariantsNoOptions(t *testing.T) {
	variants, err := GenerateVariants(nil, 10, nil)
	if err != nil {
		t.Fatalf("GenerateVariants failed: %v", err)
	}
	if len(variants) != 0 {
		t.Fatalf("got %d variants, want 0", len(variants))
	}

	variants, err = GenerateVariants([]OptionInput{{Name: "", Values: []string{"x"}}}, 10, nil)
	if err != nil {
		t.Fatalf("GenerateVariants failed: %v", err)
	}
	if len(variants) != 0 {
		t.Fatalf("got %d variants, want 0", len(variants))
	}
}

func TestBuildOptions(t *testing.T) {
	opts := []OptionInput{
		{Name: " Size ", Values: []string{" S ", "M", "", "S"}},
		{Name: "", Values: []string{"skipped"}},
		{Name: "Color", Values: []string{"Red"}},
	}
	rows := BuildOptions(42, opts)
	if len(rows) != 2 {
		t.Fatalf("got %d option rows, want 2", len(rows))
	}
	if rows[0].Name != "Size" || rows[0].Position != 1 || len(rows[0].Values) != 2 {
		t.Errorf("unexpected first option row: %+v", rows[0])
	}
	if rows[1].Name != "Color" || rows[1].Position != 2 {
		t.Errorf("unexpected second option row: %+v", rows[1])
	}
	if rows[0].ProductID != 42 {
		t.Errorf("product ID not assigned: %+v", rows[0])
	}
}
