package service

import (
	"strings"

	"github.com/calvin/shopsearch/internal/domain"
)

// OptionInput is an authored product option before persistence.
type OptionInput struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// GenerateVariants expands product options into the full cartesian
// product of their values.
//
// Rules:
//   - Options without a name are skipped entirely, values and all.
//   - Values are trimmed and de-duplicated, keeping first occurrence
//     order, so repeated values cannot produce identically titled
//     variants.
//   - A named option with no non-empty values is a validation error.
//   - More than domain.MaxProductOptions effective options is rejected.
//   - No effective options yields no variants (the product sells as-is).
//
// Each variant's title is its option values joined with " / " in option
// order. New variants default to the base price with zero inventory and
// empty SKU and barcode. When prior variants are given, a prior variant
// whose title matches a generated one exactly passes its price, SKU,
// barcode and inventory on to the new variant.
// Parameters:
//   - opts: authored options in display order.
//   - basePrice: product price used for new variants.
//   - prior: existing variants to reconcile against, may be nil.
// Returns:
//   - []domain.Variant: generated variants in cartesian order.
//   - error: KindValidation or KindTooManyOptions on bad input.
func GenerateVariants(opts []OptionInput, basePrice float64, prior []domain.Variant) ([]domain.Variant, error) {
	effective := make([]OptionInput, 0, len(opts))
	for _, opt := range opts {
		name := strings.TrimSpace(opt.Name)
		if name == "" {
			continue
		}
		values := normalizeValues(opt.Values)
		if len(values) == 0 {
			return nil, domain.NewValidationError("option %q has no values", name)
		}
		effective = append(effective, OptionInput{Name: name, Values: values})
	}

	if len(effective) > domain.MaxProductOptions {
		return nil, domain.NewTooManyOptionsError(len(effective))
	}
	if len(effective) == 0 {
		return []domain.Variant{}, nil
	}

	priorByTitle := make(map[string]*domain.Variant, len(prior))
	for i := range prior {
		priorByTitle[prior[i].Title] = &prior[i]
	}

	// Iterative cartesian product: start from the first option's values
	// and extend one option at a time, so the first option varies
	// slowest and the last varies fastest.
	combos := make([][]string, 0, len(effective[0].Values))
	for _, v := range effective[0].Values {
		combos = append(combos, []string{v})
	}
	for _, opt := range effective[1:] {
		next := make([][]string, 0, len(combos)*len(opt.Values))
		for _, combo := range combos {
			for _, v := range opt.Values {
				extended := make([]string, len(combo), len(combo)+1)
				copy(extended, combo)
				next = append(next, append(extended, v))
			}
		}
		combos = next
	}

	variants := make([]domain.Variant, 0, len(combos))
	for i, combo := range combos {
		v := domain.Variant{
			Title:    strings.Join(combo, " / "),
			Price:    basePrice,
			Position: i + 1,
		}
		v.Option1 = combo[0]
		if len(combo) > 1 {
			v.Option2 = combo[1]
		}
		if len(combo) > 2 {
			v.Option3 = combo[2]
		}
		if old, ok := priorByTitle[v.Title]; ok {
			v.ID = old.ID
			v.Price = old.Price
			v.SKUCode = old.SKUCode
			v.Barcode = old.Barcode
			v.InventoryQuantity = old.InventoryQuantity
		}
		variants = append(variants, v)
	}
	return variants, nil
}

// normalizeValues trims option values and drops empties and duplicates,
// keeping the first occurrence of each value in order.
func normalizeValues(raw []string) []string {
	values := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values
}

// BuildOptions converts authored option inputs into persistable rows,
// applying the same skip rules as GenerateVariants. Positions are
// assigned 1-based in input order.
func BuildOptions(productID uint, opts []OptionInput) []domain.ProductOption {
	out := make([]domain.ProductOption, 0, len(opts))
	for _, opt := range opts {
		name := strings.TrimSpace(opt.Name)
		if name == "" {
			continue
		}
		out = append(out, domain.ProductOption{
			ProductID: productID,
			Name:      name,
			Position:  len(out) + 1,
			Values:    normalizeValues(opt.Values),
		})
	}
	return out
}
