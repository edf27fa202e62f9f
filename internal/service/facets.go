package service

import (
	"context"
	"sort"
	"strconv"

	"github.com/calvin/shopsearch/internal/logger"
	"github.com/calvin/shopsearch/internal/repository"
)

// FacetEntry is one selectable filter value with its product count.
type FacetEntry struct {
	Value string `json:"value"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// PriceRange bounds the catalog's price span.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Facets describes every filterable dimension of the active catalog.
type Facets struct {
	Categories   []FacetEntry            `json:"categories"`
	Vendors      []FacetEntry            `json:"vendors"`
	ProductTypes []FacetEntry            `json:"product_types"`
	Options      map[string][]FacetEntry `json:"options"`
	PriceRange   PriceRange              `json:"price_range"`
}

// FacetService computes filter facets over the active catalog.
type FacetService struct {
	products   *repository.ProductRepository
	categories *repository.CategoryRepository
	logger     *logger.Logger
}

// NewFacetService creates a new facet service.
func NewFacetService(products *repository.ProductRepository, categories *repository.CategoryRepository, log *logger.Logger) *FacetService {
	return &FacetService{products: products, categories: categories, logger: log}
}

// Facets assembles all facet dimensions.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *Facets: counts for categories, vendors, product types and options
//     plus the catalog price range.
//   - error: non-nil if any underlying query fails.
func (s *FacetService) Facets(ctx context.Context) (*Facets, error) {
	facets := &Facets{
		Categories:   []FacetEntry{},
		Vendors:      []FacetEntry{},
		ProductTypes: []FacetEntry{},
		Options:      map[string][]FacetEntry{},
	}

	catCounts, err := s.products.CategoryCounts(ctx)
	if err != nil {
		return nil, err
	}
	cats, err := s.categories.List(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, cat := range cats {
		count := catCounts[cat.ID]
		if count == 0 {
			continue
		}
		facets.Categories = append(facets.Categories, FacetEntry{
			Value: strconv.FormatUint(uint64(cat.ID), 10),
			Name:  cat.Name,
			Count: count,
		})
	}

	vendors, err := s.products.VendorCounts(ctx)
	if err != nil {
		return nil, err
	}
	facets.Vendors = countEntries(vendors)

	types, err := s.products.ProductTypeCounts(ctx)
	if err != nil {
		return nil, err
	}
	facets.ProductTypes = countEntries(types)

	// Option facets count products, not variants: each option row
	// belongs to one product, so one hit per (product, option value).
	options, err := s.products.ListOptions(ctx)
	if err != nil {
		return nil, err
	}
	optionCounts := make(map[string]map[string]int64)
	for _, opt := range options {
		values := optionCounts[opt.Name]
		if values == nil {
			values = make(map[string]int64)
			optionCounts[opt.Name] = values
		}
		for _, v := range opt.Values {
			values[v]++
		}
	}
	for name, values := range optionCounts {
		facets.Options[name] = countEntries(values)
	}

	minPrice, maxPrice, err := s.products.PriceRange(ctx)
	if err != nil {
		return nil, err
	}
	facets.PriceRange = PriceRange{Min: minPrice, Max: maxPrice}

	return facets, nil
}

// countEntries converts a value->count map into entries sorted by
// descending count, ties by value.
func countEntries(counts map[string]int64) []FacetEntry {
	entries := make([]FacetEntry, 0, len(counts))
	for value, count := range counts {
		entries = append(entries, FacetEntry{Value: value, Name: value, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Value < entries[j].Value
	})
	return entries
}
