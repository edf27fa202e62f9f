package handler

import (
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/calvin/shopsearch/internal/domain"
)

func queryContext(t *testing.T, rawQuery string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/v1/catalog/products?"+rawQuery, nil)
	return c
}

func TestFilterFromQueryParsesAllDimensions(t *testing.T) {
	options := url.QueryEscape(`{"Size":["S","M"],"Color":["Red"]}`)
	c := queryContext(t, "vendor=Acme,Zen&product_type=Shirts&category_id=1,2&min_price=5&max_price=40&stock=in_stock&options="+options)

	filter, err := filterFromQuery(c)
	if err != nil {
		t.Fatalf("filterFromQuery failed: %v", err)
	}
	if len(filter.Vendors) != 2 || filter.Vendors[0] != "Acme" || filter.Vendors[1] != "Zen" {
		t.Errorf("vendors = %v", filter.Vendors)
	}
	if len(filter.ProductTypes) != 1 || filter.ProductTypes[0] != "Shirts" {
		t.Errorf("product types = %v", filter.ProductTypes)
	}
	if len(filter.CategoryIDs) != 2 || filter.CategoryIDs[0] != 1 || filter.CategoryIDs[1] != 2 {
		t.Errorf("category IDs = %v", filter.CategoryIDs)
	}
	if filter.MinPrice == nil || *filter.MinPrice != 5 || filter.MaxPrice == nil || *filter.MaxPrice != 40 {
		t.Errorf("price range = %v..%v", filter.MinPrice, filter.MaxPrice)
	}
	if filter.Stock != "in_stock" {
		t.Errorf("stock = %q", filter.Stock)
	}
	sizes := filter.Options["Size"]
	if len(sizes) != 2 || sizes[0] != "S" || sizes[1] != "M" {
		t.Errorf("size options = %v", sizes)
	}
	if colors := filter.Options["Color"]; len(colors) != 1 || colors[0] != "Red" {
		t.Errorf("color options = %v", colors)
	}
}

func TestFilterFromQueryRejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		rawQuery string
	}{
		{"bad category id", "category_id=abc"},
		{"bad min price", "min_price=cheap"},
		{"bad options json", "options=" + url.QueryEscape(`{"Size":`)},
		{"unknown stock", "stock=backordered"},
		{"inverted price range", "min_price=50&max_price=10"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := filterFromQuery(queryContext(t, tc.rawQuery))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if kind := domain.KindOf(err); kind != domain.KindValidation {
				t.Errorf("error kind = %q, want %q", kind, domain.KindValidation)
			}
		})
	}
}
