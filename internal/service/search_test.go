package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/calvin/shopsearch/internal/domain"
	"github.com/calvin/shopsearch/internal/logger"
	"github.com/calvin/shopsearch/internal/repository"
)

type fakeStore struct {
	keyword      []repository.KeywordMatch
	keywordErr   error
	keywordCalls int32

	products map[uint]domain.Product

	browseProducts []domain.Product
	browseTotal    int64
	browseCalls    int32

	// filterSurvivors nil means the filter passes everything through.
	filterSurvivors map[uint]struct{}
	filterCalls     int32
}

func (f *fakeStore) KeywordSearch(ctx context.Context, query string, limit int) ([]repository.KeywordMatch, error) {
	atomic.AddInt32(&f.keywordCalls, 1)
	return f.keyword, f.keywordErr
}

func (f *fakeStore) FilterCandidates(ctx context.Context, ids []uint, filter *repository.ProductFilter) (map[uint]struct{}, error) {
	atomic.AddInt32(&f.filterCalls, 1)
	if f.filterSurvivors != nil {
		return f.filterSurvivors, nil
	}
	out := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (f *fakeStore) GetByIDs(ctx context.Context, ids []uint) ([]domain.Product, error) {
	var out []domain.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) Browse(ctx context.Context, filter *repository.ProductFilter, sort string, limit, offset int) ([]domain.Product, int64, error) {
	atomic.AddInt32(&f.browseCalls, 1)
	return f.browseProducts, f.browseTotal, nil
}

type fakeIndex struct {
	results []repository.SearchResult
	err     error
	calls   int32

	mu          sync.Mutex
	lastFilters *repository.VectorFilters
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, topK int, filters *repository.VectorFilters) ([]repository.SearchResult, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.lastFilters = filters
	f.mu.Unlock()
	return f.results, f.err
}

func (f *fakeIndex) seenFilters() *repository.VectorFilters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFilters
}

type fakeEmbedder struct {
	err   error
	calls int32
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	return []float32{0.1, 0.2}, f.err
}

type fakeImageEmbedder struct {
	err   error
	calls int32
}

func (f *fakeImageEmbedder) EmbedImage(ctx context.Context, imageData []byte, format string) ([]float32, string, error) {
	atomic.AddInt32(&f.calls, 1)
	return []float32{0.3, 0.4}, "a red shirt", f.err
}

func scoredResult(productID uint, score float32) repository.SearchResult {
	return repository.SearchResult{
		ID:    fmt.Sprintf("point-%d", productID),
		Score: score,
		Payload: &repository.ProductPayload{
			ProductID: productID,
			Title:     fmt.Sprintf("Product %d", productID),
		},
	}
}

func testProducts(ids ...uint) map[uint]domain.Product {
	out := make(map[uint]domain.Product, len(ids))
	for _, id := range ids {
		out[id] = domain.Product{
			ID:    id,
			Title: fmt.Sprintf("Product %d", id),
			Price: float64(id) * 10,
		}
	}
	return out
}

func quietLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Output: io.Discard})
}

func newTestService(store *fakeStore, textIdx, imageIdx *fakeIndex, emb *fakeEmbedder, imgEmb *fakeImageEmbedder) *SearchService {
	return NewSearchService(store, textIdx, imageIdx, emb, imgEmb, quietLogger(), nil)
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestSearchTextFusesVectorAndKeyword(t *testing.T) {
	store := &fakeStore{
		keyword:  []repository.KeywordMatch{{ProductID: 2, Score: 0.95}, {ProductID: 5, Score: 0.5}},
		products: testProducts(1, 2, 5),
	}
	textIdx := &fakeIndex{results: []repository.SearchResult{
		scoredResult(1, 0.9),
		scoredResult(2, 0.8),
	}}

	svc := newTestService(store, textIdx, &fakeIndex{}, &fakeEmbedder{}, &fakeImageEmbedder{})
	resp, err := svc.Search(context.Background(), &SearchRequest{Query: "shirt"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if resp.Total != 3 {
		t.Fatalf("total = %d, want 3", resp.Total)
	}
	// Vector hits outrank keyword hits; product 2's keyword hit is
	// deduplicated into its vector hit.
	wantIDs := []uint{1, 2, 5}
	wantSources := []MatchSource{SourceVectorText, SourceVectorText, SourceKeyword}
	for i, m := range resp.Results {
		if m.ID != wantIDs[i] {
			t.Errorf("result %d ID = %d, want %d", i, m.ID, wantIDs[i])
		}
		if m.Source != wantSources[i] {
			t.Errorf("result %d source = %q, want %q", i, m.Source, wantSources[i])
		}
	}
	if len(resp.Degraded) != 0 {
		t.Errorf("unexpected degradation: %v", resp.Degraded)
	}
}

func TestSearchOversizedImageRejectedBeforeRetrieval(t *testing.T) {
	store := &fakeStore{products: testProducts()}
	textIdx := &fakeIndex{}
	imageIdx := &fakeIndex{}
	emb := &fakeEmbedder{}
	imgEmb := &fakeImageEmbedder{}
	svc := newTestService(store, textIdx, imageIdx, emb, imgEmb)

	oversized := make([]byte, MaxImageBytes+1)
	_, err := svc.Search(context.Background(), &SearchRequest{ImageData: oversized})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if kind := domain.KindOf(err); kind != domain.KindValidation {
		t.Errorf("error kind = %q, want %q", kind, domain.KindValidation)
	}

	// No retrieval or model spend before validation
	if n := atomic.LoadInt32(&textIdx.calls) + atomic.LoadInt32(&imageIdx.calls); n != 0 {
		t.Errorf("vector index called %d times before validation", n)
	}
	if n := atomic.LoadInt32(&emb.calls) + atomic.LoadInt32(&imgEmb.calls); n != 0 {
		t.Errorf("embedder called %d times before validation", n)
	}
	if n := atomic.LoadInt32(&store.keywordCalls); n != 0 {
		t.Errorf("keyword search called %d times before validation", n)
	}
}

func TestSearchUndecodableImageRejected(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeIndex{}, &fakeIndex{}, &fakeEmbedder{}, &fakeImageEmbedder{})
	_, err := svc.Search(context.Background(), &SearchRequest{ImageData: []byte("not an image at all")})
	if kind := domain.KindOf(err); kind != domain.KindValidation {
		t.Fatalf("error kind = %q, want %q", kind, domain.KindValidation)
	}
}

func TestSearchCombinedPromotesSharedHits(t *testing.T) {
	store := &fakeStore{products: testProducts(1, 2, 3)}
	textIdx := &fakeIndex{results: []repository.SearchResult{
		scoredResult(1, 0.9),
		scoredResult(2, 0.8),
	}}
	imageIdx := &fakeIndex{results: []repository.SearchResult{
		scoredResult(2, 0.6),
		scoredResult(3, 0.5),
	}}

	svc := newTestService(store, textIdx, imageIdx, &fakeEmbedder{}, &fakeImageEmbedder{})
	resp, err := svc.Search(context.Background(), &SearchRequest{Query: "shirt", ImageData: tinyPNG(t)})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	byID := make(map[uint]Match)
	for _, m := range resp.Results {
		byID[m.ID] = m
	}

	two, ok := byID[2]
	if !ok {
		t.Fatal("product 2 missing from results")
	}
	if two.Source != SourceVectorCombined {
		t.Errorf("product 2 source = %q, want %q", two.Source, SourceVectorCombined)
	}
	// Text score is primary for combined hits
	if two.Score != 0.8 {
		t.Errorf("product 2 score = %v, want text score 0.8", two.Score)
	}
	// Combined hits rank ahead of single-source hits
	if resp.Results[0].ID != 2 {
		t.Errorf("first result = %d, want combined hit 2", resp.Results[0].ID)
	}
	if byID[1].Source != SourceVectorText || byID[3].Source != SourceVectorImage {
		t.Errorf("unexpected sources: %+v", resp.Results)
	}
}

func TestSearchDegradesWhenVectorBackendFails(t *testing.T) {
	store := &fakeStore{
		keyword:  []repository.KeywordMatch{{ProductID: 4, Score: 0.7}},
		products: testProducts(4),
	}
	textIdx := &fakeIndex{err: fmt.Errorf("qdrant unreachable")}

	svc := newTestService(store, textIdx, &fakeIndex{}, &fakeEmbedder{}, &fakeImageEmbedder{})
	resp, err := svc.Search(context.Background(), &SearchRequest{Query: "mug"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != 4 {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if len(resp.Degraded) != 1 || resp.Degraded[0] != string(SourceVectorText) {
		t.Errorf("degraded = %v, want [vector_text]", resp.Degraded)
	}
}

func TestSearchImageOnlyUnavailable(t *testing.T) {
	imageIdx := &fakeIndex{err: fmt.Errorf("qdrant unreachable")}
	svc := newTestService(&fakeStore{}, &fakeIndex{}, imageIdx, &fakeEmbedder{}, &fakeImageEmbedder{})

	_, err := svc.Search(context.Background(), &SearchRequest{ImageData: tinyPNG(t)})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if kind := domain.KindOf(err); kind != domain.KindSearchUnavailable {
		t.Errorf("error kind = %q, want %q", kind, domain.KindSearchUnavailable)
	}
}

func TestSearchAllSourcesDownUnavailable(t *testing.T) {
	store := &fakeStore{keywordErr: fmt.Errorf("db down")}
	textIdx := &fakeIndex{err: fmt.Errorf("qdrant unreachable")}
	svc := newTestService(store, textIdx, &fakeIndex{}, &fakeEmbedder{}, &fakeImageEmbedder{})

	_, err := svc.Search(context.Background(), &SearchRequest{Query: "mug"})
	if kind := domain.KindOf(err); kind != domain.KindSearchUnavailable {
		t.Fatalf("error kind = %q, want %q", kind, domain.KindSearchUnavailable)
	}
}

func TestSearchPostFilterRestrictsCandidates(t *testing.T) {
	store := &fakeStore{
		products:        testProducts(1, 2),
		filterSurvivors: map[uint]struct{}{2: {}},
	}
	textIdx := &fakeIndex{results: []repository.SearchResult{
		scoredResult(1, 0.9),
		scoredResult(2, 0.8),
	}}
	svc := newTestService(store, textIdx, &fakeIndex{}, &fakeEmbedder{}, &fakeImageEmbedder{})

	vendor := "Acme"
	resp, err := svc.Search(context.Background(), &SearchRequest{
		Query:   "shirt",
		Filters: &repository.ProductFilter{Vendors: []string{vendor}},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.Total != 1 || resp.Results[0].ID != 2 {
		t.Fatalf("unexpected filtered results: %+v", resp.Results)
	}
	if atomic.LoadInt32(&store.filterCalls) != 1 {
		t.Errorf("filter calls = %d, want 1", store.filterCalls)
	}
}

func TestSearchForwardsPayloadFilterToVectorIndex(t *testing.T) {
	store := &fakeStore{products: testProducts(1)}
	textIdx := &fakeIndex{results: []repository.SearchResult{scoredResult(1, 0.9)}}
	svc := newTestService(store, textIdx, &fakeIndex{}, &fakeEmbedder{}, &fakeImageEmbedder{})

	minPrice := 5.0
	_, err := svc.Search(context.Background(), &SearchRequest{
		Query: "shirt",
		Filters: &repository.ProductFilter{
			Vendors:  []string{"Acme"},
			MinPrice: &minPrice,
			// Not representable in the index payload; stays DB-side.
			CategoryIDs: []uint{3},
		},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	vf := textIdx.seenFilters()
	if vf == nil {
		t.Fatal("vector index did not receive a payload filter")
	}
	if len(vf.Vendors) != 1 || vf.Vendors[0] != "Acme" {
		t.Errorf("vendors = %v, want [Acme]", vf.Vendors)
	}
	if vf.MinPrice == nil || *vf.MinPrice != minPrice {
		t.Errorf("min price = %v, want %v", vf.MinPrice, minPrice)
	}
}

func TestSearchRejectsInvertedPriceRange(t *testing.T) {
	store := &fakeStore{products: testProducts(1)}
	textIdx := &fakeIndex{results: []repository.SearchResult{scoredResult(1, 0.9)}}
	svc := newTestService(store, textIdx, &fakeIndex{}, &fakeEmbedder{}, &fakeImageEmbedder{})

	minPrice, maxPrice := 50.0, 10.0
	_, err := svc.Search(context.Background(), &SearchRequest{
		Query:   "shirt",
		Filters: &repository.ProductFilter{MinPrice: &minPrice, MaxPrice: &maxPrice},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if kind := domain.KindOf(err); kind != domain.KindValidation {
		t.Errorf("error kind = %q, want %q", kind, domain.KindValidation)
	}
	if atomic.LoadInt32(&textIdx.calls) != 0 || atomic.LoadInt32(&store.keywordCalls) != 0 {
		t.Error("retrieval ran despite invalid filters")
	}
}

func TestVectorFiltersFromSkipsDBOnlyDimensions(t *testing.T) {
	if vf := vectorFiltersFrom(nil); vf != nil {
		t.Errorf("nil filter should produce no payload filter, got %+v", vf)
	}
	// Category, option and stock constraints have no payload fields.
	dbOnly := &repository.ProductFilter{
		CategoryIDs: []uint{1},
		Options:     map[string][]string{"Size": {"S"}},
		Stock:       "in_stock",
	}
	if vf := vectorFiltersFrom(dbOnly); vf != nil {
		t.Errorf("database-only filter should produce no payload filter, got %+v", vf)
	}
}

func TestSearchEmptyRequestBrowsesCatalog(t *testing.T) {
	store := &fakeStore{
		browseProducts: []domain.Product{{ID: 9, Title: "Browse Hit"}},
		browseTotal:    5,
	}
	svc := newTestService(store, &fakeIndex{}, &fakeIndex{}, &fakeEmbedder{}, &fakeImageEmbedder{})

	resp, err := svc.Search(context.Background(), &SearchRequest{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if atomic.LoadInt32(&store.browseCalls) != 1 {
		t.Fatalf("browse calls = %d, want 1", store.browseCalls)
	}
	if resp.Total != 5 {
		t.Errorf("total = %d, want browse total 5", resp.Total)
	}
	if len(resp.Results) != 1 || resp.Results[0].Source != SourceFallback {
		t.Errorf("unexpected browse results: %+v", resp.Results)
	}
	if atomic.LoadInt32(&store.keywordCalls) != 0 {
		t.Errorf("keyword search should not run for a browse")
	}
}

func TestSearchSortAndPagination(t *testing.T) {
	store := &fakeStore{
		keyword: []repository.KeywordMatch{
			{ProductID: 1, Score: 0.9},
			{ProductID: 2, Score: 0.8},
			{ProductID: 3, Score: 0.7},
			{ProductID: 4, Score: 0.6},
			{ProductID: 5, Score: 0.5},
		},
		products: testProducts(1, 2, 3, 4, 5),
	}
	svc := newTestService(store, &fakeIndex{}, &fakeIndex{}, &fakeEmbedder{}, &fakeImageEmbedder{})

	// price_desc reorders by price (ID*10), page 2 of size 2 holds the
	// third and fourth most expensive
	resp, err := svc.Search(context.Background(), &SearchRequest{
		Query: "anything", Sort: SortPriceDesc, Page: 2, PageSize: 2,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.Total != 5 {
		t.Fatalf("total = %d, want 5", resp.Total)
	}
	if len(resp.Results) != 2 || resp.Results[0].ID != 3 || resp.Results[1].ID != 2 {
		t.Fatalf("unexpected page: %+v", resp.Results)
	}

	// Page past the end is empty, total unchanged
	resp, err = svc.Search(context.Background(), &SearchRequest{
		Query: "anything", Page: 4, PageSize: 2,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 0 || resp.Total != 5 {
		t.Fatalf("out-of-range page: results=%d total=%d", len(resp.Results), resp.Total)
	}
}

func TestSearchRejectsUnknownSort(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeIndex{}, &fakeIndex{}, &fakeEmbedder{}, &fakeImageEmbedder{})
	_, err := svc.Search(context.Background(), &SearchRequest{Query: "x", Sort: "cheapest"})
	if kind := domain.KindOf(err); kind != domain.KindValidation {
		t.Fatalf("error kind = %q, want %q", kind, domain.KindValidation)
	}
}

func TestFuseCandidatesDedupKeepsHighestPriority(t *testing.T) {
	text := []scoredCandidate{
		{ProductID: 1, Score: 0.9, Source: SourceVectorText},
		{ProductID: 2, Score: 0.8, Source: SourceVectorText},
	}
	keyword := []scoredCandidate{
		{ProductID: 2, Score: 0.99, Source: SourceKeyword},
		{ProductID: 3, Score: 0.4, Source: SourceKeyword},
	}

	fused := fuseCandidates(text, nil, keyword, false)
	if len(fused) != 3 {
		t.Fatalf("got %d candidates, want 3", len(fused))
	}
	if fused[1].ProductID != 2 || fused[1].Source != SourceVectorText || fused[1].Score != 0.8 {
		t.Errorf("duplicate should keep the vector hit: %+v", fused[1])
	}
}

func TestFuseCandidatesEqualPriorityKeepsMaxScore(t *testing.T) {
	text := []scoredCandidate{
		{ProductID: 1, Score: 0.5, Source: SourceVectorText},
		{ProductID: 1, Score: 0.9, Source: SourceVectorText},
	}
	fused := fuseCandidates(text, nil, nil, false)
	if len(fused) != 1 {
		t.Fatalf("got %d candidates, want 1", len(fused))
	}
	if fused[0].Score != 0.9 {
		t.Errorf("score = %v, want max 0.9", fused[0].Score)
	}
}

func TestPaginateWindows(t *testing.T) {
	matches := make([]Match, 5)
	for i := range matches {
		matches[i] = Match{ID: uint(i + 1)}
	}
	tests := []struct {
		page, size int
		wantIDs    []uint
	}{
		{1, 2, []uint{1, 2}},
		{2, 2, []uint{3, 4}},
		{3, 2, []uint{5}},
		{4, 2, nil},
		{1, 10, []uint{1, 2, 3, 4, 5}},
	}
	for _, tc := range tests {
		got := paginate(matches, tc.page, tc.size)
		if len(got) != len(tc.wantIDs) {
			t.Errorf("page %d size %d: got %d items, want %d", tc.page, tc.size, len(got), len(tc.wantIDs))
			continue
		}
		for i, id := range tc.wantIDs {
			if got[i].ID != id {
				t.Errorf("page %d size %d item %d = %d, want %d", tc.page, tc.size, i, got[i].ID, id)
			}
		}
	}
}
