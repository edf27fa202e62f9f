package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calvin/shopsearch/internal/domain"
	"github.com/calvin/shopsearch/internal/logger"
	"github.com/calvin/shopsearch/internal/repository"
)

// MatchSource identifies which retrieval strategy produced a match.
type MatchSource string

const (
	SourceVectorCombined MatchSource = "vector_combined"
	SourceVectorText     MatchSource = "vector_text"
	SourceVectorImage    MatchSource = "vector_image"
	SourceKeyword        MatchSource = "keyword"
	SourceFallback       MatchSource = "fallback"
)

// sourcePriority ranks sources for deduplication. A product reached by
// several strategies keeps its highest-priority source.
func sourcePriority(s MatchSource) int {
	switch s {
	case SourceVectorCombined:
		return 4
	case SourceVectorText:
		return 3
	case SourceVectorImage:
		return 2
	case SourceKeyword:
		return 1
	default:
		return 0
	}
}

// Sort option keys accepted by search and catalog browse.
const (
	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNameAsc   = "name_asc"
	SortNameDesc  = "name_desc"
	SortNewest    = "newest"
)

var validSorts = map[string]bool{
	SortRelevance: true,
	SortPriceAsc:  true,
	SortPriceDesc: true,
	SortNameAsc:   true,
	SortNameDesc:  true,
	SortNewest:    true,
}

const defaultPageSize = 20

// SearchRequest is a multi-modal search request. Any combination of
// Query, ImageData and Filters may be set; with none set the request
// degenerates to a catalog browse.
type SearchRequest struct {
	Query     string
	ImageData []byte
	Filters   *repository.ProductFilter
	Sort      string
	Page      int
	PageSize  int
}

// Match is one scored product in a search response.
type Match struct {
	ID          uint        `json:"id"`
	Title       string      `json:"title"`
	Handle      string      `json:"handle"`
	Description string      `json:"description,omitempty"`
	Price       float64     `json:"price"`
	Vendor      string      `json:"vendor"`
	ProductType string      `json:"product_type"`
	ImageURL    string      `json:"image_url,omitempty"`
	Score       float32     `json:"score"`
	Source      MatchSource `json:"source"`
}

// SearchResponse is the paginated result of a search.
type SearchResponse struct {
	Results  []Match `json:"results"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Sort     string  `json:"sort"`
	// Degraded lists retrieval sources that failed; the response was
	// served from the remaining ones.
	Degraded []string `json:"degraded,omitempty"`
	SearchID string   `json:"search_id"`
}

// ProductStore is the database capability the search service needs.
type ProductStore interface {
	KeywordSearch(ctx context.Context, query string, limit int) ([]repository.KeywordMatch, error)
	FilterCandidates(ctx context.Context, ids []uint, filter *repository.ProductFilter) (map[uint]struct{}, error)
	GetByIDs(ctx context.Context, ids []uint) ([]domain.Product, error)
	Browse(ctx context.Context, filter *repository.ProductFilter, sort string, limit, offset int) ([]domain.Product, int64, error)
}

// VectorSearcher is the vector index capability the search service needs.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filters *repository.VectorFilters) ([]repository.SearchResult, error)
}

// imageEmbedder turns an image into a query vector.
type imageEmbedder interface {
	EmbedImage(ctx context.Context, imageData []byte, format string) ([]float32, string, error)
}

// SearchServiceConfig holds the tuning knobs of the search service.
type SearchServiceConfig struct {
	ScoreThreshold   float32
	RetrievalTimeout time.Duration
	VectorTopK       int
	KeywordLimit     int
	MaxPageSize      int
}

// SearchService answers multi-modal product searches by fanning out to
// the vector indexes and the keyword engine, fusing the candidates, and
// post-filtering against the database.
type SearchService struct {
	products      ProductStore
	textIndex     VectorSearcher
	imageIndex    VectorSearcher
	embedder      queryEmbedder
	imageEmbedder imageEmbedder
	logger        *logger.Logger

	scoreThreshold   float32
	retrievalTimeout time.Duration
	vectorTopK       int
	keywordLimit     int
	maxPageSize      int
}

// NewSearchService creates a new search service.
// Parameters:
//   - products: product store for keyword search, filtering, enrichment.
//   - textIndex, imageIndex: vector indexes for the two collections.
//   - embedder: text query embedder.
//   - imgEmbedder: image-to-vector pipeline.
//   - log: logger instance.
//   - cfg: search tuning configuration.
// Returns:
//   - *SearchService: initialized search service.
func NewSearchService(
	products ProductStore,
	textIndex VectorSearcher,
	imageIndex VectorSearcher,
	embedder queryEmbedder,
	imgEmbedder imageEmbedder,
	log *logger.Logger,
	cfg *SearchServiceConfig,
) *SearchService {
	s := &SearchService{
		products:         products,
		textIndex:        textIndex,
		imageIndex:       imageIndex,
		embedder:         embedder,
		imageEmbedder:    imgEmbedder,
		logger:           log,
		retrievalTimeout: 10 * time.Second,
		vectorTopK:       50,
		keywordLimit:     50,
		maxPageSize:      100,
	}
	if cfg != nil {
		s.scoreThreshold = cfg.ScoreThreshold
		if cfg.RetrievalTimeout > 0 {
			s.retrievalTimeout = cfg.RetrievalTimeout
		}
		if cfg.VectorTopK > 0 {
			s.vectorTopK = cfg.VectorTopK
		}
		if cfg.KeywordLimit > 0 {
			s.keywordLimit = cfg.KeywordLimit
		}
		if cfg.MaxPageSize > 0 {
			s.maxPageSize = cfg.MaxPageSize
		}
	}
	return s
}

func (s *SearchService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// scoredCandidate is an internal fusion candidate before enrichment.
type scoredCandidate struct {
	ProductID uint
	Score     float32
	Source    MatchSource
}

// Search runs the full pipeline: validate, retrieve, fuse, post-filter,
// enrich, sort and paginate.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: search request.
// Returns:
//   - *SearchResponse: paginated matches.
//   - error: KindValidation for bad input, KindSearchUnavailable when no
//     retrieval source could serve the request.
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	searchID := uuid.NewString()
	ctx = logger.SetSearchID(ctx, searchID)

	page, pageSize, sortKey, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(req.Query)
	hasText := query != ""
	hasImage := len(req.ImageData) > 0

	// Image validation comes before any retrieval or model spend.
	var imageFormat string
	if hasImage {
		imageFormat, err = ValidateImage(req.ImageData)
		if err != nil {
			return nil, err
		}
	}

	// Nothing to rank against: serve the catalog directly. Filters-only
	// requests land here too.
	if !hasText && !hasImage {
		return s.browse(ctx, req.Filters, sortKey, page, pageSize, searchID)
	}

	candidates, degraded, err := s.retrieve(ctx, query, req.ImageData, imageFormat, hasText, hasImage, vectorFiltersFrom(req.Filters))
	if err != nil {
		return nil, err
	}

	// Authoritative filtering happens in the database over the fused
	// candidate set.
	if !req.Filters.IsZero() {
		ids := make([]uint, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ProductID
		}
		surviving, ferr := s.products.FilterCandidates(ctx, ids, req.Filters)
		if ferr != nil {
			return nil, ferr
		}
		kept := candidates[:0]
		for _, c := range candidates {
			if _, ok := surviving[c.ProductID]; ok {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	matches, err := s.enrich(ctx, candidates)
	if err != nil {
		return nil, err
	}

	sortMatchList(matches, sortKey)

	total := len(matches)
	pageMatches := paginate(matches, page, pageSize)

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldCount:      total,
	}).Info(ctx, "search completed")

	return &SearchResponse{
		Results:  pageMatches,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Sort:     sortKey,
		Degraded: degraded,
		SearchID: searchID,
	}, nil
}

// normalize validates pagination, sort and filter inputs.
func (s *SearchService) normalize(req *SearchRequest) (page, pageSize int, sortKey string, err error) {
	if f := req.Filters; f != nil && f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return 0, 0, "", domain.NewValidationError("min_price exceeds max_price")
	}
	page = req.Page
	if page < 1 {
		page = 1
	}
	pageSize = req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	sortKey = req.Sort
	if sortKey == "" {
		sortKey = SortRelevance
	}
	if !validSorts[sortKey] {
		return 0, 0, "", domain.NewValidationError("unknown sort option %q", sortKey)
	}
	return page, pageSize, sortKey, nil
}

// retrievalOutcome carries one strategy's results across the errgroup.
type retrievalOutcome struct {
	source  MatchSource
	results []scoredCandidate
	err     error
}

// vectorFiltersFrom projects the payload-backed dimensions of a filter
// set onto the vector indexes. Category, option and stock constraints
// are not in the payload; those wait for the database post-filter.
func vectorFiltersFrom(filter *repository.ProductFilter) *repository.VectorFilters {
	if filter.IsZero() {
		return nil
	}
	vf := &repository.VectorFilters{
		Vendors:      filter.Vendors,
		ProductTypes: filter.ProductTypes,
		MinPrice:     filter.MinPrice,
		MaxPrice:     filter.MaxPrice,
	}
	if len(vf.Vendors) == 0 && len(vf.ProductTypes) == 0 && vf.MinPrice == nil && vf.MaxPrice == nil {
		return nil
	}
	return vf
}

// retrieve fans out to the applicable strategies and fuses their output.
func (s *SearchService) retrieve(ctx context.Context, query string, imageData []byte, imageFormat string, hasText, hasImage bool, vf *repository.VectorFilters) ([]scoredCandidate, []string, error) {
	var (
		mu       sync.Mutex
		outcomes []retrievalOutcome
	)
	record := func(o retrievalOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	if hasText {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.retrievalTimeout)
			defer cancel()
			results, err := s.vectorSearch(cctx, s.textIndex, vf, func(c context.Context) ([]float32, error) {
				return s.embedder.EmbedQuery(c, query)
			}, SourceVectorText)
			record(retrievalOutcome{source: SourceVectorText, results: results, err: err})
			return nil
		})
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.retrievalTimeout)
			defer cancel()
			kws, err := s.products.KeywordSearch(cctx, query, s.keywordLimit)
			var results []scoredCandidate
			for _, kw := range kws {
				results = append(results, scoredCandidate{ProductID: kw.ProductID, Score: kw.Score, Source: SourceKeyword})
			}
			record(retrievalOutcome{source: SourceKeyword, results: results, err: err})
			return nil
		})
	}
	if hasImage {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.retrievalTimeout)
			defer cancel()
			results, err := s.vectorSearch(cctx, s.imageIndex, vf, func(c context.Context) ([]float32, error) {
				vec, caption, err := s.imageEmbedder.EmbedImage(c, imageData, imageFormat)
				if err == nil {
					logger.CtxDebug(c, "image captioned as %q", caption)
				}
				return vec, err
			}, SourceVectorImage)
			record(retrievalOutcome{source: SourceVectorImage, results: results, err: err})
			return nil
		})
	}

	_ = g.Wait()

	bySource := make(map[MatchSource][]scoredCandidate, len(outcomes))
	var degraded []string
	for _, o := range outcomes {
		if o.err != nil {
			s.log(ctx).WithError(o.err).WithField(logger.FieldSource, string(o.source)).
				Warn("retrieval source failed")
			degraded = append(degraded, string(o.source))
			continue
		}
		bySource[o.source] = o.results
	}
	sort.Strings(degraded)

	// An image-only search has a single viable source; without it there
	// is nothing to serve.
	if hasImage && !hasText {
		if _, ok := bySource[SourceVectorImage]; !ok {
			return nil, nil, domain.NewSearchUnavailableError("image search backend unavailable", nil)
		}
	}
	if len(bySource) == 0 {
		return nil, nil, domain.NewSearchUnavailableError("all retrieval sources unavailable", nil)
	}

	fused := fuseCandidates(bySource[SourceVectorText], bySource[SourceVectorImage], bySource[SourceKeyword], hasText && hasImage)
	return fused, degraded, nil
}

// vectorSearch embeds the query and hits one vector index, converting
// results to candidates above the score threshold. The payload filter
// narrows retrieval; the database post-filter remains authoritative.
func (s *SearchService) vectorSearch(ctx context.Context, index VectorSearcher, vf *repository.VectorFilters, embed func(context.Context) ([]float32, error), source MatchSource) ([]scoredCandidate, error) {
	vector, err := embed(ctx)
	if err != nil {
		return nil, err
	}
	results, err := index.Search(ctx, vector, s.vectorTopK, vf)
	if err != nil {
		return nil, err
	}
	candidates := make([]scoredCandidate, 0, len(results))
	for _, r := range results {
		if r.Payload == nil || r.Payload.ProductID == 0 {
			continue
		}
		if r.Score < s.scoreThreshold {
			continue
		}
		candidates = append(candidates, scoredCandidate{
			ProductID: r.Payload.ProductID,
			Score:     r.Score,
			Source:    source,
		})
	}
	return candidates, nil
}

// fuseCandidates merges the per-source candidate lists into one ranked
// list. Products found by both vector indexes in a combined search are
// promoted to vector_combined, keeping the text score as primary. Each
// product appears once with its highest-priority source; within equal
// priority the higher score wins.
func fuseCandidates(textHits, imageHits, keywordHits []scoredCandidate, combined bool) []scoredCandidate {
	var groups [][]scoredCandidate

	if combined {
		imageByID := make(map[uint]scoredCandidate, len(imageHits))
		for _, c := range imageHits {
			if prev, ok := imageByID[c.ProductID]; !ok || c.Score > prev.Score {
				imageByID[c.ProductID] = c
			}
		}
		var both, textOnly []scoredCandidate
		for _, c := range textHits {
			if _, ok := imageByID[c.ProductID]; ok {
				both = append(both, scoredCandidate{ProductID: c.ProductID, Score: c.Score, Source: SourceVectorCombined})
			} else {
				textOnly = append(textOnly, c)
			}
		}
		var imageOnly []scoredCandidate
		seenBoth := make(map[uint]struct{}, len(both))
		for _, c := range both {
			seenBoth[c.ProductID] = struct{}{}
		}
		for _, c := range imageHits {
			if _, ok := seenBoth[c.ProductID]; !ok {
				imageOnly = append(imageOnly, c)
			}
		}
		groups = [][]scoredCandidate{both, textOnly, imageOnly, keywordHits}
	} else {
		groups = [][]scoredCandidate{textHits, imageHits, keywordHits}
	}

	var fused []scoredCandidate
	best := make(map[uint]int) // product ID -> index in fused
	for _, group := range groups {
		// Stable order within a group: descending score.
		sort.SliceStable(group, func(i, j int) bool { return group[i].Score > group[j].Score })
		for _, c := range group {
			if idx, ok := best[c.ProductID]; ok {
				prev := fused[idx]
				if sourcePriority(c.Source) == sourcePriority(prev.Source) && c.Score > prev.Score {
					fused[idx].Score = c.Score
				}
				continue
			}
			best[c.ProductID] = len(fused)
			fused = append(fused, c)
		}
	}
	return fused
}

// enrich loads product rows for the candidates, dropping any that have
// vanished from the catalog since indexing.
func (s *SearchService) enrich(ctx context.Context, candidates []scoredCandidate) ([]Match, error) {
	if len(candidates) == 0 {
		return []Match{}, nil
	}
	ids := make([]uint, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ProductID
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*domain.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		p, ok := byID[c.ProductID]
		if !ok {
			continue
		}
		matches = append(matches, productMatch(p, c.Score, c.Source))
	}
	return matches, nil
}

func productMatch(p *domain.Product, score float32, source MatchSource) Match {
	return Match{
		ID:          p.ID,
		Title:       p.Title,
		Handle:      p.Handle,
		Description: p.Description,
		Price:       p.Price,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		ImageURL:    p.PrimaryImageURL(),
		Score:       score,
		Source:      source,
	}
}

// browse serves the no-query path straight from the database.
func (s *SearchService) browse(ctx context.Context, filter *repository.ProductFilter, sortKey string, page, pageSize int, searchID string) (*SearchResponse, error) {
	dbSort := sortKey
	if dbSort == SortRelevance {
		dbSort = SortNewest
	}
	products, total, err := s.products.Browse(ctx, filter, dbSort, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(products))
	for i := range products {
		matches = append(matches, productMatch(&products[i], 0, SourceFallback))
	}
	return &SearchResponse{
		Results:  matches,
		Total:    int(total),
		Page:     page,
		PageSize: pageSize,
		Sort:     sortKey,
		SearchID: searchID,
	}, nil
}

// sortMatchList reorders matches for non-relevance sorts. Relevance
// keeps the fused ranking untouched.
func sortMatchList(matches []Match, sortKey string) {
	switch sortKey {
	case SortPriceAsc:
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Price < matches[j].Price })
	case SortPriceDesc:
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Price > matches[j].Price })
	case SortNameAsc:
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Title < matches[j].Title })
	case SortNameDesc:
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Title > matches[j].Title })
	case SortNewest:
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].ID > matches[j].ID })
	}
}

// paginate slices the window [(page-1)*size, page*size) out of matches.
func paginate(matches []Match, page, pageSize int) []Match {
	startIdx := (page - 1) * pageSize
	if startIdx >= len(matches) {
		return []Match{}
	}
	endIdx := startIdx + pageSize
	if endIdx > len(matches) {
		endIdx = len(matches)
	}
	return matches[startIdx:endIdx]
}
