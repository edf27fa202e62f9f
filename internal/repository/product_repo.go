package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/calvin/shopsearch/internal/domain"
	"gorm.io/gorm"
)

// ProductFilter narrows a product set along the catalog dimensions.
// Dimensions combine with AND; values within one dimension combine with OR.
// Zero-valued fields are ignored.
type ProductFilter struct {
	CategoryIDs  []uint
	Vendors      []string
	ProductTypes []string
	// Options maps an option name (e.g. "Color") to accepted values.
	Options  map[string][]string
	MinPrice *float64
	MaxPrice *float64
	// Stock is "", "in_stock" or "out_of_stock".
	Stock  string
	Status string
}

// IsZero reports whether the filter has no active dimensions.
func (f *ProductFilter) IsZero() bool {
	return f == nil || (len(f.CategoryIDs) == 0 && len(f.Vendors) == 0 &&
		len(f.ProductTypes) == 0 && len(f.Options) == 0 &&
		f.MinPrice == nil && f.MaxPrice == nil && f.Stock == "" && f.Status == "")
}

// KeywordMatch is one row of a keyword search with its relevance score.
type KeywordMatch struct {
	ProductID uint
	Score     float32
}

// ProductRepository handles product data operations.
type ProductRepository struct {
	db *gorm.DB
	// untrackedInStock controls whether products that do not track
	// inventory count as in stock.
	untrackedInStock bool
}

// NewProductRepository creates a new ProductRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//   - untrackedInStock: stock-filter behavior for untracked products.
// Returns:
//   - *ProductRepository: repository instance bound to db.
func NewProductRepository(db *gorm.DB, untrackedInStock bool) *ProductRepository {
	return &ProductRepository{db: db, untrackedInStock: untrackedInStock}
}

// Create inserts a new product with its associations.
func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// Update saves an existing product. Associations already loaded on the
// struct are saved along with it.
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(product).Error
}

// Delete removes a product and its dependent rows.
func (r *ProductRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&domain.Variant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&domain.ProductOption{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&domain.ProductImage{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM product_categories WHERE product_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Product{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NewNotFoundError("product %d not found", id)
		}
		return nil
	})
}

// GetByID retrieves a product with all its associations.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: product ID.
// Returns:
//   - *domain.Product: product record if found.
//   - error: KindNotFound if no such product, otherwise the DB error.
func (r *ProductRepository) GetByID(ctx context.Context, id uint) (*domain.Product, error) {
	var product domain.Product
	err := r.preloaded(ctx).First(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("product %d not found", id)
		}
		return nil, err
	}
	return &product, nil
}

// GetByIDs retrieves products for the given IDs with associations loaded.
// The result order is unspecified; callers that care about order must
// reorder against their ID list.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []uint) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []domain.Product
	if err := r.preloaded(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *ProductRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Categories")
}

// AddImage attaches an image row to a product.
func (r *ProductRepository) AddImage(ctx context.Context, image *domain.ProductImage) error {
	return r.db.WithContext(ctx).Create(image).Error
}

// DeleteImage removes one image row of a product.
func (r *ProductRepository) DeleteImage(ctx context.Context, productID, imageID uint) (*domain.ProductImage, error) {
	var img domain.ProductImage
	err := r.db.WithContext(ctx).
		First(&img, "id = ? AND product_id = ?", imageID, productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("image %d not found on product %d", imageID, productID)
		}
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&img).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

// ReplaceOptionsAndVariants swaps a product's option and variant rows
// for the given sets in one transaction. Incoming rows get the product
// ID assigned; rows carrying an ID from reconciliation are updated in
// place, the rest are inserted fresh.
func (r *ProductRepository) ReplaceOptionsAndVariants(ctx context.Context, productID uint, options []domain.ProductOption, variants []domain.Variant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", productID).Delete(&domain.ProductOption{}).Error; err != nil {
			return err
		}
		keep := make([]uint, 0, len(variants))
		for _, v := range variants {
			if v.ID != 0 {
				keep = append(keep, v.ID)
			}
		}
		del := tx.Where("product_id = ?", productID)
		if len(keep) > 0 {
			del = del.Where("id NOT IN ?", keep)
		}
		if err := del.Delete(&domain.Variant{}).Error; err != nil {
			return err
		}
		for i := range options {
			options[i].ProductID = productID
			options[i].ID = 0
			if err := tx.Create(&options[i]).Error; err != nil {
				return err
			}
		}
		for i := range variants {
			variants[i].ProductID = productID
			if err := tx.Save(&variants[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceCategories resets a product's category assignments.
func (r *ProductRepository) ReplaceCategories(ctx context.Context, product *domain.Product, categoryIDs []uint) error {
	cats := make([]domain.Category, len(categoryIDs))
	for i, id := range categoryIDs {
		cats[i] = domain.Category{ID: id}
	}
	return r.db.WithContext(ctx).Model(product).Association("Categories").Replace(cats)
}

// KeywordSearch performs a lexical search over the product catalog.
// The query is matched as a whole phrase and term by term against title,
// description, tags, vendor, product type and SKU. Scores favor phrase
// hits in the title, then phrase hits elsewhere, then per-term coverage.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: raw user query.
//   - limit: maximum number of matches to return.
// Returns:
//   - []KeywordMatch: matches ordered by descending score.
//   - error: non-nil if the lookup fails.
func (r *ProductRepository) KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	terms := strings.Fields(strings.ToLower(query))

	// One OR-chained LIKE block per term keeps the candidate set recall
	// oriented; precise ranking happens in Go below.
	tx := r.db.WithContext(ctx).Model(&domain.Product{}).Where("status = ?", domain.ProductStatusActive)
	var or *gorm.DB
	for _, term := range terms {
		pat := "%" + term + "%"
		cond := r.db.Where(
			"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ? OR LOWER(vendor) LIKE ? OR LOWER(product_type) LIKE ? OR LOWER(sku_code) LIKE ?",
			pat, pat, pat, pat, pat, pat,
		)
		if or == nil {
			or = cond
		} else {
			or = or.Or(cond)
		}
	}
	tx = tx.Where(or)

	var rows []struct {
		ID          uint
		Title       string
		Description string
		Tags        string
		Vendor      string
		ProductType string
		SKUCode     string `gorm:"column:sku_code"`
	}
	if err := tx.Select("id, title, description, tags, vendor, product_type, sku_code").
		Limit(limit * 4).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	phrase := strings.ToLower(query)
	matches := make([]KeywordMatch, 0, len(rows))
	for _, row := range rows {
		title := strings.ToLower(row.Title)
		rest := strings.ToLower(row.Description + " " + row.Tags + " " + row.Vendor + " " + row.ProductType + " " + row.SKUCode)

		var score float32
		switch {
		case title == phrase:
			score = 1.0
		case strings.Contains(title, phrase):
			score = 0.9
		case strings.Contains(rest, phrase):
			score = 0.7
		default:
			// Partial term coverage, scaled into (0, 0.6].
			hit := 0
			for _, term := range terms {
				if strings.Contains(title, term) || strings.Contains(rest, term) {
					hit++
				}
			}
			if hit == 0 {
				continue
			}
			score = 0.6 * float32(hit) / float32(len(terms))
		}
		matches = append(matches, KeywordMatch{ProductID: row.ID, Score: score})
	}

	sortMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// sortMatches orders matches by descending score, ties by ascending ID
// for deterministic output.
func sortMatches(matches []KeywordMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ProductID < matches[j].ProductID
	})
}

// FilterCandidates returns the subset of the given product IDs that
// satisfy the filter. The result is a set; candidate ordering is the
// caller's concern.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: candidate product IDs.
//   - filter: dimensions to apply.
// Returns:
//   - map[uint]struct{}: surviving product IDs.
//   - error: non-nil if the query fails.
func (r *ProductRepository) FilterCandidates(ctx context.Context, ids []uint, filter *ProductFilter) (map[uint]struct{}, error) {
	if len(ids) == 0 {
		return map[uint]struct{}{}, nil
	}
	tx := r.db.WithContext(ctx).Model(&domain.Product{}).Where("id IN ?", ids)
	tx = r.applyFilter(tx, filter)

	var surviving []uint
	if err := tx.Pluck("id", &surviving).Error; err != nil {
		return nil, fmt.Errorf("candidate filtering failed: %w", err)
	}
	out := make(map[uint]struct{}, len(surviving))
	for _, id := range surviving {
		out[id] = struct{}{}
	}
	return out, nil
}

// Browse lists products matching the filter with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: dimensions to apply; nil means all products.
//   - sort: one of price_asc, price_desc, name_asc, name_desc, newest;
//     anything else falls back to newest.
//   - limit, offset: pagination window.
// Returns:
//   - []domain.Product: page of products with associations loaded.
//   - int64: total count before pagination.
//   - error: non-nil if the query fails.
func (r *ProductRepository) Browse(ctx context.Context, filter *ProductFilter, sort string, limit, offset int) ([]domain.Product, int64, error) {
	var total int64
	countTx := r.applyFilter(r.db.WithContext(ctx).Model(&domain.Product{}), filter)
	if err := countTx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("product count failed: %w", err)
	}

	var ids []uint
	pageTx := r.applyFilter(r.db.WithContext(ctx).Model(&domain.Product{}), filter)
	if err := pageTx.Order(orderClause(sort)).Limit(limit).Offset(offset).Pluck("id", &ids).Error; err != nil {
		return nil, 0, fmt.Errorf("product browse failed: %w", err)
	}
	products, err := r.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	// Preserve the sort order of the ID page.
	byID := make(map[uint]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	ordered := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, total, nil
}

// ListAll streams the full active catalog in batches of batchSize,
// invoking fn for each batch. Used by the vector indexer.
func (r *ProductRepository) ListAll(ctx context.Context, batchSize int, fn func(batch []domain.Product) error) error {
	var batch []domain.Product
	result := r.preloaded(ctx).
		Where("status = ?", domain.ProductStatusActive).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	return result.Error
}

// Count returns the number of products matching the filter.
func (r *ProductRepository) Count(ctx context.Context, filter *ProductFilter) (int64, error) {
	var total int64
	tx := r.db.WithContext(ctx).Model(&domain.Product{})
	tx = r.applyFilter(tx, filter)
	if err := tx.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// ListOptions returns the option rows of all active products. The facet
// provider aggregates value counts from these in memory.
func (r *ProductRepository) ListOptions(ctx context.Context) ([]domain.ProductOption, error) {
	var options []domain.ProductOption
	err := r.db.WithContext(ctx).
		Joins("JOIN products ON products.id = product_options.product_id AND products.status = ?", domain.ProductStatusActive).
		Find(&options).Error
	if err != nil {
		return nil, err
	}
	return options, nil
}

// VendorCounts returns per-vendor active product counts.
func (r *ProductRepository) VendorCounts(ctx context.Context) (map[string]int64, error) {
	return r.groupCounts(ctx, "vendor")
}

// ProductTypeCounts returns per-type active product counts.
func (r *ProductRepository) ProductTypeCounts(ctx context.Context) (map[string]int64, error) {
	return r.groupCounts(ctx, "product_type")
}

func (r *ProductRepository) groupCounts(ctx context.Context, column string) (map[string]int64, error) {
	var rows []struct {
		Value string
		Total int64
	}
	err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Select(column+" AS value, COUNT(*) AS total").
		Where("status = ?", domain.ProductStatusActive).
		Where(column+" != ''").
		Group(column).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Value] = row.Total
	}
	return out, nil
}

// CategoryCounts returns per-category active product counts keyed by
// category ID.
func (r *ProductRepository) CategoryCounts(ctx context.Context) (map[uint]int64, error) {
	var rows []struct {
		CategoryID uint
		Total      int64
	}
	err := r.db.WithContext(ctx).
		Table("product_categories").
		Select("product_categories.category_id AS category_id, COUNT(*) AS total").
		Joins("JOIN products ON products.id = product_categories.product_id AND products.status = ?", domain.ProductStatusActive).
		Group("product_categories.category_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, row := range rows {
		out[row.CategoryID] = row.Total
	}
	return out, nil
}

// PriceRange returns the min and max price over active products.
func (r *ProductRepository) PriceRange(ctx context.Context) (float64, float64, error) {
	var row struct {
		Min float64
		Max float64
	}
	err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Select("COALESCE(MIN(price), 0) AS min, COALESCE(MAX(price), 0) AS max").
		Where("status = ?", domain.ProductStatusActive).
		Find(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Min, row.Max, nil
}

// applyFilter translates a ProductFilter into WHERE conditions.
func (r *ProductRepository) applyFilter(tx *gorm.DB, filter *ProductFilter) *gorm.DB {
	if filter == nil {
		return tx.Where("status = ?", domain.ProductStatusActive)
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	} else {
		tx = tx.Where("status = ?", domain.ProductStatusActive)
	}
	if len(filter.CategoryIDs) > 0 {
		tx = tx.Where("id IN (SELECT product_id FROM product_categories WHERE category_id IN ?)", filter.CategoryIDs)
	}
	if len(filter.Vendors) > 0 {
		tx = tx.Where("vendor IN ?", filter.Vendors)
	}
	if len(filter.ProductTypes) > 0 {
		tx = tx.Where("product_type IN ?", filter.ProductTypes)
	}
	if filter.MinPrice != nil {
		tx = tx.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		tx = tx.Where("price <= ?", *filter.MaxPrice)
	}
	for name, values := range filter.Options {
		if len(values) == 0 {
			continue
		}
		// A product matches when it has an option with this name and at
		// least one variant carrying an accepted value in that option's
		// positional slot.
		tx = tx.Where(`EXISTS (
			SELECT 1 FROM product_options po
			JOIN variants v ON v.product_id = po.product_id
			WHERE po.product_id = products.id AND po.name = ?
			AND ((po.position = 1 AND v.option1 IN ?)
			  OR (po.position = 2 AND v.option2 IN ?)
			  OR (po.position = 3 AND v.option3 IN ?)))`,
			name, values, values, values)
	}
	switch filter.Stock {
	case "in_stock":
		if r.untrackedInStock {
			tx = tx.Where("track_quantity = ? OR quantity > 0", false)
		} else {
			tx = tx.Where("track_quantity = ? AND quantity > 0", true)
		}
	case "out_of_stock":
		if r.untrackedInStock {
			tx = tx.Where("track_quantity = ? AND quantity <= 0", true)
		} else {
			tx = tx.Where("track_quantity = ? OR quantity <= 0", false)
		}
	}
	return tx
}

// orderClause maps a sort key to an ORDER BY clause.
func orderClause(sort string) string {
	switch sort {
	case "price_asc":
		return "price ASC, id ASC"
	case "price_desc":
		return "price DESC, id ASC"
	case "name_asc":
		return "title ASC, id ASC"
	case "name_desc":
		return "title DESC, id ASC"
	default: // newest, relevance outside of a search
		return "created_at DESC, id DESC"
	}
}
