package service

import (
	"bytes"
	"context"
	"strings"
	"unicode"

	"github.com/calvin/shopsearch/internal/domain"
	"github.com/calvin/shopsearch/internal/logger"
	"github.com/calvin/shopsearch/internal/repository"
	"github.com/calvin/shopsearch/internal/storage"
)

// ProductIndexer keeps the vector indexes in step with catalog writes.
type ProductIndexer interface {
	IndexProduct(ctx context.Context, product *domain.Product) error
	RemoveProduct(ctx context.Context, productID uint) error
}

// ProductInput carries the writable fields of a product.
type ProductInput struct {
	Title          string        `json:"title"`
	Handle         string        `json:"handle"`
	Description    string        `json:"description"`
	BodyHTML       string        `json:"body_html"`
	Vendor         string        `json:"vendor"`
	ProductType    string        `json:"product_type"`
	Tags           []string      `json:"tags"`
	Status         string        `json:"status"`
	Price          float64       `json:"price"`
	CompareAtPrice *float64      `json:"compare_at_price"`
	SKUCode        string        `json:"sku_code"`
	Barcode        string        `json:"barcode"`
	TrackQuantity  *bool         `json:"track_quantity"`
	Quantity       int           `json:"quantity"`
	Weight         *float64      `json:"weight"`
	WeightUnit     string        `json:"weight_unit"`
	CategoryIDs    []uint        `json:"category_ids"`
	Options        []OptionInput `json:"options"`
}

// ProductService implements catalog writes: product CRUD with variant
// regeneration, category assignment, image uploads, and vector index
// upkeep.
type ProductService struct {
	products *repository.ProductRepository
	storage  storage.ObjectStorage
	indexer  ProductIndexer
	logger   *logger.Logger
}

// NewProductService creates a new product service.
// Parameters:
//   - products: product repository.
//   - objectStorage: image storage backend.
//   - indexer: vector index hook, may be nil when indexing is disabled.
//   - log: logger instance.
// Returns:
//   - *ProductService: initialized service.
func NewProductService(products *repository.ProductRepository, objectStorage storage.ObjectStorage, indexer ProductIndexer, log *logger.Logger) *ProductService {
	return &ProductService{products: products, storage: objectStorage, indexer: indexer, logger: log}
}

// Get returns a product with all associations.
func (s *ProductService) Get(ctx context.Context, id uint) (*domain.Product, error) {
	return s.products.GetByID(ctx, id)
}

// Create validates the input, generates the variant set and persists the
// product.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - input: writable product fields.
// Returns:
//   - *domain.Product: created product with associations.
//   - error: KindValidation or KindTooManyOptions on bad input.
func (s *ProductService) Create(ctx context.Context, input *ProductInput) (*domain.Product, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, domain.NewValidationError("product title is required")
	}
	status, err := parseStatus(input.Status)
	if err != nil {
		return nil, err
	}

	variants, err := GenerateVariants(input.Options, input.Price, nil)
	if err != nil {
		return nil, err
	}

	handle := strings.TrimSpace(input.Handle)
	if handle == "" {
		handle = Slugify(input.Title)
	}

	product := &domain.Product{
		Title:          strings.TrimSpace(input.Title),
		Handle:         handle,
		Description:    input.Description,
		BodyHTML:       input.BodyHTML,
		Vendor:         strings.TrimSpace(input.Vendor),
		ProductType:    strings.TrimSpace(input.ProductType),
		Tags:           domain.StringArray(input.Tags),
		Status:         status,
		Price:          input.Price,
		CompareAtPrice: input.CompareAtPrice,
		SKUCode:        input.SKUCode,
		Barcode:        input.Barcode,
		TrackQuantity:  true,
		Quantity:       input.Quantity,
		Weight:         input.Weight,
		WeightUnit:     weightUnit(input.WeightUnit),
		Options:        BuildOptions(0, input.Options),
		Variants:       variants,
	}
	if input.TrackQuantity != nil {
		product.TrackQuantity = *input.TrackQuantity
	}

	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}
	if len(input.CategoryIDs) > 0 {
		if err := s.products.ReplaceCategories(ctx, product, input.CategoryIDs); err != nil {
			return nil, err
		}
	}

	ctx = logger.WithField(ctx, logger.FieldProductID, product.ID)
	s.index(ctx, product.ID)
	return s.products.GetByID(ctx, product.ID)
}

// Update applies the input to an existing product. The variant set is
// regenerated from the submitted options; variants whose title matches
// an existing one keep their price, SKU, barcode and inventory.
func (s *ProductService) Update(ctx context.Context, id uint, input *ProductInput) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, domain.NewValidationError("product title is required")
	}
	status, err := parseStatus(input.Status)
	if err != nil {
		return nil, err
	}

	variants, err := GenerateVariants(input.Options, input.Price, product.Variants)
	if err != nil {
		return nil, err
	}
	options := BuildOptions(id, input.Options)

	product.Title = strings.TrimSpace(input.Title)
	if h := strings.TrimSpace(input.Handle); h != "" {
		product.Handle = h
	}
	product.Description = input.Description
	product.BodyHTML = input.BodyHTML
	product.Vendor = strings.TrimSpace(input.Vendor)
	product.ProductType = strings.TrimSpace(input.ProductType)
	product.Tags = domain.StringArray(input.Tags)
	product.Status = status
	product.Price = input.Price
	product.CompareAtPrice = input.CompareAtPrice
	product.SKUCode = input.SKUCode
	product.Barcode = input.Barcode
	if input.TrackQuantity != nil {
		product.TrackQuantity = *input.TrackQuantity
	}
	product.Quantity = input.Quantity
	product.Weight = input.Weight
	product.WeightUnit = weightUnit(input.WeightUnit)

	// Detach association slices so Save does not fight the explicit
	// replacement below.
	product.Options = nil
	product.Variants = nil
	product.Images = nil
	product.Categories = nil

	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}
	if err := s.products.ReplaceOptionsAndVariants(ctx, id, options, variants); err != nil {
		return nil, err
	}
	if err := s.products.ReplaceCategories(ctx, product, input.CategoryIDs); err != nil {
		return nil, err
	}

	ctx = logger.WithField(ctx, logger.FieldProductID, id)
	s.index(ctx, id)
	return s.products.GetByID(ctx, id)
}

// Delete removes a product, its stored images and its index points.
func (s *ProductService) Delete(ctx context.Context, id uint) error {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	for _, img := range product.Images {
		if img.StorageKey == "" {
			continue
		}
		if err := s.storage.Delete(ctx, img.StorageKey); err != nil {
			s.logger.WithError(err).WithField(logger.FieldProductID, id).
				Warn("failed to delete stored image")
		}
	}
	if s.indexer != nil {
		if err := s.indexer.RemoveProduct(ctx, id); err != nil {
			s.logger.WithError(err).WithField(logger.FieldProductID, id).
				Warn("failed to remove product from index")
		}
	}
	return nil
}

// GenerateVariantPreview expands options against a product's current
// variants without persisting anything. Used by the authoring UI to show
// the variant table before save.
func (s *ProductService) GenerateVariantPreview(ctx context.Context, id uint, opts []OptionInput) ([]domain.Variant, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return GenerateVariants(opts, product.Price, product.Variants)
}

// UploadImage validates, normalizes and stores a product image, then
// records it on the product.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - productID: owning product.
//   - data: raw image bytes.
//   - altText: optional alt text.
// Returns:
//   - *domain.ProductImage: stored image row with its public URL.
//   - error: KindValidation for bad payloads, KindNotFound for a missing
//     product.
func (s *ProductService) UploadImage(ctx context.Context, productID uint, data []byte, altText string) (*domain.ProductImage, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if _, err := ValidateImage(data); err != nil {
		return nil, err
	}
	normalized, w, h, err := NormalizeImage(data)
	if err != nil {
		return nil, err
	}

	key := storage.ProductImageKey(productID, "jpg")
	if err := s.storage.Upload(ctx, key, bytes.NewReader(normalized), int64(len(normalized)), "image/jpeg"); err != nil {
		return nil, err
	}

	image := &domain.ProductImage{
		ProductID:  productID,
		URL:        s.storage.GetURL(key),
		StorageKey: key,
		AltText:    altText,
		Position:   len(product.Images) + 1,
		Width:      w,
		Height:     h,
	}
	if err := s.products.AddImage(ctx, image); err != nil {
		return nil, err
	}

	ctx = logger.WithField(ctx, logger.FieldProductID, productID)
	s.index(ctx, productID)
	return image, nil
}

// DeleteImage removes an image row and its stored object.
func (s *ProductService) DeleteImage(ctx context.Context, productID, imageID uint) error {
	img, err := s.products.DeleteImage(ctx, productID, imageID)
	if err != nil {
		return err
	}
	if img.StorageKey != "" {
		if err := s.storage.Delete(ctx, img.StorageKey); err != nil {
			s.logger.WithError(err).WithField(logger.FieldProductID, productID).
				Warn("failed to delete stored image")
		}
	}
	s.index(ctx, productID)
	return nil
}

// index refreshes a product's vector points. Index failures never fail
// the catalog write; the next reindex repairs them.
func (s *ProductService) index(ctx context.Context, productID uint) {
	if s.indexer == nil {
		return
	}
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		s.logger.WithError(err).Warn("failed to reload product for indexing")
		return
	}
	if err := s.indexer.IndexProduct(ctx, product); err != nil {
		s.logger.WithError(err).WithField(logger.FieldProductID, productID).
			Warn("failed to index product")
	}
}

func weightUnit(unit string) string {
	if strings.TrimSpace(unit) == "" {
		return "kg"
	}
	return unit
}

func parseStatus(status string) (domain.ProductStatus, error) {
	switch domain.ProductStatus(status) {
	case domain.ProductStatusActive, domain.ProductStatusDraft, domain.ProductStatusArchived:
		return domain.ProductStatus(status), nil
	case "":
		return domain.ProductStatusActive, nil
	default:
		return "", domain.NewValidationError("unknown product status %q", status)
	}
}

// Slugify lowercases a title and collapses non-alphanumeric runs into
// single hyphens.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
