package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calvin/shopsearch/internal/domain"
	"github.com/calvin/shopsearch/internal/logger"
	"github.com/calvin/shopsearch/internal/repository"
)

// vectorIndex is the write capability the indexer needs per collection.
type vectorIndex interface {
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.ProductPayload) error
	Delete(ctx context.Context, pointID string) error
}

// batchEmbedder embeds product documents for the text collection.
type batchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// imageCaptioner captions a stored product image by URL.
type imageCaptioner interface {
	CaptionURL(ctx context.Context, url string) (string, error)
}

// IndexerConfig holds indexer tuning knobs.
type IndexerConfig struct {
	Workers   int
	BatchSize int
}

// IndexerService maintains the two vector collections. Text points embed
// a composed product document; image points embed a vision caption of
// the product's primary image.
type IndexerService struct {
	products  *repository.ProductRepository
	textIndex vectorIndex
	// imageIndex may be nil when the image pipeline is disabled.
	imageIndex vectorIndex
	embedder   batchEmbedder
	captioner  imageCaptioner
	logger     *logger.Logger
	workers    int
	batchSize  int
}

// NewIndexerService creates a new indexer service.
// Parameters:
//   - products: product repository.
//   - textIndex, imageIndex: vector collections to maintain.
//   - embedder: text embedder.
//   - captioner: vision captioner for image points.
//   - log: logger instance.
//   - cfg: worker and batch sizing, nil for defaults.
// Returns:
//   - *IndexerService: initialized indexer.
func NewIndexerService(
	products *repository.ProductRepository,
	textIndex vectorIndex,
	imageIndex vectorIndex,
	embedder batchEmbedder,
	captioner imageCaptioner,
	log *logger.Logger,
	cfg *IndexerConfig,
) *IndexerService {
	s := &IndexerService{
		products:   products,
		textIndex:  textIndex,
		imageIndex: imageIndex,
		embedder:   embedder,
		captioner:  captioner,
		logger:     log,
		workers:    5,
		batchSize:  50,
	}
	if cfg != nil {
		if cfg.Workers > 0 {
			s.workers = cfg.Workers
		}
		if cfg.BatchSize > 0 {
			s.batchSize = cfg.BatchSize
		}
	}
	return s
}

// TextPointID returns the deterministic point ID for a product's text
// vector. Reindexing overwrites rather than duplicates.
func TextPointID(productID uint) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("product:%d:text", productID))).String()
}

// ImagePointID returns the deterministic point ID for a product's image
// vector.
func ImagePointID(productID uint) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("product:%d:image", productID))).String()
}

// BuildProductDocument composes the text that represents a product in
// the text collection.
func BuildProductDocument(p *domain.Product) string {
	segments := make([]string, 0, 6)
	segments = append(segments, p.Title)
	if p.Description != "" {
		segments = append(segments, p.Description)
	}
	if len(p.Tags) > 0 {
		segments = append(segments, strings.Join(p.Tags, " "))
	}
	if p.Vendor != "" {
		segments = append(segments, "vendor: "+p.Vendor)
	}
	if p.ProductType != "" {
		segments = append(segments, "type: "+p.ProductType)
	}
	return strings.Join(segments, "\n")
}

func productPayload(p *domain.Product) *repository.ProductPayload {
	return &repository.ProductPayload{
		ProductID:   p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		ImageURL:    p.PrimaryImageURL(),
	}
}

// IndexProduct refreshes both vector points of one product.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - product: product with associations loaded.
// Returns:
//   - error: non-nil if the text point cannot be written. Image point
//     failures are logged and absorbed.
func (s *IndexerService) IndexProduct(ctx context.Context, product *domain.Product) error {
	if product.Status != domain.ProductStatusActive {
		return s.RemoveProduct(ctx, product.ID)
	}

	vector, err := s.embedder.Embed(ctx, BuildProductDocument(product))
	if err != nil {
		return fmt.Errorf("failed to embed product %d: %w", product.ID, err)
	}
	if err := s.textIndex.Upsert(ctx, TextPointID(product.ID), vector, productPayload(product)); err != nil {
		return err
	}

	if err := s.indexImage(ctx, product); err != nil {
		s.logger.WithError(err).WithField(logger.FieldProductID, product.ID).
			Warn("failed to index product image")
	}
	return nil
}

// indexImage writes the image point for a product, or removes it when
// the product has no image.
func (s *IndexerService) indexImage(ctx context.Context, product *domain.Product) error {
	if s.imageIndex == nil || s.captioner == nil {
		return nil
	}
	imageURL := product.PrimaryImageURL()
	if imageURL == "" {
		// Stale point from a deleted image.
		return s.imageIndex.Delete(ctx, ImagePointID(product.ID))
	}
	caption, err := s.captioner.CaptionURL(ctx, imageURL)
	if err != nil {
		return err
	}
	vector, err := s.embedder.Embed(ctx, caption)
	if err != nil {
		return err
	}
	return s.imageIndex.Upsert(ctx, ImagePointID(product.ID), vector, productPayload(product))
}

// RemoveProduct deletes a product's points from both collections.
func (s *IndexerService) RemoveProduct(ctx context.Context, productID uint) error {
	if err := s.textIndex.Delete(ctx, TextPointID(productID)); err != nil {
		return err
	}
	if s.imageIndex != nil {
		return s.imageIndex.Delete(ctx, ImagePointID(productID))
	}
	return nil
}

// ReindexReport summarizes a full reindex run.
type ReindexReport struct {
	JobID    string        `json:"job_id"`
	Products int           `json:"products"`
	Indexed  int           `json:"indexed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Reindex rebuilds the vector collections from the active catalog.
// Text embeddings run batched; image captioning fans out over a bounded
// worker pool. Per-product failures are counted, not fatal.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *ReindexReport: counts for the run.
//   - error: non-nil only if the catalog cannot be read at all.
func (s *IndexerService) Reindex(ctx context.Context) (*ReindexReport, error) {
	start := time.Now()
	jobID := uuid.NewString()
	ctx = logger.SetJobID(ctx, jobID)

	var total, indexed, failed int64

	err := s.products.ListAll(ctx, s.batchSize, func(batch []domain.Product) error {
		atomic.AddInt64(&total, int64(len(batch)))

		docs := make([]string, len(batch))
		for i := range batch {
			docs[i] = BuildProductDocument(&batch[i])
		}
		vectors, err := s.embedder.EmbedBatch(ctx, docs)
		if err != nil {
			// The whole batch is lost; count and move on to the next.
			atomic.AddInt64(&failed, int64(len(batch)))
			s.logger.WithError(err).Warn("failed to embed product batch")
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for i := range batch {
			product := &batch[i]
			vector := vectors[i]
			g.Go(func() error {
				if err := s.textIndex.Upsert(gctx, TextPointID(product.ID), vector, productPayload(product)); err != nil {
					atomic.AddInt64(&failed, 1)
					s.logger.WithError(err).WithField(logger.FieldProductID, product.ID).
						Warn("failed to upsert text point")
					return nil
				}
				if err := s.indexImage(gctx, product); err != nil {
					s.logger.WithError(err).WithField(logger.FieldProductID, product.ID).
						Warn("failed to index product image")
				}
				atomic.AddInt64(&indexed, 1)
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, fmt.Errorf("reindex failed: %w", err)
	}

	report := &ReindexReport{
		JobID:    jobID,
		Products: int(total),
		Indexed:  int(indexed),
		Failed:   int(failed),
		Duration: time.Since(start),
	}
	logger.With(logger.Fields{
		logger.FieldCount:      report.Indexed,
		logger.FieldDurationMs: report.Duration.Milliseconds(),
	}).Info(ctx, "reindex completed: %d/%d products", report.Indexed, report.Products)
	return report, nil
}
