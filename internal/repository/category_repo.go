package repository

import (
	"context"
	"errors"

	"github.com/calvin/shopsearch/internal/domain"
	"gorm.io/gorm"
)

// CategoryRepository handles category data operations.
type CategoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a new CategoryRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CategoryRepository: repository instance bound to db.
func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a new category record.
func (r *CategoryRepository) Create(ctx context.Context, category *domain.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

// Update saves an existing category record.
func (r *CategoryRepository) Update(ctx context.Context, category *domain.Category) error {
	return r.db.WithContext(ctx).Save(category).Error
}

// Delete removes a category. Products keep existing; only the join rows
// and the category itself are removed. Child categories are reparented
// to the deleted category's parent.
func (r *CategoryRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cat domain.Category
		if err := tx.First(&cat, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NewNotFoundError("category %d not found", id)
			}
			return err
		}
		if err := tx.Model(&domain.Category{}).
			Where("parent_id = ?", id).
			Update("parent_id", cat.ParentID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM product_categories WHERE category_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Category{}, id).Error
	})
}

// GetByID retrieves a category by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: category ID.
// Returns:
//   - *domain.Category: category record if found.
//   - error: KindNotFound if no such category, otherwise the DB error.
func (r *CategoryRepository) GetByID(ctx context.Context, id uint) (*domain.Category, error) {
	var cat domain.Category
	if err := r.db.WithContext(ctx).First(&cat, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("category %d not found", id)
		}
		return nil, err
	}
	return &cat, nil
}

// GetByHandle retrieves a category by its handle.
func (r *CategoryRepository) GetByHandle(ctx context.Context, handle string) (*domain.Category, error) {
	var cat domain.Category
	if err := r.db.WithContext(ctx).First(&cat, "handle = ?", handle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("category %q not found", handle)
		}
		return nil, err
	}
	return &cat, nil
}

// List returns all categories ordered for display.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - activeOnly: when true, only active categories are returned.
// Returns:
//   - []domain.Category: categories ordered by sort_order then name.
//   - error: non-nil if the query fails.
func (r *CategoryRepository) List(ctx context.Context, activeOnly bool) ([]domain.Category, error) {
	tx := r.db.WithContext(ctx).Order("sort_order ASC, name ASC")
	if activeOnly {
		tx = tx.Where("is_active = ?", true)
	}
	var cats []domain.Category
	if err := tx.Find(&cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}
