package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ProductStatus represents the lifecycle status of a product.
// Values include ProductStatusActive, ProductStatusDraft, and ProductStatusArchived.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusDraft    ProductStatus = "draft"
	ProductStatusArchived ProductStatus = "archived"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Product represents a catalog product (SKU) in the system.
// Fields include identifiers, merchandising metadata, pricing, inventory,
// and the authored options/variants.
type Product struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	Title          string        `gorm:"type:text;not null" json:"title"`
	Handle         string        `gorm:"type:text;uniqueIndex:idx_products_handle" json:"handle"`
	Description    string        `gorm:"type:text" json:"description"`
	BodyHTML       string        `gorm:"type:text" json:"body_html,omitempty"`
	Vendor         string        `gorm:"type:text;index:idx_products_vendor" json:"vendor"`
	ProductType    string        `gorm:"type:text;index:idx_products_type" json:"product_type"`
	Tags           StringArray   `gorm:"type:text" json:"tags"`
	Status         ProductStatus `gorm:"type:text;index:idx_products_status;default:active" json:"status"`
	Price          float64       `json:"price"`
	CompareAtPrice *float64      `json:"compare_at_price,omitempty"`
	SKUCode        string        `gorm:"column:sku_code;type:text" json:"sku_code"`
	Barcode        string        `gorm:"type:text" json:"barcode"`
	TrackQuantity  bool          `gorm:"default:true" json:"track_quantity"`
	Quantity       int           `gorm:"default:0" json:"quantity"`
	Weight         *float64      `json:"weight,omitempty"`
	WeightUnit     string        `gorm:"type:text;default:kg" json:"weight_unit,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	Images     []ProductImage  `gorm:"constraint:OnDelete:CASCADE" json:"images"`
	Options    []ProductOption `gorm:"constraint:OnDelete:CASCADE" json:"options"`
	Variants   []Variant       `gorm:"constraint:OnDelete:CASCADE" json:"variants"`
	Categories []Category      `gorm:"many2many:product_categories" json:"categories"`
}

// TableName returns the database table name for Product.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Product) TableName() string {
	return "products"
}

// PrimaryImageURL returns the URL of the first image by position, or "".
func (p *Product) PrimaryImageURL() string {
	if len(p.Images) == 0 {
		return ""
	}
	best := p.Images[0]
	for _, img := range p.Images[1:] {
		if img.Position < best.Position {
			best = img
		}
	}
	return best.URL
}

// ProductImage represents one image attached to a product.
type ProductImage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProductID  uint      `gorm:"not null;index:idx_product_images_product" json:"product_id"`
	URL        string    `gorm:"type:text;not null" json:"url"`
	StorageKey string    `gorm:"type:text" json:"storage_key,omitempty"`
	AltText    string    `gorm:"type:text" json:"alt_text,omitempty"`
	Position   int       `gorm:"default:0" json:"position"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for ProductImage.
func (ProductImage) TableName() string {
	return "product_images"
}
