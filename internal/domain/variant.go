package domain

import "time"

// MaxProductOptions is the maximum number of options a product may carry.
// The variant model exposes exactly three positional slots (option1..3),
// so authoring more options would produce combinations the downstream
// consumers cannot represent.
const MaxProductOptions = 3

// ProductOption is a named axis of variation (e.g. Size, Color) with an
// ordered list of values. Option order determines which positional slot
// (option1/option2/option3) the generated variants use.
type ProductOption struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	ProductID uint        `gorm:"not null;index:idx_product_options_product" json:"product_id"`
	Name      string      `gorm:"type:text;not null" json:"name"`
	Position  int         `gorm:"default:0" json:"position"`
	Values    StringArray `gorm:"type:text" json:"values"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ProductOption.
func (ProductOption) TableName() string {
	return "product_options"
}

// Variant is one purchasable combination of option values. The variant
// set of a product is always the full cartesian product of its options;
// Title is the option values joined with " / " in option order and is the
// reconciliation key when options are regenerated.
type Variant struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ProductID         uint      `gorm:"not null;index:idx_variants_product" json:"product_id"`
	Title             string    `gorm:"type:text;not null" json:"title"`
	Price             float64   `json:"price"`
	SKUCode           string    `gorm:"column:sku_code;type:text" json:"sku_code"`
	Barcode           string    `gorm:"type:text" json:"barcode"`
	InventoryQuantity int       `gorm:"default:0" json:"inventory_quantity"`
	Option1           string    `gorm:"type:text" json:"option1,omitempty"`
	Option2           string    `gorm:"type:text" json:"option2,omitempty"`
	Option3           string    `gorm:"type:text" json:"option3,omitempty"`
	Position          int       `gorm:"default:0" json:"position"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for Variant.
func (Variant) TableName() string {
	return "variants"
}
