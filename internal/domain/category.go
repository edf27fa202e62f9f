package domain

import "time"

// Category represents a catalog category. Categories form a tree through
// ParentID and are attached to products via a many-to-many join table.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Handle    string    `gorm:"type:text;uniqueIndex:idx_categories_handle" json:"handle"`
	ParentID  *uint     `gorm:"index:idx_categories_parent" json:"parent_id,omitempty"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string {
	return "categories"
}
