package models

import "time"

// PropertySnapshot represents a daily snapshot of a property as seen in the catalog
type PropertySnapshot struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID string    `gorm:"type:varchar(64);not null;index:idx_property_date" json:"property_id"`
	SnapshotAt time.Time `gorm:"type:date;not null;index:idx_property_date,priority:2;index:idx_snapshot_date" json:"snapshot_at"`

	// Property state at snapshot time
	Name       string  `gorm:"type:text" json:"name"`
	Address    string  `gorm:"type:text" json:"address"`
	Price      float64 `gorm:"type:decimal(14,2)" json:"price"`
	Year       *int    `gorm:"type:int" json:"year,omitempty"`
	IDOwner    string  `gorm:"type:varchar(64);index" json:"id_owner"`
	ImageCount int     `gorm:"not null;default:0" json:"image_count"`

	// Change detection
	HasChanged bool   `gorm:"default:false" json:"has_changed"`
	ChangeNote string `gorm:"type:text" json:"change_note,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (PropertySnapshot) TableName() string {
	return "property_snapshots"
}

// PropertyChange represents detected changes between snapshots
type PropertyChange struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID      string    `gorm:"type:varchar(64);not null;index" json:"property_id"`
	SnapshotID      uint      `gorm:"not null;default:0" json:"snapshot_id"`
	ChangeType      string    `gorm:"type:varchar(50);not null" json:"change_type"`
	OldValue        string    `gorm:"type:text" json:"old_value,omitempty"`
	NewValue        string    `gorm:"type:text" json:"new_value,omitempty"`
	ChangeMagnitude *float64  `gorm:"type:decimal(14,2)" json:"change_magnitude,omitempty"` // For price changes
	DetectedAt      time.Time `gorm:"not null;index" json:"detected_at"`
}

// TableName specifies the table name
func (PropertyChange) TableName() string {
	return "property_changes"
}

// ChangeType constants
const (
	ChangeTypePrice      = "price_changed"
	ChangeTypeName       = "name_changed"
	ChangeTypeAddress    = "address_changed"
	ChangeTypeOwner      = "owner_changed"
	ChangeTypeImageCount = "image_count_changed"
	ChangeTypeNew        = "new_property"
	ChangeTypeRemoved    = "property_removed"
)
