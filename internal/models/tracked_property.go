package models

import "time"

// TrackedPropertyStatus represents whether a property is still in the catalog
type TrackedPropertyStatus string

const (
	TrackedStatusActive  TrackedPropertyStatus = "active"
	TrackedStatusRemoved TrackedPropertyStatus = "removed"
)

// TrackedProperty is the snapshot store's record of a catalog property.
// It outlives the property in the backend so removals can be detected.
type TrackedProperty struct {
	ID        string                `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string                `gorm:"type:text" json:"name"`
	Status    TrackedPropertyStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	FirstSeen time.Time             `gorm:"not null" json:"first_seen"`
	LastSeen  time.Time             `gorm:"not null;index" json:"last_seen"`
	RemovedAt *time.Time            `gorm:"index" json:"removed_at,omitempty"`
}

// TableName specifies the table name
func (TrackedProperty) TableName() string {
	return "tracked_properties"
}
