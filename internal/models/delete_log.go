package models

import "time"

// DeleteLog records a property whose history was purged from the snapshot store
type DeleteLog struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID    string     `gorm:"type:varchar(64);not null;index" json:"property_id"`
	Name          string     `gorm:"type:text" json:"name"`
	SnapshotCount int        `gorm:"not null;default:0" json:"snapshot_count"`
	RemovedAt     *time.Time `json:"removed_at,omitempty"`
	DeletedAt     time.Time  `gorm:"not null;index" json:"deleted_at"`
	Reason        string     `gorm:"type:varchar(50);not null" json:"reason"`
}

// TableName specifies the table name
func (DeleteLog) TableName() string {
	return "delete_logs"
}

// DeleteReason constants
const (
	DeleteReasonExpired   = "expired_retention"
	DeleteReasonManual    = "manual_deletion"
	DeleteReasonDataClean = "data_cleanup"
)
