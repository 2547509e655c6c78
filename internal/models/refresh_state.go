package models

import "time"

// RefreshState is the single persisted row describing scheduled catalog
// refresh health.
type RefreshState struct {
	ID                  int        `gorm:"primaryKey" json:"id"`
	LastAttempt         time.Time  `gorm:"not null" json:"last_attempt"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	LastError           string     `gorm:"type:text" json:"last_error,omitempty"`
	ConsecutiveFailures int        `gorm:"not null;default:0" json:"consecutive_failures"`
	FailureCount        int        `gorm:"not null;default:0" json:"failure_count"`
	SuccessCount        int        `gorm:"not null;default:0" json:"success_count"`
	LastPropertyCount   int        `gorm:"not null;default:0" json:"last_property_count"`
	LastImageFailures   int        `gorm:"not null;default:0" json:"last_image_failures"`
	CreatedAt           time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (RefreshState) TableName() string {
	return "refresh_state"
}

// RecordSuccess records a refresh that published a catalog
func (s *RefreshState) RecordSuccess(at time.Time, properties, imageFailures int) {
	s.SuccessCount++
	s.ConsecutiveFailures = 0
	s.LastSuccess = &at
	s.LastAttempt = at
	s.LastError = ""
	s.LastPropertyCount = properties
	s.LastImageFailures = imageFailures
}

// RecordFailure records a refresh that could not load the catalog
func (s *RefreshState) RecordFailure(at time.Time, err error) {
	s.FailureCount++
	s.ConsecutiveFailures++
	s.LastAttempt = at
	if err != nil {
		s.LastError = err.Error()
	}
}
