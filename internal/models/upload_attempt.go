package models

import "time"

// UploadAttempt captures the outcome of one report upload to the order portal.
type UploadAttempt struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID      string    `gorm:"size:36;not null;index" json:"run_id"`
	ProjectID  string    `gorm:"size:64;not null;index" json:"project_id"`
	Orderer    string    `gorm:"size:256;index" json:"orderer"`
	ReportRef  string    `gorm:"size:64" json:"report_ref,omitempty"`
	Status     string    `gorm:"size:16" json:"status"` // desired report status: "published" or "review"
	StatusCode int       `json:"status_code"`
	OK         bool      `gorm:"default:false" json:"ok"`
	Reason     string    `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
