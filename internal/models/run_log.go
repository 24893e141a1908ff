package models

import "time"

// RunLog records one execution of the daily pipeline.
type RunLog struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	Mode       string     `gorm:"size:16;not null" json:"mode"` // "generate" or "upload"
	Orderers   int        `json:"orderers"`
	Bundles    int        `json:"bundles"`
	Uploaded   int        `json:"uploaded"`
	Hidden     int        `json:"hidden"`
	Failed     int        `json:"failed"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Succeeded reports whether the run finished without a fatal error.
func (r RunLog) Succeeded() bool {
	return r.FinishedAt != nil && r.Error == ""
}
