package models

import "time"

// ManifestEntry tracks the content hash of one project file for the manifest
// ledger. CommittedHash is the last reported content; StagedHash is set when a
// newer content was staged but not yet committed.
type ManifestEntry struct {
	Path          string `gorm:"primaryKey;size:512"`
	CommittedHash string `gorm:"size:64"`
	StagedHash    string `gorm:"size:64"`
	UpdatedAt     time.Time
}

// ManifestCommit is one atomic commit of staged manifest entries.
type ManifestCommit struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Message   string `gorm:"type:text"`
	Paths     int
	CreatedAt time.Time
}
