package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/dailyread/internal/models"
	"gorm.io/gorm"
)

// History writes and reads run outcomes.
type History struct {
	db *gorm.DB
}

// NewHistory returns a History backed by db. The tables must be migrated.
func NewHistory(db *gorm.DB) *History {
	return &History{db: db}
}

// StartRun inserts a new run row and returns it.
func (h *History) StartRun(mode string, startedAt time.Time) (*models.RunLog, error) {
	run := &models.RunLog{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: startedAt,
	}
	if err := h.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("db: start run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final counters of run.
func (h *History) FinishRun(run *models.RunLog, finishedAt time.Time) error {
	run.FinishedAt = &finishedAt
	if err := h.db.Save(run).Error; err != nil {
		return fmt.Errorf("db: finish run %s: %w", run.ID, err)
	}
	return nil
}

// RecordUpload inserts one upload attempt.
func (h *History) RecordUpload(attempt *models.UploadAttempt) error {
	if attempt.RunID == "" {
		return fmt.Errorf("db: upload attempt needs a run id")
	}
	if err := h.db.Create(attempt).Error; err != nil {
		return fmt.Errorf("db: record upload for %s: %w", attempt.ProjectID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (h *History) RecentRuns(limit int) ([]models.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.RunLog
	if err := h.db.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("db: recent runs: %w", err)
	}
	return runs, nil
}

// Run returns a single run by id.
func (h *History) Run(id string) (*models.RunLog, error) {
	var run models.RunLog
	if err := h.db.Where("id = ?", id).First(&run).Error; err != nil {
		return nil, fmt.Errorf("db: run %s: %w", id, err)
	}
	return &run, nil
}

// Uploads returns the upload attempts of a run in insertion order.
func (h *History) Uploads(runID string) ([]models.UploadAttempt, error) {
	var attempts []models.UploadAttempt
	if err := h.db.Where("run_id = ?", runID).Order("id").Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("db: uploads for run %s: %w", runID, err)
	}
	return attempts, nil
}
