package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zulandar/dailyread/internal/models"
	"github.com/zulandar/dailyread/internal/project"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManifestLedger tracks changes by comparing sha256 content hashes of the
// files under dir with hashes kept in the database. It needs no version
// control system and works on any directory.
type ManifestLedger struct {
	dir string
	db  *gorm.DB
}

// NewManifestLedger returns a manifest ledger for dir backed by db.
func NewManifestLedger(dir string, db *gorm.DB) *ManifestLedger {
	return &ManifestLedger{dir: dir, db: db}
}

// Init migrates the manifest tables. Without any prior commit the directory
// must not contain project files; an initial empty commit is then recorded.
func (m *ManifestLedger) Init() error {
	if m.db == nil {
		return fmt.Errorf("datastore: manifest ledger needs a database: %w", project.ErrConfig)
	}
	if err := m.db.AutoMigrate(&models.ManifestEntry{}, &models.ManifestCommit{}); err != nil {
		return fmt.Errorf("datastore: migrate manifest: %w", err)
	}

	var commits int64
	if err := m.db.Model(&models.ManifestCommit{}).Count(&commits).Error; err != nil {
		return fmt.Errorf("datastore: count manifest commits: %w", err)
	}
	if commits > 0 {
		return nil
	}

	files, err := m.files()
	if err != nil {
		return err
	}
	var entries int64
	if err := m.db.Model(&models.ManifestEntry{}).Count(&entries).Error; err != nil {
		return fmt.Errorf("datastore: count manifest entries: %w", err)
	}
	if len(files) > 0 || entries > 0 {
		return fmt.Errorf("datastore: data location has modifications but no commits, commit those or use an empty directory: %w", project.ErrConfig)
	}
	if err := m.db.Create(&models.ManifestCommit{Message: initialCommitMessage}).Error; err != nil {
		return fmt.Errorf("datastore: initial manifest commit: %w", err)
	}
	return nil
}

// Staged lists entries with a staged hash differing from the committed one.
func (m *ManifestLedger) Staged() ([]string, error) {
	var entries []models.ManifestEntry
	err := m.db.Where("staged_hash <> '' AND staged_hash <> committed_hash").Order("path").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("datastore: staged entries: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths, nil
}

// Modified lists known paths whose file content no longer matches their
// staged hash, or committed hash when nothing is staged. Deleted files count
// as modified.
func (m *ManifestLedger) Modified() ([]string, error) {
	entries, err := m.entries()
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		want := e.StagedHash
		if want == "" {
			want = e.CommittedHash
		}
		if want == "" {
			continue
		}
		got, err := m.hash(e.Path)
		if errors.Is(err, fs.ErrNotExist) {
			paths = append(paths, e.Path)
			continue
		}
		if err != nil {
			return nil, err
		}
		if got != want {
			paths = append(paths, e.Path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Untracked lists files without any staged or committed hash.
func (m *ManifestLedger) Untracked() ([]string, error) {
	entries, err := m.entries()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.StagedHash != "" || e.CommittedHash != "" {
			known[e.Path] = true
		}
	}
	files, err := m.files()
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, f := range files {
		if !known[f] {
			paths = append(paths, f)
		}
	}
	return paths, nil
}

// Stage records the current hash of each path. A path whose content equals
// the committed hash is left unstaged.
func (m *ManifestLedger) Stage(paths ...string) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		for _, p := range paths {
			p = filepath.ToSlash(p)
			h, err := m.hash(p)
			if err != nil {
				return fmt.Errorf("datastore: stage %s: %w", p, err)
			}
			var entry models.ManifestEntry
			err = tx.Where("path = ?", p).First(&entry).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("datastore: stage %s: %w", p, err)
			}
			entry.Path = p
			if h == entry.CommittedHash {
				entry.StagedHash = ""
			} else {
				entry.StagedHash = h
			}
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "path"}},
				DoUpdates: clause.AssignmentColumns([]string{"staged_hash", "updated_at"}),
			}).Create(&entry).Error
			if err != nil {
				return fmt.Errorf("datastore: stage %s: %w", p, err)
			}
		}
		return nil
	})
}

// Commit promotes every staged hash to committed in one transaction.
func (m *ManifestLedger) Commit(message string) error {
	staged, err := m.Staged()
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return nil
	}
	return m.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ManifestEntry{}).
			Where("path IN ?", staged).
			Updates(map[string]interface{}{
				"committed_hash": gorm.Expr("staged_hash"),
				"staged_hash":    "",
			})
		if res.Error != nil {
			return fmt.Errorf("datastore: commit: %w", res.Error)
		}
		if err := tx.Create(&models.ManifestCommit{Message: message, Paths: len(staged)}).Error; err != nil {
			return fmt.Errorf("datastore: commit: %w", err)
		}
		return nil
	})
}

// HeadMessage returns the message of the latest manifest commit.
func (m *ManifestLedger) HeadMessage() (string, error) {
	var c models.ManifestCommit
	if err := m.db.Order("id DESC").First(&c).Error; err != nil {
		return "", fmt.Errorf("datastore: head commit: %w", err)
	}
	return c.Message, nil
}

func (m *ManifestLedger) entries() ([]models.ManifestEntry, error) {
	var entries []models.ManifestEntry
	if err := m.db.Order("path").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("datastore: manifest entries: %w", err)
	}
	return entries, nil
}

// files walks dir and returns regular files, skipping dot files and dot
// directories, as sorted slash separated relative paths.
func (m *ManifestLedger) files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(m.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == m.dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(m.dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: walk %s: %w", m.dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (m *ManifestLedger) hash(rel string) (string, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
