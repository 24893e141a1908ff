// Package datastore keeps one JSON file per project record under a data
// root and reports which records changed since the last published commit.
package datastore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zulandar/dailyread/internal/project"
	"gorm.io/gorm"
)

// Options configures Open.
type Options struct {
	Backend     string // "git" (default) or "manifest"
	DB          *gorm.DB
	AuthorName  string
	AuthorEmail string
	Priority    *project.Priority
	Logger      *slog.Logger
}

// Store is the project record store. Writes (Persist, Stage, Commit) are
// serialized; the data root is a single-writer resource.
type Store struct {
	root   string
	ledger Ledger
	prio   *project.Priority
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*project.Record // keyed by project id
}

// Open validates root, prepares the configured ledger and returns a store.
// root must be absolute and, if it exists, a directory.
func Open(root string, opts Options) (*Store, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("datastore: data location is not an absolute path: %s: %w", root, project.ErrConfig)
	}
	info, err := os.Stat(root)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("datastore: data location exists but is not a directory: %s: %w", root, project.ErrConfig)
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("datastore: create %s: %w", root, err)
		}
	case err != nil:
		return nil, fmt.Errorf("datastore: stat %s: %w", root, err)
	}

	if opts.Priority == nil {
		opts.Priority = project.DefaultPriority()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	var ledger Ledger
	switch opts.Backend {
	case "", "git":
		name, email := opts.AuthorName, opts.AuthorEmail
		if name == "" {
			name = "Daily Read"
		}
		if email == "" {
			email = "dailyread@localhost"
		}
		ledger = NewGitLedger(root, name, email)
	case "manifest":
		ledger = NewManifestLedger(root, opts.DB)
	default:
		return nil, fmt.Errorf("datastore: unknown backend %q: %w", opts.Backend, project.ErrConfig)
	}
	return openWithLedger(root, ledger, opts.Priority, opts.Logger)
}

func openWithLedger(root string, ledger Ledger, prio *project.Priority, logger *slog.Logger) (*Store, error) {
	if err := ledger.Init(); err != nil {
		return nil, err
	}
	return &Store{
		root:    root,
		ledger:  ledger,
		prio:    prio,
		logger:  logger,
		records: make(map[string]*project.Record),
	}, nil
}

// Root returns the data location.
func (s *Store) Root() string { return s.root }

// Ledger returns the change ledger in use.
func (s *Store) Ledger() Ledger { return s.ledger }

// Persist writes the canonical JSON of rec to its relative path, creating
// parent directories as needed, and keeps rec as the in-memory version.
func (s *Store) Persist(rec *project.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(rec)
}

// PersistAll persists every record in recs in project id order.
func (s *Store) PersistAll(recs map[string]*project.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(recs))
	for id := range recs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := s.persistLocked(recs[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) persistLocked(rec *project.Record) error {
	dir := filepath.Join(s.root, filepath.FromSlash(rec.RelativeDir()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("datastore: failed to use data directory %s: %w", dir, err)
	}
	data, err := rec.Encode()
	if err != nil {
		return err
	}
	abs := filepath.Join(s.root, filepath.FromSlash(rec.RelativePath()))
	s.logger.Debug("writing project data", "project", rec.ProjectID, "path", abs)
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("datastore: write %s: %w", rec.RelativePath(), err)
	}
	s.records[rec.ProjectID] = rec
	return nil
}

// Record returns the in-memory record for a project id.
func (s *Store) Record(id string) (*project.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

// Records returns a snapshot of all in-memory records keyed by project id.
// Records read back by ChangedRecords are included.
func (s *Store) Records() map[string]*project.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*project.Record, len(s.records))
	for id, r := range s.records {
		out[id] = r
	}
	return out
}

// ChangedPaths returns the set union of staged, modified-not-staged and
// untracked paths, sorted and without duplicates.
func (s *Store) ChangedPaths() ([]string, error) {
	set := make(map[string]struct{})
	for _, list := range []func() ([]string, error){s.ledger.Staged, s.ledger.Modified, s.ledger.Untracked} {
		paths, err := list()
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// AnyChanged reports whether any project file changed since the last commit.
func (s *Store) AnyChanged() (bool, error) {
	paths, err := s.ChangedPaths()
	if err != nil {
		return false, err
	}
	return len(paths) > 0, nil
}

// ChangedRecords maps every changed path to a record, using the in-memory
// version when present and reading the file otherwise. Paths that are not
// project files or no longer exist are skipped.
func (s *Store) ChangedRecords() ([]*project.Record, error) {
	paths, err := s.ChangedPaths()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*project.Record
	for _, p := range paths {
		if path.Ext(p) != ".json" {
			s.logger.Debug("ignoring non project file", "path", p)
			continue
		}
		id := project.IDFromPath(p)
		if r, ok := s.records[id]; ok && r.RelativePath() == p {
			recs = append(recs, r)
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(p))); errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("changed project file was removed", "path", p)
			continue
		}
		s.logger.Info("data not fetched this time, reading from file", "project", id)
		r, err := project.ReadFile(s.root, p, s.prio)
		if err != nil {
			return nil, fmt.Errorf("datastore: %w", err)
		}
		s.records[id] = r
		recs = append(recs, r)
	}
	return recs, nil
}

// LogPending logs the records that changed in an earlier run and were not
// reported yet.
func (s *Store) LogPending() error {
	recs, err := s.ChangedRecords()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	s.logger.Info("changes for projects detected from previous run", "count", len(recs))
	for _, r := range recs {
		s.logger.Info("project had changes not yet reported", "project", r.ProjectID, "node", r.Node)
	}
	return nil
}

// Stage marks rec's file for the next commit.
func (s *Store) Stage(rec *project.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Stage(rec.RelativePath())
}

// Commit publishes all staged records atomically.
func (s *Store) Commit(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Commit(message)
}

// FindChangedOrderers returns the sorted, de-duplicated orderers of changed
// records. With a non-empty allow list, orderers not on it are dropped. An
// empty result means there is nothing to do.
func (s *Store) FindChangedOrderers(allow []string) ([]string, error) {
	recs, err := s.ChangedRecords()
	if err != nil {
		return nil, err
	}
	return SelectOrderers(recs, allow), nil
}

// SelectOrderers reduces recs to their unique orderers, optionally
// restricted to allow.
func SelectOrderers(recs []*project.Record, allow []string) []string {
	allowed := make(map[string]bool, len(allow))
	for _, a := range allow {
		allowed[a] = true
	}
	set := make(map[string]struct{})
	for _, r := range recs {
		if len(allowed) > 0 && !allowed[r.Orderer] {
			continue
		}
		set[r.Orderer] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}
