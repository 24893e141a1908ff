package datastore

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zulandar/dailyread/internal/project"
)

const initialCommitMessage = "Empty file as a first commit"

// GitLedger tracks changes with a git working tree and index rooted at dir.
type GitLedger struct {
	dir         string
	authorName  string
	authorEmail string
}

// NewGitLedger returns a ledger for the repository at dir. Commits are
// authored by the given identity so no global git config is needed.
func NewGitLedger(dir, authorName, authorEmail string) *GitLedger {
	return &GitLedger{dir: dir, authorName: authorName, authorEmail: authorEmail}
}

// git runs a git subcommand in the ledger directory and returns stdout.
func (g *GitLedger) git(args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+g.authorName,
		"GIT_AUTHOR_EMAIL="+g.authorEmail,
		"GIT_COMMITTER_NAME="+g.authorName,
		"GIT_COMMITTER_EMAIL="+g.authorEmail,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Init runs git init (safe on existing repositories and empty directories)
// and creates an initial commit when HEAD does not exist yet.
func (g *GitLedger) Init() error {
	if _, err := g.git("init", "--quiet"); err != nil {
		return fmt.Errorf("datastore: %w", err)
	}
	if g.hasHead() {
		return nil
	}

	status, err := g.git("status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return fmt.Errorf("datastore: %w", err)
	}
	if len(bytes.TrimSpace(status)) > 0 {
		return fmt.Errorf("datastore: data location has modifications but no commits, commit those or use an empty directory: %w", project.ErrConfig)
	}

	empty := filepath.Join(g.dir, ".empty")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		return fmt.Errorf("datastore: create %s: %w", empty, err)
	}
	if _, err := g.git("add", "--", ".empty"); err != nil {
		return fmt.Errorf("datastore: %w", err)
	}
	if _, err := g.git("commit", "--quiet", "-m", initialCommitMessage); err != nil {
		return fmt.Errorf("datastore: %w", err)
	}
	return nil
}

func (g *GitLedger) hasHead() bool {
	_, err := g.git("rev-parse", "--verify", "--quiet", "HEAD")
	return err == nil
}

// Staged lists paths whose index content differs from HEAD.
func (g *GitLedger) Staged() ([]string, error) {
	return g.names("diff", "--cached", "--name-only", "-z", "HEAD")
}

// Modified lists paths whose working tree content differs from the index.
func (g *GitLedger) Modified() ([]string, error) {
	return g.names("diff", "--name-only", "-z")
}

// Untracked lists files git does not know about, honouring .gitignore.
func (g *GitLedger) Untracked() ([]string, error) {
	return g.names("ls-files", "--others", "--exclude-standard", "-z")
}

// Stage adds paths to the index.
func (g *GitLedger) Stage(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := g.git(args...); err != nil {
		return fmt.Errorf("datastore: stage: %w", err)
	}
	return nil
}

// Commit records the index as a new commit.
func (g *GitLedger) Commit(message string) error {
	staged, err := g.Staged()
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return nil
	}
	if _, err := g.git("commit", "--quiet", "-m", message); err != nil {
		return fmt.Errorf("datastore: commit: %w", err)
	}
	return nil
}

// HeadMessage returns the subject of the latest commit.
func (g *GitLedger) HeadMessage() (string, error) {
	out, err := g.git("log", "-1", "--format=%s")
	if err != nil {
		return "", fmt.Errorf("datastore: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *GitLedger) names(args ...string) ([]string, error) {
	out, err := g.git(args...)
	if err != nil {
		return nil, fmt.Errorf("datastore: %w", err)
	}
	var paths []string
	for _, p := range bytes.Split(out, []byte{0}) {
		if len(p) > 0 {
			paths = append(paths, string(p))
		}
	}
	return paths, nil
}
