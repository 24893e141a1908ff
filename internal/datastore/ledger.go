package datastore

// Ledger answers "what changed since the last commit" for the files under the
// store root and publishes changes in two phases. Paths are slash separated
// and relative to the root.
type Ledger interface {
	// Init prepares the ledger. A ledger without history must be clean and
	// gets an initial empty commit.
	Init() error
	// Staged lists paths staged for the next commit.
	Staged() ([]string, error)
	// Modified lists tracked paths changed but not staged.
	Modified() ([]string, error)
	// Untracked lists paths never staged or committed.
	Untracked() ([]string, error)
	// Stage marks the current content of paths for the next commit. Staging
	// an unchanged path is a no-op.
	Stage(paths ...string) error
	// Commit atomically publishes everything staged. Committing with nothing
	// staged is a no-op.
	Commit(message string) error
}
