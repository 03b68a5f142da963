package patch

import (
	"time"

	"github.com/mw90/attrpatch/internal/bundle"
)

// State tracks a transaction through the commit pipeline.
type State int

const (
	Planned State = iota
	Snapshotted
	Writing
	Committed
	Aborted
	RolledBack
)

func (s State) String() string {
	switch s {
	case Planned:
		return "planned"
	case Snapshotted:
		return "snapshotted"
	case Writing:
		return "writing"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	case RolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Operation is one planned byte replacement: the stored payload of one
// directory entry, before and after.
type Operation struct {
	File        string
	Entry       string
	Original    []byte
	Replacement bundle.Replacement
}

// Transaction is the atomic unit of one save request: either every
// operation lands on disk or none do. It is created by the planner and
// consumed exactly once by the backup manager.
type Transaction struct {
	CreatedAt   time.Time
	State       State
	AllowResize bool
	Ops         []Operation
}

// Files returns the distinct target paths, in first-use order.
func (tx *Transaction) Files() []string {
	var files []string
	seen := make(map[string]bool)
	for _, op := range tx.Ops {
		if !seen[op.File] {
			seen[op.File] = true
			files = append(files, op.File)
		}
	}
	return files
}

// fileOps groups operations by target file, preserving operation order.
func (tx *Transaction) fileOps() map[string]map[string]bundle.Replacement {
	byFile := make(map[string]map[string]bundle.Replacement)
	for _, op := range tx.Ops {
		m, ok := byFile[op.File]
		if !ok {
			m = make(map[string]bundle.Replacement)
			byFile[op.File] = m
		}
		m[op.Entry] = op.Replacement
	}
	return byFile
}

// Replacements returns the per-entry replacements for one target file.
func (tx *Transaction) Replacements(file string) map[string]bundle.Replacement {
	return tx.fileOps()[file]
}
