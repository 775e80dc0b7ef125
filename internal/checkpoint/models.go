// internal/checkpoint/models.go
package checkpoint

import (
	"time"

	"shadow/internal/change"
)

// Checkpoint is an immutable aggregation of changes across the tracked files
// of one engine instance.
type Checkpoint struct {
	ID        string                     `json:"id"`
	Message   string                     `json:"message"`
	Timestamp time.Time                  `json:"timestamp"`
	Changes   map[string][]change.Change `json:"changes"`
	Type      string                     `json:"type"`
	// Bases maps each path to the snapshot hash its changes were computed against.
	Bases map[string]string `json:"bases,omitempty"`
}

// Paths lists the paths captured by the checkpoint.
func (c *Checkpoint) Paths() []string {
	paths := make([]string, 0, len(c.Changes))
	for path := range c.Changes {
		paths = append(paths, path)
	}
	return paths
}

// clone copies the checkpoint deeply enough that edits to the copy never
// reach the stored one.
func (c *Checkpoint) clone() *Checkpoint {
	out := *c
	out.Changes = make(map[string][]change.Change, len(c.Changes))
	for path, changes := range c.Changes {
		out.Changes[path] = append([]change.Change(nil), changes...)
	}
	if c.Bases != nil {
		out.Bases = make(map[string]string, len(c.Bases))
		for path, hash := range c.Bases {
			out.Bases[path] = hash
		}
	}
	return &out
}

// ApplyResult reports the outcome of restoring a checkpoint
type ApplyResult struct {
	Checkpoint    *Checkpoint `json:"checkpoint"`
	FilesRestored int         `json:"files_restored"`
	Warnings      []string    `json:"warnings,omitempty"`
}

// Policy selects which changes a new checkpoint captures.
type Policy string

const (
	// CaptureAll records every tracked file, synthesizing a full-file change
	// for files without a diff, and approves everything it records.
	CaptureAll Policy = "all"
	// CaptureApproved records only changes the tracker marked approved.
	CaptureApproved Policy = "approved"
)
