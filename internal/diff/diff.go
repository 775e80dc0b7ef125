// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
	"strings"

	"shadow/internal/change"
)

// DefaultMaxCells bounds the LCS table. Regions larger than this are reported
// as a single modification instead of being diffed line by line.
const DefaultMaxCells = 4 << 20

// Hunk is one maximal run of non-matching lines. OldStart/NewStart are
// 0-based indices into the base and current line slices.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
}

// Engine computes line-level changes between a snapshot and current content
type Engine struct {
	maxCells int
}

// NewEngine creates a diff engine. maxCells <= 0 selects DefaultMaxCells.
func NewEngine(maxCells int) *Engine {
	if maxCells <= 0 {
		maxCells = DefaultMaxCells
	}
	return &Engine{
		maxCells: maxCells,
	}
}

// Compute returns the changes that turn base into current. Additions and
// modifications come first in file order, then deletions; IDs count up from
// 0 in that order. A lone modification covering every current line is a
// full rewrite and is returned already approved.
func (e *Engine) Compute(base, current []string) []change.Change {
	var edits, deletions []change.Change

	for _, h := range e.Hunks(base, current) {
		switch {
		case h.NewLines == 0:
			deletions = append(deletions, change.Change{
				Type:      change.Deletion,
				StartLine: h.OldStart,
				EndLine:   h.OldStart + h.OldLines - 1,
				Content:   strings.Join(base[h.OldStart:h.OldStart+h.OldLines], "\n"),
				BaseStart: h.OldStart,
				BaseCount: h.OldLines,
			})
		case h.OldLines == 0:
			edits = append(edits, change.Change{
				Type:      change.Addition,
				StartLine: h.NewStart,
				EndLine:   h.NewStart + h.NewLines - 1,
				Content:   strings.Join(current[h.NewStart:h.NewStart+h.NewLines], "\n"),
				BaseStart: h.OldStart,
			})
		default:
			edits = append(edits, change.Change{
				Type:      change.Modification,
				StartLine: h.NewStart,
				EndLine:   h.NewStart + h.NewLines - 1,
				Content:   strings.Join(current[h.NewStart:h.NewStart+h.NewLines], "\n"),
				BaseStart: h.OldStart,
				BaseCount: h.OldLines,
			})
		}
	}

	changes := append(edits, deletions...)
	for i := range changes {
		changes[i].ID = i
	}

	if len(changes) == 1 {
		c := &changes[0]
		if c.Type == change.Modification && c.StartLine == 0 && c.EndLine == len(current)-1 {
			c.Approved = change.Approved
			c.WholeFile = true
		}
	}

	if changes == nil {
		return []change.Change{}
	}
	return changes
}

// Hunks groups the lines outside the longest common subsequence of
// oldLines and newLines into maximal contiguous runs.
func (e *Engine) Hunks(oldLines, newLines []string) []Hunk {
	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}

	a := oldLines[prefix : len(oldLines)-suffix]
	b := newLines[prefix : len(newLines)-suffix]
	if len(a) == 0 && len(b) == 0 {
		return nil
	}

	// Too large to diff precisely: one block covering the whole middle.
	if (len(a)+1)*(len(b)+1) > e.maxCells {
		return []Hunk{{OldStart: prefix, OldLines: len(a), NewStart: prefix, NewLines: len(b)}}
	}

	lcs := e.computeLCS(a, b)

	var hunks []Hunk
	var current *Hunk
	flush := func() {
		if current != nil {
			hunks = append(hunks, *current)
			current = nil
		}
	}
	open := func(i, j int) {
		if current == nil {
			current = &Hunk{OldStart: prefix + i, NewStart: prefix + j}
		}
	}

	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i < len(a) && j < len(b) && a[i] == b[j]:
			flush()
			i++
			j++
		case j < len(b) && (i == len(a) || lcs[i][j+1] >= lcs[i+1][j]):
			open(i, j)
			current.NewLines++
			j++
		default:
			open(i, j)
			current.OldLines++
			i++
		}
	}
	flush()

	return hunks
}

// computeLCS builds the suffix table: matrix[i][j] is the length of the
// longest common subsequence of oldLines[i:] and newLines[j:].
func (e *Engine) computeLCS(oldLines, newLines []string) [][]int32 {
	matrix := make([][]int32, len(oldLines)+1)
	for i := range matrix {
		matrix[i] = make([]int32, len(newLines)+1)
	}

	for i := len(oldLines) - 1; i >= 0; i-- {
		for j := len(newLines) - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				matrix[i][j] = matrix[i+1][j+1] + 1
			} else {
				matrix[i][j] = max(matrix[i+1][j], matrix[i][j+1])
			}
		}
	}

	return matrix
}

// Format returns a textual view of changes for terminal output.
func Format(path string, changes []change.Change) string {
	var buf bytes.Buffer

	for _, c := range changes {
		fmt.Fprintf(&buf, "@@ %s #%d %s lines %d-%d [%s] @@\n",
			path, c.ID, c.Type, c.StartLine, c.EndLine, c.Approved)

		prefix := "+ "
		if c.Type == change.Deletion {
			prefix = "- "
		}
		for _, line := range strings.Split(c.Content, "\n") {
			buf.WriteString(prefix)
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
