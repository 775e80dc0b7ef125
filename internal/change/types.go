// internal/change/types.go
package change

import (
	"fmt"
	"math"
	"strings"
)

// Type is the kind of edited region.
type Type string

const (
	Addition     Type = "addition"
	Modification Type = "modification"
	Deletion     Type = "deletion"
)

// Approval is the tri-state review flag of a change. It is stored as JSON
// null (pending), true (approved) or false (disapproved).
type Approval int8

const (
	Pending Approval = iota
	Approved
	Disapproved
)

func (a Approval) String() string {
	switch a {
	case Approved:
		return "approved"
	case Disapproved:
		return "disapproved"
	default:
		return "pending"
	}
}

func (a Approval) MarshalJSON() ([]byte, error) {
	switch a {
	case Approved:
		return []byte("true"), nil
	case Disapproved:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (a *Approval) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null":
		*a = Pending
	case "true":
		*a = Approved
	case "false":
		*a = Disapproved
	default:
		return fmt.Errorf("invalid approval value %s", data)
	}
	return nil
}

// Change is one contiguous edited region between a snapshot and the current
// file content.
//
// StartLine and EndLine are inclusive, 0-based, and index the current lines
// for additions and modifications and the snapshot lines for deletions.
// BaseStart and BaseCount locate the region of snapshot lines the change
// replaces (BaseCount is 0 for additions, which insert before BaseStart).
// WholeFile marks a change that replaces every base line, however many the
// base it is replayed over has.
//
// ID is only unique within the list it was produced in. Detection renumbers
// from 0 on every pass, so callers must not hold IDs across a refresh.
type Change struct {
	ID        int      `json:"id"`
	Type      Type     `json:"type"`
	StartLine int      `json:"startLine"`
	EndLine   int      `json:"endLine"`
	Content   string   `json:"content"`
	Approved  Approval `json:"approved"`
	BaseStart int      `json:"baseStart"`
	BaseCount int      `json:"baseCount"`
	WholeFile bool     `json:"wholeFile,omitempty"`
}

// Lines returns the literal lines the change writes into the file. Deletions
// write nothing.
func (c Change) Lines() []string {
	if c.Type == Deletion {
		return nil
	}
	return strings.Split(c.Content, "\n")
}

// BaseRange returns the half-open [start, end) range of base lines the change
// replaces. A whole-file change covers every line; end is unbounded and is
// clamped by the caller. Records written without base coordinates fall back
// to StartLine/EndLine, and an addition without them inserts before
// StartLine.
func (c Change) BaseRange() (int, int) {
	if c.WholeFile {
		return 0, math.MaxInt
	}
	if c.BaseCount == 0 {
		if c.Type != Addition {
			return c.StartLine, c.EndLine + 1
		}
		if c.BaseStart == 0 && c.StartLine > 0 {
			return c.StartLine, c.StartLine
		}
	}
	return c.BaseStart, c.BaseStart + c.BaseCount
}
