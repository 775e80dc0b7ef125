package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Snapshot is the last captured content of one file. Lines is always
// strings.Split(Content, "\n") and Hash the hex sha256 of Content.
type Snapshot struct {
	Hash      string    `json:"hash"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Lines     []string  `json:"lines"`
}

func NewSnapshot(content []byte) *Snapshot {
	text := string(content)
	return &Snapshot{
		Hash:      HashContent(content),
		Content:   text,
		Timestamp: time.Now(),
		Lines:     strings.Split(text, "\n"),
	}
}

func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// valid reports whether a decoded record still satisfies the snapshot
// invariants.
func (s *Snapshot) valid() bool {
	return s.Hash == HashContent([]byte(s.Content))
}
