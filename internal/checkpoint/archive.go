// internal/checkpoint/archive.go
package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"

	"shadow/internal/change"
	"shadow/internal/errors"
	"shadow/internal/storage"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// archiveLevel balances bundle size against export speed.
const archiveLevel = 2

// Export writes a checkpoint to w as a zstd-compressed JSON bundle.
func (m *Manager) Export(id string, w io.Writer) error {
	cp, ok := m.find(id)
	if !ok {
		return errors.NotFound(fmt.Sprintf("checkpoint %s not found", id))
	}

	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(archiveLevel)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return fmt.Errorf("creating encoder: %w", err)
	}

	if err := json.NewEncoder(enc).Encode(cp); err != nil {
		enc.Close()
		return errors.IOError("encoding checkpoint", err)
	}
	if err := enc.Close(); err != nil {
		return errors.IOError("flushing checkpoint bundle", err)
	}

	m.logger.Info("Checkpoint exported", zap.String("id", id))
	return nil
}

// Import reads a bundle written by Export and adds it to this instance. The
// imported checkpoint is re-tagged with this instance's type.
func (m *Manager) Import(r io.Reader) (*Checkpoint, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, errors.MalformedRecord("opening checkpoint bundle", err)
	}
	defer dec.Close()

	var cp Checkpoint
	if err := json.NewDecoder(dec).Decode(&cp); err != nil {
		return nil, errors.MalformedRecord("decoding checkpoint bundle", err)
	}
	if _, err := uuid.Parse(cp.ID); err != nil {
		return nil, errors.MalformedRecord(fmt.Sprintf("invalid checkpoint id %q", cp.ID), err)
	}
	if _, exists := m.find(cp.ID); exists {
		return nil, errors.ValidationError(fmt.Sprintf("checkpoint %s already exists", cp.ID))
	}
	if cp.Changes == nil {
		cp.Changes = make(map[string][]change.Change)
	}
	cp.Type = m.engineType

	m.checkpoints = append(m.checkpoints, &cp)
	m.sort()
	if err := m.records.Put(storage.Checkpoints, cp.ID, &cp); err != nil {
		m.logger.Error("Failed to persist checkpoint",
			zap.String("id", cp.ID),
			zap.Error(err))
	}

	m.logger.Info("Checkpoint imported",
		zap.String("id", cp.ID),
		zap.Int("files", len(cp.Changes)))
	return cp.clone(), nil
}
