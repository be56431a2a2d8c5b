package store

import (
	"context"

	"github.com/rcliao/dsam/internal/model"
)

// ExportAll returns all persisted memories, optionally filtered by type.
func (s *SQLiteStore) ExportAll(ctx context.Context, memType model.MemoryType) ([]model.Memory, error) {
	all, err := s.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if memType == "" {
		return all, nil
	}
	out := all[:0]
	for _, m := range all {
		if m.Type == memType {
			out = append(out, m)
		}
	}
	return out, nil
}

// Import stores memories from an export. Memories with an existing ID are replaced.
func (s *SQLiteStore) Import(ctx context.Context, memories []model.Memory) (int, error) {
	valid := make([]model.Memory, 0, len(memories))
	for _, m := range memories {
		if m.ID == "" || len(m.Content) == 0 {
			continue
		}
		valid = append(valid, m)
	}
	return s.Upsert(ctx, valid)
}
