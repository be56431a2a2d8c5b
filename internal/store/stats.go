package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath            string      `json:"db_path"`
	DBSizeBytes       int64       `json:"db_size_bytes"`
	TotalMemories     int         `json:"total_memories"`
	TotalAssociations int         `json:"total_associations"`
	DistinctTargets   int         `json:"distinct_targets"`
	ByType            []TypeCount `json:"by_type"`
	ByAssociation     []TypeCount `json:"by_association"`
}

// TypeCount is a count grouped by a type column.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.TotalMemories)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM associations`).Scan(&st.TotalAssociations)
	s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT target_id) FROM associations`).Scan(&st.DistinctTargets)

	var err error
	st.ByType, err = s.countBy(ctx, `SELECT type, COUNT(*) AS cnt FROM memories GROUP BY type ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	st.ByAssociation, err = s.countBy(ctx, `SELECT type, COUNT(*) AS cnt FROM associations GROUP BY type ORDER BY cnt DESC`)
	return st, err
}

func (s *SQLiteStore) countBy(ctx context.Context, query string) ([]TypeCount, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
