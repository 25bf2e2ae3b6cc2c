package store

import (
	"os"
)

// Stats holds store-level statistics.
type Stats struct {
	DBPath         string         `json:"db_path"`
	DBSizeBytes    int64          `json:"db_size_bytes"`
	TotalRecords   int            `json:"total_records"`
	ActiveRecords  int            `json:"active_records"`
	ProtectedCount int            `json:"protected_records"`
	ByCategory     map[string]int `json:"by_category"`
}

// Stats returns record counts and the database size on disk.
func (db *DB) Stats() (*Stats, error) {
	st := &Stats{DBPath: db.Path, ByCategory: make(map[string]int)}

	if info, err := os.Stat(db.Path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	total, active, err := db.CountRecords()
	if err != nil {
		return nil, err
	}
	st.TotalRecords = total
	st.ActiveRecords = active

	db.QueryRow(`SELECT COUNT(*) FROM memories WHERE protected = 1`).Scan(&st.ProtectedCount)

	rows, err := db.Query(`
		SELECT category, COUNT(*) FROM memories
		WHERE superseded_at IS NULL
		GROUP BY category
	`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return st, err
		}
		st.ByCategory[cat] = n
	}
	return st, rows.Err()
}
