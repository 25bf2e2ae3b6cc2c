package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Memory categories. The novelty thresholds key off these.
const (
	CategoryFact        = "fact"
	CategoryObservation = "observation"
	CategoryAction      = "action"
	CategoryPlan        = "plan"
)

// ValidCategories is the set of accepted record categories.
var ValidCategories = map[string]bool{
	CategoryFact:        true,
	CategoryObservation: true,
	CategoryAction:      true,
	CategoryPlan:        true,
}

// Supersession types, recorded on the *older* record of a chain link.
const (
	SupersessionUpdate     = "update"
	SupersessionCorrection = "correction"
	SupersessionRefinement = "refinement"
	SupersessionMerge      = "merge"
)

// Record is a single stored memory with its embeddings and lifecycle state.
type Record struct {
	ID               string     `json:"id"`
	Content          string     `json:"content"`
	Category         string     `json:"category"`
	Importance       float64    `json:"importance"`
	Embedding        []float32  `json:"-"`
	EmbeddingInt8    []byte     `json:"-"`
	EmbeddingBinary  []byte     `json:"-"`
	AccessCount      int        `json:"access_count"`
	LastAccessedAt   *time.Time `json:"last_accessed_at,omitempty"`
	DecayRate        float64    `json:"decay_rate"`
	Protected        bool       `json:"protected"`
	SupersedesID     string     `json:"supersedes_id,omitempty"`
	SupersededAt     *time.Time `json:"superseded_at,omitempty"`
	SupersessionType string     `json:"supersession_type,omitempty"`
	ValidFrom        *time.Time `json:"valid_from,omitempty"`
	ValidUntil       *time.Time `json:"valid_until,omitempty"`
	InsertedAt       time.Time  `json:"inserted_at"`
}

// Active reports whether the record has not been superseded.
func (r *Record) Active() bool { return r.SupersededAt == nil }

// ValidAt reports whether t falls inside the record's validity window.
// valid_from is inclusive, valid_until exclusive; nil bounds are open.
func (r *Record) ValidAt(t time.Time) bool {
	if r.ValidFrom != nil && t.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && !t.Before(*r.ValidUntil) {
		return false
	}
	return true
}

// encodeFloat32 converts a []float32 to a binary BLOB (4 bytes per value).
func encodeFloat32(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeFloat32 converts a binary BLOB back to []float32.
func decodeFloat32(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	n := len(buf) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timeFromMs(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

const recordColumns = `id, content, category, importance,
	embedding, embedding_int8, embedding_binary,
	access_count, last_accessed_at, decay_rate, protected,
	supersedes_id, superseded_at, supersession_type,
	valid_from, valid_until, inserted_at`

// CreateRecord inserts a new record. InsertedAt is set here if zero.
func (db *DB) CreateRecord(r *Record) error {
	if r.InsertedAt.IsZero() {
		r.InsertedAt = time.Now()
	}
	protected := 0
	if r.Protected {
		protected = 1
	}
	_, err := db.Exec(`
		INSERT INTO memories (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), ?, ?, ?)
	`, r.ID, r.Content, r.Category, r.Importance,
		encodeFloat32(r.Embedding), r.EmbeddingInt8, r.EmbeddingBinary,
		r.AccessCount, msOrNil(r.LastAccessedAt), r.DecayRate, protected,
		r.SupersedesID, msOrNil(r.SupersededAt), r.SupersessionType,
		msOrNil(r.ValidFrom), msOrNil(r.ValidUntil), r.InsertedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// GetRecord returns a record by id, or nil if not found.
func (db *DB) GetRecord(id string) (*Record, error) {
	row := db.QueryRow(`SELECT `+recordColumns+` FROM memories WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

// ActiveByCategory returns all active records in a category.
func (db *DB) ActiveByCategory(category string) ([]Record, error) {
	rows, err := db.Query(`
		SELECT `+recordColumns+` FROM memories
		WHERE category = ? AND superseded_at IS NULL
		ORDER BY inserted_at DESC
	`, category)
	if err != nil {
		return nil, fmt.Errorf("active by category: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// AllActive returns every active record.
func (db *DB) AllActive() ([]Record, error) {
	rows, err := db.Query(`
		SELECT ` + recordColumns + ` FROM memories
		WHERE superseded_at IS NULL
		ORDER BY inserted_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("all active: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// IndexCode is the minimal projection the vector index loads at startup.
type IndexCode struct {
	ID     string
	Int8   []byte
	Binary []byte
}

// ActiveIndexCodes returns the quantized codes of all active records.
func (db *DB) ActiveIndexCodes() ([]IndexCode, error) {
	rows, err := db.Query(`
		SELECT id, embedding_int8, embedding_binary FROM memories
		WHERE superseded_at IS NULL AND embedding_int8 IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("active index codes: %w", err)
	}
	defer rows.Close()

	var codes []IndexCode
	for rows.Next() {
		var c IndexCode
		if err := rows.Scan(&c.ID, &c.Int8, &c.Binary); err != nil {
			return nil, fmt.Errorf("scan index code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// BoostImportance raises a record's importance to the given value if higher.
func (db *DB) BoostImportance(id string, importance float64) error {
	_, err := db.Exec(`
		UPDATE memories SET importance = MAX(importance, ?) WHERE id = ?
	`, importance, id)
	if err != nil {
		return fmt.Errorf("boost importance: %w", err)
	}
	return nil
}

// Supersede atomically inserts the successor record and marks the existing
// one superseded. Either both happen or neither does.
func (db *DB) Supersede(oldID string, successor *Record, stype string) error {
	if successor.InsertedAt.IsZero() {
		successor.InsertedAt = time.Now()
	}
	successor.SupersedesID = oldID

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin supersede: %w", err)
	}

	protected := 0
	if successor.Protected {
		protected = 1
	}
	if _, err := tx.Exec(`
		INSERT INTO memories (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), ?, ?, ?)
	`, successor.ID, successor.Content, successor.Category, successor.Importance,
		encodeFloat32(successor.Embedding), successor.EmbeddingInt8, successor.EmbeddingBinary,
		successor.AccessCount, msOrNil(successor.LastAccessedAt), successor.DecayRate, protected,
		successor.SupersedesID, msOrNil(successor.SupersededAt), successor.SupersessionType,
		msOrNil(successor.ValidFrom), msOrNil(successor.ValidUntil), successor.InsertedAt.UnixMilli()); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert successor: %w", err)
	}

	now := time.Now().UnixMilli()
	res, err := tx.Exec(`
		UPDATE memories SET superseded_at = ?, supersession_type = ?
		WHERE id = ? AND superseded_at IS NULL
	`, now, stype, oldID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("mark superseded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return fmt.Errorf("supersede %s: record missing or already superseded", oldID)
	}

	return tx.Commit()
}

// ApplyAccess folds a batch of n coalesced accesses into a record:
// bump access_count, refresh last_accessed_at, and compound the spacing
// effect (decay_rate * factor^n, floored at minRate).
func (db *DB) ApplyAccess(id string, n int, at time.Time, factor, minRate float64) error {
	if n <= 0 {
		return nil
	}
	mult := math.Pow(factor, float64(n))
	_, err := db.Exec(`
		UPDATE memories
		SET access_count = access_count + ?,
		    last_accessed_at = ?,
		    decay_rate = MAX(?, decay_rate * ?)
		WHERE id = ?
	`, n, at.UnixMilli(), minRate, mult, id)
	if err != nil {
		return fmt.Errorf("apply access: %w", err)
	}
	return nil
}

// SetProtected marks or unmarks a record as exempt from forgetting.
func (db *DB) SetProtected(id string, protected bool) error {
	v := 0
	if protected {
		v = 1
	}
	res, err := db.Exec(`UPDATE memories SET protected = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("set protected: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteRecord removes a record. Any successor pointing at it has its
// back-reference cleared in the same transaction, splitting the chain
// rather than leaving a dangling link.
func (db *DB) DeleteRecord(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	if _, err := tx.Exec(`UPDATE memories SET supersedes_id = NULL WHERE supersedes_id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear back-references: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM memories WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete record: %w", err)
	}
	return tx.Commit()
}

// DecayCandidates returns non-protected records for a forgetting sweep,
// oldest access first, bounded by limit.
func (db *DB) DecayCandidates(limit int) ([]Record, error) {
	rows, err := db.Query(`
		SELECT `+recordColumns+` FROM memories
		WHERE protected = 0
		ORDER BY COALESCE(last_accessed_at, inserted_at) ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("decay candidates: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// SuccessorOf returns the record whose supersedes_id points at id, or nil.
func (db *DB) SuccessorOf(id string) (*Record, error) {
	row := db.QueryRow(`SELECT `+recordColumns+` FROM memories WHERE supersedes_id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("successor of: %w", err)
	}
	return r, nil
}

// CountRecords returns total and active record counts.
func (db *DB) CountRecords() (total, active int, err error) {
	if err = db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("count records: %w", err)
	}
	if err = db.QueryRow(`SELECT COUNT(*) FROM memories WHERE superseded_at IS NULL`).Scan(&active); err != nil {
		return 0, 0, fmt.Errorf("count active: %w", err)
	}
	return total, active, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var embedding []byte
	var protected int
	var lastAccessed, supersededAt, validFrom, validUntil sql.NullInt64
	var supersedesID, supersessionType sql.NullString
	var insertedAt int64

	err := row.Scan(&r.ID, &r.Content, &r.Category, &r.Importance,
		&embedding, &r.EmbeddingInt8, &r.EmbeddingBinary,
		&r.AccessCount, &lastAccessed, &r.DecayRate, &protected,
		&supersedesID, &supersededAt, &supersessionType,
		&validFrom, &validUntil, &insertedAt)
	if err != nil {
		return nil, err
	}

	r.Embedding = decodeFloat32(embedding)
	r.Protected = protected != 0
	r.LastAccessedAt = timeFromMs(lastAccessed)
	r.SupersededAt = timeFromMs(supersededAt)
	r.ValidFrom = timeFromMs(validFrom)
	r.ValidUntil = timeFromMs(validUntil)
	r.SupersedesID = supersedesID.String
	r.SupersessionType = supersessionType.String
	r.InsertedAt = time.UnixMilli(insertedAt)
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}
