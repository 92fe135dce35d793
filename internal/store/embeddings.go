package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

// SimilarNote is one hit from a nearest-neighbour query over note embeddings.
type SimilarNote struct {
	NoteID     string
	Similarity float64
}

// SaveNoteEmbedding stores (or replaces) the embedding vector for a note.
// Vectors are encoded as little-endian float32, the layout sqlite-vec
// expects when the extension is compiled in.
func (db *DB) SaveNoteEmbedding(noteID string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("store: empty embedding for note %s", noteID)
	}
	_, err := db.conn.Exec(`
		INSERT INTO note_embeddings (note_id, vector, dim, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			vector     = excluded.vector,
			dim        = excluded.dim,
			created_at = excluded.created_at
	`, noteID, encodeVector(vector), len(vector), time.Now())
	if err != nil {
		return fmt.Errorf("store: save note embedding: %w", err)
	}
	return nil
}

// HasNoteEmbedding reports whether a note already has a stored vector.
func (db *DB) HasNoteEmbedding(noteID string) (bool, error) {
	var n int
	err := db.conn.QueryRow(
		`SELECT count(*) FROM note_embeddings WHERE note_id = ?`, noteID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: has note embedding: %w", err)
	}
	return n > 0, nil
}

// SaveFileEmbedding stores one chunk vector for a file. Essay embeddings
// arrive as multiple nodes per file, each keyed by its node id.
func (db *DB) SaveFileEmbedding(fileID, nodeID string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("store: empty embedding for file %s node %s", fileID, nodeID)
	}
	_, err := db.conn.Exec(`
		INSERT INTO file_embeddings (file_id, node_id, vector, dim, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_id, node_id) DO UPDATE SET
			vector     = excluded.vector,
			dim        = excluded.dim,
			created_at = excluded.created_at
	`, fileID, nodeID, encodeVector(vector), len(vector), time.Now())
	if err != nil {
		return fmt.Errorf("store: save file embedding: %w", err)
	}
	return nil
}

// HasFileEmbeddings reports whether any chunk vectors exist for a file.
func (db *DB) HasFileEmbeddings(fileID string) (bool, error) {
	var n int
	err := db.conn.QueryRow(
		`SELECT count(*) FROM file_embeddings WHERE file_id = ?`, fileID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: has file embeddings: %w", err)
	}
	return n > 0, nil
}

// SimilarNotes returns up to limit notes ranked by cosine similarity to the
// given note's embedding. The scan is brute-force over stored vectors; the
// sqlite-vec extension (sqlite_vec build tag) can take over once corpora
// outgrow this.
func (db *DB) SimilarNotes(noteID string, limit int) ([]SimilarNote, error) {
	if limit <= 0 {
		limit = 5
	}
	var targetBlob []byte
	err := db.conn.QueryRow(
		`SELECT vector FROM note_embeddings WHERE note_id = ?`, noteID).Scan(&targetBlob)
	if err != nil {
		return nil, fmt.Errorf("store: similar notes: no embedding for %s: %w", noteID, err)
	}
	target := decodeVector(targetBlob)

	rows, err := db.conn.Query(
		`SELECT note_id, vector FROM note_embeddings WHERE note_id != ?`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: similar notes: %w", err)
	}
	defer rows.Close()

	var out []SimilarNote
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		sim := cosine(target, decodeVector(blob))
		if math.IsNaN(sim) {
			continue
		}
		out = append(out, SimilarNote{NoteID: id, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
