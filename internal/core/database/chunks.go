package db

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, c.q(`
		INSERT INTO document_chunks
			(id, owner_id, job_id, position, page, text, embedding, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := c.nowMillis()
	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.OwnerID, ch.JobID, ch.Position, ch.Page, ch.Text,
			c.encodeVector(ch.Embedding), ch.TokenCount, now,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", ch.Position, err)
		}
	}
	return tx.Commit()
}

// SearchDocumentChunks finds the limit chunks of one job closest to queryVec
// by L2 distance. Postgres ranks with pgvector's <-> operator; sqlite ranks
// in process.
func (c *DatabaseClient) SearchDocumentChunks(ctx context.Context, ownerID, jobID string, queryVec []float32, limit int) ([]models.IndexedChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	if c.dialect == dialectPostgres {
		return c.searchPostgres(ctx, ownerID, jobID, queryVec, limit)
	}
	return c.searchSQLite(ctx, ownerID, jobID, queryVec, limit)
}

func (c *DatabaseClient) searchPostgres(ctx context.Context, ownerID, jobID string, queryVec []float32, limit int) ([]models.IndexedChunk, error) {
	const q = `
		SELECT id, owner_id, job_id, position, page, text, embedding, token_count, created_at
		FROM document_chunks
		WHERE owner_id = $1 AND job_id = $2
		ORDER BY embedding <-> $3
		LIMIT $4
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID, jobID, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.IndexedChunk
	for rows.Next() {
		var (
			ch        models.IndexedChunk
			emb       pgvector.Vector
			createdAt int64
		)
		if err := rows.Scan(&ch.ID, &ch.OwnerID, &ch.JobID, &ch.Position, &ch.Page, &ch.Text, &emb, &ch.TokenCount, &createdAt); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		ch.CreatedAt = fromMillis(createdAt)
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) searchSQLite(ctx context.Context, ownerID, jobID string, queryVec []float32, limit int) ([]models.IndexedChunk, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, owner_id, job_id, position, page, text, embedding, token_count, created_at
		FROM document_chunks
		WHERE owner_id = ? AND job_id = ?
	`, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		ch   models.IndexedChunk
		dist float64
	}
	var all []scored
	for rows.Next() {
		var (
			ch        models.IndexedChunk
			blob      []byte
			createdAt int64
		)
		if err := rows.Scan(&ch.ID, &ch.OwnerID, &ch.JobID, &ch.Position, &ch.Page, &ch.Text, &blob, &ch.TokenCount, &createdAt); err != nil {
			return nil, err
		}
		ch.Embedding = decodeFloats(blob)
		ch.CreatedAt = fromMillis(createdAt)
		all = append(all, scored{ch: ch, dist: l2(queryVec, ch.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].dist != all[j].dist {
			return all[i].dist < all[j].dist
		}
		return all[i].ch.Position < all[j].ch.Position
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]models.IndexedChunk, len(all))
	for i, s := range all {
		out[i] = s.ch
	}
	return out, nil
}

func (c *DatabaseClient) DeleteChunksByJob(ctx context.Context, jobID string) error {
	_, err := c.db.ExecContext(ctx, c.q(`DELETE FROM document_chunks WHERE job_id = ?`), jobID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (c *DatabaseClient) encodeVector(v []float32) any {
	if c.dialect == dialectPostgres {
		return pgvector.NewVector(v)
	}
	return encodeFloats(v)
}

func encodeFloats(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// l2 treats missing dimensions as zero so mismatched vectors still rank.
func l2(a, b []float32) float64 {
	n := max(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = float64(a[i])
		}
		if i < len(b) {
			y = float64(b[i])
		}
		sum += (x - y) * (x - y)
	}
	return math.Sqrt(sum)
}

var _ core.ChunkStore = (*DatabaseClient)(nil)
