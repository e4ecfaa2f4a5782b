package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/internal/types"
)

var (
	_ Backend                = (*PGVectorBackend)(nil)
	_ types.SimilaritySearch = (*pgSearch)(nil)
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// PGVectorBackend stores each built index as one generation of rows in a
// pgvector table and searches it with the ivfflat cosine index.
type PGVectorBackend struct {
	config VectorStoreConfig
	table  string
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*PGVectorBackend, error) {
	if config.TableName == "" {
		config.TableName = "document_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &PGVectorBackend{
		config: config,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PGVectorBackend) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			generation TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			embedding vector(%d)
		)`, vs.table, vs.config.VectorDim)

	if _, err = vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (generation)`,
			pgx.Identifier{vs.config.TableName + "_generation_idx"}.Sanitize(), vs.table),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s
			ON %s
			USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = 100)`,
			pgx.Identifier{vs.config.TableName + "_embedding_idx"}.Sanitize(), vs.table),
	}
	for _, stmt := range createIndexes {
		if _, err = vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Build writes all rows of a new generation in one transaction so a
// half-written generation is never visible.
func (vs *PGVectorBackend) Build(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (types.SimilaritySearch, error) {
	if err := checkVectors(chunks, vectors); err != nil {
		return nil, err
	}
	if len(vectors) > 0 && len(vectors[0]) != vs.config.VectorDim {
		return nil, fmt.Errorf("embedding dimension %d does not match table dimension %d", len(vectors[0]), vs.config.VectorDim)
	}

	generation := uuid.NewString()

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, generation, chunk_index, content, start_offset, end_offset, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		vs.table)

	for i, chunk := range chunks {
		_, err = tx.Exec(ctx, stmt,
			fmt.Sprintf("%s_%d", generation, chunk.Index),
			generation,
			chunk.Index,
			sanitizeUTF8(chunk.Content),
			chunk.Start,
			chunk.End,
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", chunk.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &pgSearch{backend: vs, generation: generation, count: len(chunks)}, nil
}

func (vs *PGVectorBackend) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

type pgSearch struct {
	backend    *PGVectorBackend
	generation string
	count      int
}

func (s *pgSearch) Search(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 || s.count == 0 {
		return nil, nil
	}

	stmt := fmt.Sprintf(`
		SELECT chunk_index, content, start_offset, end_offset, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE generation = $2
		ORDER BY embedding <=> $1, chunk_index
		LIMIT $3`,
		s.backend.table)

	rows, err := s.backend.pool.Query(ctx, stmt, pgvector.NewVector(query), s.generation, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []models.ScoredChunk
	for rows.Next() {
		var r models.ScoredChunk
		if err := rows.Scan(&r.Index, &r.Content, &r.Start, &r.End, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return results, nil
}

func (s *pgSearch) Len() int {
	return s.count
}

// Close drops the generation's rows.
func (s *pgSearch) Close() error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE generation = $1`, s.backend.table)
	if _, err := s.backend.pool.Exec(context.Background(), stmt, s.generation); err != nil {
		return fmt.Errorf("failed to delete generation %s: %w", s.generation, err)
	}
	return nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
