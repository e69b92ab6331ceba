package memory

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"gonum.org/v1/gonum/floats"

	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
	"sleuth/ports"
)

// PostgresStore implements MemoryPort over Postgres with embeddings stored
// as float8 arrays. Similarity is cosine distance computed in-process over a
// bounded candidate window, which keeps the schema free of extensions.
type PostgresStore struct {
	db        *sqlx.DB
	embedder  ports.EmbeddingPort
	scanLimit int
}

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	id          SERIAL PRIMARY KEY,
	doc_id      VARCHAR(255) UNIQUE NOT NULL,
	question    TEXT NOT NULL,
	root_cause  TEXT NOT NULL,
	resolution  TEXT NOT NULL DEFAULT '',
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	embedding   DOUBLE PRECISION[],
	created_at  TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS incidents_created_at_idx ON incidents (created_at DESC);
`

// NewPostgresStore creates the incident memory and ensures its schema
func NewPostgresStore(db *sqlx.DB, embedder ports.EmbeddingPort) (*PostgresStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize incident schema: %w", err)
	}
	return &PostgresStore{db: db, embedder: embedder, scanLimit: 500}, nil
}

type incidentRow struct {
	DocID      string          `db:"doc_id"`
	Question   string          `db:"question"`
	RootCause  string          `db:"root_cause"`
	Resolution string          `db:"resolution"`
	CreatedAt  string          `db:"created_at"`
	Embedding  pq.Float64Array `db:"embedding"`
}

// SearchSimilar returns the k past incidents most similar to the question
func (s *PostgresStore) SearchSimilar(ctx context.Context, question string, k int) ([]ports.IncidentMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	var rows []incidentRow
	err = s.db.SelectContext(ctx, &rows, `
		SELECT doc_id, question, root_cause, resolution, created_at::text AS created_at, embedding
		FROM incidents
		WHERE embedding IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $1`, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident candidates: %w", err)
	}

	matches := make([]ports.IncidentMatch, 0, len(rows))
	for _, row := range rows {
		sim := cosineSimilarity(queryVec, []float64(row.Embedding))
		if sim <= 0 {
			continue
		}
		matches = append(matches, ports.IncidentMatch{
			Summary:    fmt.Sprintf("%s: %s", row.Question, row.RootCause),
			Resolution: row.Resolution,
			Similarity: sim,
			OccurredAt: row.CreatedAt,
		})
	}

	// Highest similarity first, stable for equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// StoreInvestigation persists a completed investigation as a future incident
func (s *PostgresStore) StoreInvestigation(ctx context.Context, inv *investigation.Investigation, ev []evidence.Evidence) error {
	if inv.Answer == nil || inv.Answer.Insufficient {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, inv.Question)
	if err != nil {
		log.Printf("[MemoryStore] Embedding failed, storing incident without vector: %v", err)
		vec = nil
	}

	resolution := inv.Answer.Explanation
	if len(resolution) > 2000 {
		resolution = resolution[:2000]
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents (doc_id, question, root_cause, resolution, confidence, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doc_id) DO UPDATE SET
			root_cause = EXCLUDED.root_cause,
			resolution = EXCLUDED.resolution,
			confidence = EXCLUDED.confidence,
			embedding  = EXCLUDED.embedding`,
		inv.ID.String(), inv.Question, inv.Answer.RootCause, resolution,
		inv.Answer.Confidence, pq.Float64Array(vec))
	if err != nil {
		return fmt.Errorf("failed to store incident: %w", err)
	}
	return nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}

// NullStore is the degraded MemoryPort used when no database is configured
type NullStore struct{}

// SearchSimilar always returns no matches
func (NullStore) SearchSimilar(ctx context.Context, question string, k int) ([]ports.IncidentMatch, error) {
	return nil, nil
}

// StoreInvestigation discards the investigation
func (NullStore) StoreInvestigation(ctx context.Context, inv *investigation.Investigation, ev []evidence.Evidence) error {
	return nil
}

var _ ports.MemoryPort = (*PostgresStore)(nil)
var _ ports.MemoryPort = NullStore{}
