// Package pg implements the document side of retrieval on PostgreSQL with
// the pgvector extension. One row per chunk, scoped by space and source file.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	cserrors "github.com/citeseek/citeseek/errors"
	"github.com/citeseek/citeseek/search"
)

// Chunk is one embedded document fragment stored for retrieval.
type Chunk struct {
	ID       string
	SpaceID  string
	FileID   string
	SourceID string // originating filename, surfaced in citations
	Content  string
	Vector   []float32
}

// Config holds PostgreSQL connection and schema settings.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Dimension int    // embedding dimension (default 1536)
	TableName string // default "document_chunks"
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "postgres",
		Password:  "",
		DBName:    "citeseek",
		SSLMode:   "disable",
		Dimension: 1536,
		TableName: "document_chunks",
	}
}

// Store implements search.FileScopedRetriever on pgvector.
type Store struct {
	db        *sql.DB
	dimension int
	tableName string
}

var _ search.FileScopedRetriever = (*Store)(nil)

// New connects to PostgreSQL, enables pgvector and ensures the chunk table.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &Store{
		db:        db,
		dimension: config.Dimension,
		tableName: config.TableName,
	}
	if err := store.setup(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to setup pgvector: %w", err)
	}
	return store, nil
}

func (s *Store) setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(255) PRIMARY KEY,
		space_id VARCHAR(255) NOT NULL,
		file_id VARCHAR(255) NOT NULL,
		source_id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.tableName, s.dimension)
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	scopeIndexSQL := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_scope_idx ON %s (space_id, file_id)",
		s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, scopeIndexSQL); err != nil {
		return fmt.Errorf("failed to create scope index: %w", err)
	}
	return nil
}

// AddChunk inserts or replaces one embedded chunk.
func (s *Store) AddChunk(ctx context.Context, chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("chunk cannot be nil")
	}
	if chunk.ID == "" {
		return fmt.Errorf("chunk ID cannot be empty")
	}
	if len(chunk.Vector) != s.dimension {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.dimension, len(chunk.Vector))
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, space_id, file_id, source_id, content, embedding)
	VALUES ($1, $2, $3, $4, $5, $6::vector)
	ON CONFLICT (id) DO UPDATE SET
		space_id = EXCLUDED.space_id,
		file_id = EXCLUDED.file_id,
		source_id = EXCLUDED.source_id,
		content = EXCLUDED.content,
		embedding = EXCLUDED.embedding,
		created_at = CURRENT_TIMESTAMP
	`, s.tableName)

	_, err := s.db.ExecContext(ctx, query,
		chunk.ID, chunk.SpaceID, chunk.FileID, chunk.SourceID, chunk.Content, vectorToString(chunk.Vector))
	if err != nil {
		return fmt.Errorf("failed to add chunk: %w", err)
	}
	return nil
}

// SimilaritySearch implements search.DocumentRetriever. An empty spaceID
// searches every space. Cosine similarity is 1 minus the pgvector cosine
// distance; only rows above the threshold are returned.
func (s *Store) SimilaritySearch(ctx context.Context, spaceID string, queryVector []float32, threshold float32) ([]search.DocumentHit, error) {
	return s.query(ctx, spaceID, nil, queryVector, threshold)
}

// SimilaritySearchFiles implements search.FileScopedRetriever.
func (s *Store) SimilaritySearchFiles(ctx context.Context, spaceID string, fileIDs []string, queryVector []float32, threshold float32) ([]search.DocumentHit, error) {
	return s.query(ctx, spaceID, fileIDs, queryVector, threshold)
}

func (s *Store) query(ctx context.Context, spaceID string, fileIDs []string, queryVector []float32, threshold float32) ([]search.DocumentHit, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d", s.dimension, len(queryVector))
	}

	args := []any{vectorToString(queryVector), threshold}
	var where []string
	if spaceID != "" {
		args = append(args, spaceID)
		where = append(where, fmt.Sprintf("space_id = $%d", len(args)))
	}
	if len(fileIDs) > 0 {
		args = append(args, pq.Array(fileIDs))
		where = append(where, fmt.Sprintf("file_id = ANY($%d)", len(args)))
	}
	filter := ""
	if len(where) > 0 {
		filter = " AND " + strings.Join(where, " AND ")
	}

	querySQL := fmt.Sprintf(`
	SELECT source_id, content, 1 - (embedding <=> $1::vector) AS score
	FROM %s
	WHERE 1 - (embedding <=> $1::vector) > $2%s
	ORDER BY score DESC
	LIMIT 20
	`, s.tableName, filter)

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var hits []search.DocumentHit
	for rows.Next() {
		var hit search.DocumentHit
		if err := rows.Scan(&hit.SourceID, &hit.Content, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return hits, nil
}

// DeleteFile removes every chunk of one file within a space.
func (s *Store) DeleteFile(ctx context.Context, spaceID, fileID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE space_id = $1 AND file_id = $2", s.tableName)
	result, err := s.db.ExecContext(ctx, query, spaceID, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file chunks: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file %s in space %s: %w", fileID, spaceID, cserrors.ErrNotFound)
	}
	return nil
}

// Count returns the number of stored chunks in a space, or overall when
// spaceID is empty.
func (s *Store) Count(ctx context.Context, spaceID string) (int, error) {
	var count int
	var err error
	if spaceID == "" {
		err = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE space_id = $1", s.tableName), spaceID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func vectorToString(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
