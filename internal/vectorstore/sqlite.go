package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/noveldesk/kioku/internal/embedding"
	"github.com/noveldesk/kioku/internal/models"
)

// SQLiteStore implements Store on SQLite. The uniqueness constraint on
// (entity_type, entity_id, project_id) plus ON CONFLICT DO UPDATE makes
// concurrent upserts for the same entity safe without application locking.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath and initializes the
// schema. Parent directories are created if they do not exist. dbPath may be
// ":memory:" for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStoreFromDB wraps an existing database handle (shared with the
// source repositories) and initializes the vector schema.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vector_documents (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		project_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		vector TEXT NOT NULL,
		magnitude REAL NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (entity_type, entity_id, project_id)
	);

	CREATE INDEX IF NOT EXISTS idx_vector_documents_project ON vector_documents(project_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Upsert inserts or replaces the document for (entityType, entityID, projectID).
func (s *SQLiteStore) Upsert(ctx context.Context, entityType models.EntityType, entityID string, projectID int64,
	content string, vector []float32, metadata map[string]interface{}) (*models.VectorDocument, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
	rawVector, err := EncodeVector(vector)
	if err != nil {
		return nil, err
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	now := time.Now().UTC()
	magnitude := embedding.Magnitude(vector)

	// The conflict branch keeps id and created_at from the existing row.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vector_documents
		   (id, entity_type, entity_id, project_id, content, vector, magnitude, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (entity_type, entity_id, project_id) DO UPDATE SET
		   content = excluded.content,
		   vector = excluded.vector,
		   magnitude = excluded.magnitude,
		   metadata = excluded.metadata,
		   updated_at = excluded.updated_at`,
		uuid.New().String(), string(entityType), entityID, projectID,
		content, string(rawVector), magnitude, string(metadataJSON), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert vector document: %w", err)
	}
	return s.GetByEntity(ctx, entityType, entityID, projectID)
}

// GetByEntity returns the entity's document with its vector decoded.
func (s *SQLiteStore) GetByEntity(ctx context.Context, entityType models.EntityType, entityID string, projectID int64) (*models.VectorDocument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, entity_type, entity_id, project_id, content, vector, magnitude, metadata, created_at, updated_at
		 FROM vector_documents
		 WHERE entity_type = ? AND entity_id = ? AND project_id = ?`,
		string(entityType), entityID, projectID,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.Vector, err = DecodeVector(doc.RawVector)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// QueryByProject returns all project documents matching the filter. Vectors
// are returned raw (RawVector); callers decode through the cache.
func (s *SQLiteStore) QueryByProject(ctx context.Context, projectID int64, filter Filter) ([]*models.VectorDocument, error) {
	query := strings.Builder{}
	query.WriteString(
		`SELECT id, entity_type, entity_id, project_id, content, vector, magnitude, metadata, created_at, updated_at
		 FROM vector_documents WHERE project_id = ?`)
	args := []interface{}{projectID}

	if len(filter.EntityTypes) > 0 {
		query.WriteString(" AND entity_type IN (" + placeholders(len(filter.EntityTypes)) + ")")
		for _, t := range filter.EntityTypes {
			args = append(args, string(t))
		}
	}
	if len(filter.ExcludeIDs) > 0 {
		query.WriteString(" AND id NOT IN (" + placeholders(len(filter.ExcludeIDs)) + ")")
		for _, id := range filter.ExcludeIDs {
			args = append(args, id)
		}
	}
	query.WriteString(" ORDER BY created_at, id")

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query project documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.VectorDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteByEntity removes the entity's document if present.
func (s *SQLiteStore) DeleteByEntity(ctx context.Context, entityType models.EntityType, entityID string, projectID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_documents WHERE entity_type = ? AND entity_id = ? AND project_id = ?`,
		string(entityType), entityID, projectID,
	)
	if err != nil {
		return false, fmt.Errorf("delete vector document: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteByProject removes every document for the project.
func (s *SQLiteStore) DeleteByProject(ctx context.Context, projectID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_documents WHERE project_id = ?`, projectID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete project documents: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountByProject returns the number of documents for the project.
func (s *SQLiteStore) CountByProject(ctx context.Context, projectID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vector_documents WHERE project_id = ?`, projectID,
	).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.VectorDocument, error) {
	var doc models.VectorDocument
	var entityType, rawVector string
	var metadataJSON sql.NullString
	if err := row.Scan(&doc.ID, &entityType, &doc.EntityID, &doc.ProjectID, &doc.Content,
		&rawVector, &doc.Magnitude, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.EntityType = models.EntityType(entityType)
	doc.RawVector = []byte(rawVector)
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
