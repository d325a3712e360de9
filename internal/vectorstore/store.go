// Package vectorstore persists vector documents and caches decoded vectors.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noveldesk/kioku/internal/models"
)

// ErrNotFound is returned when no document exists for the requested entity.
var ErrNotFound = errors.New("vector document not found")

// Filter narrows a project scan. Nil/empty fields mean no filtering.
type Filter struct {
	EntityTypes []models.EntityType
	ExcludeIDs  []string
}

// Store persists vector documents. Exactly one document exists per
// (entityType, entityID, projectID); Upsert replaces rather than duplicates,
// enforced by a database uniqueness constraint so concurrent upserts for the
// same entity cannot produce two rows.
type Store interface {
	// Upsert inserts or replaces the document for the entity. The document id
	// and created_at survive replacement; updated_at and magnitude are
	// refreshed on every write.
	Upsert(ctx context.Context, entityType models.EntityType, entityID string, projectID int64,
		content string, vector []float32, metadata map[string]interface{}) (*models.VectorDocument, error)

	// QueryByProject returns all documents for the project matching the
	// filter. Returned documents carry RawVector (undecoded); resolving the
	// vector is the caller's job, normally through the Cache.
	QueryByProject(ctx context.Context, projectID int64, filter Filter) ([]*models.VectorDocument, error)

	// GetByEntity returns the document for the entity with Vector decoded,
	// or ErrNotFound.
	GetByEntity(ctx context.Context, entityType models.EntityType, entityID string, projectID int64) (*models.VectorDocument, error)

	// DeleteByEntity removes the entity's document. Reports whether a row
	// was removed.
	DeleteByEntity(ctx context.Context, entityType models.EntityType, entityID string, projectID int64) (bool, error)

	// DeleteByProject removes every document for the project and returns the
	// number removed.
	DeleteByProject(ctx context.Context, projectID int64) (int64, error)

	// CountByProject returns the number of documents for the project.
	CountByProject(ctx context.Context, projectID int64) (int64, error)

	Close() error
}

// EncodeVector serializes a vector for storage (JSON float array).
func EncodeVector(v []float32) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode vector: %w", err)
	}
	return data, nil
}

// DecodeVector deserializes a stored vector.
func DecodeVector(data []byte) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return v, nil
}
