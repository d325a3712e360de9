// Package models defines core data structures for vector documents, source entities, and search.
package models

import "time"

// EntityType identifies the kind of source record a vector document was derived from.
type EntityType string

// Known entity types. The set is closed; the store rejects anything else.
const (
	EntityKnowledge EntityType = "knowledge"
	EntityChapter   EntityType = "chapter"
	EntityCharacter EntityType = "character"
	EntityPlot      EntityType = "plot"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityKnowledge, EntityChapter, EntityCharacter, EntityPlot:
		return true
	}
	return false
}

// VectorDocument is the indexed unit: one row per (entityType, entityID, projectID).
// Content is the exact text that was embedded, stored verbatim for snippets.
// Magnitude is the Euclidean norm of Vector, kept consistent on every write.
type VectorDocument struct {
	ID         string                 `json:"id"`
	EntityType EntityType             `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	ProjectID  int64                  `json:"project_id"`
	Content    string                 `json:"content"`
	Vector     []float32              `json:"-"`
	RawVector  []byte                 `json:"-"` // JSON-encoded vector; populated on project scans, decoded through the cache
	Magnitude  float64                `json:"magnitude"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// SearchResult is a per-query projection of a VectorDocument plus its similarity score.
type SearchResult struct {
	ID         string                 `json:"id"`
	EntityType EntityType             `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Content    string                 `json:"content"`
	Similarity float64                `json:"similarity"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
