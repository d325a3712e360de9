// Package repository provides read/write access to the source entities the
// vector index is derived from: knowledge notes, plots, and chapters.
package repository

import (
	"context"
	"errors"

	"github.com/noveldesk/kioku/internal/models"
)

// ErrNotFound is returned when a source entity does not exist. Indexing
// treats it as a benign race with deletion, not a failure.
var ErrNotFound = errors.New("entity not found")

// KnowledgeRepository accesses knowledge notes.
type KnowledgeRepository interface {
	GetByID(ctx context.Context, id string) (*models.Knowledge, error)
	ListByProject(ctx context.Context, projectID int64) ([]*models.Knowledge, error)
	Upsert(ctx context.Context, k *models.Knowledge) error
	Delete(ctx context.Context, id string) error
}

// ChapterRepository accesses plots and their chapters.
type ChapterRepository interface {
	GetChapter(ctx context.Context, id string) (*models.Chapter, error)
	GetPlot(ctx context.Context, id string) (*models.Plot, error)
	GetChaptersByPlot(ctx context.Context, plotID string) ([]*models.Chapter, error)
	GetPlotsByProject(ctx context.Context, projectID int64) ([]*models.Plot, error)
	CreatePlot(ctx context.Context, p *models.Plot) error
	UpsertChapter(ctx context.Context, c *models.Chapter) error
	DeleteChapter(ctx context.Context, id string) error
}
