package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/noveldesk/kioku/internal/models"
)

// SQLiteRepository implements KnowledgeRepository and ChapterRepository on a
// shared SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens or creates the database at dbPath and
// initializes the entity schema.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
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
	repo, err := NewSQLiteRepositoryFromDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLiteRepositoryFromDB wraps an existing handle and initializes the
// entity schema.
func NewSQLiteRepositoryFromDB(db *sql.DB) (*SQLiteRepository, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge (
		id TEXT PRIMARY KEY,
		project_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_project ON knowledge(project_id);

	CREATE TABLE IF NOT EXISTS plots (
		id TEXT PRIMARY KEY,
		project_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plots_project ON plots(project_id);

	CREATE TABLE IF NOT EXISTS chapters (
		id TEXT PRIMARY KEY,
		plot_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (plot_id) REFERENCES plots(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chapters_plot ON chapters(plot_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initialize entity schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// DB exposes the underlying handle so the vector store can share it.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// GetByID returns a knowledge note, or ErrNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Knowledge, error) {
	var k models.Knowledge
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, content, created_at, updated_at FROM knowledge WHERE id = ?`, id,
	).Scan(&k.ID, &k.ProjectID, &k.Title, &k.Content, &k.CreatedAt, &k.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("knowledge %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListByProject returns all knowledge notes for the project.
func (r *SQLiteRepository) ListByProject(ctx context.Context, projectID int64) ([]*models.Knowledge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, title, content, created_at, updated_at
		 FROM knowledge WHERE project_id = ? ORDER BY created_at, id`, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Knowledge
	for rows.Next() {
		var k models.Knowledge
		if err := rows.Scan(&k.ID, &k.ProjectID, &k.Title, &k.Content, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &k)
	}
	return items, rows.Err()
}

// Upsert inserts or updates a knowledge note, preserving created_at.
func (r *SQLiteRepository) Upsert(ctx context.Context, k *models.Knowledge) error {
	now := time.Now().UTC()
	if k.CreatedAt.IsZero() {
		k.CreatedAt = now
	}
	k.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO knowledge (id, project_id, title, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   project_id = excluded.project_id,
		   title = excluded.title,
		   content = excluded.content,
		   updated_at = excluded.updated_at`,
		k.ID, k.ProjectID, k.Title, k.Content, k.CreatedAt, k.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert knowledge: %w", err)
	}
	return nil
}

// Delete removes a knowledge note.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM knowledge WHERE id = ?`, id)
	return err
}

// GetChapter returns a chapter, or ErrNotFound.
func (r *SQLiteRepository) GetChapter(ctx context.Context, id string) (*models.Chapter, error) {
	var c models.Chapter
	err := r.db.QueryRowContext(ctx,
		`SELECT id, plot_id, title, content, position, created_at, updated_at FROM chapters WHERE id = ?`, id,
	).Scan(&c.ID, &c.PlotID, &c.Title, &c.Content, &c.Position, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chapter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetPlot returns a plot, or ErrNotFound.
func (r *SQLiteRepository) GetPlot(ctx context.Context, id string) (*models.Plot, error) {
	var p models.Plot
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, created_at FROM plots WHERE id = ?`, id,
	).Scan(&p.ID, &p.ProjectID, &p.Title, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetChaptersByPlot returns the plot's chapters in manuscript order.
func (r *SQLiteRepository) GetChaptersByPlot(ctx context.Context, plotID string) ([]*models.Chapter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, plot_id, title, content, position, created_at, updated_at
		 FROM chapters WHERE plot_id = ? ORDER BY position, id`, plotID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []*models.Chapter
	for rows.Next() {
		var c models.Chapter
		if err := rows.Scan(&c.ID, &c.PlotID, &c.Title, &c.Content, &c.Position, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		chapters = append(chapters, &c)
	}
	return chapters, rows.Err()
}

// GetPlotsByProject returns all plots for the project.
func (r *SQLiteRepository) GetPlotsByProject(ctx context.Context, projectID int64) ([]*models.Plot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, title, created_at FROM plots WHERE project_id = ? ORDER BY created_at, id`, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plots []*models.Plot
	for rows.Next() {
		var p models.Plot
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Title, &p.CreatedAt); err != nil {
			return nil, err
		}
		plots = append(plots, &p)
	}
	return plots, rows.Err()
}

// CreatePlot inserts a plot.
func (r *SQLiteRepository) CreatePlot(ctx context.Context, p *models.Plot) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plots (id, project_id, title, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.ProjectID, p.Title, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create plot: %w", err)
	}
	return nil
}

// UpsertChapter inserts or updates a chapter, preserving created_at.
func (r *SQLiteRepository) UpsertChapter(ctx context.Context, c *models.Chapter) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chapters (id, plot_id, title, content, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   plot_id = excluded.plot_id,
		   title = excluded.title,
		   content = excluded.content,
		   position = excluded.position,
		   updated_at = excluded.updated_at`,
		c.ID, c.PlotID, c.Title, c.Content, c.Position, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert chapter: %w", err)
	}
	return nil
}

// DeleteChapter removes a chapter.
func (r *SQLiteRepository) DeleteChapter(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chapters WHERE id = ?`, id)
	return err
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
