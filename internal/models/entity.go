package models

import "time"

// Knowledge is a research note or worldbuilding entry owned by a project.
type Knowledge struct {
	ID        string    `json:"id"`
	ProjectID int64     `json:"project_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Plot is a storyline grouping chapters within a project.
type Plot struct {
	ID        string    `json:"id"`
	ProjectID int64     `json:"project_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Chapter is a manuscript chapter belonging to a plot. Its project is
// reached through the plot.
type Chapter struct {
	ID        string    `json:"id"`
	PlotID    string    `json:"plot_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchText returns the text that gets embedded for a knowledge item.
func (k *Knowledge) SearchText() string {
	if k.Title == "" {
		return k.Content
	}
	return k.Title + "\n\n" + k.Content
}

// SearchText returns the text that gets embedded for a chapter.
func (c *Chapter) SearchText() string {
	if c.Title == "" {
		return c.Content
	}
	return c.Title + "\n\n" + c.Content
}
