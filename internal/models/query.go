package models

// SearchMode selects how the query vector is perturbed before scoring.
type SearchMode string

const (
	// ModeExact uses the query vector as-is; results are deterministic.
	ModeExact SearchMode = "exact"
	// ModeSimilar adds small uniform noise (±0.05 per component) for loosely related hits.
	ModeSimilar SearchMode = "similar"
	// ModeSerendipity adds larger uniform noise (±0.15 per component) for exploratory hits.
	// Results in this mode are deliberately not reproducible across calls.
	ModeSerendipity SearchMode = "serendipity"
)

// Amplitude returns the uniform noise half-range for the mode.
func (m SearchMode) Amplitude() float32 {
	switch m {
	case ModeSimilar:
		return 0.05
	case ModeSerendipity:
		return 0.15
	}
	return 0
}

// SearchOptions configures a similarity search. The zero value means:
// limit 10, no similarity threshold, all entity types, no exclusions, exact mode.
type SearchOptions struct {
	Limit         int          `json:"limit,omitempty"`
	MinSimilarity float64      `json:"min_similarity,omitempty"`
	EntityTypes   []EntityType `json:"entity_types,omitempty"`
	ExcludeIDs    []string     `json:"exclude_ids,omitempty"`
	Mode          SearchMode   `json:"mode,omitempty"`
}

// Normalize fills in the default limit and mode. MinSimilarity is taken
// literally (0 means no threshold); callers wanting the conventional 0.5
// default apply it at their boundary.
func (o *SearchOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.Mode == "" {
		o.Mode = ModeExact
	}
}
