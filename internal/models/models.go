package models

import (
	"strings"
)

// PatchLink identifies the current release-notes article on a listing page
type PatchLink struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	PatchID string `json:"patch_id"`
}

// Patch is one versioned release-notes article
type Patch struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	PublishedAt *string `json:"published_at"`
}

// Change is one discrete bullet or paragraph within a section
type Change struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	SectionName string `json:"section_name"`
	SourceURL   string `json:"source_url"`
	Order       int    `json:"order"`
}

// Section is a named grouping of changes
type Section struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Order   int      `json:"order"`
	Changes []Change `json:"changes"`
}

// PatchDocument is the segmented form of a release-notes article.
// Section and change IDs are derived from the patch ID and their positions,
// so identical input always yields identical IDs.
type PatchDocument struct {
	Patch    Patch     `json:"patch"`
	Sections []Section `json:"sections"`
}

// ChangeCount returns the number of changes across all sections
func (d *PatchDocument) ChangeCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Changes)
	}
	return n
}

// Agent is a playable character with its canonical name and alias set
type Agent struct {
	UUID      string   `json:"uuid"`
	Name      string   `json:"name"`
	Role      *string  `json:"role"`
	IconURL   *string  `json:"icon_url"`
	Abilities []string `json:"abilities"`
	Aliases   []string `json:"aliases"`
}

// MatchAliases returns the aliases used for mention detection, falling back
// to the canonical name when the roster carries none.
func (a Agent) MatchAliases() []string {
	if len(a.Aliases) > 0 {
		return a.Aliases
	}
	if strings.TrimSpace(a.Name) == "" {
		return nil
	}
	return []string{a.Name}
}

// Roster is the agent roster document
type Roster struct {
	Agents []Agent `json:"agents"`
}

// LoadStats summarises one materialization run
type LoadStats struct {
	Sections   int `json:"sections"`
	Changes    int `json:"changes"`
	Agents     int `json:"agents"`
	AgentLinks int `json:"agent_links"`
}

// RetrievedChange is one ranked retrieval hit
type RetrievedChange struct {
	ChangeID    string   `json:"change_id"`
	PatchID     string   `json:"patch_id"`
	SectionName string   `json:"section_name"`
	Text        string   `json:"text"`
	SourceURL   *string  `json:"source_url"`
	Score       float64  `json:"score"`
	Agents      []string `json:"agents"`
}
