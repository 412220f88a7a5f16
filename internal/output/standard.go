package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/rohankatakam/patchgraph/internal/models"
)

const maxSources = 3

// StandardFormatter prints the human-readable answer (default)
type StandardFormatter struct{}

func (f *StandardFormatter) Format(answer *Answer, w io.Writer) error {
	var agents []string
	var changes []models.RetrievedChange
	if answer.Result != nil {
		agents = answer.Result.MatchedAgents
		changes = answer.Result.Changes
	}
	_, err := fmt.Fprintln(w, FormatAnswer(answer.Question, agents, changes))
	return err
}

// FormatAnswer renders retrieved changes as plain text: a header, one
// numbered line per change and up to three distinct source URLs
func FormatAnswer(question string, matchedAgents []string, changes []models.RetrievedChange) string {
	if len(changes) == 0 {
		return fmt.Sprintf("No matching changes were found for: %s\n"+
			"Try using an agent name (for example: Reyna, Harbor, Jett) or a topic like UI or gameplay.", question)
	}

	lines := []string{fmt.Sprintf("Question: %s", question)}
	if len(matchedAgents) > 0 {
		lines = append(lines, fmt.Sprintf("Detected agent(s): %s", strings.Join(matchedAgents, ", ")))
	}

	lines = append(lines, fmt.Sprintf("Top %d change(s):", len(changes)))
	for i, c := range changes {
		suffix := ""
		if len(c.Agents) > 0 {
			suffix = " | Mentions: " + strings.Join(c.Agents, ", ")
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s: %s%s", i+1, c.PatchID, c.SectionName, c.Text, suffix))
	}

	sources := sourceURLs(changes)
	if len(sources) > 0 {
		lines = append(lines, "Sources:")
		if len(sources) > maxSources {
			sources = sources[:maxSources]
		}
		for _, url := range sources {
			lines = append(lines, "- "+url)
		}
	}
	return strings.Join(lines, "\n")
}

// sourceURLs returns the distinct non-empty source URLs in first-seen order
func sourceURLs(changes []models.RetrievedChange) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, c := range changes {
		if c.SourceURL == nil || *c.SourceURL == "" || seen[*c.SourceURL] {
			continue
		}
		seen[*c.SourceURL] = true
		urls = append(urls, *c.SourceURL)
	}
	return urls
}
