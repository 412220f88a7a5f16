package linking

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rohankatakam/patchgraph/internal/models"
)

// MinAliasLength is the shortest normalized alias considered for matching.
// Shorter aliases ("Go", "KO") collide with ordinary words.
const MinAliasLength = 3

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeForMatch lowercases, collapses every run of non-alphanumerics to
// one space and trims
func NormalizeForMatch(value string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(value), " "))
}

// DetectMentions returns the sorted, de-duplicated uuids of agents with at
// least one alias appearing in text as whole normalized words
func DetectMentions(text string, agents []models.Agent) []string {
	normalized := NormalizeForMatch(text)
	if normalized == "" {
		return []string{}
	}
	padded := " " + normalized + " "

	seen := make(map[string]bool)
	for _, agent := range agents {
		if agent.UUID == "" || seen[agent.UUID] {
			continue
		}
		for _, alias := range agent.MatchAliases() {
			a := NormalizeForMatch(alias)
			if len(a) < MinAliasLength {
				continue
			}
			if strings.Contains(padded, " "+a+" ") {
				seen[agent.UUID] = true
				break
			}
		}
	}

	uuids := make([]string, 0, len(seen))
	for uuid := range seen {
		uuids = append(uuids, uuid)
	}
	sort.Strings(uuids)
	return uuids
}
