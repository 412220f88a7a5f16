// Package roster builds the agent roster from the valorant-api agents payload
// and reads and writes roster documents.
package roster

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/models"
)

// DefaultAPIURL lists playable agents only
const DefaultAPIURL = "https://valorant-api.com/v1/agents?isPlayableCharacter=true"

// Getter fetches a URL body. *fetch.Fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// payload mirrors the subset of the agents API response we read
type payload struct {
	Data []struct {
		UUID                string `json:"uuid"`
		DisplayName         string `json:"displayName"`
		IsPlayableCharacter bool   `json:"isPlayableCharacter"`
		DisplayIcon         string `json:"displayIcon"`
		FullPortrait        string `json:"fullPortrait"`
		BustPortrait        string `json:"bustPortrait"`
		Role                *struct {
			DisplayName string `json:"displayName"`
		} `json:"role"`
		Abilities []struct {
			DisplayName string `json:"displayName"`
		} `json:"abilities"`
	} `json:"data"`
}

// ParsePayload maps an agents API response into a roster. Non-playable
// agents, unnamed agents and agents without a uuid are dropped. Agents are
// sorted by name, abilities and aliases are deduplicated and sorted, all
// case-insensitively.
func ParsePayload(data []byte) (*models.Roster, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "invalid agents payload")
	}

	roster := &models.Roster{Agents: []models.Agent{}}
	for _, item := range p.Data {
		if !item.IsPlayableCharacter || item.UUID == "" {
			continue
		}
		name := normalizeSpace(item.DisplayName)
		if name == "" {
			continue
		}

		agent := models.Agent{
			UUID:      item.UUID,
			Name:      name,
			Abilities: []string{},
		}
		if item.Role != nil {
			if role := normalizeSpace(item.Role.DisplayName); role != "" {
				agent.Role = &role
			}
		}
		if icon := firstNonEmpty(item.DisplayIcon, item.FullPortrait, item.BustPortrait); icon != "" {
			agent.IconURL = &icon
		}

		aliases := map[string]bool{name: true}
		abilities := map[string]bool{}
		for _, ability := range item.Abilities {
			abilityName := normalizeSpace(ability.DisplayName)
			if abilityName == "" {
				continue
			}
			abilities[abilityName] = true
			aliases[abilityName] = true
		}
		agent.Abilities = sortedFold(abilities)
		agent.Aliases = sortedFold(aliases)

		roster.Agents = append(roster.Agents, agent)
	}

	sort.SliceStable(roster.Agents, func(i, j int) bool {
		return strings.ToLower(roster.Agents[i].Name) < strings.ToLower(roster.Agents[j].Name)
	})
	return roster, nil
}

// Fetch downloads and parses the agents payload
func Fetch(ctx context.Context, getter Getter, url string) (*models.Roster, error) {
	if url == "" {
		url = DefaultAPIURL
	}
	body, err := getter.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParsePayload(body)
}

// Load reads a roster document as written by the agents command
func Load(path string) (*models.Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "read roster %s", path)
	}
	var roster models.Roster
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "invalid roster document "+path)
	}
	kept := roster.Agents[:0]
	for _, agent := range roster.Agents {
		if agent.UUID != "" {
			kept = append(kept, agent)
		}
	}
	roster.Agents = kept
	return &roster, nil
}

func normalizeSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// sortedFold orders keys case-insensitively, breaking ties on the raw value
// so the output is stable across runs.
func sortedFold(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i]), strings.ToLower(out[j])
		if li != lj {
			return li < lj
		}
		return out[i] < out[j]
	})
	return out
}
