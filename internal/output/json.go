package output

import (
	"encoding/json"
	"io"

	"github.com/rohankatakam/patchgraph/internal/models"
	"github.com/rohankatakam/patchgraph/internal/retrieval"
)

// JSONAnswer is the machine-readable answer shape, shared with the MCP tool
type JSONAnswer struct {
	Question      string                   `json:"question"`
	Answer        string                   `json:"answer"`
	MatchedAgents []string                 `json:"matched_agents"`
	Changes       []models.RetrievedChange `json:"changes"`
	Path          retrieval.Path           `json:"path,omitempty"`
}

// NewJSONAnswer builds the JSON view of an answer
func NewJSONAnswer(answer *Answer) *JSONAnswer {
	out := &JSONAnswer{
		Question:      answer.Question,
		MatchedAgents: []string{},
		Changes:       []models.RetrievedChange{},
	}
	if r := answer.Result; r != nil {
		if r.MatchedAgents != nil {
			out.MatchedAgents = r.MatchedAgents
		}
		if r.Changes != nil {
			out.Changes = r.Changes
		}
		out.Path = r.Path
	}
	out.Answer = FormatAnswer(out.Question, out.MatchedAgents, out.Changes)
	return out
}

// JSONFormatter outputs indented JSON
type JSONFormatter struct{}

func (f *JSONFormatter) Format(answer *Answer, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewJSONAnswer(answer))
}
