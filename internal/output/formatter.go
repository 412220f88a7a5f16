package output

import (
	"io"
	"os"

	"github.com/rohankatakam/patchgraph/internal/retrieval"
)

// Answer pairs a question with what the retriever found for it
type Answer struct {
	Question string
	Result   *retrieval.Result
}

// Formatter defines output formatting interface
type Formatter interface {
	Format(answer *Answer, w io.Writer) error
}

// VerbosityLevel determines output detail
type VerbosityLevel int

const (
	VerbosityQuiet    VerbosityLevel = iota // one-line summary
	VerbosityStandard                       // numbered changes and sources
	VerbosityJSON                           // machine-readable
)

// NewFormatter creates appropriate formatter based on level
func NewFormatter(level VerbosityLevel) Formatter {
	switch level {
	case VerbosityQuiet:
		return &QuietFormatter{}
	case VerbosityJSON:
		return &JSONFormatter{}
	default:
		return &StandardFormatter{}
	}
}

// ParseVerbosity maps a --format flag value to a level
func ParseVerbosity(format string) (VerbosityLevel, bool) {
	switch format {
	case "quiet":
		return VerbosityQuiet, true
	case "text", "standard", "":
		return VerbosityStandard, true
	case "json":
		return VerbosityJSON, true
	}
	return VerbosityStandard, false
}

// GetDefaultVerbosity returns appropriate default based on environment
func GetDefaultVerbosity() VerbosityLevel {
	if os.Getenv("PATCHGRAPH_OUTPUT") == "json" {
		return VerbosityJSON
	}
	return VerbosityStandard
}
