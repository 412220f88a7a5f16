package output

import (
	"fmt"
	"io"
	"strings"
)

// QuietFormatter outputs a one-line summary
type QuietFormatter struct{}

func (f *QuietFormatter) Format(answer *Answer, w io.Writer) error {
	n := 0
	var agents []string
	if answer.Result != nil {
		n = len(answer.Result.Changes)
		agents = answer.Result.MatchedAgents
	}
	if len(agents) > 0 {
		_, err := fmt.Fprintf(w, "%d change(s) for %s\n", n, strings.Join(agents, ", "))
		return err
	}
	_, err := fmt.Fprintf(w, "%d change(s)\n", n)
	return err
}
