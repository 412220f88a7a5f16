package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/patchgraph/internal/errors"
)

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ReadSecret prompts on out and reads one line from stdin without echo when
// stdin is a terminal. Piped input is read as a plain line.
func ReadSecret(prompt string, out io.Writer) (string, error) {
	fmt.Fprint(out, prompt)

	if IsInteractive() {
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "failed to read secret")
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	return readLine(os.Stdin)
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "failed to read secret")
	}
	return strings.TrimSpace(line), nil
}

// MarshalMasked renders the configuration as YAML with secrets masked
func (c *Config) MarshalMasked() ([]byte, error) {
	masked := *c
	masked.Neo4j.Password = MaskSecret(c.Neo4j.Password)
	if c.SQL.PostgresDSN != "" {
		masked.SQL.PostgresDSN = maskDSN(c.SQL.PostgresDSN)
	}

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, errors.InternalErrorf("failed to render config: %v", err)
	}
	return data, nil
}

// maskDSN hides the password portion of a postgres URL DSN
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 {
		return dsn
	}
	userInfo := dsn[scheme+3 : at]
	colon := strings.Index(userInfo, ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:scheme+3] + userInfo[:colon] + ":***" + dsn[at:]
}
