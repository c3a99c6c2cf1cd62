package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// promptConfirmer asks overwrite questions on the terminal. An unreadable
// answer counts as a decline.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *promptConfirmer) ConfirmOverwrite(path string) (bool, error) {
	fmt.Fprintf(p.out, "%s already exists. Overwrite? [y/N] ", path)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// autoConfirmer answers yes to everything, for --yes runs.
type autoConfirmer struct{}

func (autoConfirmer) ConfirmOverwrite(string) (bool, error) { return true, nil }
