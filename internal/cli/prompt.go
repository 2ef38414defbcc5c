package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompt reads lines from the terminal. It also answers yes/no
// confirmations so that commands and confirmations share one input stream.
type Prompt struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPrompt reads from in and writes prompts to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{scanner: bufio.NewScanner(in), out: out}
}

// ReadLine prints label and returns the next trimmed line. ok is false at
// end of input.
func (p *Prompt) ReadLine(label string) (line string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, label)
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

// Confirm asks prompt and reports whether the answer was yes. End of input
// counts as no.
func (p *Prompt) Confirm(prompt string) bool {
	answer, ok := p.ReadLine(prompt + " [y/N] ")
	if !ok {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
