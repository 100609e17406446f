package l402

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// TerminalPrompter asks for the preimage on a line-oriented terminal. A
// single goroutine owns the input; a line typed after an abandoned question
// answers the next one.
type TerminalPrompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer

	start   sync.Once
	lines   chan string
	readErr error
}

// NewTerminalPrompter creates a prompter reading in and writing out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out, lines: make(chan string)}
}

// ShowInstructions writes text.
func (p *TerminalPrompter) ShowInstructions(_ context.Context, text string) error {
	_, err := fmt.Fprintln(p.out, text)
	return err
}

// ReadPreimage blocks until a line is entered or ctx is done.
func (p *TerminalPrompter) ReadPreimage(ctx context.Context) (string, error) {
	line, err := p.ask(ctx, "Enter preimage: ")
	if err != nil {
		return "", err
	}
	return strings.Trim(line, `"' `), nil
}

// ConfirmPersist asks a [Y/n] question; an empty answer means yes.
func (p *TerminalPrompter) ConfirmPersist(ctx context.Context, location string) (bool, error) {
	line, err := p.ask(ctx, fmt.Sprintf("Do you want to save the L402 credential to %s? [Y/n]: ", location))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// readLines runs until in fails. readErr is written before lines is closed.
func (p *TerminalPrompter) readLines() {
	defer close(p.lines)
	for {
		line, err := p.in.ReadString('\n')
		if err == nil || (err == io.EOF && line != "") {
			p.lines <- strings.TrimSpace(line)
		}
		if err != nil {
			p.readErr = err
			return
		}
	}
}

func (p *TerminalPrompter) ask(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return "", err
	}
	p.start.Do(func() { go p.readLines() })
	select {
	case line, ok := <-p.lines:
		if !ok {
			return "", p.readErr
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
