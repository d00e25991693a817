package cleanup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fulmenhq/sitekeeper/pkg/logger"
)

// Response is an operator's answer to a prompt.
type Response int

const (
	No Response = iota
	Yes
	Skip
)

// String returns the single-letter form of the response.
func (r Response) String() string {
	switch r {
	case Yes:
		return "y"
	case Skip:
		return "s"
	default:
		return "n"
	}
}

// Prompt is one confirmation request.
type Prompt struct {
	Phase     Phase
	Text      string
	AllowSkip bool
}

// Confirmer answers prompts. Implementations are called strictly one prompt at a time.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (Response, error)
}

// ParseResponse maps a typed line to a Response. Anything unrecognised is No;
// "s" is only honoured when allowSkip is set.
func ParseResponse(line string, allowSkip bool) Response {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return Yes
	case "s", "skip":
		if allowSkip {
			return Skip
		}
	}
	return No
}

// LineConfirmer prompts on a writer and reads one line per answer.
type LineConfirmer struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewLineConfirmer creates a confirmer over in (usually stdin) and out (usually stdout).
func NewLineConfirmer(in io.Reader, out io.Writer) *LineConfirmer {
	return &LineConfirmer{reader: bufio.NewReader(in), out: out}
}

// Confirm writes the prompt and blocks until a line is read. End of input counts as No.
func (c *LineConfirmer) Confirm(ctx context.Context, p Prompt) (Response, error) {
	if err := ctx.Err(); err != nil {
		return No, err
	}
	choices := "(y/n)"
	if p.AllowSkip {
		choices = "(y/n/s)"
	}
	if _, err := fmt.Fprintf(c.out, "❓ %s %s: ", p.Text, choices); err != nil {
		return No, err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintln(c.out)
			logger.Debug("End of input; treating as no", logger.String("phase", string(p.Phase)))
			return ParseResponse(line, p.AllowSkip), nil
		}
		return No, fmt.Errorf("failed to read input: %w", err)
	}
	return ParseResponse(line, p.AllowSkip), nil
}

// FixedConfirmer gives the same answer to destructive prompts and declines
// analysis prompts. It backs --yes and --dry-run.
type FixedConfirmer struct {
	Answer Response
}

// Confirm returns the fixed answer.
func (c FixedConfirmer) Confirm(ctx context.Context, p Prompt) (Response, error) {
	if err := ctx.Err(); err != nil {
		return No, err
	}
	if p.Phase == PhaseOrphans {
		return No, nil
	}
	return c.Answer, nil
}

// ScriptedConfirmer replays answers in order and records the prompts it saw.
// Once the script runs out every answer is No.
type ScriptedConfirmer struct {
	mu      sync.Mutex
	answers []Response
	Prompts []Prompt
}

// NewScriptedConfirmer creates a confirmer that replays answers.
func NewScriptedConfirmer(answers ...Response) *ScriptedConfirmer {
	return &ScriptedConfirmer{answers: answers}
}

// Confirm returns the next scripted answer.
func (c *ScriptedConfirmer) Confirm(_ context.Context, p Prompt) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prompts = append(c.Prompts, p)
	if len(c.answers) == 0 {
		return No, nil
	}
	r := c.answers[0]
	c.answers = c.answers[1:]
	return r, nil
}
