package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/familiar/internal/concurrency"
	"github.com/harunnryd/familiar/internal/desire"
	"github.com/harunnryd/familiar/internal/model/contract"
	"github.com/harunnryd/familiar/internal/orchestrator"
	"github.com/harunnryd/familiar/internal/orchestrator/command"

	"charm.land/lipgloss/v2"
)

const (
	promptText    = "> "
	argsPreview   = 80
	idlePollEvery = 50 * time.Millisecond
)

// Submitter is the slice of the turn loop the REPL drives.
type Submitter interface {
	Submit(req orchestrator.TurnRequest)
	Busy() bool
}

type replStyles struct {
	name     lipgloss.Style
	impulse  lipgloss.Style
	tool     lipgloss.Style
	dim      lipgloss.Style
	failure  lipgloss.Style
	greeting lipgloss.Style
}

func newReplStyles() replStyles {
	return replStyles{
		name:     lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true),
		impulse:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true),
		tool:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		dim:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
		failure:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		greeting: lipgloss.NewStyle().Foreground(lipgloss.Color("99")),
	}
}

// REPL reads the companion's lines and renders turns as they stream. It is
// the loop's Presenter and the command handler's Output.
type REPL struct {
	in      io.Reader
	out     io.Writer
	name    string
	desires *desire.State
	styles  replStyles

	mu        sync.Mutex
	submitter Submitter
	handler   command.Handler
}

var (
	_ orchestrator.Presenter = (*REPL)(nil)
	_ command.Output         = (*REPL)(nil)
)

func NewREPL(in io.Reader, out io.Writer, name string, desires *desire.State) *REPL {
	if name == "" {
		name = "familiar"
	}
	return &REPL{in: in, out: out, name: name, desires: desires, styles: newReplStyles()}
}

// Attach binds the REPL to a running loop and its slash commands.
func (r *REPL) Attach(submitter Submitter, handler command.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitter = submitter
	r.handler = handler
}

// Run reads lines until ctx is done, /quit, or end of input. At end of
// input it waits for the running turn to finish first.
func (r *REPL) Run(ctx context.Context) error {
	r.mu.Lock()
	submitter, handler := r.submitter, r.handler
	r.mu.Unlock()
	if submitter == nil || handler == nil {
		return fmt.Errorf("repl not attached to a turn loop")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readDone := make(chan error, 1)
	concurrency.SafeGo("repl-reader", func() {
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readDone <- scanner.Err()
	}, nil)

	r.write(r.styles.greeting.Render(fmt.Sprintf("%s is here. Type /help for commands.", r.name)) + "\n" + promptText)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readDone:
			r.waitIdle(ctx, submitter)
			return err
		case line := <-lines:
			if err := r.handleLine(ctx, line, submitter, handler); err != nil {
				if errors.Is(err, command.ErrQuit) {
					return nil
				}
				return err
			}
		}
	}
}

func (r *REPL) handleLine(ctx context.Context, line string, submitter Submitter, handler command.Handler) error {
	line = strings.TrimSpace(line)
	if line == "" {
		r.write(promptText)
		return nil
	}
	if handler.CanHandle(line) {
		if err := handler.Execute(ctx, line); err != nil {
			return err
		}
		r.write(promptText)
		return nil
	}
	submitter.Submit(orchestrator.TurnRequest{Text: line, Origin: contract.OriginUser})
	return nil
}

func (r *REPL) waitIdle(ctx context.Context, submitter Submitter) {
	ticker := time.NewTicker(idlePollEvery)
	defer ticker.Stop()
	for submitter.Busy() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *REPL) OnTurnStart(origin contract.Origin, label string) {
	var b strings.Builder
	b.WriteString("\n")
	if origin == contract.OriginSelf {
		b.WriteString(r.styles.impulse.Render("✦ " + label))
		b.WriteString("\n")
	}
	b.WriteString(r.styles.name.Render(r.name + ":"))
	b.WriteString(" ")
	r.write(b.String())
}

func (r *REPL) OnText(text string) {
	r.write(text)
}

func (r *REPL) OnToolCall(call contract.ToolCall) {
	args := strings.TrimSpace(string(call.ArgumentsJSON()))
	if args == "{}" || args == "null" {
		args = ""
	}
	r.write("\n" + r.styles.tool.Render(strings.TrimSpace("  → "+call.Name+" "+preview(args, argsPreview))) + "\n")
}

func (r *REPL) OnTurnDone(outcome orchestrator.TurnOutcome, err error) {
	var b strings.Builder
	b.WriteString("\n")
	switch {
	case err != nil:
		b.WriteString(r.styles.failure.Render("✗ " + err.Error()))
		b.WriteString("\n")
	case outcome.StopReason == contract.StopCancelled:
		b.WriteString(r.styles.dim.Render("(interrupted)"))
		b.WriteString("\n")
	case outcome.Truncated:
		b.WriteString(r.styles.dim.Render(orchestrator.TruncationNotice(outcome.Iterations)))
		b.WriteString("\n")
	}
	if r.desires != nil {
		if target := r.desires.Curiosity(); target != "" {
			b.WriteString(r.styles.dim.Render("(curious about: " + target + ")"))
			b.WriteString("\n")
		}
	}
	b.WriteString(promptText)
	r.write(b.String())
}

// Send prints command output.
func (r *REPL) Send(_ context.Context, content string) error {
	r.write(strings.TrimRight(content, "\n") + "\n")
	return nil
}

func (r *REPL) write(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, s)
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
