package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/familiar/internal/desire"
	"github.com/harunnryd/familiar/internal/formatter"
	"github.com/harunnryd/familiar/internal/orchestrator/memory"

	"github.com/google/shlex"
)

// ErrQuit is returned by Execute for /quit.
var ErrQuit = errors.New("quit requested")

const (
	defaultRecallLimit = 5
	quitMessage        = "See you later."
)

type Handler interface {
	CanHandle(input string) bool
	Execute(ctx context.Context, input string) error
}

// Conversation is the in-memory history /clear empties.
type Conversation interface {
	Clear() error
}

// Transcript is the persisted history /clear resets.
type Transcript interface {
	Reset() error
}

type Recaller interface {
	Retrieve(ctx context.Context, query string, k int) ([]memory.Memory, error)
}

type Output interface {
	Send(ctx context.Context, content string) error
}

type Options struct {
	Conversation Conversation
	Transcript   Transcript
	Desires      *desire.State
	Memory       Recaller
	Formatter    formatter.Formatter
}

type DefaultCommandHandler struct {
	opts   Options
	output Output
}

func NewHandler(opts Options, output Output) *DefaultCommandHandler {
	if opts.Formatter == nil {
		opts.Formatter = formatter.NewTableFormatter()
	}
	return &DefaultCommandHandler{opts: opts, output: output}
}

func (h *DefaultCommandHandler) CanHandle(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

func (h *DefaultCommandHandler) Execute(ctx context.Context, input string) error {
	parts, parseErr := shlex.Split(input)
	if parseErr != nil {
		parts = strings.Fields(input)
	}
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	slog.Info("Executing slash command", "cmd", cmd)

	var msg string
	var err error
	quit := false

	switch cmd {
	case "/clear":
		msg, err = h.handleClear()
	case "/desires":
		msg, err = h.handleDesires()
	case "/recall":
		msg, err = h.handleRecall(ctx, args)
	case "/help":
		msg = h.helpText()
	case "/quit", "/exit":
		msg = quitMessage
		quit = true
	default:
		msg = fmt.Sprintf("Unknown command: %s (try /help)", cmd)
	}

	if err != nil {
		msg = fmt.Sprintf("Command failed: %v", err)
		slog.Error("Command execution failed", "cmd", cmd, "error", err)
	}

	if h.output != nil {
		if err := h.output.Send(ctx, msg); err != nil {
			return fmt.Errorf("send command output: %w", err)
		}
	}
	if quit {
		return ErrQuit
	}
	return nil
}

func (h *DefaultCommandHandler) handleClear() (string, error) {
	if h.opts.Conversation == nil {
		return "", fmt.Errorf("conversation not initialized")
	}
	if err := h.opts.Conversation.Clear(); err != nil {
		return "", err
	}
	if h.opts.Transcript != nil {
		if err := h.opts.Transcript.Reset(); err != nil {
			return "", fmt.Errorf("reset transcript: %w", err)
		}
	}
	return "Conversation cleared.", nil
}

func (h *DefaultCommandHandler) handleDesires() (string, error) {
	if h.opts.Desires == nil {
		return "Desires are disabled.", nil
	}
	h.opts.Desires.Tick(time.Now())
	report := formatter.NewDesireReport(h.opts.Desires.Readings(), h.opts.Desires.Curiosity())
	return h.opts.Formatter.FormatDesires(report)
}

func (h *DefaultCommandHandler) handleRecall(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: /recall <query>", nil
	}
	if h.opts.Memory == nil {
		return "Memory is disabled.", nil
	}
	memories, err := h.opts.Memory.Retrieve(ctx, strings.Join(args, " "), defaultRecallLimit)
	if err != nil {
		return "", err
	}
	return h.opts.Formatter.FormatMemories(memories)
}

func (h *DefaultCommandHandler) helpText() string {
	return "Available commands: /help, /desires, /recall <query>, /clear, /quit"
}
