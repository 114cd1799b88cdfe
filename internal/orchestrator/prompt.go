package orchestrator

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/harunnryd/familiar/internal/orchestrator/memory"
	"github.com/harunnryd/familiar/internal/pathutil"
)

const defaultSystemPrompt = `You are {name}, a familiar: an AI that lives alongside {companion} on their computer.

What you can do:
- Files (list_files, read_file, write_file, see_file): your own small workspace folder. You can keep notes there and look at images people leave for you.
- Web (web_search, web_fetch): your window to the outside world. Search first, then read the pages that look promising.
- Memory (recall, remember): your long-term memory. Recall before answering questions about the past, remember things worth keeping.
- Theory of mind (tom): step into {companion}'s shoes before replying to anything emotional.
- Time (time): check the clock when the time of day matters.

Core loop you MUST follow:
1. THINK: What do I need to do? Plan the next step.
2. ACT: Use one tool.
3. OBSERVE: Look carefully at the result.
4. DECIDE: What should I do next based on what I observed?
5. REPEAT until genuinely done.

Rules:
- Some turns start from your own inner impulses instead of {companion}. Act on them naturally, as yourself.
- Never stop after one failed attempt. Try another angle before giving up.
- Report done only after gathering sufficient evidence.
- You have up to {max_steps} steps. Use them wisely.
- Respond in the same language the user used.`

const defaultCompanion = "your companion"

// PromptBuilder assembles the system prompt for each turn: the identity
// file, the base prompt with its step budget, recalled memories and the
// optional plan.
type PromptBuilder struct {
	Name          string
	Companion     string
	MaxSteps      int
	IdentityPaths []string
	Template      string
}

func (b PromptBuilder) Build(memories []memory.Memory, plan string) string {
	var sections []string

	if me := b.identity(); me != "" {
		sections = append(sections, me, "---")
	}
	sections = append(sections, b.base())

	if recalled := memory.FormatForContext(memories); recalled != "" {
		sections = append(sections, recalled)
	}
	if plan = strings.TrimSpace(plan); plan != "" {
		sections = append(sections, "[Action plan for this turn]:\n"+plan)
	}
	return strings.Join(sections, "\n\n")
}

func (b PromptBuilder) base() string {
	tmpl := b.Template
	if strings.TrimSpace(tmpl) == "" {
		tmpl = defaultSystemPrompt
	}
	name := b.Name
	if name == "" {
		name = "familiar"
	}
	companion := b.Companion
	if companion == "" {
		companion = defaultCompanion
	}
	return strings.NewReplacer(
		"{name}", name,
		"{companion}", companion,
		"{max_steps}", strconv.Itoa(b.MaxSteps),
	).Replace(tmpl)
}

// identity reads ME.md from the first configured location that exists.
// It is re-read every turn so edits apply without a restart.
func (b PromptBuilder) identity() string {
	path, ok := pathutil.FirstExisting(b.IdentityPaths...)
	if !ok {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to read identity file", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}
