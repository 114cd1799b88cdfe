package curiosity

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	classifyMaxTokens = 200
	reportChars       = 2000
	targetChars       = 200
)

const classifyPrompt = `Read the following report from an exploration and tell me, in ONE sentence,
the single thing that was most curious, puzzling or worth looking at more closely.
If there is nothing like that, answer exactly "none" (or "なし").

%s`

var (
	bracketMarker = regexp.MustCompile(`(?i)\[curious:\s*([^\]]+)\]`)
	linePrefixes  = []string{"curious:", "気になる:", "気になる：", "i want to investigate"}
	noneAnswers   = map[string]bool{"none": true, "なし": true, "nothing": true, "no": true}
)

// Completer is the one-shot completion used to classify a report.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Extractor finds what the agent wants to investigate next in the final
// text of a turn.
type Extractor struct {
	backend Completer
}

// NewExtractor builds an extractor. With a nil backend only explicit
// markers are recognised.
func NewExtractor(backend Completer) *Extractor {
	return &Extractor{backend: backend}
}

func (e *Extractor) Extract(ctx context.Context, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if target, ok := fromMarkers(text); ok {
		return target, true
	}
	if e.backend == nil {
		return "", false
	}

	report := text
	if utf8.RuneCountInString(report) > reportChars {
		report = string([]rune(report)[:reportChars])
	}
	answer, err := e.backend.Complete(ctx, fmt.Sprintf(classifyPrompt, report), classifyMaxTokens)
	if err != nil {
		slog.Warn("Curiosity extraction failed", "error", err)
		return "", false
	}
	return normalize(answer)
}

func fromMarkers(text string) (string, bool) {
	if m := bracketMarker.FindStringSubmatch(text); m != nil {
		return normalize(m[1])
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*>#"))
		lower := strings.ToLower(line)
		for _, prefix := range linePrefixes {
			if strings.HasPrefix(lower, prefix) {
				rest := strings.TrimLeft(line[len(prefix):], " :：,")
				if target, ok := normalize(rest); ok {
					return target, true
				}
			}
		}
	}
	return "", false
}

func normalize(answer string) (string, bool) {
	answer = strings.TrimSpace(answer)
	answer = strings.Trim(answer, "\"'「」“”`")
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false
	}
	key := strings.ToLower(strings.TrimRight(answer, ".。!！"))
	if noneAnswers[key] {
		return "", false
	}
	if utf8.RuneCountInString(answer) > targetChars {
		answer = string([]rune(answer)[:targetChars])
	}
	return answer, true
}
