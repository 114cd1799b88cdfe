package formatter

import (
	"encoding/json"

	"github.com/harunnryd/familiar/internal/orchestrator/memory"
)

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) FormatDesires(report DesireReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *JSONFormatter) FormatMemories(memories []memory.Memory) (string, error) {
	if memories == nil {
		memories = []memory.Memory{}
	}
	data, err := json.MarshalIndent(memories, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
