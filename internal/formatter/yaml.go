package formatter

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harunnryd/familiar/internal/orchestrator/memory"
)

type YAMLFormatter struct{}

func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

func (f *YAMLFormatter) FormatDesires(report DesireReport) (string, error) {
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *YAMLFormatter) FormatMemories(memories []memory.Memory) (string, error) {
	data, err := yaml.Marshal(memories)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
