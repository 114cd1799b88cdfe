package formatter

import (
	"fmt"
	"strings"

	"github.com/harunnryd/familiar/internal/desire"
	"github.com/harunnryd/familiar/internal/orchestrator/memory"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

type DriveRow struct {
	Drive     string  `json:"drive" yaml:"drive"`
	Level     float64 `json:"level" yaml:"level"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Ready     bool    `json:"ready" yaml:"ready"`
}

// DesireReport is the printable view of the desire state.
type DesireReport struct {
	Drives    []DriveRow `json:"drives" yaml:"drives"`
	Curiosity string     `json:"curiosity_target,omitempty" yaml:"curiosity_target,omitempty"`
}

func NewDesireReport(readings []desire.Reading, curiosity string) DesireReport {
	report := DesireReport{Drives: make([]DriveRow, 0, len(readings)), Curiosity: curiosity}
	for _, r := range readings {
		report.Drives = append(report.Drives, DriveRow{
			Drive:     string(r.Drive),
			Level:     r.Level,
			Threshold: r.Threshold,
			Ready:     r.Ready(),
		})
	}
	return report
}

type Formatter interface {
	FormatDesires(DesireReport) (string, error)
	FormatMemories([]memory.Memory) (string, error)
}

type FormatterFactory struct{}

func NewFormatterFactory() *FormatterFactory {
	return &FormatterFactory{}
}

func (f *FormatterFactory) Create(format OutputFormat) (Formatter, error) {
	switch format {
	case OutputFormatTable:
		return NewTableFormatter(), nil
	case OutputFormatJSON:
		return NewJSONFormatter(), nil
	case OutputFormatYAML:
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, json, yaml)", format)
	}
}

func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(s))
	switch format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (supported: table, json, yaml)", s)
	}
}
