package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	toolcore "github.com/harunnryd/familiar/internal/tool"
)

func init() {
	toolcore.RegisterBuiltin("time", func(options toolcore.BuiltinOptions) ([]toolcore.Tool, error) {
		return []toolcore.Tool{&TimeTool{}}, nil
	})
}

// TimeTool reports the current time.
type TimeTool struct {
	now func() time.Time
}

func (t *TimeTool) Name() string {
	return "time"
}

func (t *TimeTool) Description() string {
	return "Get the current date and time, optionally at a UTC offset like +09:00."
}

func (t *TimeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"utc_offset": map[string]interface{}{
				"type":        "string",
				"description": "UTC offset like +07:00 (optional, defaults to local time)",
			},
		},
	}
}

func (t *TimeTool) Execute(ctx context.Context, input json.RawMessage) (toolcore.Observation, error) {
	var args struct {
		UTCOffset string `json:"utc_offset"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return toolcore.Observation{}, fmt.Errorf("invalid input: %w", err)
		}
	}

	now := time.Now()
	if t.now != nil {
		now = t.now()
	}

	offset := strings.TrimSpace(args.UTCOffset)
	if offset != "" {
		seconds, err := parseUTCOffset(offset)
		if err != nil {
			return toolcore.Observation{}, err
		}
		now = now.In(time.FixedZone(offset, seconds))
	}

	return toolcore.Text("It is %s (%s).", now.Format("Monday, 2 January 2006 15:04"), now.Format("-07:00")), nil
}

func parseUTCOffset(offset string) (int, error) {
	if len(offset) != 6 {
		return 0, fmt.Errorf("invalid utc_offset format")
	}
	if offset[0] != '+' && offset[0] != '-' {
		return 0, fmt.Errorf("invalid utc_offset sign")
	}
	if offset[3] != ':' {
		return 0, fmt.Errorf("invalid utc_offset format")
	}
	for _, i := range []int{1, 2, 4, 5} {
		if offset[i] < '0' || offset[i] > '9' {
			return 0, fmt.Errorf("invalid utc_offset format")
		}
	}

	hours := int(offset[1]-'0')*10 + int(offset[2]-'0')
	minutes := int(offset[4]-'0')*10 + int(offset[5]-'0')
	if hours > 23 || minutes > 59 {
		return 0, fmt.Errorf("invalid utc_offset value")
	}

	totalSeconds := hours*3600 + minutes*60
	if offset[0] == '-' {
		totalSeconds = -totalSeconds
	}
	return totalSeconds, nil
}
