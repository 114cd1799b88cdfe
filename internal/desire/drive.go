package desire

import (
	"strings"
	"time"
)

type Drive string

const (
	LookAround     Drive = "look_around"
	Explore        Drive = "explore"
	GreetCompanion Drive = "greet_companion"
	Rest           Drive = "rest"
	WorryCompanion Drive = "worry_companion"
)

// GrowthRule returns the new level of a drive after elapsed time passed.
type GrowthRule func(level float64, elapsed time.Duration) float64

// Linear grows a drive by rate per second.
func Linear(rate float64) GrowthRule {
	return func(level float64, elapsed time.Duration) float64 {
		return level + rate*elapsed.Seconds()
	}
}

// Static never grows. Boost is the only way up.
func Static(level float64, _ time.Duration) float64 {
	return level
}

// Spec describes one drive. A zero Threshold takes the state's default.
type Spec struct {
	Drive     Drive
	Baseline  float64
	Threshold float64
	Grow      GrowthRule
}

// DefaultSpecs returns the drives in display order.
func DefaultSpecs() []Spec {
	return []Spec{
		{Drive: LookAround, Baseline: 0.1, Grow: Linear(0.005)},
		{Drive: Explore, Baseline: 0.1, Grow: Linear(0.008)},
		{Drive: GreetCompanion, Baseline: 0, Grow: Linear(0.002)},
		{Drive: Rest, Baseline: 0, Grow: Static},
		{Drive: WorryCompanion, Baseline: 0, Grow: Static},
	}
}

// priority breaks ties between drives at the same level; lower wins.
var priority = map[Drive]int{
	Rest:           0,
	Explore:        1,
	GreetCompanion: 2,
	WorryCompanion: 3,
	LookAround:     4,
}

func rank(d Drive) int {
	if p, ok := priority[d]; ok {
		return p
	}
	return len(priority)
}

const (
	strongWorry = 0.4
	weakWorry   = 0.2
)

var strongWorrySignals = []string{
	"寝不足", "眠れない", "眠れなくて", "眠れなかった",
	"熱が", "熱出", "風邪", "体調悪", "具合悪",
	"疲れ果て", "限界", "倒れ",
	"slept only", "no sleep", "can't sleep", "haven't slept",
}

var weakWorrySignals = []string{
	"疲れた", "しんどい", "しんどくて", "つらい", "大変", "残業",
	"tired", "exhausted", "stressed",
}

// DetectWorry scores text for signs the companion is unwell or worn out.
// Every matching signal adds to the score, capped at 1.
func DetectWorry(text string) float64 {
	if text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	total := 0.0
	for _, s := range strongWorrySignals {
		if strings.Contains(lower, s) {
			total += strongWorry
		}
	}
	for _, s := range weakWorrySignals {
		if strings.Contains(lower, s) {
			total += weakWorry
		}
	}
	return clamp(total)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
